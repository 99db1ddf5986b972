// Package csvfile writes normalized frames as CSV files, one file per topic
// under a directory named after the session:
//
//	<dir>/<session without .bag>/<topic with '/' as "_slash_">.csv
//
// The first record is the header. NULL cells are written as "NULL".
package csvfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"bagetl/internal/datasource/csvdir"
	"bagetl/internal/frame"
)

// Null is the cell text of a NULL value.
const Null = "NULL"

// ErrExists is returned when the target file exists and overwriting is off.
var ErrExists = errors.New("csvfile: file exists")

// Writer writes frames below Dir.
type Writer struct {
	Dir       string
	Overwrite bool
}

// Path returns the file a topic of session is written to.
func Path(dir, session, topic string) string {
	base := strings.TrimSuffix(filepath.Base(session), ".bag")
	return filepath.Join(dir, base, csvdir.TopicFile(topic))
}

// Write writes f for topic of session and returns the file path. An empty
// frame writes nothing and returns "".
func (w Writer) Write(session, topic string, f *frame.Frame) (string, error) {
	if f == nil || f.Len() == 0 {
		return "", nil
	}
	path := Path(w.Dir, session, topic)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("csvfile: mkdir: %w", err)
	}
	flag := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !w.Overwrite {
		flag = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	out, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrExists, path)
		}
		return "", fmt.Errorf("csvfile: %w", err)
	}

	cw := csv.NewWriter(out)
	err = writeAll(cw, f)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("csvfile: write %s: %w", path, err)
	}
	return path, nil
}

func writeAll(cw *csv.Writer, f *frame.Frame) error {
	if err := cw.Write(f.Columns); err != nil {
		return err
	}
	rec := make([]string, f.Width())
	for _, row := range f.Rows {
		for i, v := range row {
			rec[i] = Format(v)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Format renders one cell.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return Null
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	}
	return fmt.Sprint(v)
}
