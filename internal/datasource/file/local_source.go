package file

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Local opens one file from the local disk. Open strips a leading UTF-8 BOM
// so CSV headers exported by spreadsheet tools compare equal to plain ones.
type Local struct{ path string }

// NewLocal returns a Local bound to path.
func NewLocal(path string) *Local { return &Local{path: path} }

// Open returns the file contents without a leading BOM. A canceled ctx
// returns ctx.Err() without touching the filesystem; filesystem errors wrap
// the underlying error so errors.Is(err, os.ErrNotExist) works.
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	br := bufio.NewReader(f)
	if head, err := br.Peek(len(utf8BOM)); err == nil && string(head) == string(utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return &bomReader{Reader: br, f: f}, nil
}

type bomReader struct {
	*bufio.Reader
	f *os.File
}

func (r *bomReader) Close() error { return r.f.Close() }
