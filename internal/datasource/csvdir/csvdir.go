// Package csvdir reads a session exported as one CSV file per topic.
//
// A session is a directory, or a ".bag" path whose sibling directory (the
// same name without ".bag") holds the export. Each file is named after its
// topic with every '/' replaced by "_slash_", e.g. "/sick_lms_5xx/scan" is
// "_slash_sick_lms_5xx_slash_scan.csv". Headers are source field names.
//
// The envelope is taken from well-known columns: "rosbagTimestamp" (or
// "%time") is the receipt time, "secs"/"nsecs" (or
// "header.stamp.secs"/"header.stamp.nsecs") the header stamp. Values stay
// strings; the normalizer parses them.
package csvdir

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"bagetl/internal/datasource"
	"bagetl/internal/datasource/file"
	"bagetl/internal/etlerr"
)

const (
	Kind = "csvdir"

	slash = "_slash_"
	ext   = ".csv"
)

func init() {
	datasource.Register(Kind, datasource.OpenerFunc(func(ctx context.Context, path string) (datasource.Log, error) {
		return Open(ctx, path)
	}))
}

// TopicFile returns the file name a topic is exported to.
func TopicFile(topic string) string {
	return strings.ReplaceAll(topic, "/", slash) + ext
}

// FileTopic is the inverse of TopicFile.
func FileTopic(name string) string {
	return strings.ReplaceAll(strings.TrimSuffix(name, ext), slash, "/")
}

// Log is an opened CSV session directory.
type Log struct {
	path string // as given
	dir  string
}

// Open resolves path to its export directory.
func Open(ctx context.Context, path string) (*Log, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := path
	if strings.HasSuffix(path, ".bag") {
		if fi, err := os.Stat(strings.TrimSuffix(path, ".bag")); err == nil && fi.IsDir() {
			dir = strings.TrimSuffix(path, ".bag")
		}
	}
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, &etlerr.ForeignSourceReadError{Path: path, Err: err}
	}
	if !fi.IsDir() {
		return nil, &etlerr.ForeignSourceReadError{Path: path, Err: fmt.Errorf("%s is not an export directory", dir)}
	}
	return &Log{path: path, dir: dir}, nil
}

func (l *Log) Topics(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, &etlerr.ForeignSourceReadError{Path: l.path, Err: err}
	}
	var topics []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		topics = append(topics, FileTopic(e.Name()))
	}
	sort.Strings(topics)
	return topics, nil
}

func (l *Log) MessageCount(ctx context.Context, topic string) (int, error) {
	n := 0
	err := l.Read(ctx, []string{topic}, func(datasource.Message) error {
		n++
		return nil
	})
	return n, err
}

// Read streams topics one file at a time, in the order given.
func (l *Log) Read(ctx context.Context, topics []string, fn func(datasource.Message) error) error {
	for _, topic := range topics {
		if err := l.readTopic(ctx, topic, fn); err != nil {
			return err
		}
	}
	return nil
}

// End scans every topic for the latest receipt time.
func (l *Log) End(ctx context.Context) (time.Time, error) {
	topics, err := l.Topics(ctx)
	if err != nil {
		return time.Time{}, err
	}
	var end time.Time
	err = l.Read(ctx, topics, func(m datasource.Message) error {
		if m.Received.After(end) {
			end = m.Received
		}
		return nil
	})
	return end, err
}

func (l *Log) Close() error { return nil }

func (l *Log) readTopic(ctx context.Context, topic string, fn func(datasource.Message) error) error {
	wrap := func(err error) error {
		return &etlerr.ForeignSourceReadError{Path: l.path, Topic: topic, Err: err}
	}

	rc, err := file.NewLocal(filepath.Join(l.dir, TopicFile(topic))).Open(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return wrap(err)
	}
	defer rc.Close()

	cr := csv.NewReader(rc)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	headers, err := cr.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return wrap(fmt.Errorf("read header: %w", err))
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}
	env := locateEnvelope(headers)

	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		line++
		if err != nil {
			return wrap(fmt.Errorf("line %d: %w", line, err))
		}

		msg, err := env.message(topic, headers, rec)
		if err != nil {
			return wrap(fmt.Errorf("line %d: %w", line, err))
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
}

// envelope holds the header indexes of the well-known columns; -1 if absent.
type envelope struct {
	received, secs, nsecs int
}

func locateEnvelope(headers []string) envelope {
	env := envelope{received: -1, secs: -1, nsecs: -1}
	for i, h := range headers {
		switch h {
		case "rosbagTimestamp", "%time":
			env.received = i
		case "secs", "header.stamp.secs":
			if env.secs < 0 || h == "secs" {
				env.secs = i
			}
		case "nsecs", "header.stamp.nsecs":
			if env.nsecs < 0 || h == "nsecs" {
				env.nsecs = i
			}
		}
	}
	return env
}

func (env envelope) message(topic string, headers, rec []string) (datasource.Message, error) {
	msg := datasource.Message{Topic: topic, Fields: make(map[string]any, len(headers))}
	for i, h := range headers {
		if i >= len(rec) {
			break
		}
		msg.Fields[h] = rec[i]
	}

	var err error
	if env.secs >= 0 && env.secs < len(rec) {
		if msg.Stamp.Secs, err = parseInt(rec[env.secs]); err != nil {
			return msg, fmt.Errorf("secs: %w", err)
		}
	}
	if env.nsecs >= 0 && env.nsecs < len(rec) {
		if msg.Stamp.Nsecs, err = parseInt(rec[env.nsecs]); err != nil {
			return msg, fmt.Errorf("nsecs: %w", err)
		}
	}
	if env.received >= 0 && env.received < len(rec) {
		if msg.Received, err = ParseReceived(rec[env.received]); err != nil {
			return msg, fmt.Errorf("receipt time: %w", err)
		}
	} else {
		msg.Received = msg.Stamp.Time()
	}
	return msg, nil
}

func parseInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// ParseReceived parses a receipt timestamp. Integers above 1e11 are taken as
// nanoseconds since the epoch (rostopic's %time), other values as seconds.
func ParseReceived(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e11 {
			return time.Unix(0, n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, err
	}
	sec := int64(f)
	return time.Unix(sec, int64((f-float64(sec))*1e9)).UTC(), nil
}
