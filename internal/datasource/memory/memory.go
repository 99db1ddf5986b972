// Package memory is an in-process session source. Tests and embedding callers
// build sessions from Message values and register them by path.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"bagetl/internal/datasource"
	"bagetl/internal/etlerr"
)

const Kind = "memory"

// Log is a recorded session held in memory. Messages are kept in arrival
// order. FailTopics makes reads of the named topics fail, which simulates a
// corrupt log.
type Log struct {
	Messages   []datasource.Message
	FailTopics map[string]error
	path       string
}

// New returns a Log holding msgs.
func New(msgs ...datasource.Message) *Log {
	return &Log{Messages: msgs}
}

func (l *Log) Topics(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, m := range l.Messages {
		if !seen[m.Topic] {
			seen[m.Topic] = true
			out = append(out, m.Topic)
		}
	}
	for t := range l.FailTopics {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (l *Log) MessageCount(ctx context.Context, topic string) (int, error) {
	n := 0
	err := l.Read(ctx, []string{topic}, func(datasource.Message) error { n++; return nil })
	return n, err
}

func (l *Log) Read(ctx context.Context, topics []string, fn func(datasource.Message) error) error {
	want := make(map[string]bool, len(topics))
	for _, t := range topics {
		if err, bad := l.FailTopics[t]; bad {
			return &etlerr.ForeignSourceReadError{Path: l.path, Topic: t, Err: err}
		}
		want[t] = true
	}
	for _, m := range l.Messages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !want[m.Topic] {
			continue
		}
		if err := fn(m); err != nil {
			return err
		}
	}
	return nil
}

func (l *Log) End(ctx context.Context) (time.Time, error) {
	var end time.Time
	for _, m := range l.Messages {
		if m.Received.After(end) {
			end = m.Received
		}
	}
	return end, ctx.Err()
}

func (l *Log) Close() error { return nil }

// Store maps session paths to logs and opens them. It is safe for
// concurrent use.
type Store struct {
	mu   sync.RWMutex
	logs map[string]*Log
}

// NewStore returns an empty Store.
func NewStore() *Store { return &Store{logs: map[string]*Log{}} }

// Put registers log under path, replacing any previous one.
func (s *Store) Put(path string, log *Log) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log.path = path
	s.logs[path] = log
}

// Open implements datasource.Opener.
func (s *Store) Open(ctx context.Context, path string) (datasource.Log, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	log, ok := s.logs[path]
	if !ok {
		return nil, &etlerr.ForeignSourceReadError{Path: path, Err: fmt.Errorf("no such session")}
	}
	return log, nil
}

// Default is the Store registered under Kind.
var Default = NewStore()

func init() {
	datasource.Register(Kind, Default)
}
