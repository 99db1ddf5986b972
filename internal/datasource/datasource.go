// Package datasource defines the read side of a recorded session: a finite,
// ordered stream of timestamped messages per topic.
//
// Concrete formats live in subpackages (csvdir, memory) and register an
// Opener under a kind name, the same way storage backends do.
package datasource

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Stamp is the header timestamp a message was published with.
type Stamp struct {
	Secs  int64
	Nsecs int64
}

// Seconds returns s as float seconds.
func (s Stamp) Seconds() float64 {
	return float64(s.Secs) + float64(s.Nsecs)*1e-9
}

// Time returns s as a UTC time.
func (s Stamp) Time() time.Time {
	return time.Unix(s.Secs, s.Nsecs).UTC()
}

// Message is one recorded message. Fields holds the decoded message body;
// nested messages are map[string]any and arrays are []any.
type Message struct {
	Topic    string
	Received time.Time
	Stamp    Stamp
	Fields   map[string]any
}

// Log is an opened session. Reads are finite and in arrival order. A Read
// that returns early cannot be resumed; a fresh Read starts over.
type Log interface {
	// Topics lists the topics present in the log.
	Topics(ctx context.Context) ([]string, error)
	// MessageCount returns the number of messages recorded on topic.
	MessageCount(ctx context.Context, topic string) (int, error)
	// Read calls fn for every message on topics. A non-nil error from fn
	// stops the read and is returned.
	Read(ctx context.Context, topics []string, fn func(Message) error) error
	// End returns the receipt time of the last message in the log.
	End(ctx context.Context) (time.Time, error)
	Close() error
}

// Opener opens a session log by path.
type Opener interface {
	Open(ctx context.Context, path string) (Log, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, path string) (Log, error)

func (f OpenerFunc) Open(ctx context.Context, path string) (Log, error) { return f(ctx, path) }

var (
	mu      sync.RWMutex
	openers = map[string]Opener{}
)

// Register makes an Opener available under kind. It panics on a duplicate
// registration; call it from init.
func Register(kind string, o Opener) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := openers[kind]; dup {
		panic("datasource: Register called twice for " + kind)
	}
	openers[kind] = o
}

// Lookup returns the Opener registered under kind.
func Lookup(kind string) (Opener, error) {
	mu.RLock()
	defer mu.RUnlock()
	o, ok := openers[kind]
	if !ok {
		return nil, fmt.Errorf("datasource: unknown kind %q (registered: %v)", kind, kindsLocked())
	}
	return o, nil
}

func kindsLocked() []string {
	out := make([]string, 0, len(openers))
	for k := range openers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
