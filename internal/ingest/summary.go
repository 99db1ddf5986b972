package ingest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"bagetl/internal/etlerr"
)

// State is the lifecycle state of a session.
type State string

const (
	StateUnknown         State = "unknown"
	StateParsing         State = "parsing"
	StateParsed          State = "parsed"
	StatePartiallyParsed State = "partially_parsed"
	// StateSkipped is a parsed session the reparse decision left alone.
	StateSkipped State = "skipped"
	// StateFailed is a session whose log could not be opened or listed.
	StateFailed State = "failed"
)

// Topic outcomes.
const (
	OutcomeLoaded  = "loaded"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// TopicResult is the outcome of one topic.
type TopicResult struct {
	Topic   string
	Table   string
	Outcome string
	Rows    int64
	File    string // CSV output, when written
	Err     error
}

// Kind returns the error class of r, "" for a clean load.
func (r TopicResult) Kind() string { return etlerr.Kind(r.Err) }

// Summary reports one session.
type Summary struct {
	RunID     string
	Session   string
	Path      string
	SessionID int64
	State     State
	// Overwritten is set when a parsed session was reloaded.
	Overwritten bool
	Topics      []TopicResult
	Err         error
	Duration    time.Duration
}

func (s *Summary) add(r TopicResult) { s.Topics = append(s.Topics, r) }

// Attempted counts the topics that had a rule.
func (s Summary) Attempted() int {
	n := 0
	for _, r := range s.Topics {
		if r.Kind() != "unmapped_topic" {
			n++
		}
	}
	return n
}

// Loaded returns the rows loaded per table.
func (s Summary) Loaded() map[string]int64 {
	out := map[string]int64{}
	for _, r := range s.Topics {
		if r.Outcome == OutcomeLoaded {
			out[r.Table] += r.Rows
		}
	}
	return out
}

// Skipped returns the skipped topics.
func (s Summary) Skipped() []TopicResult { return s.filter(OutcomeSkipped) }

// Failed returns the failed topics.
func (s Summary) Failed() []TopicResult { return s.filter(OutcomeFailed) }

func (s Summary) filter(outcome string) []TopicResult {
	var out []TopicResult
	for _, r := range s.Topics {
		if r.Outcome == outcome {
			out = append(out, r)
		}
	}
	return out
}

// String renders a one-line report followed by one line per skipped or
// failed topic.
func (s Summary) String() string {
	var b strings.Builder
	loaded := s.Loaded()
	tables := make([]string, 0, len(loaded))
	var rows int64
	for t, n := range loaded {
		tables = append(tables, t)
		rows += n
	}
	sort.Strings(tables)
	fmt.Fprintf(&b, "session=%s id=%d state=%s attempted=%d loaded_rows=%d tables=%d skipped=%d failed=%d elapsed=%s",
		s.Session, s.SessionID, s.State, s.Attempted(), rows, len(tables),
		len(s.Skipped()), len(s.Failed()), s.Duration.Truncate(time.Millisecond))
	if s.Err != nil {
		fmt.Fprintf(&b, " err=%q", s.Err.Error())
	}
	for _, r := range s.Topics {
		if r.Outcome == OutcomeLoaded {
			continue
		}
		if r.Err == nil {
			fmt.Fprintf(&b, "\n  %s topic=%s: empty", r.Outcome, r.Topic)
			continue
		}
		fmt.Fprintf(&b, "\n  %s topic=%s kind=%s: %v", r.Outcome, r.Topic, r.Kind(), r.Err)
	}
	return b.String()
}
