// Package etlerr defines the typed failures raised while ingesting a session.
//
// Topic-level errors (unmapped topic, schema mismatch, duplicate data, read
// failure) are caught by the orchestrator and recorded in the session summary.
// SinkConnectivityError is the only run-level error: it aborts the run.
//
// Callers branch with errors.As on the concrete types; Kind returns a stable
// short name for summaries and metric labels.
package etlerr

import (
	"errors"
	"fmt"
)

// UnmappedTopicWarning reports a topic with no registry rule. It never fails
// a session.
type UnmappedTopicWarning struct {
	Topic string
}

func (e *UnmappedTopicWarning) Error() string {
	return fmt.Sprintf("topic %q has no mapping; skipped", e.Topic)
}

// SchemaMismatchError reports a normalized frame that does not fit the
// destination table, either by column count or by an unconvertible value.
type SchemaMismatchError struct {
	Topic  string
	Table  string
	Want   int // destination column count; 0 when the failure is a cast
	Got    int
	Column string
	Row    int // 0-based; -1 when not row specific
	Err    error
}

func (e *SchemaMismatchError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("schema mismatch for %s (table %s): column %q row %d: %v",
			e.Topic, e.Table, e.Column, e.Row, e.Err)
	}
	return fmt.Sprintf("schema mismatch for %s (table %s): frame has %d columns, table has %d",
		e.Topic, e.Table, e.Got, e.Want)
}

func (e *SchemaMismatchError) Unwrap() error { return e.Err }

// DuplicateSessionDataConflict reports a bulk load that hit a uniqueness
// constraint because the session was already (partly) loaded into Table.
type DuplicateSessionDataConflict struct {
	Table     string
	SessionID int64
	Err       error
}

func (e *DuplicateSessionDataConflict) Error() string {
	return fmt.Sprintf("session %d already has rows in %s: %v", e.SessionID, e.Table, e.Err)
}

func (e *DuplicateSessionDataConflict) Unwrap() error { return e.Err }

// ForeignSourceReadError reports that the log reader could not produce the
// messages of a topic (corrupt or truncated log).
type ForeignSourceReadError struct {
	Path  string
	Topic string
	Err   error
}

func (e *ForeignSourceReadError) Error() string {
	if e.Topic == "" {
		return fmt.Sprintf("read %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("read %s topic %s: %v", e.Path, e.Topic, e.Err)
}

func (e *ForeignSourceReadError) Unwrap() error { return e.Err }

// SinkConnectivityError reports a destination that cannot be reached or
// whose connection broke. It aborts the run.
type SinkConnectivityError struct {
	Kind string
	Op   string
	Err  error
}

func (e *SinkConnectivityError) Error() string {
	return fmt.Sprintf("%s sink unavailable (%s): %v", e.Kind, e.Op, e.Err)
}

func (e *SinkConnectivityError) Unwrap() error { return e.Err }

// Kind returns a short stable name for err's taxonomy class, or "other".
func Kind(err error) string {
	var (
		unmapped *UnmappedTopicWarning
		mismatch *SchemaMismatchError
		dup      *DuplicateSessionDataConflict
		read     *ForeignSourceReadError
		sink     *SinkConnectivityError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &sink):
		return "sink_connectivity"
	case errors.As(err, &unmapped):
		return "unmapped_topic"
	case errors.As(err, &mismatch):
		return "schema_mismatch"
	case errors.As(err, &dup):
		return "duplicate_session_data"
	case errors.As(err, &read):
		return "source_read"
	default:
		return "other"
	}
}

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	var sink *SinkConnectivityError
	return errors.As(err, &sink)
}

// IsTopicLevel reports whether err belongs to one topic and must be recorded
// without aborting the session.
func IsTopicLevel(err error) bool {
	switch Kind(err) {
	case "unmapped_topic", "schema_mismatch", "duplicate_session_data", "source_read":
		return true
	}
	return false
}
