package etlerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKind(t *testing.T) {
	t.Parallel()

	base := errors.New("boom")
	tests := []struct {
		name  string
		err   error
		kind  string
		topic bool
		fatal bool
	}{
		{"nil", nil, "", false, false},
		{"unmapped", &UnmappedTopicWarning{Topic: "/x"}, "unmapped_topic", true, false},
		{"mismatch", &SchemaMismatchError{Topic: "/x", Row: -1}, "schema_mismatch", true, false},
		{"duplicate wrapped", fmt.Errorf("load: %w", &DuplicateSessionDataConflict{Table: "gps", Err: base}), "duplicate_session_data", true, false},
		{"read", &ForeignSourceReadError{Path: "a.bag", Err: base}, "source_read", true, false},
		{"sink", &SinkConnectivityError{Kind: "postgres", Op: "ping", Err: base}, "sink_connectivity", false, true},
		{"other", base, "other", false, false},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Kind(tc.err); got != tc.kind {
				t.Errorf("Kind() = %q; want %q", got, tc.kind)
			}
			if got := IsTopicLevel(tc.err); got != tc.topic {
				t.Errorf("IsTopicLevel() = %v; want %v", got, tc.topic)
			}
			if got := IsFatal(tc.err); got != tc.fatal {
				t.Errorf("IsFatal() = %v; want %v", got, tc.fatal)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	t.Parallel()

	base := errors.New("connection refused")
	err := fmt.Errorf("open: %w", &SinkConnectivityError{Kind: "mssql", Op: "ping", Err: base})
	if !errors.Is(err, base) {
		t.Fatalf("errors.Is(base) = false")
	}
	var sink *SinkConnectivityError
	if !errors.As(err, &sink) || sink.Op != "ping" {
		t.Fatalf("errors.As() = %v", sink)
	}
}

func TestSchemaMismatchMessage(t *testing.T) {
	t.Parallel()

	e := &SchemaMismatchError{Topic: "/gps", Table: "gps", Want: 9, Got: 8, Row: -1}
	want := "schema mismatch for /gps (table gps): frame has 8 columns, table has 9"
	if got := e.Error(); got != want {
		t.Fatalf("Error() = %q; want %q", got, want)
	}
}
