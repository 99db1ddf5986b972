package file

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalOpen(t *testing.T) {
	t.Parallel()

	type tc struct {
		name            string
		contents        *string // nil leaves the file missing
		canceled        bool
		wantErrIs       error
		wantErrContains string
		wantContent     string
	}
	str := func(s string) *string { return &s }

	cases := []tc{
		{name: "plain_csv", contents: str("secs,nsecs\n1,2\n"), wantContent: "secs,nsecs\n1,2\n"},
		{name: "bom_is_stripped", contents: str("\ufeffsecs,nsecs\n"), wantContent: "secs,nsecs\n"},
		{name: "short_file_kept", contents: str("a"), wantContent: "a"},
		{name: "missing_file", wantErrIs: os.ErrNotExist, wantErrContains: "open "},
		{name: "pre_canceled_context", contents: str("ignored"), canceled: true, wantErrIs: context.Canceled},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "_slash_parseTrigger.csv")
			if c.contents != nil {
				if err := os.WriteFile(path, []byte(*c.contents), 0o644); err != nil {
					t.Fatalf("write test file: %v", err)
				}
			}
			ctx := context.Background()
			if c.canceled {
				var cancel context.CancelFunc
				ctx, cancel = context.WithCancel(ctx)
				cancel()
			}

			rc, err := NewLocal(path).Open(ctx)
			if c.wantErrIs != nil {
				if !errors.Is(err, c.wantErrIs) {
					t.Fatalf("Open() err = %v; want errors.Is %v", err, c.wantErrIs)
				}
				if c.wantErrContains != "" && !strings.Contains(err.Error(), c.wantErrContains) {
					t.Fatalf("Open() err = %q; want substring %q", err, c.wantErrContains)
				}
				if rc != nil {
					_ = rc.Close()
					t.Fatalf("Open() returned a ReadCloser on error: %T", rc)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open() unexpected error: %v", err)
			}
			defer rc.Close()

			got, err := io.ReadAll(rc)
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			if string(got) != c.wantContent {
				t.Fatalf("content = %q; want %q", got, c.wantContent)
			}
		})
	}
}
