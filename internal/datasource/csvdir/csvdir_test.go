package csvdir

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"bagetl/internal/datasource"
	"bagetl/internal/etlerr"
)

func writeSession(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "mapping_van_2019-10-19-20-01-02_0")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	return dir + ".bag"
}

func TestTopicFileRoundTrip(t *testing.T) {
	t.Parallel()

	for _, topic := range []string{"/parseTrigger", "/sick_lms_5xx/scan", "/front_left_camera/image_rect_color/compressed"} {
		name := TopicFile(topic)
		if got := FileTopic(name); got != topic {
			t.Fatalf("FileTopic(TopicFile(%q)) = %q", topic, got)
		}
	}
	if got, want := TopicFile("/sick_lms_5xx/scan"), "_slash_sick_lms_5xx_slash_scan.csv"; got != want {
		t.Fatalf("TopicFile() = %q; want %q", got, want)
	}
}

func TestLog_ReadsTopicsInOrder(t *testing.T) {
	t.Parallel()

	path := writeSession(t, map[string]string{
		"_slash_parseTrigger.csv": "rosbagTimestamp,secs,nsecs,mode,adjone\n" +
			"1571529662.5,1571529662,400000000,L,3\n" +
			"1571529663.5,1571529663,400000000,H,4\n",
		"_slash_sick_lms_5xx_slash_scan.csv": "%time,header.stamp.secs,header.stamp.nsecs,scan_time\n" +
			"1571529662100000000,1571529662,100000000,0.04\n",
		"_slash_empty.csv": "",
		"notes.txt":        "ignored",
	})
	ctx := context.Background()

	log, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer log.Close()

	topics, err := log.Topics(ctx)
	if err != nil {
		t.Fatalf("Topics() error = %v", err)
	}
	if diff := cmp.Diff([]string{"/empty", "/parseTrigger", "/sick_lms_5xx/scan"}, topics); diff != "" {
		t.Fatalf("Topics() mismatch (-want +got):\n%s", diff)
	}

	n, err := log.MessageCount(ctx, "/parseTrigger")
	if err != nil || n != 2 {
		t.Fatalf("MessageCount(/parseTrigger) = %d, %v; want 2, nil", n, err)
	}
	if n, err := log.MessageCount(ctx, "/empty"); err != nil || n != 0 {
		t.Fatalf("MessageCount(/empty) = %d, %v; want 0, nil", n, err)
	}

	var got []datasource.Message
	err = log.Read(ctx, []string{"/parseTrigger", "/sick_lms_5xx/scan"}, func(m datasource.Message) error {
		got = append(got, m)
		return nil
	})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Read() delivered %d messages; want 3", len(got))
	}
	if got[0].Stamp != (datasource.Stamp{Secs: 1571529662, Nsecs: 400000000}) {
		t.Fatalf("first stamp = %+v", got[0].Stamp)
	}
	if got[0].Fields["mode"] != "L" || got[1].Fields["adjone"] != "4" {
		t.Fatalf("fields = %v / %v", got[0].Fields, got[1].Fields)
	}
	wantRecv := time.Unix(1571529662, 100000000).UTC()
	if !got[2].Received.Equal(wantRecv) {
		t.Fatalf("sick Received = %v; want %v", got[2].Received, wantRecv)
	}
	if got[2].Stamp.Nsecs != 100000000 {
		t.Fatalf("sick stamp from header.stamp.* = %+v", got[2].Stamp)
	}

	end, err := log.End(ctx)
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if end.Unix() != 1571529663 {
		t.Fatalf("End() = %v; want 1571529663.5", end)
	}
}

func TestLog_ReadErrors(t *testing.T) {
	t.Parallel()

	path := writeSession(t, map[string]string{
		"_slash_fix.csv": "rosbagTimestamp,secs,nsecs\n1,abc,0\n",
	})
	ctx := context.Background()
	log, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	var rerr *etlerr.ForeignSourceReadError
	err = log.Read(ctx, []string{"/fix"}, func(datasource.Message) error { return nil })
	if !errors.As(err, &rerr) || rerr.Topic != "/fix" {
		t.Fatalf("Read(bad secs) err = %v; want ForeignSourceReadError for /fix", err)
	}

	err = log.Read(ctx, []string{"/missing"}, func(datasource.Message) error { return nil })
	if !errors.As(err, &rerr) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Read(missing) err = %v; want ForeignSourceReadError wrapping ErrNotExist", err)
	}

	stop := errors.New("stop")
	good := writeSession(t, map[string]string{"_slash_vel.csv": "secs,nsecs\n1,2\n3,4\n"})
	log2, _ := Open(ctx, good)
	calls := 0
	err = log2.Read(ctx, []string{"/vel"}, func(datasource.Message) error { calls++; return stop })
	if !errors.Is(err, stop) || calls != 1 {
		t.Fatalf("Read(callback error) = %v after %d calls; want stop after 1", err, calls)
	}
}

func TestOpen_Missing(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "nope.bag"))
	var rerr *etlerr.ForeignSourceReadError
	if !errors.As(err, &rerr) {
		t.Fatalf("Open(missing) err = %v; want ForeignSourceReadError", err)
	}
}

func TestParseReceived(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want time.Time
	}{
		{"1571529662", time.Unix(1571529662, 0).UTC()},
		{"1571529662400000000", time.Unix(1571529662, 400000000).UTC()},
		{"1571529662.25", time.Unix(1571529662, 250000000).UTC()},
	}
	for _, tt := range tests {
		got, err := ParseReceived(tt.in)
		if err != nil {
			t.Fatalf("ParseReceived(%q) error = %v", tt.in, err)
		}
		if !got.Equal(tt.want) {
			t.Fatalf("ParseReceived(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
	if _, err := ParseReceived("yesterday"); err == nil {
		t.Fatalf("ParseReceived(yesterday) err = nil")
	}
}

func TestRegistered(t *testing.T) {
	t.Parallel()

	if _, err := datasource.Lookup(Kind); err != nil {
		t.Fatalf("Lookup(%q) error = %v", Kind, err)
	}
}
