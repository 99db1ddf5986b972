package csvfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"bagetl/internal/frame"
)

func TestPath(t *testing.T) {
	t.Parallel()

	got := Path("/out", "/data/mapping_van_2019-10-18-20-39-30_0.bag", "/sick_lms_5xx/scan")
	want := filepath.Join("/out", "mapping_van_2019-10-18-20-39-30_0", "_slash_sick_lms_5xx_slash_scan.csv")
	if got != want {
		t.Fatalf("Path() = %q; want %q", got, want)
	}
}

func TestWrite(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	f := frame.New("bag_files_id", "seconds", "latitude", "ok")
	f.Rows = [][]any{
		{int64(1), int64(10), 40.5, true},
		{int64(1), int64(11), nil, false},
	}
	path, err := Writer{Dir: dir}.Write("s_0.bag", "/gps", f)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	want := "bag_files_id,seconds,latitude,ok\n1,10,40.5,1\n1,11,NULL,0\n"
	if string(b) != want {
		t.Fatalf("file = %q; want %q", b, want)
	}

	if _, err := (Writer{Dir: dir}).Write("s_0.bag", "/gps", f); !errors.Is(err, ErrExists) {
		t.Fatalf("second Write() err = %v; want ErrExists", err)
	}
	if _, err := (Writer{Dir: dir, Overwrite: true}).Write("s_0.bag", "/gps", f); err != nil {
		t.Fatalf("overwrite Write() error = %v", err)
	}
}

func TestWrite_EmptyFrame(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	path, err := Writer{Dir: dir}.Write("s_0.bag", "/gps", frame.New("a"))
	if err != nil || path != "" {
		t.Fatalf("Write(empty) = %q, %v; want \"\", nil", path, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "s_0")); !os.IsNotExist(err) {
		t.Fatalf("session dir exists after empty write: %v", err)
	}
}
