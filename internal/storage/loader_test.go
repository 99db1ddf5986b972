package storage

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"
)

func quiet(t *testing.T) {
	t.Helper()
	prev := Logf
	Logf = func(string, ...any) {}
	t.Cleanup(func() { Logf = prev })
}

func encoderRows(n int) chan []any {
	in := make(chan []any, n)
	for i := 0; i < n; i++ {
		in <- []any{int64(1), int64(1568732839), int64(i) * 10_000_000, int64(i * 4)}
	}
	close(in)
	return in
}

var encoderColumns = []string{"bag_files_id", "seconds", "nanoseconds", "left_count"}

func TestLoadBatches(t *testing.T) {
	quiet(t)

	cases := []struct {
		rows, size int
		want       []int
	}{
		{7, 3, []int{3, 3, 1}},
		{6, 3, []int{3, 3}},
		{2, 5000, []int{2}},
		{0, 10, nil},
	}
	for _, c := range cases {
		var got []int
		copyFn := func(_ context.Context, cols []string, rows [][]any) (int64, error) {
			if len(cols) != len(encoderColumns) {
				t.Errorf("columns = %v", cols)
			}
			got = append(got, len(rows))
			return int64(len(rows)), nil
		}
		total, err := LoadBatches(context.Background(), encoderColumns, encoderRows(c.rows), c.size, copyFn)
		if err != nil {
			t.Fatalf("rows=%d size=%d: %v", c.rows, c.size, err)
		}
		if total != int64(c.rows) || !reflect.DeepEqual(got, c.want) {
			t.Fatalf("rows=%d size=%d: total=%d batches=%v; want %d %v", c.rows, c.size, total, got, c.rows, c.want)
		}
	}

	if _, err := LoadBatches(context.Background(), encoderColumns, encoderRows(1), 0, nil); err == nil {
		t.Fatal("batch size 0: want error")
	}
}

// A failing batch stops the load; rows the backend reported for it still
// count toward the total.
func TestLoadBatches_StopsOnError(t *testing.T) {
	quiet(t)

	dup := Duplicate(errors.New("duplicate key value violates unique constraint"))
	var calls int32
	copyFn := func(_ context.Context, _ []string, rows [][]any) (int64, error) {
		if atomic.AddInt32(&calls, 1) == 2 {
			return 0, dup
		}
		return int64(len(rows)), nil
	}

	total, err := LoadBatches(context.Background(), encoderColumns, encoderRows(5), 2, copyFn)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("err = %v; want ErrDuplicate", err)
	}
	if total != 2 || atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("total=%d calls=%d; want 2 2", total, calls)
	}
}

// TestLoadBatches_ContextCancel checks the loader exits on context cancellation.
func TestLoadBatches_ContextCancel(t *testing.T) {
	quiet(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	columns := []string{"c"}
	in := make(chan []any, 1)
	in <- []any{1}

	// copyFn sleeps to simulate slow I/O; cancel triggers early exit.
	copyFn := func(ctx context.Context, _ []string, rows [][]any) (int64, error) {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(2 * time.Second):
			return int64(len(rows)), nil
		}
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := LoadBatches(ctx, columns, in, 2, copyFn)
		errCh <- err
	}()

	cancel() // cancel promptly
	close(in)

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected cancellation error, got nil")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("LoadBatches did not return after context cancel")
	}
}

type copyTx struct {
	Tx
	tables  []string
	batches []int
	fail    error
}

func (c *copyTx) CopyFrom(_ context.Context, table string, _ []string, rows [][]any) (int64, error) {
	c.tables = append(c.tables, table)
	c.batches = append(c.batches, len(rows))
	return int64(len(rows)), c.fail
}

func TestCopyRows(t *testing.T) {
	quiet(t)

	rows := make([][]any, 5)
	for i := range rows {
		rows[i] = []any{int64(i)}
	}
	tx := &copyTx{}
	n, err := CopyRows(context.Background(), tx, "trigger", []string{"c"}, rows, 2)
	if err != nil || n != 5 {
		t.Fatalf("CopyRows() = %d, %v; want 5, nil", n, err)
	}
	if got := len(tx.batches); got != 3 {
		t.Fatalf("batches = %v; want 2+2+1", tx.batches)
	}
	if tx.tables[0] != "trigger" {
		t.Fatalf("table = %q; want trigger", tx.tables[0])
	}

	if n, err := CopyRows(context.Background(), &copyTx{}, "t", []string{"c"}, nil, 2); n != 0 || err != nil {
		t.Fatalf("CopyRows(empty) = %d, %v", n, err)
	}

	dup := &copyTx{fail: Duplicate(errors.New("unique"))}
	if _, err := CopyRows(context.Background(), dup, "t", []string{"c"}, rows, 10); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("CopyRows() err = %v; want ErrDuplicate", err)
	}
}
