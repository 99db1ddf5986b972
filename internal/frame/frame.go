// Package frame holds the tabular in-memory form of one topic and builds it
// from a session log.
package frame

import (
	"fmt"
)

// Frame is an ordered set of named columns over row-major values. A nil
// value is NULL.
type Frame struct {
	Columns []string
	Rows    [][]any
}

// New returns an empty frame with the given columns.
func New(columns ...string) *Frame {
	return &Frame{Columns: append([]string(nil), columns...)}
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.Rows) }

// Width returns the number of columns.
func (f *Frame) Width() int { return len(f.Columns) }

// Index returns the position of col, or -1.
func (f *Frame) Index(col string) int {
	for i, c := range f.Columns {
		if c == col {
			return i
		}
	}
	return -1
}

// Column returns the values of col in row order.
func (f *Frame) Column(col string) ([]any, error) {
	i := f.Index(col)
	if i < 0 {
		return nil, fmt.Errorf("frame: no column %q", col)
	}
	out := make([]any, len(f.Rows))
	for r, row := range f.Rows {
		out[r] = row[i]
	}
	return out, nil
}

// AppendColumn adds col at the end, filling row r with value(r).
func (f *Frame) AppendColumn(col string, value func(r int) any) error {
	if f.Index(col) >= 0 {
		return fmt.Errorf("frame: column %q already present", col)
	}
	f.Columns = append(f.Columns, col)
	for r := range f.Rows {
		f.Rows[r] = append(f.Rows[r], value(r))
	}
	return nil
}

// DropColumn removes col. Dropping an absent column is an error.
func (f *Frame) DropColumn(col string) error {
	i := f.Index(col)
	if i < 0 {
		return fmt.Errorf("frame: no column %q", col)
	}
	f.Columns = append(f.Columns[:i:i], f.Columns[i+1:]...)
	for r, row := range f.Rows {
		f.Rows[r] = append(row[:i:i], row[i+1:]...)
	}
	return nil
}

// Rename renames columns by m (old → new). Columns not in m keep their name.
func (f *Frame) Rename(m map[string]string) {
	for i, c := range f.Columns {
		if n, ok := m[c]; ok {
			f.Columns[i] = n
		}
	}
}

// Select returns a new frame with exactly cols in that order.
func (f *Frame) Select(cols []string) (*Frame, error) {
	idx := make([]int, len(cols))
	for i, c := range cols {
		idx[i] = f.Index(c)
		if idx[i] < 0 {
			return nil, fmt.Errorf("frame: no column %q", c)
		}
	}
	out := &Frame{Columns: append([]string(nil), cols...), Rows: make([][]any, len(f.Rows))}
	for r, row := range f.Rows {
		nr := make([]any, len(idx))
		for i, j := range idx {
			nr[i] = row[j]
		}
		out.Rows[r] = nr
	}
	return out, nil
}

// Set replaces the value at row r, column col.
func (f *Frame) Set(r int, col string, v any) error {
	i := f.Index(col)
	if i < 0 {
		return fmt.Errorf("frame: no column %q", col)
	}
	f.Rows[r][i] = v
	return nil
}
