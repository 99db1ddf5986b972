// Package transformer turns a raw topic frame into rows that fit the
// destination table of its rule.
package transformer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bagetl/internal/blob"
	"bagetl/internal/etlerr"
	"bagetl/internal/frame"
	"bagetl/internal/schema"
)

// Resolver maps a natural key to its surrogate id in table.
type Resolver interface {
	Resolve(ctx context.Context, table, column string, value any) (int64, error)
}

// Blobs stores a payload and returns its address.
type Blobs interface {
	Put(ctx context.Context, data []byte, ext string) (blob.Ref, error)
}

const datetimeLayout = "2006-01-02 15:04:05"

// Normalize applies rule to f and returns a new frame whose columns are
// exactly rule.Columns with values cast to their destination types. f is not
// modified.
//
// Steps, in order: the session column, derived columns, foreign-key and blob
// substitution, the column count check, rename, reorder and cast. Any
// failure returns an *etlerr.SchemaMismatchError and no rows; resolver and
// blob store errors are returned wrapped.
//
// res may be nil when rule has no foreign key; blobs may be nil when rule
// has no blob.
func Normalize(ctx context.Context, f *frame.Frame, rule schema.Rule, sessionID int64, res Resolver, blobs Blobs) (*frame.Frame, error) {
	out := clone(f)
	mismatch := func(col string, row int, err error) error {
		return &etlerr.SchemaMismatchError{Topic: rule.Topic, Table: rule.Table, Column: col, Row: row, Err: err}
	}

	if rule.SessionColumn != "" {
		if err := out.AppendColumn(rule.SessionColumn, func(int) any { return sessionID }); err != nil {
			return nil, mismatch(rule.SessionColumn, -1, err)
		}
	}

	for _, d := range rule.Derived {
		vals, err := derive(out, d)
		if err != nil {
			return nil, mismatch(err.column, err.row, err.err)
		}
		if err := out.AppendColumn(d.Column, func(r int) any { return vals[r] }); err != nil {
			return nil, mismatch(d.Column, -1, err)
		}
	}

	if fk := rule.ForeignKey; fk != nil {
		if err := resolveForeignKey(ctx, out, fk, res); err != nil {
			return nil, err
		}
	}
	if b := rule.Blob; b != nil {
		if err := storeBlobs(ctx, out, rule, blobs); err != nil {
			return nil, err
		}
	}

	if out.Width() != len(rule.Columns) {
		return nil, &etlerr.SchemaMismatchError{
			Topic: rule.Topic, Table: rule.Table,
			Want: len(rule.Columns), Got: out.Width(), Row: -1,
		}
	}

	out.Rename(rule.RenameMap())
	sel, err := out.Select(rule.Columns)
	if err != nil {
		return nil, mismatch("", -1, err)
	}

	plan, err := compilePlan(sel.Columns, rule.Types())
	if err != nil {
		return nil, mismatch("", -1, err)
	}
	for r, row := range sel.Rows {
		for i, cast := range plan {
			v, err := cast(row[i])
			if err != nil {
				return nil, mismatch(sel.Columns[i], r, err)
			}
			row[i] = v
		}
	}
	return sel, nil
}

func clone(f *frame.Frame) *frame.Frame {
	out := &frame.Frame{Columns: append([]string(nil), f.Columns...), Rows: make([][]any, len(f.Rows))}
	for r, row := range f.Rows {
		out.Rows[r] = append(make([]any, 0, len(row)+4), row...)
	}
	return out
}

type cellError struct {
	column string
	row    int
	err    error
}

func derive(f *frame.Frame, d schema.Derived) ([]any, *cellError) {
	vals := make([]any, f.Len())
	switch d.Kind {
	case schema.DeriveConstant:
		for r := range vals {
			vals[r] = d.Value
		}
	case schema.DeriveNull:
	case schema.DeriveIndex:
		for r := range vals {
			vals[r] = int64(r)
		}
	case schema.DeriveTime:
		a, b, cerr := columns2(f, d)
		if cerr != nil {
			return nil, cerr
		}
		for r := range vals {
			x, err := toFloat64(a[r])
			if err != nil {
				return nil, &cellError{d.Inputs[0], r, err}
			}
			y, err := toFloat64(b[r])
			if err != nil {
				return nil, &cellError{d.Inputs[1], r, err}
			}
			if x == nil || y == nil {
				continue
			}
			vals[r] = x.(float64) + y.(float64)*d.Scale
		}
	case schema.DeriveDatetime:
		in, err := f.Column(d.Inputs[0])
		if err != nil {
			return nil, &cellError{d.Inputs[0], -1, err}
		}
		for r := range vals {
			s, err := toInt64(in[r])
			if err != nil {
				return nil, &cellError{d.Inputs[0], r, err}
			}
			if s == nil {
				continue
			}
			vals[r] = time.Unix(s.(int64), 0).UTC().Format(datetimeLayout)
		}
	default:
		return nil, &cellError{d.Column, -1, fmt.Errorf("unknown derived kind %q", d.Kind)}
	}
	return vals, nil
}

func columns2(f *frame.Frame, d schema.Derived) ([]any, []any, *cellError) {
	a, err := f.Column(d.Inputs[0])
	if err != nil {
		return nil, nil, &cellError{d.Inputs[0], -1, err}
	}
	b, err := f.Column(d.Inputs[1])
	if err != nil {
		return nil, nil, &cellError{d.Inputs[1], -1, err}
	}
	return a, b, nil
}

// resolveForeignKey replaces the natural key column with the surrogate id
// column. Blank keys stay NULL.
func resolveForeignKey(ctx context.Context, f *frame.Frame, fk *schema.ForeignKey, res Resolver) error {
	keys, err := f.Column(fk.Source)
	if err != nil {
		return &etlerr.SchemaMismatchError{Column: fk.Source, Row: -1, Err: err}
	}
	if res == nil && len(keys) > 0 {
		return fmt.Errorf("foreign key %s: no resolver", fk.Source)
	}
	ids := make([]any, len(keys))
	for r, k := range keys {
		if k == nil {
			continue
		}
		s, ok := trimmed(k)
		if !ok {
			s = fmt.Sprint(k)
		}
		s = strings.Trim(s, fk.Trim)
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := res.Resolve(ctx, fk.RefTable, fk.RefColumn, s)
		if err != nil {
			return fmt.Errorf("resolve %s.%s=%q: %w", fk.RefTable, fk.RefColumn, s, err)
		}
		ids[r] = id
	}
	if err := f.AppendColumn(fk.Column, func(r int) any { return ids[r] }); err != nil {
		return &etlerr.SchemaMismatchError{Column: fk.Column, Row: -1, Err: err}
	}
	return f.DropColumn(fk.Source)
}

// storeBlobs moves payloads into the blob store. The time column receives
// the publish time of the message the payload came from.
func storeBlobs(ctx context.Context, f *frame.Frame, rule schema.Rule, blobs Blobs) error {
	b := rule.Blob
	payloads, err := f.Column(b.Source)
	if err != nil {
		return &etlerr.SchemaMismatchError{Topic: rule.Topic, Table: rule.Table, Column: b.Source, Row: -1, Err: err}
	}
	if blobs == nil && len(payloads) > 0 {
		return fmt.Errorf("blob %s: no blob store", b.Source)
	}
	secs, _ := f.Column(schema.FieldSecs)
	nsecs, _ := f.Column(schema.FieldNsecs)

	refs := make([]*blob.Ref, len(payloads))
	for r, p := range payloads {
		data, ok := payloadBytes(p)
		if !ok {
			continue
		}
		ref, err := blobs.Put(ctx, data, b.Ext)
		if err != nil {
			return fmt.Errorf("store %s row %d: %w", b.Source, r, err)
		}
		refs[r] = &ref
	}

	add := func(col string, v func(ref *blob.Ref, r int) any) error {
		if col == "" {
			return nil
		}
		return f.AppendColumn(col, func(r int) any {
			if refs[r] == nil {
				return nil
			}
			return v(refs[r], r)
		})
	}
	if err := add(b.HashColumn, func(ref *blob.Ref, _ int) any { return ref.Hash }); err != nil {
		return err
	}
	if err := add(b.LocationColumn, func(ref *blob.Ref, _ int) any { return ref.Location }); err != nil {
		return err
	}
	if err := add(b.SizeColumn, func(ref *blob.Ref, _ int) any { return ref.Size }); err != nil {
		return err
	}
	if err := add(b.TimeColumn, func(_ *blob.Ref, r int) any {
		if secs == nil || nsecs == nil {
			return nil
		}
		s, _ := toFloat64(secs[r])
		ns, _ := toFloat64(nsecs[r])
		if s == nil || ns == nil {
			return nil
		}
		return s.(float64) + ns.(float64)*1e-9
	}); err != nil {
		return err
	}
	return f.DropColumn(b.Source)
}

func payloadBytes(v any) ([]byte, bool) {
	switch p := v.(type) {
	case []byte:
		return p, len(p) > 0
	case string:
		return []byte(p), p != ""
	}
	return nil, false
}
