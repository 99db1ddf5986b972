package frame

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"strings"

	"bagetl/internal/datasource"
	"bagetl/internal/schema"
)

// Build reads every message of topic and returns one row per message in
// arrival order, one column per requested field.
//
// The envelope fields are special: schema.FieldRecordTime is the receipt
// time in float seconds, schema.FieldSecs and schema.FieldNsecs the header
// stamp. Any other field is looked up by exact key first, then as a dotted
// path into nested values. A missing field is nil.
//
// An empty topic yields a zero-row frame that still has every column.
func Build(ctx context.Context, log datasource.Log, topic string, fields []string) (*Frame, error) {
	f := New(fields...)
	err := log.Read(ctx, []string{topic}, func(m datasource.Message) error {
		f.Rows = append(f.Rows, Row(m, fields))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

var errFirst = errors.New("first row read")

// FirstRow returns the requested fields of the first message on topic, or
// ok=false if the topic is empty.
func FirstRow(ctx context.Context, log datasource.Log, topic string, fields []string) (row []any, ok bool, err error) {
	err = log.Read(ctx, []string{topic}, func(m datasource.Message) error {
		row, ok = Row(m, fields), true
		return errFirst
	})
	if errors.Is(err, errFirst) {
		err = nil
	}
	return row, ok, err
}

// Row extracts fields from m.
func Row(m datasource.Message, fields []string) []any {
	row := make([]any, len(fields))
	for i, name := range fields {
		switch name {
		case schema.FieldRecordTime:
			if !m.Received.IsZero() {
				row[i] = float64(m.Received.UnixNano()) / 1e9
			}
		case schema.FieldSecs:
			row[i] = m.Stamp.Secs
		case schema.FieldNsecs:
			row[i] = m.Stamp.Nsecs
		default:
			row[i] = Lookup(m.Fields, name)
		}
	}
	return row
}

// Lookup resolves name in fields: the exact key, then a dotted path through
// nested maps and sequences ("status.service", "K.0"). Flattened exports
// that spell an element as "K0", "K_0" or "K[0]" are matched too, and a
// string holding a tuple such as "(1.0, 2.0)" can be indexed.
func Lookup(fields map[string]any, name string) any {
	if v, ok := fields[name]; ok {
		return v
	}
	parts := strings.Split(name, ".")
	if len(parts) == 1 {
		return nil
	}
	if v, ok := flattened(fields, parts); ok {
		return v
	}

	var cur any = fields
	for _, p := range parts {
		next, ok := step(cur, p)
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

func flattened(fields map[string]any, parts []string) (any, bool) {
	last := parts[len(parts)-1]
	if _, err := strconv.Atoi(last); err != nil {
		return nil, false
	}
	prefix := strings.Join(parts[:len(parts)-1], ".")
	for _, k := range []string{prefix + last, prefix + "_" + last, prefix + "[" + last + "]"} {
		if v, ok := fields[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func step(cur any, key string) (any, bool) {
	switch c := cur.(type) {
	case map[string]any:
		v, ok := c[key]
		return v, ok
	case string:
		i, err := strconv.Atoi(key)
		if err != nil {
			return nil, false
		}
		elems := splitTuple(c)
		if i < 0 || i >= len(elems) {
			return nil, false
		}
		return elems[i], true
	case nil:
		return nil, false
	}

	rv := reflect.ValueOf(cur)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= rv.Len() {
			return nil, false
		}
		return rv.Index(i).Interface(), true
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	}
	return nil, false
}

// splitTuple splits "(a, b, c)" or "[a, b, c]" into its trimmed elements.
func splitTuple(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "("), "[")
	s = strings.TrimSuffix(strings.TrimSuffix(s, ")"), "]")
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
