package storage

import (
	"fmt"
	"strings"
)

// Dialect renders identifiers and bind parameters for one SQL backend.
type Dialect interface {
	// Quote quotes a possibly dotted identifier.
	Quote(ident string) string
	// Placeholder returns the n-th (1-based) bind parameter.
	Placeholder(n int) string
}

type op int

const (
	opEq op = iota
	opIn
	opNull
)

// Cond is one comparison of a WHERE clause.
type Cond struct {
	Column string
	op     op
	Values []any
}

// Eq matches column = v. A nil v matches NULL.
func Eq(column string, v any) Cond {
	if v == nil {
		return Cond{Column: column, op: opNull}
	}
	return Cond{Column: column, op: opEq, Values: []any{v}}
}

// In matches column IN (vs...). An empty list matches nothing.
func In(column string, vs ...any) Cond {
	return Cond{Column: column, op: opIn, Values: vs}
}

// Match reports whether v satisfies c. Values are compared after
// normalizing integers and floats, so int32(3) matches int64(3).
func (c Cond) Match(v any) bool {
	switch c.op {
	case opNull:
		return v == nil
	case opEq:
		return equal(v, c.Values[0])
	case opIn:
		for _, x := range c.Values {
			if equal(v, x) {
				return true
			}
		}
	}
	return false
}

// Predicate is a conjunction of conditions. The zero value matches every
// row.
type Predicate []Cond

// Where builds a Predicate.
func Where(conds ...Cond) Predicate { return Predicate(conds) }

// Match reports whether the row, given as column → value, satisfies p.
func (p Predicate) Match(row map[string]any) bool {
	for _, c := range p {
		if !c.Match(row[c.Column]) {
			return false
		}
	}
	return true
}

// SQL renders p as a WHERE clause, numbering placeholders from next. It
// returns "" for an empty predicate.
func (p Predicate) SQL(d Dialect, next int) (string, []any) {
	if len(p) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(p))
	var args []any
	for _, c := range p {
		col := d.Quote(c.Column)
		switch c.op {
		case opNull:
			parts = append(parts, col+" IS NULL")
		case opEq:
			parts = append(parts, fmt.Sprintf("%s = %s", col, d.Placeholder(next)))
			args = append(args, c.Values[0])
			next++
		case opIn:
			if len(c.Values) == 0 {
				parts = append(parts, "1 = 0")
				continue
			}
			ph := make([]string, len(c.Values))
			for i, v := range c.Values {
				ph[i] = d.Placeholder(next)
				args = append(args, v)
				next++
			}
			parts = append(parts, fmt.Sprintf("%s IN (%s)", col, strings.Join(ph, ", ")))
		}
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}

// QuoteAll quotes every identifier in cols.
func QuoteAll(d Dialect, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = d.Quote(c)
	}
	return out
}

// Placeholders returns n placeholders starting at next, comma separated.
func Placeholders(d Dialect, next, n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = d.Placeholder(next + i)
	}
	return strings.Join(ph, ", ")
}

// QuoteWith quotes a dotted identifier segment by segment with open and
// close, doubling any embedded close character.
func QuoteWith(ident, open, close string) string {
	parts := strings.Split(ident, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, open+strings.ReplaceAll(p, close, close+close)+close)
	}
	return strings.Join(out, ".")
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if x, ok := number(a); ok {
		if y, ok := number(b); ok {
			return x == y
		}
		return false
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
