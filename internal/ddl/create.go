// Package ddl defines a small, backend-agnostic model for SQL DDL and helpers
// to render simple CREATE TABLE statements from that model.
//
// The goal of this package is to stay generic: it does not assume any specific
// SQL dialect. In particular, it:
//
//   - Does not quote identifiers unless a quoting function is supplied.
//   - Does not insert dialect-specific clauses such as IF NOT EXISTS.
//   - Treats ColumnDef.Default as raw SQL (the caller is responsible for
//     safety and dialect correctness).
//
// Backend-specific packages (e.g., internal/storage/postgres/ddl) wrap
// RenderColumns with their own quoting and statement framing.
package ddl

import (
	"fmt"
	"strings"
)

// BuildCreateTableSQL renders a generic CREATE TABLE statement from a TableDef.
//
// Rules:
//
//   - t.FQN must be non-empty; it is emitted verbatim as the table name.
//
//   - Each column must have a non-empty Name and SQLType.
//
//   - A column is rendered as:
//
//     <Name> <SQLType> [NOT NULL] [DEFAULT <Default>]
//
//     where NOT NULL is added when Nullable == false.
//
//   - Columns with PrimaryKey == true are collected and rendered as a separate
//     PRIMARY KEY (<col1>, <col2>, ...) clause, followed by one
//     UNIQUE (...) clause per entry in t.Unique.
//
//   - The resulting statement has the form:
//
//     CREATE TABLE <FQN> (
//     <col1-def>,
//     <col2-def>,
//     ...,
//     [PRIMARY KEY (<pk-cols>)],
//     [UNIQUE (<cols>)]
//     );
func BuildCreateTableSQL(t TableDef) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("ddl: table FQN must not be empty")
	}
	cols, err := RenderColumns(t, func(s string) string { return s })
	if err != nil {
		return "", err
	}

	stmt := fmt.Sprintf(
		"CREATE TABLE %s (\n  %s\n);",
		fqn,
		strings.Join(cols, ",\n  "),
	)

	return stmt, nil
}

// RenderColumns renders the column definitions and table constraints of t,
// quoting every identifier with quote. Backends use it to share validation
// and ordering while keeping their own statement framing.
func RenderColumns(t TableDef, quote func(string) string) ([]string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if len(t.Columns) == 0 {
		return nil, fmt.Errorf("ddl: at least one column is required")
	}

	known := make(map[string]struct{}, len(t.Columns))
	cols := make([]string, 0, len(t.Columns)+1+len(t.Unique))
	pks := make([]string, 0, 1)

	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return nil, fmt.Errorf("ddl: column with empty name in table %s", fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return nil, fmt.Errorf("ddl: column %s missing SQLType", name)
		}
		known[name] = struct{}{}

		var sb strings.Builder
		sb.WriteString(quote(name))
		sb.WriteByte(' ')
		sb.WriteString(typ)

		if !c.Nullable {
			sb.WriteString(" NOT NULL")
		}

		if def := strings.TrimSpace(c.Default); def != "" {
			sb.WriteString(" DEFAULT ")
			// Default is emitted as raw SQL expression.
			sb.WriteString(def)
		}

		cols = append(cols, sb.String())

		if c.PrimaryKey {
			pks = append(pks, quote(name))
		}
	}

	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	for _, group := range t.Unique {
		if len(group) == 0 {
			continue
		}
		quoted := make([]string, len(group))
		for i, c := range group {
			if _, ok := known[c]; !ok {
				return nil, fmt.Errorf("ddl: unique column %s not defined in table %s", c, fqn)
			}
			quoted[i] = quote(c)
		}
		cols = append(cols, fmt.Sprintf("UNIQUE (%s)", strings.Join(quoted, ", ")))
	}

	return cols, nil
}
