package ddl

import (
	"fmt"
	"strings"

	gddl "bagetl/internal/ddl"
	"bagetl/internal/schema"
	"bagetl/internal/storage"
)

// BuildCreateTableSQL builds a Postgres CREATE TABLE IF NOT EXISTS statement
// for t. Identifiers are double-quoted with embedded quotes doubled; the
// primary key and unique groups render as table constraints.
func BuildCreateTableSQL(t gddl.TableDef) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("postgres ddl: table FQN must not be empty")
	}
	cols, err := gddl.RenderColumns(t, quoteIdent)
	if err != nil {
		return "", fmt.Errorf("postgres %w", err)
	}
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		storage.QuoteWith(fqn, `"`, `"`),
		strings.Join(cols, ",\n  "),
	), nil
}

// CreateTable renders t with Postgres types.
func CreateTable(t schema.Table) (string, error) {
	return BuildCreateTableSQL(t.Def(MapType))
}

func quoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
