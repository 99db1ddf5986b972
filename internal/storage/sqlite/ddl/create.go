package ddl

import (
	"fmt"
	"strings"

	gddl "bagetl/internal/ddl"
	"bagetl/internal/schema"
)

// BuildCreateTableSQL returns a SQLite CREATE TABLE IF NOT EXISTS statement
// for t:
//
//	CREATE TABLE IF NOT EXISTS "table" (
//	  "col1" TYPE [NOT NULL],
//	  PRIMARY KEY ("id"),
//	  UNIQUE ("a", "b")
//	);
func BuildCreateTableSQL(t gddl.TableDef) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("sqlite ddl: table FQN must not be empty")
	}
	cols, err := gddl.RenderColumns(t, quoteIdent)
	if err != nil {
		return "", fmt.Errorf("sqlite %w", err)
	}
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		quoteFQN(fqn),
		strings.Join(cols, ",\n  "),
	), nil
}

// CreateTable renders t with SQLite types.
func CreateTable(t schema.Table) (string, error) {
	return BuildCreateTableSQL(t.Def(MapType))
}

func quoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func quoteFQN(fqn string) string {
	parts := strings.Split(fqn, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, quoteIdent(p))
		}
	}
	return strings.Join(out, ".")
}
