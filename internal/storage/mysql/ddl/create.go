package ddl

import (
	"context"
	"fmt"
	"strings"

	gddl "bagetl/internal/ddl"
	"bagetl/internal/schema"
	"bagetl/internal/storage"
)

// BuildCreateTableSQL returns a MySQL CREATE TABLE IF NOT EXISTS statement
// for t with backtick-quoted identifiers.
func BuildCreateTableSQL(t gddl.TableDef) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("mysql ddl: table FQN must not be empty")
	}
	cols, err := gddl.RenderColumns(t, quoteIdent)
	if err != nil {
		return "", fmt.Errorf("mysql %w", err)
	}
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		storage.QuoteWith(fqn, "`", "`"),
		strings.Join(cols, ",\n  "),
	), nil
}

// CreateTable renders t with MySQL types.
func CreateTable(t schema.Table) (string, error) {
	return BuildCreateTableSQL(t.Def(MapType))
}

// EnsureTables creates every missing table, in order.
func EnsureTables(ctx context.Context, repo storage.Repository, tables []schema.Table) error {
	return storage.ExecEach(ctx, repo, tables, CreateTable)
}

func quoteIdent(id string) string {
	return "`" + strings.ReplaceAll(id, "`", "``") + "`"
}
