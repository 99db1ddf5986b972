// Package ddl provides MSSQL-specific helpers for generating CREATE TABLE
// statements from the generic ddl.TableDef model.
//
// T-SQL has no CREATE TABLE IF NOT EXISTS, so the statement is wrapped in an
// IF OBJECT_ID(...) IS NULL guard.
package ddl

import (
	"fmt"
	"strings"

	gddl "bagetl/internal/ddl"
	"bagetl/internal/schema"
)

// BuildCreateTableSQL returns a T-SQL script that creates t if it does not
// already exist:
//
//	IF OBJECT_ID(N'[dbo].[table]', N'U') IS NULL
//	BEGIN
//	  CREATE TABLE [dbo].[table] (
//	    [col1] TYPE [NOT NULL],
//	    PRIMARY KEY ([id]),
//	    UNIQUE ([a], [b])
//	  );
//	END;
func BuildCreateTableSQL(t gddl.TableDef) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("mssql ddl: table FQN must not be empty")
	}
	cols, err := gddl.RenderColumns(t, quoteIdent)
	if err != nil {
		return "", fmt.Errorf("mssql %w", err)
	}
	q := quoteFQN(fqn)
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL\nBEGIN\n  CREATE TABLE %s (\n    %s\n  );\nEND;",
		strings.ReplaceAll(q, "'", "''"),
		q,
		strings.Join(cols, ",\n    "),
	), nil
}

// CreateTable renders t with SQL Server types.
func CreateTable(t schema.Table) (string, error) {
	return BuildCreateTableSQL(t.Def(MapType))
}

// quoteIdent quotes one identifier with brackets, doubling any "]".
func quoteIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
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
