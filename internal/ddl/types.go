package ddl

// ColumnDef describes a single column in a table definition produced or
// consumed by ddl. It intentionally uses simple, database-agnostic fields.
//
// Fields:
//   - Name: logical column name (unquoted; quoting/escaping happens at render time)
//   - SQLType: target SQL type (e.g., TEXT, BIGINT, TIMESTAMPTZ)
//   - Nullable: whether NULL is allowed
//   - PrimaryKey: whether the column is part of the primary key
//   - Default: raw default expression (e.g., 'anon', CURRENT_TIMESTAMP)
type ColumnDef struct {
	Name       string
	SQLType    string
	Nullable   bool
	PrimaryKey bool
	Default    string
}

// TableDef holds the fully-qualified table name (FQN), an ordered list of
// columns and any UNIQUE constraints. The FQN is expected in dotted form
// (e.g., "schema.table") and will be quoted/escaped by renderers as needed.
//
// Unique lists column groups; each group renders as one UNIQUE (...) table
// constraint. Natural keys resolved with get-or-create and the per-session
// duplicate guard of sensor tables both rely on these constraints.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
	Unique  [][]string
}

// TypeMapper maps a logical column type ("int64", "text", "identity", ...)
// to a backend SQL type.
type TypeMapper func(kind string) string
