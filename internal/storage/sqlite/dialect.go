package sqlite

import (
	"errors"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"bagetl/internal/storage"
	"bagetl/internal/storage/sqldb"
)

type dialect struct{}

func (dialect) Quote(ident string) string { return storage.QuoteWith(ident, `"`, `"`) }
func (dialect) Placeholder(int) string    { return "?" }

func (d dialect) GetOrCreate(table, column string) (string, bool) {
	return sqldb.OnConflict(d, table, []string{column}, []string{column}, "id"), true
}

func (d dialect) Upsert(table string, columns, conflict []string) (string, bool) {
	return sqldb.OnConflict(d, table, columns, conflict, "id"), true
}

func (d dialect) Savepoint(name string) string  { return "SAVEPOINT " + d.Quote(name) }
func (d dialect) RollbackTo(name string) string { return "ROLLBACK TO SAVEPOINT " + d.Quote(name) }

// IsDuplicate matches the extended UNIQUE and PRIMARY KEY constraint codes.
func (dialect) IsDuplicate(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(se.Error(), "UNIQUE constraint failed")
	}
	return false
}
