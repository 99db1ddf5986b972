// Package ddl contains SQLite-specific helpers for generating DDL.
package ddl

import "strings"

// MapType maps a logical column type into a SQLite column type.
//
// SQLite types by affinity, so the mapping only picks the affinity:
//   - integers, bools, identity -> INTEGER (an INTEGER primary key is the rowid)
//   - float32/float64           -> REAL
//   - everything else           -> TEXT
func MapType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "int32", "int64", "identity", "bool":
		return "INTEGER"
	case "float32", "float64":
		return "REAL"
	default:
		return "TEXT"
	}
}
