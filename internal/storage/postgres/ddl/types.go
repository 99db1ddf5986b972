// Package ddl contains Postgres-specific helpers for generating DDL.
package ddl

import "strings"

// MapType maps a logical column type into a Postgres SQL type.
//
//	int32              -> INTEGER
//	int64              -> BIGINT
//	identity           -> BIGINT GENERATED BY DEFAULT AS IDENTITY
//	float32 / float64  -> REAL / DOUBLE PRECISION
//	bool               -> BOOLEAN
//	everything else    -> TEXT
func MapType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "int32":
		return "INTEGER"
	case "int64":
		return "BIGINT"
	case "identity":
		return "BIGINT GENERATED BY DEFAULT AS IDENTITY"
	case "float32":
		return "REAL"
	case "float64":
		return "DOUBLE PRECISION"
	case "bool":
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}
