// Package ddl contains MySQL-specific helpers for generating DDL.
package ddl

import "strings"

// MapType maps a logical column type into a MySQL column type. Natural keys
// are VARCHAR(255) because TEXT columns cannot carry a plain UNIQUE index.
func MapType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "int32":
		return "INT"
	case "int64":
		return "BIGINT"
	case "identity":
		return "BIGINT AUTO_INCREMENT"
	case "float32":
		return "FLOAT"
	case "float64":
		return "DOUBLE"
	case "bool":
		return "BOOLEAN"
	case "key":
		return "VARCHAR(255)"
	default:
		return "TEXT"
	}
}
