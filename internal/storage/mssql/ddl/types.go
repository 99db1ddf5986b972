// Package ddl contains MSSQL-specific helpers for generating DDL.
package ddl

import "strings"

// MapType maps a logical column type into a SQL Server column type.
//
// Natural keys get NVARCHAR(450) so they fit a unique index; other text is
// NVARCHAR(MAX).
func MapType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "int32":
		return "INT"
	case "int64":
		return "BIGINT"
	case "identity":
		return "BIGINT IDENTITY(1,1)"
	case "float32":
		return "REAL"
	case "float64":
		return "FLOAT"
	case "bool":
		return "BIT"
	case "key":
		return "NVARCHAR(450)"
	default:
		return "NVARCHAR(MAX)"
	}
}
