package openapi

import "github.com/tapfile/tapfile/internal/model"

// TypeMapping maps a dataset column type to an OpenAPI type/format pair.
type TypeMapping struct {
	Type   string // OpenAPI type: string, integer, number, boolean
	Format string // OpenAPI format: int64, double, date
}

var columnTypeToOpenAPI = map[model.ColumnType]TypeMapping{
	model.TypeInteger: {"integer", "int64"},
	model.TypeFloat:   {"number", "double"},
	model.TypeDate:    {"string", "date"},
	model.TypeBoolean: {"boolean", ""},
	model.TypeText:    {"string", ""},
}

// MapColumnType returns the OpenAPI mapping for a column type. Unknown types
// are described as plain strings.
func MapColumnType(t model.ColumnType) TypeMapping {
	if m, ok := columnTypeToOpenAPI[t]; ok {
		return m
	}
	return TypeMapping{Type: "string"}
}

// supportsRange reports whether _min/_max filters apply to the column type.
func supportsRange(t model.ColumnType) bool {
	return t != model.TypeBoolean
}
