package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ColumnType is the semantic type inferred for a CSV column.
type ColumnType string

const (
	TypeInteger ColumnType = "INTEGER"
	TypeFloat   ColumnType = "FLOAT"
	TypeDate    ColumnType = "DATE"
	TypeBoolean ColumnType = "BOOLEAN"
	TypeText    ColumnType = "TEXT"
)

// Valid reports whether t is one of the known column types.
func (t ColumnType) Valid() bool {
	switch t {
	case TypeInteger, TypeFloat, TypeDate, TypeBoolean, TypeText:
		return true
	}
	return false
}

// JSONType returns the JSON schema type used to describe values of t.
func (t ColumnType) JSONType() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "number"
	case TypeBoolean:
		return "boolean"
	default:
		return "string"
	}
}

// UnmarshalJSON accepts any letter case ("integer", "Integer", "INTEGER").
func (t *ColumnType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	ct := ColumnType(strings.ToUpper(strings.TrimSpace(s)))
	if !ct.Valid() {
		return fmt.Errorf("unknown column type %q", s)
	}
	*t = ct
	return nil
}

// UnmarshalYAML mirrors UnmarshalJSON for schema override files.
func (t *ColumnType) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	ct := ColumnType(strings.ToUpper(strings.TrimSpace(s)))
	if !ct.Valid() {
		return fmt.Errorf("unknown column type %q", s)
	}
	*t = ct
	return nil
}

// ColumnSchema describes one column of a dataset.
type ColumnSchema struct {
	Name     string     `json:"name" yaml:"name"`
	Type     ColumnType `json:"type" yaml:"type"`
	Nullable bool       `json:"nullable" yaml:"nullable"`
}

// Record is one parsed CSV row keyed by sanitized column name. Values are raw
// strings before coercion and nil for empty or missing cells.
type Record map[string]interface{}

// ParsedDataset is the output of the CSV parser. It is not modified after
// the parser returns.
type ParsedDataset struct {
	Rows     []Record       `json:"-"`
	Schema   []ColumnSchema `json:"schema"`
	RowCount int            `json:"row_count"`
	Errors   []string       `json:"errors,omitempty"`
	// Lines holds the 1-based source line of each row, for diagnostics.
	Lines []int `json:"-"`
}

// ColumnNames returns the schema column names in order.
func ColumnNames(schema []ColumnSchema) []string {
	names := make([]string, len(schema))
	for i, c := range schema {
		names[i] = c.Name
	}
	return names
}

// FindColumn returns the column with the given name, if present.
func FindColumn(schema []ColumnSchema, name string) (ColumnSchema, bool) {
	for _, c := range schema {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnSchema{}, false
}
