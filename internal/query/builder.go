package query

import (
	"fmt"
	"strings"
)

// PlaceholderFunc renders the bind placeholder for the 1-based parameter
// index in a warehouse's dialect.
type PlaceholderFunc func(index int) string

// DollarPlaceholder returns $1, $2, ... (PostgreSQL).
func DollarPlaceholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

// QuestionPlaceholder returns ? for all params (MySQL, SQLite).
func QuestionPlaceholder(_ int) string {
	return "?"
}

// RowIDColumn is the column every dataset view exposes for the 1-based row
// number. It is the default sort and the tie breaker for every other sort.
const RowIDColumn = "id"

// OrderClause represents a single column ordering directive.
type OrderClause struct {
	Column    string // Schema column name.
	Direction string // "ASC" or "DESC".
}

// String returns the SQL fragment for this order clause, e.g. "price DESC".
func (o OrderClause) String() string {
	return o.Column + " " + o.Direction
}

// BuildOrderSQL renders the ORDER BY body for a plan: the sort column with
// nulls last in either direction, then the row id so ties are stable. With
// no sort column the rows come back in upload order.
func BuildOrderSQL(p *Plan, quoteFn func(string) string) string {
	id := quoteFn(RowIDColumn)
	if p == nil || p.SortField == "" {
		return id + " ASC"
	}
	o := OrderClause{Column: p.SortField, Direction: strings.ToUpper(p.SortOrder)}
	col := quoteFn(o.Column)
	return fmt.Sprintf("(%s IS NULL), %s %s, %s ASC", col, col, o.Direction, id)
}

// ParseFieldSelection parses a comma-separated field list like "name,age"
// into names. Whitespace is trimmed, empties and repeats are dropped.
// Returns nil for an empty input string.
func ParseFieldSelection(fields string) []string {
	fields = strings.TrimSpace(fields)
	if fields == "" {
		return nil
	}

	parts := strings.Split(fields, ",")
	result := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, part := range parts {
		col := strings.TrimSpace(part)
		if col == "" || seen[col] {
			continue
		}
		seen[col] = true
		result = append(result, col)
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

// QuoteIdentifiers quotes and joins column names into a comma-separated SQL
// fragment. For example, with PostgreSQL quoting:
// ["id", "name", "email"] -> `"id", "name", "email"`
func QuoteIdentifiers(names []string, quoteFn func(string) string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = quoteFn(name)
	}
	return strings.Join(quoted, ", ")
}

// PostgresQuote returns a double-quoted identifier (PostgreSQL, SQLite).
func PostgresQuote(name string) string {
	// Escape any embedded double quotes by doubling them.
	escaped := strings.ReplaceAll(name, `"`, `""`)
	return `"` + escaped + `"`
}

// MySQLQuote returns a MySQL-style backtick-quoted identifier.
func MySQLQuote(name string) string {
	escaped := strings.ReplaceAll(name, "`", "``")
	return "`" + escaped + "`"
}

// QuoteLiteral returns s as a single-quoted SQL string literal. It is only
// used for generated values inside DDL, where binding is impossible.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
