package query

import (
	"fmt"
	"strings"

	"github.com/tapfile/tapfile/internal/model"
)

// BuildWhere renders the conjunction of a plan's filters and search term as
// a parameterized WHERE body (without the keyword). Placeholders are
// numbered from start. It returns "" and no args when nothing filters.
func BuildWhere(p *Plan, schema []model.ColumnSchema, quoteFn func(string) string, ph PlaceholderFunc, start int) (string, []interface{}) {
	var (
		parts []string
		args  []interface{}
	)
	next := func(v interface{}) string {
		args = append(args, v)
		return ph(start + len(args) - 1)
	}

	for _, f := range p.Filters {
		col := quoteFn(f.Column())
		switch f := f.(type) {
		case Equality:
			if f.Value == nil {
				parts = append(parts, col+" IS NULL")
			} else {
				parts = append(parts, fmt.Sprintf("%s = %s", col, next(f.Value)))
			}
		case Range:
			if f.Min != nil {
				parts = append(parts, fmt.Sprintf("%s >= %s", col, next(f.Min)))
			}
			if f.Max != nil {
				parts = append(parts, fmt.Sprintf("%s <= %s", col, next(f.Max)))
			}
		}
	}

	if p.SearchTerm != "" {
		pattern := "%" + EscapeLike(strings.ToLower(p.SearchTerm)) + "%"
		var ors []string
		for _, c := range schema {
			if c.Type != model.TypeText {
				continue
			}
			ors = append(ors, fmt.Sprintf("LOWER(%s) LIKE %s ESCAPE '!'", quoteFn(c.Name), next(pattern)))
		}
		if len(ors) == 0 {
			// No text column can contain the term.
			parts = append(parts, "1 = 0")
		} else {
			parts = append(parts, "("+strings.Join(ors, " OR ")+")")
		}
	}

	return strings.Join(parts, " AND "), args
}
