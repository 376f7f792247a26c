package query

import (
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/tapfile/tapfile/internal/apperr"
	"github.com/tapfile/tapfile/internal/model"
	"github.com/tapfile/tapfile/internal/typedetect"
)

// Pagination defaults and bounds.
const (
	DefaultPage  = 1
	DefaultLimit = 100
	MaxLimit     = 1000
)

// maxSearchLen bounds the q parameter.
const maxSearchLen = 256

// Reserved query-string parameters. Every other parameter is a filter.
const (
	ParamPage   = "page"
	ParamLimit  = "limit"
	ParamSort   = "sort"
	ParamOrder  = "order"
	ParamSearch = "q"
	ParamFields = "fields"
)

var reservedParams = map[string]bool{
	ParamPage: true, ParamLimit: true, ParamSort: true,
	ParamOrder: true, ParamSearch: true, ParamFields: true,
}

// Sort directions.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// Filter is one condition of a plan. It is either an Equality or a Range.
type Filter interface {
	Column() string
	isFilter()
}

// Equality matches rows whose column equals Value. A nil Value matches
// rows where the column is null.
type Equality struct {
	Field string
	Value interface{}
}

// Range matches rows whose column lies within [Min, Max]. A nil bound is
// open.
type Range struct {
	Field string
	Min   interface{}
	Max   interface{}
}

func (e Equality) Column() string { return e.Field }
func (r Range) Column() string    { return r.Field }
func (Equality) isFilter()        {}
func (Range) isFilter()           {}

// Plan is a validated, request-scoped description of one dataset query.
type Plan struct {
	Page       int
	Limit      int
	SortField  string
	SortOrder  string
	SearchTerm string
	Filters    []Filter
	// Fields is the projection; empty means every schema column.
	Fields []string
}

// Offset returns the number of rows skipped before the current page.
func (p *Plan) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Columns returns the projected column names in response order.
func (p *Plan) Columns(schema []model.ColumnSchema) []string {
	if len(p.Fields) > 0 {
		return p.Fields
	}
	return model.ColumnNames(schema)
}

// TotalPages returns ceil(total/limit).
func TotalPages(total int64, limit int) int64 {
	if total <= 0 || limit <= 0 {
		return 0
	}
	l := int64(limit)
	return (total + l - 1) / l
}

// ParsePlan validates query-string parameters against a dataset schema.
// Every failure is a QueryError; a plan is never partially applied.
func ParsePlan(params url.Values, schema []model.ColumnSchema) (*Plan, error) {
	p := &Plan{Page: DefaultPage, Limit: DefaultLimit, SortOrder: OrderAsc}

	if v := strings.TrimSpace(params.Get(ParamPage)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, apperr.Query("page must be an integer >= 1, got %q", v)
		}
		p.Page = n
	}

	if v := strings.TrimSpace(params.Get(ParamLimit)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, apperr.Query("limit must be an integer >= 1, got %q", v)
		}
		p.Limit = min(n, MaxLimit)
	}
	if p.Page-1 > math.MaxInt/p.Limit {
		return nil, apperr.Query("page %d is out of range for limit %d", p.Page, p.Limit)
	}

	if v := strings.TrimSpace(params.Get(ParamSort)); v != "" {
		if _, ok := model.FindColumn(schema, v); !ok {
			return nil, apperr.Query("cannot sort by unknown column %q", v)
		}
		p.SortField = v
	}

	if v := strings.TrimSpace(params.Get(ParamOrder)); v != "" {
		switch strings.ToLower(v) {
		case OrderAsc, OrderDesc:
			p.SortOrder = strings.ToLower(v)
		default:
			return nil, apperr.Query("order must be asc or desc, got %q", v)
		}
	}

	if v := strings.TrimSpace(params.Get(ParamSearch)); v != "" {
		term, err := SanitizeStringValue(v, maxSearchLen)
		if err != nil {
			return nil, apperr.Query("q: %v", err)
		}
		p.SearchTerm = term
	}

	if v := params.Get(ParamFields); v != "" {
		for _, f := range ParseFieldSelection(v) {
			if _, ok := model.FindColumn(schema, f); !ok {
				return nil, apperr.Query("unknown field %q", f)
			}
			p.Fields = append(p.Fields, f)
		}
	}

	filters, err := parseFilters(params, schema)
	if err != nil {
		return nil, err
	}
	p.Filters = filters
	return p, nil
}

// parseFilters turns every non-reserved parameter into a filter. Parameters
// are visited in sorted order so the rendered SQL is deterministic, and the
// _min/_max bounds of one column merge into a single Range.
func parseFilters(params url.Values, schema []model.ColumnSchema) ([]Filter, error) {
	names := make([]string, 0, len(params))
	for name := range params {
		if !reservedParams[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var filters []Filter
	ranges := make(map[string]int) // column -> index into filters

	for _, name := range names {
		raw := params.Get(name)

		if col, ok := model.FindColumn(schema, name); ok {
			v, err := coerceFilterValue(col, name, raw)
			if err != nil {
				return nil, err
			}
			filters = append(filters, Equality{Field: col.Name, Value: v})
			continue
		}

		base, bound := splitRangeSuffix(name)
		col, ok := model.FindColumn(schema, base)
		if bound == "" || !ok {
			return nil, apperr.Query("unknown column %q", name)
		}
		if col.Type == model.TypeBoolean {
			return nil, apperr.Query("range filters are not supported on boolean column %q", col.Name)
		}
		v, err := coerceFilterValue(col, name, raw)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, apperr.Query("%s needs a value", name)
		}

		idx, seen := ranges[col.Name]
		if !seen {
			idx = len(filters)
			ranges[col.Name] = idx
			filters = append(filters, Range{Field: col.Name})
		}
		r := filters[idx].(Range)
		if bound == "min" {
			r.Min = v
		} else {
			r.Max = v
		}
		filters[idx] = r
	}
	return filters, nil
}

func splitRangeSuffix(name string) (base, bound string) {
	switch {
	case strings.HasSuffix(name, "_min"):
		return strings.TrimSuffix(name, "_min"), "min"
	case strings.HasSuffix(name, "_max"):
		return strings.TrimSuffix(name, "_max"), "max"
	}
	return name, ""
}

func coerceFilterValue(col model.ColumnSchema, param, raw string) (interface{}, error) {
	raw, err := SanitizeStringValue(raw, 0)
	if err != nil {
		return nil, apperr.Query("%s: %v", param, err)
	}
	v, err := typedetect.Coerce(raw, col.Type)
	if err != nil {
		return nil, apperr.Query("%s: %v (column is %s)", param, err, col.Type)
	}
	return v, nil
}
