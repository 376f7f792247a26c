package query

import (
	"reflect"
	"testing"
)

func TestBuildOrderSQL(t *testing.T) {
	tests := []struct {
		name string
		plan *Plan
		want string
	}{
		{"nil plan", nil, `"id" ASC`},
		{"no sort", &Plan{SortOrder: OrderAsc}, `"id" ASC`},
		{"asc", &Plan{SortField: "price", SortOrder: OrderAsc}, `("price" IS NULL), "price" ASC, "id" ASC`},
		{"desc", &Plan{SortField: "price", SortOrder: OrderDesc}, `("price" IS NULL), "price" DESC, "id" ASC`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildOrderSQL(tt.plan, PostgresQuote); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}

	got := BuildOrderSQL(&Plan{SortField: "name", SortOrder: OrderDesc}, MySQLQuote)
	want := "(`name` IS NULL), `name` DESC, `id` ASC"
	if got != want {
		t.Errorf("mysql: got %s, want %s", got, want)
	}
}

func TestParseFieldSelection(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"name", []string{"name"}},
		{"name, age ,city", []string{"name", "age", "city"}},
		{"name,,age", []string{"name", "age"}},
		{"name,name,age", []string{"name", "age"}},
		{",,", nil},
	}
	for _, tt := range tests {
		got := ParseFieldSelection(tt.in)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseFieldSelection(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestQuoteIdentifiers(t *testing.T) {
	got := QuoteIdentifiers([]string{"id", "name", "select"}, PostgresQuote)
	if got != `"id", "name", "select"` {
		t.Errorf("got %s", got)
	}
}

func TestQuoteFunctions(t *testing.T) {
	tests := []struct {
		name string
		fn   func(string) string
		in   string
		want string
	}{
		{"postgres simple", PostgresQuote, "col", `"col"`},
		{"postgres embedded quote", PostgresQuote, `a"b`, `"a""b"`},
		{"mysql simple", MySQLQuote, "col", "`col`"},
		{"mysql embedded backtick", MySQLQuote, "a`b", "`a``b`"},
		{"literal", QuoteLiteral, "t_x", "'t_x'"},
		{"literal embedded quote", QuoteLiteral, "o'neil", "'o''neil'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.in); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPlaceholderFunctions(t *testing.T) {
	tests := []struct {
		name string
		fn   PlaceholderFunc
		idx  int
		want string
	}{
		{"dollar 1", DollarPlaceholder, 1, "$1"},
		{"dollar 5", DollarPlaceholder, 5, "$5"},
		{"question 1", QuestionPlaceholder, 1, "?"},
		{"question 5", QuestionPlaceholder, 5, "?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.idx); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
