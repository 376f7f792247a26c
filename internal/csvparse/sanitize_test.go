package csvparse

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestSanitizeColumnName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Full Name", "full_name"},
		{"full_name", "full_name"},
		{"  Price ($) ", "price"},
		{"__id__", "id"},
		{"a--b..c", "a_b_c"},
		{"2024 Sales", "2024_sales"},
		{"Ünïcode", "n_code"},
		{"!!!", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := SanitizeColumnName(tt.in); got != tt.want {
			t.Errorf("SanitizeColumnName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestProperty_SanitizeIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("sanitizing twice equals sanitizing once", prop.ForAll(
		func(s string) bool {
			once := SanitizeColumnName(s)
			return SanitizeColumnName(once) == once
		},
		gen.AnyString(),
	))

	properties.Property("output uses only [a-z0-9_] without edge underscores", prop.ForAll(
		func(s string) bool {
			out := SanitizeColumnName(s)
			if out == "" {
				return true
			}
			if out[0] == '_' || out[len(out)-1] == '_' {
				return false
			}
			for i := 0; i < len(out); i++ {
				c := out[i]
				ok := (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_'
				if !ok {
					return false
				}
				if c == '_' && i > 0 && out[i-1] == '_' {
					return false
				}
			}
			return true
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
