package csvparse

import "strings"

// SanitizeColumnName maps a header to the restricted identifier alphabet
// [a-z0-9_]: lowercase, every run of other characters becomes a single
// underscore, and leading/trailing underscores are stripped. It returns ""
// when nothing survives; callers supply a positional fallback. Applying it
// twice gives the same result as applying it once.
func SanitizeColumnName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}
