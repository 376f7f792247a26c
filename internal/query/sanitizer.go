// Package query turns dataset query-string parameters into a validated plan
// and renders that plan as parameterized SQL fragments. Column names are only
// ever taken from a dataset schema; values always travel as bind parameters.
package query

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierRegex validates generated SQL identifiers such as storage
// locators. Must start with a letter or underscore, followed by alphanumeric
// or underscore.
var identifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// maxIdentifierLen is the shortest identifier limit among supported
// warehouses (PostgreSQL truncates at 63 bytes).
const maxIdentifierLen = 63

// ValidateIdentifier ensures a generated identifier is safe to splice into
// DDL, where bind parameters are not available.
func ValidateIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > maxIdentifierLen {
		return fmt.Errorf("identifier too long (max %d chars): %q", maxIdentifierLen, name)
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("invalid identifier %q: must match [a-zA-Z_][a-zA-Z0-9_]*", name)
	}
	return nil
}

// SanitizeStringValue removes null bytes and validates string length.
func SanitizeStringValue(val string, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = 65535
	}
	// Null bytes are rejected by PostgreSQL text values.
	val = strings.ReplaceAll(val, "\x00", "")
	if len(val) > maxLen {
		return "", fmt.Errorf("value too long (max %d chars)", maxLen)
	}
	return val, nil
}

// EscapeLike escapes LIKE metacharacters in s using '!' as the escape
// character, so a search term always matches literally.
func EscapeLike(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '!', '%', '_':
			b.WriteRune('!')
		}
		b.WriteRune(r)
	}
	return b.String()
}
