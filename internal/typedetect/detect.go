// Package typedetect infers the semantic type of a CSV column from its values
// and coerces raw cell strings into typed storage values.
package typedetect

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tapfile/tapfile/internal/model"
)

// SampleSize is the number of non-empty values inspected per column.
const SampleSize = 100

// dateFormat pairs a literal shape with the layout used to validate it.
type dateFormat struct {
	pattern *regexp.Regexp
	layout  string
}

var dateFormats = []dateFormat{
	{regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`), "2006-01-02"},
	{regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`), "01/02/2006"},
	{regexp.MustCompile(`^\d{2}-\d{2}-\d{4}$`), "01-02-2006"},
	{regexp.MustCompile(`^\d{4}/\d{2}/\d{2}$`), "2006/01/02"},
}

var booleanTokens = map[string]bool{
	"true": true, "yes": true, "y": true, "1": true,
	"false": false, "no": false, "n": false, "0": false,
}

// Detect returns the column type for values. Rules are tried in order DATE,
// BOOLEAN, INTEGER, FLOAT and the first one every sample satisfies wins;
// TEXT is the fallback, including for an empty sample set.
func Detect(values []interface{}) model.ColumnType {
	samples := sample(values)
	if len(samples) == 0 {
		return model.TypeText
	}

	switch {
	case all(samples, isDate):
		return model.TypeDate
	case all(samples, isBoolean):
		return model.TypeBoolean
	case all(samples, isInteger):
		return model.TypeInteger
	case all(samples, isFloat):
		return model.TypeFloat
	default:
		return model.TypeText
	}
}

// Nullable reports whether any value is nil or blank.
func Nullable(values []interface{}) bool {
	for _, v := range values {
		if isNull(v) {
			return true
		}
	}
	return false
}

// sample returns up to SampleSize non-null values.
func sample(values []interface{}) []interface{} {
	out := make([]interface{}, 0, SampleSize)
	for _, v := range values {
		if isNull(v) {
			continue
		}
		out = append(out, v)
		if len(out) == SampleSize {
			break
		}
	}
	return out
}

func isNull(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func all(samples []interface{}, pred func(interface{}) bool) bool {
	for _, v := range samples {
		if !pred(v) {
			return false
		}
	}
	return true
}

func isDate(v interface{}) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	_, ok = parseDate(strings.TrimSpace(s))
	return ok
}

// parseDate matches s against the accepted literal shapes and validates the
// calendar date (2024-02-30 is rejected).
func parseDate(s string) (time.Time, bool) {
	for _, f := range dateFormats {
		if !f.pattern.MatchString(s) {
			continue
		}
		if t, err := time.Parse(f.layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isBoolean(v interface{}) bool {
	switch x := v.(type) {
	case bool:
		return true
	case string:
		_, ok := booleanTokens[strings.ToLower(strings.TrimSpace(x))]
		return ok
	default:
		f, ok := toFloat(v)
		return ok && (f == 0 || f == 1)
	}
}

func isInteger(v interface{}) bool {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if strings.ContainsAny(s, "-/.") {
			return false
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return false
		}
		return strconv.FormatInt(n, 10) == s
	case int, int32, int64:
		f, _ := toFloat(v)
		return f >= 0
	case float64:
		return x >= 0 && x == math.Trunc(x) && !math.IsInf(x, 0)
	default:
		return false
	}
}

func isFloat(v interface{}) bool {
	switch x := v.(type) {
	case string:
		_, err := parseFinite(strings.TrimSpace(x))
		return err == nil
	default:
		f, ok := toFloat(v)
		return ok && !math.IsNaN(f) && !math.IsInf(f, 0)
	}
}

func parseFinite(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q is not a finite number", s)
	}
	return f, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}
