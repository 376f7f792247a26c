package typedetect

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tapfile/tapfile/internal/model"
)

// Coerce converts a raw cell into the storage value for type t:
// int64, float64, bool, an ISO 8601 date string, or the string itself.
// Blank input yields nil.
func Coerce(raw string, t model.ColumnType) (interface{}, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}

	switch t {
	case model.TypeInteger:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", raw)
		}
		return n, nil
	case model.TypeFloat:
		f, err := parseFinite(s)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", raw)
		}
		return f, nil
	case model.TypeBoolean:
		b, ok := booleanTokens[strings.ToLower(s)]
		if !ok {
			return nil, fmt.Errorf("%q is not a boolean", raw)
		}
		return b, nil
	case model.TypeDate:
		d, ok := parseDate(s)
		if !ok {
			return nil, fmt.Errorf("%q is not a date", raw)
		}
		return d.Format("2006-01-02"), nil
	case model.TypeText:
		return raw, nil
	default:
		return nil, fmt.Errorf("unknown column type %q", t)
	}
}

// CoerceValue is Coerce for values that may already be typed (e.g. from JSON
// tool arguments). Strings go through Coerce; native values are checked
// against t.
func CoerceValue(v interface{}, t model.ColumnType) (interface{}, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		return Coerce(x, t)
	case bool:
		if t == model.TypeBoolean {
			return x, nil
		}
		if t == model.TypeText {
			return strconv.FormatBool(x), nil
		}
	default:
		if f, ok := toFloat(v); ok {
			return Coerce(strconv.FormatFloat(f, 'f', -1, 64), t)
		}
	}
	return nil, fmt.Errorf("%v is not a valid %s value", v, t)
}
