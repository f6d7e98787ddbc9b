package provider

import (
	"math"
	"strconv"
	"strings"
)

// ExtractString normalizes an identifier-like value from a decoded JSON
// document into its string form.
//
// JSON numbers arrive as float64, so whole numbers are rendered without a
// decimal point (12345, not 12345.0). Returns ok=false for nil, NaN, empty
// strings, and values that have no sensible scalar form.
func ExtractString(val interface{}) (string, bool) {
	if val == nil {
		return "", false
	}

	switch v := val.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" || strings.EqualFold(s, "nan") {
			return "", false
		}
		return s, true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", false
		}
		if v == math.Trunc(v) && math.Abs(v) < 1e18 {
			return strconv.FormatInt(int64(v), 10), true
		}
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case float32:
		return ExtractString(float64(v))
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}

// ExtractInt returns an integer from a number or numeric string.
func ExtractInt(val interface{}) (int, bool) {
	switch v := val.(type) {
	case float64:
		if math.IsNaN(v) || v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
