package store

import (
	"math"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"
)

// Kind is the coarse storage class of a column, used to coerce decoded JSON
// values before they reach the driver.
type Kind int

const (
	KindAny Kind = iota
	KindInteger
	KindFloat
	KindText
	KindBool
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindBool:
		return "bool"
	case KindJSON:
		return "json"
	default:
		return "any"
	}
}

// KindOf maps a declared SQL type name to a Kind. It understands both
// Postgres data_type names and SQLite affinity rules.
func KindOf(sqlType string) Kind {
	t := strings.ToLower(strings.TrimSpace(sqlType))
	switch {
	case t == "":
		return KindAny
	case strings.Contains(t, "json"):
		return KindJSON
	case strings.Contains(t, "bool"):
		return KindBool
	case strings.Contains(t, "interval") || strings.Contains(t, "point"):
		return KindAny
	case strings.Contains(t, "int") || t == "serial" || t == "bigserial":
		return KindInteger
	case strings.Contains(t, "char") || strings.Contains(t, "text") || strings.Contains(t, "clob"):
		return KindText
	case strings.Contains(t, "real") || strings.Contains(t, "floa") || strings.Contains(t, "doub") ||
		strings.Contains(t, "numeric") || strings.Contains(t, "decimal"):
		return KindFloat
	default:
		return KindAny
	}
}

// Column is one introspected column.
type Column struct {
	Name string
	Kind Kind
}

// Schema is the introspected shape of one table.
type Schema struct {
	Table      string
	Columns    []Column
	PrimaryKey []string

	index map[string]int
}

// NewSchema builds a Schema. Field lookups are case-insensitive, since
// unquoted identifiers fold case differently per database.
func NewSchema(table string, cols []Column, pk []string) *Schema {
	s := &Schema{Table: table, Columns: cols, PrimaryKey: pk, index: make(map[string]int, len(cols))}
	for i, c := range cols {
		s.index[strings.ToLower(c.Name)] = i
	}
	return s
}

// Lookup returns the column matching a logical field name.
func (s *Schema) Lookup(field string) (Column, bool) {
	i, ok := s.index[strings.ToLower(field)]
	if !ok {
		return Column{}, false
	}
	return s.Columns[i], true
}

// Coerce converts a decoded JSON value into something the driver will accept
// for a column of kind k. nil, NaN and blank numeric strings become NULL.
func Coerce(k Kind, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return nil, nil
	}

	switch k {
	case KindInteger:
		return toInteger(v)
	case KindFloat:
		return toFloat(v)
	case KindText:
		return toText(v)
	case KindBool:
		return toBool(v)
	case KindJSON:
		return sonic.ConfigStd.MarshalToString(v)
	default:
		return toAny(v)
	}
}

func toInteger(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case float64:
		if x != math.Trunc(x) {
			return nil, errors.Newf("%v is not an integer", x)
		}
		return int64(x), nil
	case float32:
		return toInteger(float64(x))
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil, nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f != math.Trunc(f) {
			return nil, errors.Newf("%q is not an integer", x)
		}
		return int64(f), nil
	default:
		return nil, errors.Newf("cannot store %T as integer", v)
	}
}

func toFloat(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, errors.Newf("%q is not a number", x)
		}
		return f, nil
	default:
		return nil, errors.Newf("cannot store %T as float", v)
	}
}

func toText(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e18 {
			return strconv.FormatInt(int64(x), 10), nil
		}
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case bool:
		return strconv.FormatBool(x), nil
	case map[string]interface{}, []interface{}:
		return sonic.ConfigStd.MarshalToString(x)
	default:
		return nil, errors.Newf("cannot store %T as text", v)
	}
}

func toBool(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case float64:
		return x != 0, nil
	case int:
		return x != 0, nil
	case int64:
		return x != 0, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil, nil
		}
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, errors.Newf("%q is not a boolean", x)
		}
		return b, nil
	default:
		return nil, errors.Newf("cannot store %T as bool", v)
	}
}

func toAny(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e18 {
			return int64(x), nil
		}
		return x, nil
	case map[string]interface{}, []interface{}:
		return sonic.ConfigStd.MarshalToString(x)
	default:
		return v, nil
	}
}
