package transformer

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"bagetl/internal/schema"
)

// castFunc converts one value to a destination scalar. It returns nil for
// NULL and an error when the value cannot be represented.
type castFunc func(v any) (any, error)

// compilePlan builds one caster per destination column so the row loop does
// no map lookups.
func compilePlan(columns []string, types map[string]schema.Type) ([]castFunc, error) {
	plan := make([]castFunc, len(columns))
	for i, c := range columns {
		t, ok := types[c]
		if !ok {
			return nil, fmt.Errorf("no type for column %q", c)
		}
		fn, err := caster(t)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", c, err)
		}
		plan[i] = fn
	}
	return plan, nil
}

func caster(t schema.Type) (castFunc, error) {
	switch t {
	case schema.TypeText, schema.TypeKey:
		return toText, nil
	case schema.TypeInt64, schema.TypeIdentity:
		return toInt64, nil
	case schema.TypeInt32:
		return toInt32, nil
	case schema.TypeFloat64:
		return toFloat64, nil
	case schema.TypeFloat32:
		return toFloat32, nil
	case schema.TypeBool:
		return toBool, nil
	}
	return nil, fmt.Errorf("unknown type %q", t)
}

// Cast converts v to the Go representation of t: string, int32, int64,
// float32, float64 or bool. Empty strings become nil.
func Cast(t schema.Type, v any) (any, error) {
	fn, err := caster(t)
	if err != nil {
		return nil, err
	}
	return fn(v)
}

// trimmed returns the trimmed string form of v and whether v was a string.
// An empty result means NULL.
func trimmed(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s), true
	case []byte:
		return strings.TrimSpace(string(s)), true
	}
	return "", false
}

func toInt64(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := trimmed(v); ok {
		if s == "" {
			return nil, nil
		}
		if i, ok := toIntFast(s); ok {
			return i, nil
		}
		if b, ok := toBoolFast(s); ok {
			return boolInt(b), nil
		}
		return nil, fmt.Errorf("cannot parse %q as integer", s)
	}
	switch n := v.(type) {
	case bool:
		return boolInt(n), nil
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return nil, fmt.Errorf("%d overflows int64", n)
		}
		return int64(n), nil
	case uint:
		if uint64(n) > math.MaxInt64 {
			return nil, fmt.Errorf("%d overflows int64", n)
		}
		return int64(n), nil
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	}
	return nil, fmt.Errorf("cannot convert %T to integer", v)
}

func toInt32(v any) (any, error) {
	i, err := toInt64(v)
	if err != nil || i == nil {
		return nil, err
	}
	n := i.(int64)
	if n < math.MinInt32 || n > math.MaxInt32 {
		return nil, fmt.Errorf("%d overflows int32", n)
	}
	return int32(n), nil
}

func floatToInt(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, fmt.Errorf("%v is not integral", f)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return nil, fmt.Errorf("%v overflows int64", f)
	}
	return int64(f), nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func toFloat64(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := trimmed(v); ok {
		if s == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			if b, ok := toBoolFast(s); ok {
				return float64(boolInt(b)), nil
			}
			return nil, fmt.Errorf("cannot parse %q as float", s)
		}
		return f, nil
	}
	switch n := v.(type) {
	case bool:
		return float64(boolInt(n)), nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	}
	return nil, fmt.Errorf("cannot convert %T to float", v)
}

func toFloat32(v any) (any, error) {
	f, err := toFloat64(v)
	if err != nil || f == nil {
		return nil, err
	}
	x := f.(float64)
	if !math.IsInf(x, 0) && !math.IsNaN(x) && math.Abs(x) > math.MaxFloat32 {
		return nil, fmt.Errorf("%v overflows float32", x)
	}
	return float32(x), nil
}

func toBool(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := trimmed(v); ok {
		if s == "" {
			return nil, nil
		}
		if b, ok := toBoolFast(s); ok {
			return b, nil
		}
		if i, ok := toIntFast(s); ok {
			return i != 0, nil
		}
		return nil, fmt.Errorf("cannot parse %q as bool", s)
	}
	if b, ok := v.(bool); ok {
		return b, nil
	}
	i, err := toInt64(v)
	if err != nil {
		return nil, err
	}
	return i.(int64) != 0, nil
}

func toText(v any) (any, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(s) == "" {
			return nil, nil
		}
		return s, nil
	case []byte:
		return string(s), nil
	case float32:
		return strconv.FormatFloat(float64(s), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(s, 'g', -1, 64), nil
	case fmt.Stringer:
		return s.String(), nil
	}
	return formatValue(v), nil
}

// formatValue renders sequences as "[a, b, c]" so array fields stored as
// text read the same whether they came from a CSV export or a decoded log.
func formatValue(v any) string {
	switch s := v.(type) {
	case []any:
		parts := make([]string, len(s))
		for i, e := range s {
			parts[i] = formatValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []float64:
		parts := make([]string, len(s))
		for i, e := range s {
			parts[i] = strconv.FormatFloat(e, 'g', -1, 64)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []float32:
		parts := make([]string, len(s))
		for i, e := range s {
			parts[i] = strconv.FormatFloat(float64(e), 'g', -1, 32)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case float64:
		return strconv.FormatFloat(s, 'g', -1, 64)
	}
	return fmt.Sprint(v)
}

// toIntFast parses integers and only falls back to float parsing when the
// field contains a '.' (exports write "42.0" for integer columns).
func toIntFast(s string) (int64, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	if strings.IndexByte(s, '.') >= 0 {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
				return int64(f), true
			}
		}
	}
	return 0, false
}

// toBoolFast recognizes the boolean spellings found in exports.
func toBoolFast(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "t", "true", "yes", "y":
		return true, true
	case "f", "false", "no", "n":
		return false, true
	}
	return false, false
}
