package field

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/artpar/actionkit/core/validation"
)

// MaxStringLength bounds textual numeric input. Longer strings are rejected
// before any parsing is attempted.
const MaxStringLength = 1000

var trailingZeroDecimal = regexp.MustCompile(`\.0*$`)

// Int64 returns a pointer to n, for Integer bounds.
func Int64(n int64) *int64 { return &n }

// Float64 returns a pointer to f, for Float bounds.
func Float64(f float64) *float64 { return &f }

// Integer loads whole numbers into int64. Strings such as "2" and "2.0" are
// accepted unless Strict is set.
type Integer struct {
	Base
	MinValue *int64
	MaxValue *int64
	Strict   bool
}

func (f *Integer) defaultMessages() map[string]string {
	return map[string]string{
		"invalid":           "A valid integer is required.",
		"min_value":         "Must be at least {min_value}.",
		"max_value":         "Must be at most {max_value}.",
		"max_string_length": "String value too large.",
	}
}

// Deserialize implements Field.
func (f *Integer) Deserialize(raw any) (any, error) {
	switch v := raw.(type) {
	case bool:
		return nil, Fail(f, "invalid", nil)
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return nil, Fail(f, "invalid", nil)
		}
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return nil, Fail(f, "invalid", nil)
		}
		return int64(v), nil
	case float32:
		return f.fromFloat(float64(v))
	case float64:
		return f.fromFloat(v)
	case json.Number:
		return f.fromText(string(v))
	case string:
		if f.Strict {
			return nil, Fail(f, "invalid", nil)
		}
		return f.fromText(v)
	}
	return nil, Fail(f, "invalid", nil)
}

func (f *Integer) fromFloat(v float64) (any, error) {
	n, ok := floatToInt64(v)
	if !ok {
		return nil, Fail(f, "invalid", nil)
	}
	return n, nil
}

// floatToInt64 converts integral floats in [-2^63, 2^63). float64(MaxInt64)
// rounds up to 2^63, so the upper bound is exclusive.
func floatToInt64(v float64) (int64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) || v >= math.MaxInt64 || v < math.MinInt64 {
		return 0, false
	}
	return int64(v), true
}

func (f *Integer) fromText(s string) (any, error) {
	if len(s) > MaxStringLength {
		return nil, Fail(f, "max_string_length", nil)
	}
	s = trailingZeroDecimal.ReplaceAllString(strings.TrimSpace(s), "")
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, Fail(f, "invalid", nil)
	}
	return n, nil
}

// Constrain implements Constrainer.
func (f *Integer) Constrain(v any) error {
	n := v.(int64)
	agg := &validation.Error{}
	if f.MinValue != nil && n < *f.MinValue {
		agg.Merge(Fail(f, "min_value", map[string]any{"min_value": *f.MinValue}))
	}
	if f.MaxValue != nil && n > *f.MaxValue {
		agg.Merge(Fail(f, "max_value", map[string]any{"max_value": *f.MaxValue}))
	}
	if agg.Empty() {
		return nil
	}
	return agg
}

// Serialize implements Field.
func (f *Integer) Serialize(v any) (any, error) {
	switch n := v.(type) {
	case nil:
		return nil, nil
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
	case uint:
		return uintToInt64(uint64(n))
	case uint64:
		return uintToInt64(n)
	case float32:
		return serializeFloat(float64(n))
	case float64:
		return serializeFloat(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("serialize integer: %w", err)
		}
		return i, nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("serialize integer: %w", err)
		}
		return i, nil
	}
	return nil, fmt.Errorf("serialize integer: unsupported type %T", v)
}

func uintToInt64(n uint64) (any, error) {
	if n > math.MaxInt64 {
		return nil, fmt.Errorf("serialize integer: %d overflows int64", n)
	}
	return int64(n), nil
}

func serializeFloat(v float64) (any, error) {
	n, ok := floatToInt64(v)
	if !ok {
		return nil, fmt.Errorf("serialize integer: %v is not an int64", v)
	}
	return n, nil
}

// Float loads finite numbers into float64.
type Float struct {
	Base
	MinValue *float64
	MaxValue *float64
	Strict   bool
}

func (f *Float) defaultMessages() map[string]string {
	return map[string]string{
		"invalid":           "A valid number is required.",
		"min_value":         "Must be at least {min_value}.",
		"max_value":         "Must be at most {max_value}.",
		"max_string_length": "String value too large.",
	}
}

// Deserialize implements Field.
func (f *Float) Deserialize(raw any) (any, error) {
	var n float64
	switch v := raw.(type) {
	case bool:
		return nil, Fail(f, "invalid", nil)
	case string:
		if f.Strict {
			return nil, Fail(f, "invalid", nil)
		}
		parsed, err := f.fromText(v)
		if err != nil {
			return nil, err
		}
		n = parsed
	case json.Number:
		parsed, err := f.fromText(string(v))
		if err != nil {
			return nil, err
		}
		n = parsed
	default:
		parsed, err := validation.ToFloat64(v)
		if err != nil {
			return nil, Fail(f, "invalid", nil)
		}
		n = parsed
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, Fail(f, "invalid", nil)
	}
	return n, nil
}

func (f *Float) fromText(s string) (float64, error) {
	if len(s) > MaxStringLength {
		return 0, Fail(f, "max_string_length", nil)
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, Fail(f, "invalid", nil)
	}
	return n, nil
}

// Constrain implements Constrainer.
func (f *Float) Constrain(v any) error {
	n := v.(float64)
	agg := &validation.Error{}
	if f.MinValue != nil && n < *f.MinValue {
		agg.Merge(Fail(f, "min_value", map[string]any{"min_value": validation.FormatNumber(*f.MinValue)}))
	}
	if f.MaxValue != nil && n > *f.MaxValue {
		agg.Merge(Fail(f, "max_value", map[string]any{"max_value": validation.FormatNumber(*f.MaxValue)}))
	}
	if agg.Empty() {
		return nil
	}
	return agg
}

// Serialize implements Field.
func (f *Float) Serialize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok {
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("serialize float: %w", err)
		}
		return n, nil
	}
	n, err := validation.ToFloat64(v)
	if err != nil {
		return nil, fmt.Errorf("serialize float: %w", err)
	}
	return n, nil
}
