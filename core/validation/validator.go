package validation

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"net/url"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Validator checks a deserialized value. It returns nil or a *Error.
// Validators are constructed once and shared; they must not keep state.
type Validator interface {
	Validate(value any) error
}

// Func adapts a plain function to the Validator interface.
type Func func(value any) error

// Validate calls f.
func (f Func) Validate(value any) error { return f(value) }

// Run applies every validator to value and aggregates all failures. It never
// stops at the first failure.
func Run(value any, validators ...Validator) *Error {
	var agg *Error
	for _, v := range validators {
		err := v.Validate(value)
		if err == nil {
			continue
		}
		if agg == nil {
			agg = &Error{}
		}
		if verr, ok := As(err); ok {
			agg.Merge(verr)
			continue
		}
		agg.Append(Message{Text: err.Error(), Code: "invalid"})
	}
	return agg
}

// All composes validators into one that reports every failure.
func All(validators ...Validator) Validator {
	return Func(func(value any) error {
		if err := Run(value, validators...); err != nil {
			return err
		}
		return nil
	})
}

func fail(code, custom, fallback string, params map[string]any) error {
	tmpl := custom
	if tmpl == "" {
		tmpl = fallback
	}
	e := Newf(code, tmpl, params)
	if len(params) > 0 {
		e.Messages[0].Extra = params
	}
	return e
}

// Length bounds the length of strings (in runes), slices and maps.
// A zero Max means no upper bound; a non-zero Equal overrides Min and Max.
type Length struct {
	Min     int
	Max     int
	Equal   int
	Message string
}

// Validate implements Validator.
func (l Length) Validate(value any) error {
	n, ok := lengthOf(value)
	if !ok {
		return nil
	}
	if l.Equal > 0 {
		if n != l.Equal {
			return fail("length", l.Message, "Length must be {equal}.", map[string]any{"equal": l.Equal})
		}
		return nil
	}
	params := map[string]any{"min": l.Min, "max": l.Max}
	if l.Min > 0 && n < l.Min {
		if l.Max > 0 {
			return fail("length", l.Message, "Length must be between {min} and {max}.", params)
		}
		return fail("min_length", l.Message, "Shorter than minimum length {min}.", params)
	}
	if l.Max > 0 && n > l.Max {
		if l.Min > 0 {
			return fail("length", l.Message, "Length must be between {min} and {max}.", params)
		}
		return fail("max_length", l.Message, "Longer than maximum length {max}.", params)
	}
	return nil
}

func lengthOf(value any) (int, bool) {
	switch v := value.(type) {
	case string:
		return utf8.RuneCountInString(v), true
	case []any:
		return len(v), true
	case map[string]any:
		return len(v), true
	case nil:
		return 0, false
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len(), true
	}
	return 0, false
}

// Range bounds numeric values. Nil bounds are open.
type Range struct {
	Min     *float64
	Max     *float64
	Message string
}

// Between returns a closed range.
func Between(min, max float64) Range { return Range{Min: &min, Max: &max} }

// AtLeast returns a range with only a lower bound.
func AtLeast(min float64) Range { return Range{Min: &min} }

// AtMost returns a range with only an upper bound.
func AtMost(max float64) Range { return Range{Max: &max} }

// Validate implements Validator.
func (r Range) Validate(value any) error {
	n, err := ToFloat64(value)
	if err != nil {
		return nil
	}
	params := map[string]any{}
	if r.Min != nil {
		params["min"] = FormatNumber(*r.Min)
	}
	if r.Max != nil {
		params["max"] = FormatNumber(*r.Max)
	}
	if (r.Min != nil && n < *r.Min) || (r.Max != nil && n > *r.Max) {
		switch {
		case r.Min != nil && r.Max != nil:
			return fail("range", r.Message, "Must be greater than or equal to {min} and less than or equal to {max}.", params)
		case r.Min != nil:
			return fail("min_value", r.Message, "Must be greater than or equal to {min}.", params)
		default:
			return fail("max_value", r.Message, "Must be less than or equal to {max}.", params)
		}
	}
	return nil
}

// Email checks for a plain address (no display name).
type Email struct {
	Message string
}

// Validate implements Validator.
func (e Email) Validate(value any) error {
	s, ok := value.(string)
	if !ok {
		return fail("invalid_email", e.Message, "Not a valid email address.", nil)
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || !strings.Contains(s[strings.LastIndex(s, "@")+1:], ".") {
		return fail("invalid_email", e.Message, "Not a valid email address.", nil)
	}
	return nil
}

// URL checks for an absolute URL. Schemes restricts the accepted schemes
// (default http and https).
type URL struct {
	Schemes []string
	Message string
}

// Validate implements Validator.
func (u URL) Validate(value any) error {
	s, ok := value.(string)
	if !ok {
		return fail("invalid_url", u.Message, "Not a valid URL.", nil)
	}
	parsed, err := url.ParseRequestURI(s)
	if err != nil || parsed.Host == "" {
		return fail("invalid_url", u.Message, "Not a valid URL.", nil)
	}
	schemes := u.Schemes
	if len(schemes) == 0 {
		schemes = []string{"http", "https"}
	}
	for _, sc := range schemes {
		if strings.EqualFold(parsed.Scheme, sc) {
			return nil
		}
	}
	return fail("invalid_url", u.Message, "Not a valid URL.", nil)
}

// Regexp requires strings to match Pattern.
type Regexp struct {
	Pattern *regexp.Regexp
	Message string
}

// MustRegexp compiles pattern into a Regexp validator.
func MustRegexp(pattern string) Regexp {
	return Regexp{Pattern: regexp.MustCompile(pattern)}
}

// Validate implements Validator.
func (r Regexp) Validate(value any) error {
	s, ok := value.(string)
	if !ok || !r.Pattern.MatchString(s) {
		return fail("invalid_pattern", r.Message, "String does not match expected pattern.",
			map[string]any{"pattern": r.Pattern.String()})
	}
	return nil
}

// OneOf requires the value to be one of Choices.
type OneOf struct {
	Choices []any
	Message string
}

// Validate implements Validator.
func (o OneOf) Validate(value any) error {
	for _, c := range o.Choices {
		if equalValues(c, value) {
			return nil
		}
	}
	return fail("invalid_choice", o.Message, "Must be one of: {choices}.",
		map[string]any{"choices": joinAny(o.Choices)})
}

// NoneOf rejects values contained in Invalid.
type NoneOf struct {
	Invalid []any
	Message string
}

// Validate implements Validator.
func (n NoneOf) Validate(value any) error {
	for _, c := range n.Invalid {
		if equalValues(c, value) {
			return fail("invalid", n.Message, "Invalid input.", map[string]any{"values": joinAny(n.Invalid)})
		}
	}
	return nil
}

// Equal requires the value to equal Other.
type Equal struct {
	Other   any
	Message string
}

// Validate implements Validator.
func (e Equal) Validate(value any) error {
	if !equalValues(e.Other, value) {
		return fail("not_equal", e.Message, "Must be equal to {other}.", map[string]any{"other": e.Other})
	}
	return nil
}

// Predicate fails when Check returns false.
type Predicate struct {
	Check   func(value any) bool
	Message string
}

// Validate implements Validator.
func (p Predicate) Validate(value any) error {
	if !p.Check(value) {
		return fail("invalid", p.Message, "Invalid input.", nil)
	}
	return nil
}

func equalValues(a, b any) bool {
	if fa, err := ToFloat64(a); err == nil {
		if fb, err := ToFloat64(b); err == nil {
			return fa == fb
		}
	}
	return reflect.DeepEqual(a, b)
}

func joinAny(vals []any) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}

// ToFloat64 converts numeric Go values to float64. Strings are not numbers
// here; fields convert their input before validators run.
func ToFloat64(v any) (float64, error) {
	switch n := v.(type) {
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
	case uint:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", v)
	}
}

// FormatNumber renders integral floats without a fractional part.
func FormatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
