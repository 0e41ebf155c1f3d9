package field

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/artpar/actionkit/core/validation"
	"github.com/google/uuid"
)

// String is a text field. Whitespace is trimmed unless KeepWhitespace is
// set. A blank input fails with "blank" unless AllowBlank; with AllowNull
// (and not AllowBlank) it becomes null instead.
type String struct {
	Base
	AllowBlank     bool
	KeepWhitespace bool
	MinLength      int
	MaxLength      int
}

func (f *String) defaultMessages() map[string]string {
	return map[string]string{
		"invalid":    "Not a valid string.",
		"blank":      "This field may not be blank.",
		"min_length": "Ensure this field has at least {min_length} characters.",
		"max_length": "Ensure this field has no more than {max_length} characters.",
	}
}

// Deserialize implements Field.
func (f *String) Deserialize(raw any) (any, error) {
	return deserializeString(f, &f.Base, f.AllowBlank, f.KeepWhitespace, raw)
}

func deserializeString(self Field, opts *Base, allowBlank, keepWhitespace bool, raw any) (any, error) {
	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case json.Number:
		s = v.String()
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		s = fmt.Sprint(v)
	default:
		return nil, Fail(self, "invalid", nil)
	}
	if !keepWhitespace {
		s = strings.TrimSpace(s)
	}
	if s == "" && !allowBlank {
		if opts.AllowNull {
			return nil, nil
		}
		return nil, Fail(self, "blank", nil)
	}
	return s, nil
}

// Constrain implements Constrainer.
func (f *String) Constrain(v any) error {
	return constrainLength(f, v.(string), f.MinLength, f.MaxLength)
}

func constrainLength(self Field, s string, min, max int) error {
	n := utf8.RuneCountInString(s)
	agg := &validation.Error{}
	if min > 0 && n < min {
		agg.Merge(Fail(self, "min_length", map[string]any{"min_length": min}))
	}
	if max > 0 && n > max {
		agg.Merge(Fail(self, "max_length", map[string]any{"max_length": max}))
	}
	if agg.Empty() {
		return nil
	}
	return agg
}

// Serialize implements Field.
func (f *String) Serialize(v any) (any, error) {
	return serializeString(v), nil
}

func serializeString(v any) any {
	switch s := v.(type) {
	case nil:
		return nil
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(s)
	}
}

// Email is a String that must hold a valid email address.
type Email struct {
	String
}

func (f *Email) defaultMessages() map[string]string {
	m := f.String.defaultMessages()
	m["invalid_email"] = "Enter a valid email address."
	return m
}

// Deserialize implements Field.
func (f *Email) Deserialize(raw any) (any, error) {
	return deserializeString(f, &f.Base, f.AllowBlank, f.KeepWhitespace, raw)
}

// Constrain implements Constrainer.
func (f *Email) Constrain(v any) error {
	agg := &validation.Error{}
	mergeInto(agg, constrainLength(f, v.(string), f.MinLength, f.MaxLength))
	if v.(string) != "" {
		if (validation.Email{}).Validate(v) != nil {
			agg.Merge(Fail(f, "invalid_email", nil))
		}
	}
	if agg.Empty() {
		return nil
	}
	return agg
}

// URL is a String that must hold an absolute http(s) URL, or one of
// Schemes when set.
type URL struct {
	String
	Schemes []string
}

func (f *URL) defaultMessages() map[string]string {
	m := f.String.defaultMessages()
	m["invalid_url"] = "Enter a valid URL."
	return m
}

// Deserialize implements Field.
func (f *URL) Deserialize(raw any) (any, error) {
	return deserializeString(f, &f.Base, f.AllowBlank, f.KeepWhitespace, raw)
}

// Constrain implements Constrainer.
func (f *URL) Constrain(v any) error {
	agg := &validation.Error{}
	mergeInto(agg, constrainLength(f, v.(string), f.MinLength, f.MaxLength))
	if v.(string) != "" {
		if (validation.URL{Schemes: f.Schemes}).Validate(v) != nil {
			agg.Merge(Fail(f, "invalid_url", nil))
		}
	}
	if agg.Empty() {
		return nil
	}
	return agg
}

// UUID parses RFC 4122 identifiers into uuid.UUID and dumps the canonical
// hyphenated form.
type UUID struct {
	Base
}

func (f *UUID) defaultMessages() map[string]string {
	return map[string]string{"invalid": "Must be a valid UUID."}
}

// Deserialize implements Field.
func (f *UUID) Deserialize(raw any) (any, error) {
	switch v := raw.(type) {
	case uuid.UUID:
		return v, nil
	case string:
		id, err := uuid.Parse(strings.TrimSpace(v))
		if err != nil {
			return nil, Fail(f, "invalid", nil)
		}
		return id, nil
	}
	return nil, Fail(f, "invalid", nil)
}

// Serialize implements Field.
func (f *UUID) Serialize(v any) (any, error) {
	switch id := v.(type) {
	case nil:
		return nil, nil
	case uuid.UUID:
		return id.String(), nil
	case string:
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("serialize uuid: %w", err)
		}
		return parsed.String(), nil
	}
	return nil, fmt.Errorf("serialize uuid: unsupported type %T", v)
}
