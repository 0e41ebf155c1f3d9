package field

import (
	"fmt"
	"reflect"

	"github.com/artpar/actionkit/core/validation"
)

// List loads a sequence by loading every element with Child. Element
// failures are collected per index; the list fails once with all of them.
type List struct {
	Base
	Child    Field
	NonEmpty bool
}

func (f *List) defaultMessages() map[string]string {
	return map[string]string{
		"not_a_list": "Expected a list of items but got type \"{input_type}\".",
		"empty":      "This list may not be empty.",
	}
}

// Deserialize implements Field.
func (f *List) Deserialize(raw any) (any, error) {
	items, ok := AsSlice(raw)
	if !ok {
		return nil, Fail(f, "not_a_list", map[string]any{"input_type": TypeName(raw)})
	}
	if len(items) == 0 && f.NonEmpty {
		return nil, Fail(f, "empty", nil)
	}

	out := make([]any, 0, len(items))
	agg := &validation.Error{}
	for i, item := range items {
		v, err := Load(f.Child, Of(item))
		if err != nil {
			agg.AddIndex(i, toValidationError(err))
			continue
		}
		out = append(out, v.Get())
	}
	if !agg.Empty() {
		return nil, agg
	}
	return out, nil
}

// MultiValued marks List as taking every value of a repeated form key.
func (f *List) MultiValued() bool { return true }

// Serialize implements Field.
func (f *List) Serialize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	items, ok := AsSlice(v)
	if !ok {
		return nil, fmt.Errorf("serialize list: unsupported type %T", v)
	}
	out := make([]any, len(items))
	for i, item := range items {
		dumped, err := Dump(f.Child, Of(item))
		if err != nil {
			return nil, fmt.Errorf("serialize list item %d: %w", i, err)
		}
		out[i] = dumped.Get()
	}
	return out, nil
}

// Dict loads a string-keyed mapping. When Value is set every entry is
// loaded with it and failures are keyed by entry key.
type Dict struct {
	Base
	Value Field
}

func (f *Dict) defaultMessages() map[string]string {
	return map[string]string{"invalid": "Not a valid mapping type."}
}

// Deserialize implements Field.
func (f *Dict) Deserialize(raw any) (any, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, Fail(f, "invalid", nil)
	}
	if f.Value == nil {
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, nil
	}
	out := make(map[string]any, len(m))
	agg := &validation.Error{}
	for k, item := range m {
		v, err := Load(f.Value, Of(item))
		if err != nil {
			agg.AddField(k, toValidationError(err))
			continue
		}
		out[k] = v.Get()
	}
	if !agg.Empty() {
		return nil, agg
	}
	return out, nil
}

// Serialize implements Field.
func (f *Dict) Serialize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("serialize dict: unsupported type %T", v)
	}
	out := make(map[string]any, len(m))
	for k, item := range m {
		if f.Value == nil {
			out[k] = item
			continue
		}
		dumped, err := Dump(f.Value, Of(item))
		if err != nil {
			return nil, fmt.Errorf("serialize dict entry %q: %w", k, err)
		}
		out[k] = dumped.Get()
	}
	return out, nil
}

// AsSlice converts any slice or array to []any. Strings and byte slices are
// not treated as lists.
func AsSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out, true
	case string, []byte:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// TypeName names the Go type of v for error messages.
func TypeName(v any) string {
	if v == nil {
		return "null"
	}
	return reflect.TypeOf(v).String()
}

func toValidationError(err error) *validation.Error {
	if verr, ok := validation.As(err); ok {
		return verr
	}
	return validation.New("invalid", err.Error())
}
