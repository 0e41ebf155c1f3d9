package schema

import (
	"net/url"
	"reflect"
	"sort"
	"strings"

	"github.com/artpar/actionkit/core/field"
)

// Mapping is the input shape Load accepts. Custom request payloads can
// implement it directly.
type Mapping interface {
	Lookup(key string) (any, bool)
	Keys() []string
}

// MultiMapping is a Mapping whose keys may repeat, such as form values.
type MultiMapping interface {
	Mapping
	LookupAll(key string) ([]string, bool)
}

// AsMapping adapts the supported input types. Parsed JSON objects arrive as
// map[string]any and form bodies as url.Values.
func AsMapping(data any) (Mapping, bool) {
	switch m := data.(type) {
	case Mapping:
		return m, true
	case map[string]any:
		return anyMap(m), true
	case map[string]string:
		return stringMap(m), true
	case url.Values:
		return formValues(m), true
	case map[string][]string:
		return formValues(m), true
	}
	return nil, false
}

type anyMap map[string]any

func (m anyMap) Lookup(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

func (m anyMap) Keys() []string { return sortedKeys(m) }

type stringMap map[string]string

func (m stringMap) Lookup(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

func (m stringMap) Keys() []string { return sortedKeys(m) }

type formValues url.Values

func (m formValues) Lookup(key string) (any, bool) {
	vs, ok := m[key]
	if !ok || len(vs) == 0 {
		return nil, false
	}
	return vs[0], true
}

func (m formValues) LookupAll(key string) ([]string, bool) {
	vs, ok := m[key]
	return vs, ok
}

func (m formValues) Keys() []string { return sortedKeys(m) }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type multiValued interface {
	MultiValued() bool
}

func lookup(m Mapping, b binding) field.Value {
	if mm, ok := m.(MultiMapping); ok {
		if mv, ok := b.field.(multiValued); ok && mv.MultiValued() {
			vs, found := mm.LookupAll(b.loadKey)
			if !found {
				return field.Missing
			}
			return field.Of(vs)
		}
	}
	v, ok := m.Lookup(b.loadKey)
	if !ok {
		return field.Missing
	}
	return field.Of(v)
}

// Getter exposes attributes of objects that are neither maps nor plain
// structs.
type Getter interface {
	GetAttribute(name string) (any, bool)
}

// GetAttribute reads name from obj. Maps are indexed by key, Getter
// implementations are asked directly, and structs are searched by json tag
// and then by case-insensitive field name. An attribute that cannot be
// found is Missing; a nil value is Null.
func GetAttribute(obj any, name string) field.Value {
	switch o := obj.(type) {
	case nil:
		return field.Missing
	case Getter:
		v, ok := o.GetAttribute(name)
		if !ok {
			return field.Missing
		}
		return field.Of(v)
	case map[string]any:
		v, ok := o[name]
		if !ok {
			return field.Missing
		}
		return field.Of(v)
	case map[string]string:
		v, ok := o[name]
		if !ok {
			return field.Missing
		}
		return field.Of(v)
	}

	rv := reflect.ValueOf(obj)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return field.Missing
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		return structAttribute(rv, name)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return field.Missing
		}
		v := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return field.Missing
		}
		return valueOf(v)
	}
	return field.Missing
}

func structAttribute(rv reflect.Value, name string) field.Value {
	t := rv.Type()
	fallback := -1
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag := strings.Split(sf.Tag.Get("json"), ",")[0]
		if tag == "-" {
			continue
		}
		if tag == name {
			return valueOf(rv.Field(i))
		}
		if tag == "" && fallback < 0 && strings.EqualFold(sf.Name, name) {
			fallback = i
		}
	}
	if fallback >= 0 {
		return valueOf(rv.Field(fallback))
	}
	return field.Missing
}

func valueOf(v reflect.Value) field.Value {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		if v.IsNil() {
			return field.Null()
		}
	}
	if v.Kind() == reflect.Pointer {
		return field.Of(v.Elem().Interface())
	}
	return field.Of(v.Interface())
}

func asSlice(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if _, ok := AsMapping(v); ok {
		return nil, false
	}
	return field.AsSlice(v)
}

func typeName(v any) string { return field.TypeName(v) }
