// Package field provides single-value converters used by schemas.
//
// A Field turns one wire value into a typed Go value (Deserialize) and back
// (Serialize). The generic rules around it (missing, null, defaults and
// validators) live in Load and Dump so every field type behaves the same
// way at the edges.
//
// Fields are built once, usually as struct literals at startup, and shared
// by every request. They hold no binding name: the schema that contains a
// field decides what it is called.
package field

import (
	"fmt"

	"github.com/artpar/actionkit/core/validation"
)

// Field converts a single value.
type Field interface {
	// Options returns the common options. Callers must treat the result as
	// read-only.
	Options() *Base

	// Deserialize converts a present, non-null wire value. A nil result
	// means the input normalizes to null.
	Deserialize(raw any) (any, error)

	// Serialize converts an in-memory value to its wire form. nil must pass
	// through as nil.
	Serialize(v any) (any, error)
}

// Constrainer is implemented by fields with built-in constraints (bounds,
// lengths). Constraints run together with the attached validators and their
// failures are aggregated with them.
type Constrainer interface {
	Constrain(v any) error
}

// ObjectSerializer is implemented by fields whose output is computed from
// the whole source object instead of a single attribute. Such fields are
// dump-only.
type ObjectSerializer interface {
	SerializeObject(obj any) (any, error)
}

// Base holds the options common to every field.
type Base struct {
	// LoadFrom is the input key; defaults to the binding name.
	LoadFrom string
	// DumpTo is the output key; defaults to the binding name.
	DumpTo string

	Required  bool
	AllowNull bool

	// Default is used when the input (or the dumped attribute) is absent.
	// It may be a static value or a func() any producer.
	Default any

	LoadOnly bool
	DumpOnly bool

	Validators []validation.Validator

	// Messages overrides error message templates by kind.
	Messages map[string]string
}

// Options implements part of Field for embedding types.
func (b *Base) Options() *Base { return b }

// HasDefault reports whether a default is configured.
func (b *Base) HasDefault() bool { return b.Default != nil }

// DefaultValue resolves the default, calling producers.
func (b *Base) DefaultValue() any {
	switch d := b.Default.(type) {
	case func() any:
		return d()
	case nil:
		return nil
	default:
		return d
	}
}

var commonMessages = map[string]string{
	"required": "This field is required.",
	"null":     "This field may not be null.",
	"invalid":  "Invalid value.",
}

// defaulter is implemented by the field types of this package to supply
// their own message templates.
type defaulter interface {
	defaultMessages() map[string]string
}

// Message returns the template for kind. A kind without a template is a
// programming error in the field definition and panics.
func Message(f Field, kind string) string {
	if tmpl, ok := f.Options().Messages[kind]; ok {
		return tmpl
	}
	if d, ok := f.(defaulter); ok {
		if tmpl, ok := d.defaultMessages()[kind]; ok {
			return tmpl
		}
	}
	if tmpl, ok := commonMessages[kind]; ok {
		return tmpl
	}
	panic(fmt.Sprintf("field: %T has no message template for error kind %q", f, kind))
}

// Fail builds the validation error for kind, filling the template with
// params.
func Fail(f Field, kind string, params map[string]any) *validation.Error {
	e := validation.Newf(kind, Message(f, kind), params)
	if len(params) > 0 {
		e.Messages[0].Extra = params
	}
	return e
}

// Load deserializes raw with the missing/null/default rules, then runs
// built-in constraints and validators, aggregating every failure.
func Load(f Field, raw Value) (Value, error) {
	opts := f.Options()
	switch {
	case raw.IsMissing():
		if opts.HasDefault() {
			return Of(opts.DefaultValue()), nil
		}
		if opts.Required {
			return Missing, Fail(f, "required", nil)
		}
		return Missing, nil
	case raw.IsNull():
		if opts.AllowNull {
			return Null(), nil
		}
		return Missing, Fail(f, "null", nil)
	}

	v, err := f.Deserialize(raw.Get())
	if err != nil {
		return Missing, err
	}
	if v == nil {
		return Null(), nil
	}

	agg := &validation.Error{}
	if c, ok := f.(Constrainer); ok {
		mergeInto(agg, c.Constrain(v))
	}
	if verr := validation.Run(v, opts.Validators...); verr != nil {
		agg.Merge(verr)
	}
	if !agg.Empty() {
		return Missing, agg
	}
	return Of(v), nil
}

// Dump serializes v. A missing v falls back to the default (and stays
// missing without one); null dumps as nil.
func Dump(f Field, v Value) (Value, error) {
	switch {
	case v.IsMissing():
		if !f.Options().HasDefault() {
			return Missing, nil
		}
		v = Of(f.Options().DefaultValue())
		if v.IsNull() {
			return Null(), nil
		}
	case v.IsNull():
		return Null(), nil
	}
	out, err := f.Serialize(v.Get())
	if err != nil {
		return Missing, err
	}
	return Of(out), nil
}

func mergeInto(agg *validation.Error, err error) {
	if verr, ok := err.(*validation.Error); err == nil || (ok && verr == nil) {
		return
	}
	if verr, ok := validation.As(err); ok {
		agg.Merge(verr)
		return
	}
	agg.Append(validation.Message{Text: err.Error(), Code: "invalid"})
}
