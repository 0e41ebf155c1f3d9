// Package validation provides the validation error model and the stateless
// validators attached to fields.
//
// An Error is either a leaf (one or more messages about a single value) or a
// container (errors keyed by field name or list index), or both. Containers
// are built bottom-up: a list field keys element errors by index, a schema
// keys field errors by name, and a nested schema simply nests the result.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// SchemaKey is the synthetic key under which errors that do not belong to a
// single field are stored.
const SchemaKey = "_schema"

// Message is a single validation message.
type Message struct {
	Text  string
	Code  string
	Extra map[string]any
}

// Error is an aggregated validation failure.
type Error struct {
	Messages []Message
	Fields   map[string]*Error
}

// New creates a leaf error with one message.
func New(code, text string) *Error {
	return &Error{Messages: []Message{{Text: text, Code: code}}}
}

// Newf creates a leaf error whose text is rendered from a template with
// {name} placeholders.
func Newf(code, template string, params map[string]any) *Error {
	return New(code, Format(template, params))
}

// ForField wraps err so it is reported under the given field name.
func ForField(name string, err *Error) *Error {
	e := &Error{}
	e.AddField(name, err)
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	flat := e.Flatten()
	parts := make([]string, 0, len(flat))
	for _, f := range flat {
		if f.Field == "" {
			parts = append(parts, f.Message.Text)
			continue
		}
		parts = append(parts, f.Field+": "+f.Message.Text)
	}
	return strings.Join(parts, "; ")
}

// Empty reports whether the error carries nothing.
func (e *Error) Empty() bool {
	return e == nil || (len(e.Messages) == 0 && len(e.Fields) == 0)
}

// Append adds messages to the leaf part of e.
func (e *Error) Append(msgs ...Message) {
	e.Messages = append(e.Messages, msgs...)
}

// AddField merges err under the given key.
func (e *Error) AddField(name string, err *Error) {
	if err.Empty() {
		return
	}
	if e.Fields == nil {
		e.Fields = make(map[string]*Error)
	}
	if existing, ok := e.Fields[name]; ok {
		existing.Merge(err)
		return
	}
	e.Fields[name] = err
}

// AddIndex merges err under a list index.
func (e *Error) AddIndex(i int, err *Error) {
	e.AddField(strconv.Itoa(i), err)
}

// Merge folds other into e: messages append, field errors merge by key.
func (e *Error) Merge(other *Error) {
	if other.Empty() {
		return
	}
	e.Messages = append(e.Messages, other.Messages...)
	for k, v := range other.Fields {
		e.AddField(k, v)
	}
}

// Field returns the error stored under name, if any.
func (e *Error) Field(name string) *Error {
	if e == nil || e.Fields == nil {
		return nil
	}
	return e.Fields[name]
}

// Codes returns the codes of the leaf messages.
func (e *Error) Codes() []string {
	if e == nil {
		return nil
	}
	codes := make([]string, 0, len(e.Messages))
	for _, m := range e.Messages {
		codes = append(codes, m.Code)
	}
	return codes
}

// HasCode reports whether a leaf message carries code.
func (e *Error) HasCode(code string) bool {
	for _, c := range e.Codes() {
		if c == code {
			return true
		}
	}
	return false
}

// FieldMessage is one entry of a flattened error.
type FieldMessage struct {
	// Field is the dotted path to the offending value, empty for
	// schema-level messages.
	Field   string
	Message Message
}

// Flatten returns every message with its dotted field path. Keys are
// visited in sorted order so the output is deterministic.
func (e *Error) Flatten() []FieldMessage {
	var out []FieldMessage
	e.flatten("", &out)
	return out
}

func (e *Error) flatten(prefix string, out *[]FieldMessage) {
	if e == nil {
		return
	}
	for _, m := range e.Messages {
		*out = append(*out, FieldMessage{Field: prefix, Message: m})
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return lessKey(keys[i], keys[j]) })
	for _, k := range keys {
		path := k
		switch {
		case k == SchemaKey:
			path = prefix
		case prefix != "":
			path = prefix + "." + k
		}
		e.Fields[k].flatten(path, out)
	}
}

// lessKey orders numeric keys numerically and everything else lexically.
func lessKey(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}

// Normalized renders the error as plain data: a leaf becomes a list of
// message strings, a container a map keyed by field name.
func (e *Error) Normalized() any {
	if e == nil {
		return nil
	}
	texts := make([]string, 0, len(e.Messages))
	for _, m := range e.Messages {
		texts = append(texts, m.Text)
	}
	if len(e.Fields) == 0 {
		return texts
	}
	out := make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		out[k] = v.Normalized()
	}
	if len(texts) > 0 {
		out[SchemaKey] = texts
	}
	return out
}

// MarshalJSON encodes the normalized form.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Normalized())
}

// As extracts a *Error from err.
func As(err error) (*Error, bool) {
	var verr *Error
	if errors.As(err, &verr) && verr != nil {
		return verr, true
	}
	return nil, false
}

// Format renders a message template, replacing {name} with params[name].
// Unknown placeholders are left untouched.
func Format(template string, params map[string]any) string {
	if len(params) == 0 || !strings.Contains(template, "{") {
		return template
	}
	pairs := make([]string, 0, len(params)*2)
	for k, v := range params {
		pairs = append(pairs, "{"+k+"}", fmt.Sprint(v))
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
