package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/artpar/actionkit/core/field"
	"github.com/artpar/actionkit/core/validation"
)

// Record is the plain-data form of one object.
type Record = map[string]any

// Entry binds a field to its name inside a schema.
type Entry struct {
	Name  string
	Field field.Field
}

// F is shorthand for Entry{Name: name, Field: f}.
func F(name string, f field.Field) Entry {
	return Entry{Name: name, Field: f}
}

// RecordValidator checks a loaded record as a whole. Returning a
// *validation.Error with Fields attributes the failure to those fields;
// anything else is reported under validation.SchemaKey.
type RecordValidator func(rec Record, raw any) error

// UnknownPolicy decides what Load does with input keys no field claims.
type UnknownPolicy int

const (
	// ExcludeUnknown silently drops unknown keys.
	ExcludeUnknown UnknownPolicy = iota
	// RaiseUnknown reports unknown keys as errors.
	RaiseUnknown
)

// Definition declares a schema.
type Definition struct {
	Name   string
	Fields []Entry

	// Only restricts loading and dumping to the named fields.
	Only []string
	// Partial skips the required check on load.
	Partial bool
	Unknown UnknownPolicy

	Validators []RecordValidator
	// ValidateOnFieldErrors runs record validators even when field-level
	// loading already failed. Validators then see a partial record.
	ValidateOnFieldErrors bool

	PostLoad     func(rec Record, raw any) (any, error)
	PostDump     func(out Record, obj any) (any, error)
	PostLoadMany func(items []any, raw any) (any, error)
	PostDumpMany func(items []any, objs any) (any, error)
}

type binding struct {
	name    string
	loadKey string
	dumpKey string
	field   field.Field
}

// Schema is an immutable, ordered set of named fields.
type Schema struct {
	def     *Definition
	index   map[string]int
	only    map[string]bool
	partial bool

	loadFields []binding
	dumpFields []binding
}

// Define validates a definition and builds the schema.
func Define(def Definition) (*Schema, error) {
	if len(def.Fields) == 0 {
		return nil, fmt.Errorf("schema %q: no fields declared", def.Name)
	}
	s := &Schema{
		def:     &def,
		index:   make(map[string]int, len(def.Fields)),
		partial: def.Partial,
	}
	for i, e := range def.Fields {
		if e.Name == "" || e.Field == nil {
			return nil, fmt.Errorf("schema %q: entry %d needs a name and a field", def.Name, i)
		}
		if _, dup := s.index[e.Name]; dup {
			return nil, fmt.Errorf("schema %q: duplicate field %q", def.Name, e.Name)
		}
		s.index[e.Name] = i
	}
	if def.Only != nil {
		only, err := s.onlySet(def.Only)
		if err != nil {
			return nil, err
		}
		s.only = only
	}
	s.Refresh()
	return s, nil
}

// MustDefine is Define for package-level declarations; it panics on error.
func MustDefine(def Definition) *Schema {
	s, err := Define(def)
	if err != nil {
		panic(err)
	}
	return s
}

// Refresh recomputes the load and dump field lists from the declared fields
// and the current only set. Define and WithOnly call it.
func (s *Schema) Refresh() {
	s.loadFields = s.loadFields[:0:0]
	s.dumpFields = s.dumpFields[:0:0]
	for _, e := range s.def.Fields {
		if s.only != nil && !s.only[e.Name] {
			continue
		}
		opts := e.Field.Options()
		b := binding{
			name:    e.Name,
			loadKey: firstNonEmpty(opts.LoadFrom, e.Name),
			dumpKey: firstNonEmpty(opts.DumpTo, e.Name),
			field:   e.Field,
		}
		_, computed := e.Field.(field.ObjectSerializer)
		if !opts.DumpOnly && !computed {
			s.loadFields = append(s.loadFields, b)
		}
		if !opts.LoadOnly {
			s.dumpFields = append(s.dumpFields, b)
		}
	}
}

// WithOnly returns a shallow clone restricted to names. Fields are shared
// with s; s itself is left untouched.
func (s *Schema) WithOnly(names ...string) (*Schema, error) {
	only, err := s.onlySet(names)
	if err != nil {
		return nil, err
	}
	clone := *s
	clone.only = only
	clone.Refresh()
	return &clone, nil
}

// WithPartial returns a shallow clone with the partial flag set.
func (s *Schema) WithPartial(partial bool) *Schema {
	clone := *s
	clone.partial = partial
	return &clone
}

// ErrUnknownField is returned when only names a field the schema lacks.
var ErrUnknownField = errors.New("unknown field")

func (s *Schema) onlySet(names []string) (map[string]bool, error) {
	set := make(map[string]bool, len(names))
	var unknown []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := s.index[n]; !ok {
			unknown = append(unknown, n)
			continue
		}
		set[n] = true
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("schema %q: %w: %s", s.def.Name, ErrUnknownField, strings.Join(unknown, ", "))
	}
	return set, nil
}

// Name returns the schema name.
func (s *Schema) Name() string { return s.def.Name }

// Fields returns the declared entries in order.
func (s *Schema) Fields() []Entry {
	out := make([]Entry, len(s.def.Fields))
	copy(out, s.def.Fields)
	return out
}

// Only returns the active subset, or nil when unrestricted.
func (s *Schema) Only() []string {
	if s.only == nil {
		return nil
	}
	out := make([]string, 0, len(s.only))
	for _, e := range s.def.Fields {
		if s.only[e.Name] {
			out = append(out, e.Name)
		}
	}
	return out
}

// LoadFields returns the names of the fields Load reads, in order.
func (s *Schema) LoadFields() []string { return names(s.loadFields) }

// DumpFields returns the names of the fields Dump writes, in order.
func (s *Schema) DumpFields() []string { return names(s.dumpFields) }

// IsPartial reports whether the required check is skipped.
func (s *Schema) IsPartial() bool { return s.partial }

func names(bs []binding) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.name
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// CallOption adjusts a single Load or Dump call.
type CallOption func(*callOptions)

type callOptions struct {
	only    map[string]bool
	partial *bool
}

// Only restricts one call to the named fields. Names the schema does not
// declare are ignored.
func Only(names ...string) CallOption {
	return func(o *callOptions) {
		o.only = make(map[string]bool, len(names))
		for _, n := range names {
			o.only[n] = true
		}
	}
}

// Partial skips the required check for one call.
func Partial() CallOption {
	return func(o *callOptions) {
		p := true
		o.partial = &p
	}
}

func (s *Schema) resolve(opts []CallOption) (callOptions, bool) {
	var o callOptions
	for _, fn := range opts {
		fn(&o)
	}
	partial := s.partial
	if o.partial != nil {
		partial = *o.partial
	}
	return o, partial
}

func (o callOptions) skip(b binding) bool {
	return o.only != nil && !o.only[b.name]
}

// Load validates and converts one mapping. All field failures are reported
// together. The result is the record, or whatever PostLoad returns.
func (s *Schema) Load(data any, opts ...CallOption) (any, error) {
	rec, err := s.LoadRecord(data, opts...)
	if err != nil {
		return nil, err
	}
	if s.def.PostLoad != nil {
		return s.def.PostLoad(rec, data)
	}
	return rec, nil
}

// LoadRecord is Load without the PostLoad hook.
func (s *Schema) LoadRecord(data any, opts ...CallOption) (Record, error) {
	o, partial := s.resolve(opts)

	m, ok := AsMapping(data)
	if !ok {
		return nil, validation.ForField(validation.SchemaKey, validation.Newf("invalid",
			"Invalid input type. Expected a mapping but got \"{type}\".",
			map[string]any{"type": typeName(data)}))
	}

	rec := make(Record, len(s.loadFields))
	agg := &validation.Error{}
	for _, b := range s.loadFields {
		if o.skip(b) {
			continue
		}
		raw := lookup(m, b)
		if raw.IsMissing() && partial {
			continue
		}
		v, err := field.Load(b.field, raw)
		if err != nil {
			agg.AddField(b.loadKey, asValidationError(err))
			continue
		}
		if !v.IsMissing() {
			rec[b.name] = v.Get()
		}
	}

	if s.def.Unknown == RaiseUnknown {
		known := make(map[string]bool, len(s.loadFields))
		for _, b := range s.loadFields {
			known[b.loadKey] = true
		}
		for _, k := range m.Keys() {
			if !known[k] {
				agg.AddField(k, validation.New("unknown", "Unknown field."))
			}
		}
	}

	if agg.Empty() || s.def.ValidateOnFieldErrors {
		for _, v := range s.def.Validators {
			mergeRecordError(agg, v(rec, data))
		}
	}

	if !agg.Empty() {
		return nil, agg
	}
	return rec, nil
}

// LoadMany loads every element of a list and then runs PostLoadMany once
// over the results. Element failures are keyed by index.
func (s *Schema) LoadMany(data any, opts ...CallOption) (any, error) {
	items, ok := asSlice(data)
	if !ok {
		return nil, validation.ForField(validation.SchemaKey, validation.Newf("invalid",
			"Invalid input type. Expected a list but got \"{type}\".",
			map[string]any{"type": typeName(data)}))
	}
	out := make([]any, 0, len(items))
	agg := &validation.Error{}
	for i, item := range items {
		v, err := s.Load(item, opts...)
		if err != nil {
			verr, ok := validation.As(err)
			if !ok {
				return nil, err
			}
			agg.AddIndex(i, verr)
			continue
		}
		out = append(out, v)
	}
	if !agg.Empty() {
		return nil, agg
	}
	if s.def.PostLoadMany != nil {
		return s.def.PostLoadMany(out, data)
	}
	return out, nil
}

// Dump renders one object. Attributes absent from obj fall back to the
// field default and are omitted without one.
func (s *Schema) Dump(obj any, opts ...CallOption) (any, error) {
	rec, err := s.DumpRecord(obj, opts...)
	if err != nil {
		return nil, err
	}
	if s.def.PostDump != nil {
		return s.def.PostDump(rec, obj)
	}
	return rec, nil
}

// DumpRecord is Dump without the PostDump hook.
func (s *Schema) DumpRecord(obj any, opts ...CallOption) (Record, error) {
	o, _ := s.resolve(opts)
	out := make(Record, len(s.dumpFields))
	for _, b := range s.dumpFields {
		if o.skip(b) {
			continue
		}
		if computed, ok := b.field.(field.ObjectSerializer); ok {
			v, err := computed.SerializeObject(obj)
			if err != nil {
				return nil, fmt.Errorf("schema %q: dump %q: %w", s.def.Name, b.name, err)
			}
			out[b.dumpKey] = v
			continue
		}
		v, err := field.Dump(b.field, GetAttribute(obj, b.name))
		if err != nil {
			return nil, fmt.Errorf("schema %q: dump %q: %w", s.def.Name, b.name, err)
		}
		if !v.IsMissing() {
			out[b.dumpKey] = v.Get()
		}
	}
	return out, nil
}

// DumpMany renders every element of a slice and then runs PostDumpMany once
// over the results.
func (s *Schema) DumpMany(objs any, opts ...CallOption) (any, error) {
	items, ok := asSlice(objs)
	if !ok {
		return nil, fmt.Errorf("schema %q: dump many: expected a slice, got %s", s.def.Name, typeName(objs))
	}
	out := make([]any, len(items))
	for i, item := range items {
		v, err := s.Dump(item, opts...)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out[i] = v
	}
	if s.def.PostDumpMany != nil {
		return s.def.PostDumpMany(out, objs)
	}
	return out, nil
}

func mergeRecordError(agg *validation.Error, err error) {
	if err == nil {
		return
	}
	verr, ok := validation.As(err)
	if !ok {
		agg.AddField(validation.SchemaKey, validation.New("invalid", err.Error()))
		return
	}
	for k, v := range verr.Fields {
		agg.AddField(k, v)
	}
	if len(verr.Messages) > 0 {
		agg.AddField(validation.SchemaKey, &validation.Error{Messages: verr.Messages})
	}
}

func asValidationError(err error) *validation.Error {
	if verr, ok := validation.As(err); ok {
		return verr
	}
	return validation.New("invalid", err.Error())
}
