// Package schema converts whole records between wire form and memory.
//
// A Schema is an ordered list of named fields declared once at startup:
//
//	var userSchema = schema.MustDefine(schema.Definition{
//		Name: "user",
//		Fields: []schema.Entry{
//			schema.F("id", &field.Integer{Base: field.Base{DumpOnly: true}}),
//			schema.F("email", &field.Email{String: field.String{Base: field.Base{Required: true}}}),
//			schema.F("first_name", &field.String{}),
//			schema.F("last_name", &field.String{}),
//		},
//	})
//
// Load validates and converts a mapping (JSON object, form values, plain
// maps), reporting every failing field in a single *validation.Error. Dump
// reads attributes from maps, Getter implementations or structs and renders
// them with each field's serializer.
//
// Schemas and their fields are shared by all requests and are never mutated
// after Define. Narrowing the field set for one response goes through
// WithOnly, which returns a shallow clone, or through the per-call Only
// option.
package schema
