package schema

import "github.com/artpar/actionkit/core/field"

// Nested embeds another schema as a single field. With Many set it loads
// and dumps a list of records.
type Nested struct {
	field.Base
	Schema *Schema
	Many   bool
}

// Deserialize implements field.Field. Inner failures keep their structure,
// so errors surface as "address.city" or "items.2.sku".
func (f *Nested) Deserialize(raw any) (any, error) {
	if f.Many {
		return f.Schema.LoadMany(raw)
	}
	return f.Schema.Load(raw)
}

// Serialize implements field.Field.
func (f *Nested) Serialize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if f.Many {
		return f.Schema.DumpMany(v)
	}
	return f.Schema.Dump(v)
}
