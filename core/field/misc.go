package field

// Raw passes values through untouched in both directions.
type Raw struct {
	Base
}

// Deserialize implements Field.
func (f *Raw) Deserialize(raw any) (any, error) { return raw, nil }

// Serialize implements Field.
func (f *Raw) Serialize(v any) (any, error) { return v, nil }

// Constant replaces any present input with Value and always dumps Value.
// Set Default as well to fill the key when it is absent.
type Constant struct {
	Base
	Value any
}

// Deserialize implements Field.
func (f *Constant) Deserialize(any) (any, error) { return f.Value, nil }

// Serialize implements Field.
func (f *Constant) Serialize(any) (any, error) { return f.Value, nil }

// Function computes its output from the whole dumped object. It never
// takes part in loading.
type Function struct {
	Base
	Compute func(obj any) (any, error)
}

// SerializeObject implements ObjectSerializer.
func (f *Function) SerializeObject(obj any) (any, error) {
	return f.Compute(obj)
}

// Deserialize implements Field. Function fields are dump-only, so schemas
// never call it.
func (f *Function) Deserialize(raw any) (any, error) { return raw, nil }

// Serialize implements Field.
func (f *Function) Serialize(v any) (any, error) { return v, nil }
