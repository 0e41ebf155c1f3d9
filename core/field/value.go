package field

// Value is a tri-state input or output slot: absent, explicitly null, or
// present with a value. The zero Value is Missing.
type Value struct {
	state state
	v     any
}

type state uint8

const (
	stateMissing state = iota
	stateNull
	statePresent
)

// Missing is the absent value.
var Missing = Value{}

// Null returns the explicit null value.
func Null() Value { return Value{state: stateNull} }

// Of wraps v. A nil v yields Null.
func Of(v any) Value {
	if v == nil {
		return Null()
	}
	return Value{state: statePresent, v: v}
}

// IsMissing reports whether the value is absent.
func (v Value) IsMissing() bool { return v.state == stateMissing }

// IsNull reports whether the value is an explicit null.
func (v Value) IsNull() bool { return v.state == stateNull }

// IsPresent reports whether the value carries data.
func (v Value) IsPresent() bool { return v.state == statePresent }

// Get returns the wrapped value; nil for Missing and Null.
func (v Value) Get() any { return v.v }

// String implements fmt.Stringer for debugging.
func (v Value) String() string {
	switch v.state {
	case stateMissing:
		return "<missing>"
	case stateNull:
		return "<null>"
	}
	return "<present>"
}
