package field

import (
	"encoding/json"
	"fmt"
	"strings"
)

var (
	truthy = map[string]bool{"t": true, "true": true, "y": true, "yes": true, "on": true, "1": true}
	falsy  = map[string]bool{"f": true, "false": true, "n": true, "no": true, "off": true, "0": true}
)

// Boolean accepts Go bools, 0/1 and the usual textual spellings
// (true/false, yes/no, on/off, t/f, y/n), case-insensitively.
type Boolean struct {
	Base
}

func (f *Boolean) defaultMessages() map[string]string {
	return map[string]string{"invalid": "Must be a valid boolean."}
}

// Deserialize implements Field.
func (f *Boolean) Deserialize(raw any) (any, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		if truthy[s] {
			return true, nil
		}
		if falsy[s] {
			return false, nil
		}
	case json.Number:
		return f.Deserialize(string(v))
	case int, int64, float64:
		switch fmt.Sprint(v) {
		case "1":
			return true, nil
		case "0":
			return false, nil
		}
	}
	return nil, Fail(f, "invalid", nil)
}

// Serialize implements Field.
func (f *Boolean) Serialize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := f.Deserialize(v)
	if err != nil {
		return nil, fmt.Errorf("serialize boolean: unsupported value %v", v)
	}
	return b, nil
}
