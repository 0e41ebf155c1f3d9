package field

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the layout used by Date.
const DateLayout = "2006-01-02"

// DateTime parses timestamps with Layout (RFC 3339 by default, which also
// accepts fractional seconds) and dumps them in the same layout.
type DateTime struct {
	Base
	Layout string
}

func (f *DateTime) layout() string {
	if f.Layout == "" {
		return time.RFC3339
	}
	return f.Layout
}

func (f *DateTime) defaultMessages() map[string]string {
	return map[string]string{
		"invalid": "Not a valid datetime.",
		"format":  "Datetime has wrong format. Use {format}.",
	}
}

// Deserialize implements Field.
func (f *DateTime) Deserialize(raw any) (any, error) {
	return parseTime(f, f.layout(), raw)
}

// Serialize implements Field.
func (f *DateTime) Serialize(v any) (any, error) {
	return formatTime(f.layout(), v)
}

// Date parses calendar dates (2006-01-02).
type Date struct {
	Base
}

func (f *Date) defaultMessages() map[string]string {
	return map[string]string{
		"invalid": "Not a valid date.",
		"format":  "Date has wrong format. Use {format}.",
	}
}

// Deserialize implements Field.
func (f *Date) Deserialize(raw any) (any, error) {
	return parseTime(f, DateLayout, raw)
}

// Serialize implements Field.
func (f *Date) Serialize(v any) (any, error) {
	return formatTime(DateLayout, v)
}

func parseTime(self Field, layout string, raw any) (any, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		t, err := time.Parse(layout, s)
		if err != nil {
			return nil, Fail(self, "format", map[string]any{"format": layout})
		}
		return t, nil
	}
	return nil, Fail(self, "invalid", nil)
}

func formatTime(layout string, v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return t.Format(layout), nil
	case *time.Time:
		if t == nil {
			return nil, nil
		}
		return t.Format(layout), nil
	case string:
		parsed, err := time.Parse(layout, t)
		if err != nil {
			return nil, fmt.Errorf("serialize time: %w", err)
		}
		return parsed.Format(layout), nil
	}
	return nil, fmt.Errorf("serialize time: unsupported type %T", v)
}
