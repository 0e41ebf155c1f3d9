package apierr

import (
	"github.com/artpar/actionkit/core/validation"
)

// Item is one entry of the errors list.
type Item struct {
	Message string
	Field   string
	Code    string
	Extra   map[string]any
}

// Map renders the entry. Extra keys never override message, field or code.
func (i Item) Map() map[string]any {
	m := make(map[string]any, 3+len(i.Extra))
	for k, v := range i.Extra {
		m[k] = v
	}
	m["message"] = i.Message
	if i.Field != "" {
		m["field"] = i.Field
	} else {
		delete(m, "field")
	}
	if i.Code != "" {
		m["code"] = i.Code
	} else {
		delete(m, "code")
	}
	return m
}

// Envelope builds the response body {"errors": [...]}. It is a plain map
// so every renderer can emit it.
func Envelope(items ...Item) map[string]any {
	list := make([]any, len(items))
	for i, item := range items {
		list[i] = item.Map()
	}
	return map[string]any{"errors": list}
}

// ValidationItems flattens a validation error into one entry per message.
// Messages raised by the record as a whole have no field.
func ValidationItems(verr *validation.Error) []Item {
	flat := verr.Flatten()
	items := make([]Item, len(flat))
	for i, fm := range flat {
		items[i] = Item{
			Message: fm.Message.Text,
			Field:   fm.Field,
			Code:    fm.Message.Code,
			Extra:   fm.Message.Extra,
		}
	}
	return items
}
