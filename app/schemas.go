package app

import (
	"unicode/utf8"

	"github.com/artpar/actionkit/core/field"
	"github.com/artpar/actionkit/core/schema"
	"github.com/artpar/actionkit/core/validation"
	"github.com/artpar/actionkit/domain/note"
)

const (
	maxTitleLength = 200
	maxBodyLength  = 10000
	maxTags        = 10
	excerptLength  = 80
)

// NoteSchema loads note input and dumps stored notes.
var NoteSchema = schema.MustDefine(schema.Definition{
	Name:    "note",
	Unknown: schema.RaiseUnknown,
	Fields: []schema.Entry{
		schema.F("id", &field.UUID{Base: field.Base{DumpOnly: true}}),
		schema.F("owner", &field.String{Base: field.Base{DumpOnly: true}}),
		schema.F("title", &field.String{Base: field.Base{Required: true}, MaxLength: maxTitleLength}),
		schema.F("body", &field.String{
			Base:           field.Base{Default: ""},
			AllowBlank:     true,
			KeepWhitespace: true,
			MaxLength:      maxBodyLength,
		}),
		schema.F("excerpt", &field.Function{Compute: excerpt}),
		schema.F("tags", &field.List{
			Base: field.Base{
				Default:    func() any { return []any{} },
				Validators: []validation.Validator{validation.Length{Max: maxTags}},
			},
			Child: &field.String{
				Base: field.Base{Validators: []validation.Validator{validation.Regexp{
					Pattern: tagPattern.Pattern,
					Message: "Tags may only contain letters, digits, '-' and '_'.",
				}}},
				MaxLength: 32,
			},
		}),
		schema.F("pinned", &field.Boolean{Base: field.Base{Default: false}}),
		schema.F("version", &field.Integer{Base: field.Base{DumpOnly: true}}),
		schema.F("created_at", &field.DateTime{Base: field.Base{DumpOnly: true}}),
		schema.F("updated_at", &field.DateTime{Base: field.Base{DumpOnly: true}}),
	},
})

var tagPattern = validation.MustRegexp(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

func excerpt(obj any) (any, error) {
	n, ok := obj.(note.Note)
	if !ok {
		return nil, nil
	}
	if utf8.RuneCountInString(n.Body) <= excerptLength {
		return n.Body, nil
	}
	return string([]rune(n.Body)[:excerptLength]) + "…", nil
}

// ListQuery loads the query string of the list endpoint.
var ListQuery = schema.MustDefine(schema.Definition{
	Name: "note_query",
	Fields: []schema.Entry{
		schema.F("tag", &field.String{}),
		schema.F("pinned", &field.Boolean{}),
		schema.F("owner", &field.String{}),
		schema.F("limit", &field.Integer{
			Base:     field.Base{Default: int64(20)},
			MinValue: field.Int64(1),
			MaxValue: field.Int64(100),
		}),
		schema.F("offset", &field.Integer{Base: field.Base{Default: int64(0)}, MinValue: field.Int64(0)}),
	},
})

// TokenSchema dumps issued tokens.
var TokenSchema = schema.MustDefine(schema.Definition{
	Name: "token",
	Fields: []schema.Entry{
		schema.F("token", &field.String{}),
		schema.F("token_type", &field.Constant{Base: field.Base{Default: "Bearer"}, Value: "Bearer"}),
		schema.F("expires_at", &field.DateTime{}),
	},
})

// PrincipalSchema dumps the authenticated caller.
var PrincipalSchema = schema.MustDefine(schema.Definition{
	Name: "principal",
	Fields: []schema.Entry{
		schema.F("id", &field.String{}),
		schema.F("name", &field.String{}),
		schema.F("roles", &field.List{Base: field.Base{Default: func() any { return []any{} }}, Child: &field.String{}}),
		schema.F("backend", &field.String{}),
	},
})
