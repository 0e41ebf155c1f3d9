// Package negotiation picks the parser for a request body and the renderer
// for a response from the Content-Type and Accept headers.
package negotiation

import (
	"mime"
	"sort"
	"strconv"
	"strings"

	"github.com/artpar/actionkit/core/formatter"
	"github.com/artpar/actionkit/pkg/apierr"
)

// MediaType is a parsed media range.
type MediaType struct {
	Type    string
	Subtype string
	Params  map[string]string
	Q       float64
}

// ParseMediaType parses one media range. A lone "*" is read as "*/*".
func ParseMediaType(s string) (MediaType, error) {
	s = strings.TrimSpace(s)
	if s == "*" {
		s = "*/*"
	}
	full, params, err := mime.ParseMediaType(s)
	if err != nil {
		return MediaType{}, err
	}
	main, sub, ok := strings.Cut(full, "/")
	if !ok {
		return MediaType{}, mime.ErrInvalidMediaParameter
	}
	mt := MediaType{Type: main, Subtype: sub, Params: params, Q: 1}
	if q, ok := params["q"]; ok {
		f, err := strconv.ParseFloat(q, 64)
		if err != nil || f < 0 || f > 1 {
			f = 0
		}
		mt.Q = f
		delete(params, "q")
	}
	return mt, nil
}

// String renders the media type with its parameters, q excluded.
func (m MediaType) String() string {
	return mime.FormatMediaType(m.Type+"/"+m.Subtype, m.Params)
}

// Match reports whether m and other overlap, honouring "*" on either side.
// Parameters are ignored.
func (m MediaType) Match(other MediaType) bool {
	if m.Type != "*" && other.Type != "*" && m.Type != other.Type {
		return false
	}
	return m.Subtype == "*" || other.Subtype == "*" || m.Subtype == other.Subtype
}

// ParseAccept returns the acceptable media ranges in client order, stably
// sorted by descending q. Entries with q=0 and malformed entries are
// dropped. An empty header accepts anything.
func ParseAccept(header string) []MediaType {
	if strings.TrimSpace(header) == "" {
		return []MediaType{{Type: "*", Subtype: "*", Q: 1}}
	}
	var out []MediaType
	for _, part := range strings.Split(header, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		mt, err := ParseMediaType(part)
		if err != nil || mt.Q <= 0 {
			continue
		}
		out = append(out, mt)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Q > out[j].Q })
	return out
}

// Selection is a chosen renderer and the media type to answer with. The
// media type carries the parameters of the matching Accept entry.
type Selection struct {
	Renderer  formatter.Renderer
	MediaType MediaType
}

// ContentType returns the value for the Content-Type header.
func (s Selection) ContentType() string {
	return s.MediaType.String()
}

// Negotiator chooses formatters for a request.
type Negotiator interface {
	SelectParser(contentType string, parsers []formatter.Parser) (formatter.Parser, MediaType, error)
	SelectRenderer(accept string, renderers []formatter.Renderer, force bool) (Selection, error)
}

// Default implements first-match negotiation: for each client entry in
// preference order the server list is scanned in registration order and
// the first overlap wins.
type Default struct{}

// SelectParser picks the parser for a Content-Type. Unknown or malformed
// types fail with 415.
func (Default) SelectParser(contentType string, parsers []formatter.Parser) (formatter.Parser, MediaType, error) {
	mt, err := ParseMediaType(contentType)
	if err != nil {
		return nil, MediaType{}, apierr.UnsupportedMediaType(contentType)
	}
	for _, p := range parsers {
		if mt.Match(mustParse(p.MediaType())) {
			return p, mt, nil
		}
	}
	return nil, MediaType{}, apierr.UnsupportedMediaType(mt.Type + "/" + mt.Subtype)
}

// SelectRenderer picks the renderer for an Accept header. Without a match
// it fails with 406, unless force is set, in which case the first renderer
// answers with its own media type.
func (Default) SelectRenderer(accept string, renderers []formatter.Renderer, force bool) (Selection, error) {
	for _, want := range ParseAccept(accept) {
		for _, r := range renderers {
			have := mustParse(r.MediaType())
			if !want.Match(have) {
				continue
			}
			params := make(map[string]string, len(have.Params)+len(want.Params))
			for k, v := range have.Params {
				params[k] = v
			}
			for k, v := range want.Params {
				params[k] = v
			}
			have.Params = params
			return Selection{Renderer: r, MediaType: have}, nil
		}
	}
	if force && len(renderers) > 0 {
		return Selection{Renderer: renderers[0], MediaType: mustParse(renderers[0].MediaType())}, nil
	}
	return Selection{}, apierr.NotAcceptable()
}

// mustParse parses a media type declared by a formatter. Those are
// constants, so a failure is a programming error.
func mustParse(s string) MediaType {
	mt, err := ParseMediaType(s)
	if err != nil {
		panic("negotiation: invalid formatter media type " + strconv.Quote(s))
	}
	return mt
}
