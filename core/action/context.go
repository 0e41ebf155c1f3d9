package action

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/artpar/actionkit/core/field"
	"github.com/artpar/actionkit/core/formatter"
	"github.com/artpar/actionkit/core/negotiation"
	"github.com/artpar/actionkit/core/schema"
	"github.com/artpar/actionkit/pkg/apierr"
	"github.com/rs/zerolog"
)

// MaxBodyBytes bounds request bodies read by Context.Data.
const MaxBodyBytes = 10 << 20

// Principal is the authenticated caller.
type Principal struct {
	ID     string
	Name   string
	Roles  []string
	Claims map[string]any
	// Backend names the authentication filter that produced it.
	Backend string
}

// HasRole reports whether the principal carries role.
func (p *Principal) HasRole(role string) bool {
	return p != nil && slices.Contains(p.Roles, role)
}

// Context is the per-request state of one action. It is never shared
// between requests.
type Context struct {
	Request    *http.Request
	Descriptor *Descriptor
	Logger     zerolog.Logger
	Debug      bool

	// Copies of the configured formatters; filters may replace them for
	// this request only.
	Parsers    []formatter.Parser
	Renderers  []formatter.Renderer
	Negotiator negotiation.Negotiator

	// Principal is set by authentication filters.
	Principal *Principal
	// Credentials holds whatever proved the identity (token, key).
	Credentials any

	// Params are the route parameters.
	Params map[string]string
	// Values is scratch space shared by filters and the handler.
	Values map[string]any

	// Status and Header are applied to the response. A zero Status means
	// 200, or 204 for an empty result.
	Status int
	Header http.Header

	result  field.Value
	err     error
	handled bool

	query   url.Values
	parsed  bool
	data    any
	dataErr error
}

// SetResult stores the action result. Setting it from a before hook
// short-circuits the pipeline.
func (c *Context) SetResult(v any) { c.result = field.Of(v) }

// Result returns the result and whether one was set.
func (c *Context) Result() (any, bool) {
	return c.result.Get(), !c.result.IsMissing()
}

// HasResult reports whether a result was set, nil included.
func (c *Context) HasResult() bool { return !c.result.IsMissing() }

// Err returns the error being unwound, if any.
func (c *Context) Err() error { return c.err }

// Handled reports whether an exception filter accepted the error.
func (c *Context) Handled() bool { return c.handled }

// IsAuthenticated reports whether a principal is set.
func (c *Context) IsAuthenticated() bool { return c.Principal != nil }

// Param returns a route parameter.
func (c *Context) Param(name string) string { return c.Params[name] }

// Query returns the parsed query string.
func (c *Context) Query() url.Values {
	if c.query == nil {
		c.query = c.Request.URL.Query()
	}
	return c.query
}

// Fields returns the names requested with ?fields=a,b, or nil.
func (c *Context) Fields() []string {
	raw, ok := c.Query()["fields"]
	if !ok {
		return nil
	}
	var out []string
	for _, v := range raw {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}

// Data parses the request body once with the parser matching its
// Content-Type. An empty body yields nil.
func (c *Context) Data() (any, error) {
	if c.parsed {
		return c.data, c.dataErr
	}
	c.parsed = true
	c.data, c.dataErr = c.parseBody()
	return c.data, c.dataErr
}

func (c *Context) parseBody() (any, error) {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, apierr.New(http.StatusBadRequest, "parse_error", "Could not read request body.").Cause(err).Build()
	}
	if len(body) > MaxBodyBytes {
		return nil, apierr.New(http.StatusRequestEntityTooLarge, "too_large", "Request body too large.").Build()
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	p, mt, err := c.Negotiator.SelectParser(c.Request.Header.Get("Content-Type"), c.Parsers)
	if err != nil {
		return nil, err
	}
	return p.Parse(bytes.NewReader(body), mt.Params)
}

// Load parses the body and loads it through s.
func (c *Context) Load(s *schema.Schema, opts ...schema.CallOption) (any, error) {
	data, err := c.Data()
	if err != nil {
		return nil, err
	}
	return s.Load(data, opts...)
}

// LoadQuery loads the query string through s.
func (c *Context) LoadQuery(s *schema.Schema, opts ...schema.CallOption) (any, error) {
	return s.Load(c.Query(), opts...)
}
