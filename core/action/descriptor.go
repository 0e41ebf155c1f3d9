package action

import (
	"fmt"

	"github.com/artpar/actionkit/core/formatter"
	"github.com/artpar/actionkit/core/schema"
)

// Handler is the function an action runs. The returned value is the
// result to materialize: nil for 204, a Response for a custom status, Raw
// or an http.Handler to bypass rendering, anything else to be dumped by
// the route schema and rendered.
type Handler func(ctx *Context) (any, error)

// Route describes one action.
type Route struct {
	// Name identifies the route in logs and metrics.
	Name string
	// View groups routes that share view-level filters.
	View    string
	Method  string
	Pattern string
	Handler Handler

	// Schema dumps successful results. Without one results are rendered
	// as they are.
	Schema *schema.Schema

	// Parsers and Renderers override the executor settings for this route.
	Parsers   []formatter.Parser
	Renderers []formatter.Renderer
}

// Descriptor is the immutable, resolved form of a Route, built once at
// registration and shared by every request.
type Descriptor struct {
	route   Route
	filters Worklists
}

// NewDescriptor resolves the filter scopes for route. Scopes go from least
// to most specific: global, view, action.
func NewDescriptor(route Route, scopes ...[]Filter) (*Descriptor, error) {
	if route.Handler == nil {
		return nil, fmt.Errorf("route %q: handler is required", route.Name)
	}
	if route.Name == "" {
		route.Name = route.Method + " " + route.Pattern
	}
	w, err := MergeFilters(scopes...)
	if err != nil {
		return nil, fmt.Errorf("route %q: %w", route.Name, err)
	}
	route.Parsers = append([]formatter.Parser(nil), route.Parsers...)
	route.Renderers = append([]formatter.Renderer(nil), route.Renderers...)
	return &Descriptor{route: route, filters: w}, nil
}

// Name returns the route name.
func (d *Descriptor) Name() string { return d.route.Name }

// View returns the owning view name.
func (d *Descriptor) View() string { return d.route.View }

// Method returns the HTTP method.
func (d *Descriptor) Method() string { return d.route.Method }

// Pattern returns the URL pattern.
func (d *Descriptor) Pattern() string { return d.route.Pattern }

// Schema returns the response schema, or nil.
func (d *Descriptor) Schema() *schema.Schema { return d.route.Schema }

// Filters returns the worklist of a category. Callers must not modify it.
func (d *Descriptor) Filters(c Category) []Filter { return d.filters[c] }

// Worklists returns all resolved filters.
func (d *Descriptor) Worklists() Worklists { return d.filters }
