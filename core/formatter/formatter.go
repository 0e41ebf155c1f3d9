// Package formatter provides request body parsers and response renderers.
// Each one is bound to a media type; the negotiation package chooses which
// to use for a request.
package formatter

import (
	"fmt"
	"io"
	"sync"
)

// Parser decodes a request body.
type Parser interface {
	// Name returns the registry name (e.g. "json", "form").
	Name() string

	// MediaType returns the media type handled, e.g. "application/json".
	MediaType() string

	// Parse decodes the body. params are the Content-Type parameters.
	// Malformed input must fail with an *apierr.Error of status 400.
	Parse(r io.Reader, params map[string]string) (any, error)
}

// Renderer encodes a response body.
type Renderer interface {
	Name() string
	MediaType() string

	// Render writes v. params are the media type parameters selected
	// during negotiation, such as "indent".
	Render(w io.Writer, v any, params map[string]string) error
}

// Registry holds the known parsers and renderers by name.
type Registry struct {
	mu        sync.RWMutex
	parsers   map[string]Parser
	renderers map[string]Renderer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		parsers:   make(map[string]Parser),
		renderers: make(map[string]Renderer),
	}
}

// RegisterParser adds a parser.
func (r *Registry) RegisterParser(p Parser) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.parsers[p.Name()]; exists {
		return fmt.Errorf("parser %q already registered", p.Name())
	}
	r.parsers[p.Name()] = p
	return nil
}

// RegisterRenderer adds a renderer.
func (r *Registry) RegisterRenderer(rd Renderer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.renderers[rd.Name()]; exists {
		return fmt.Errorf("renderer %q already registered", rd.Name())
	}
	r.renderers[rd.Name()] = rd
	return nil
}

// Parsers resolves names to parsers, keeping the given order. The order is
// the server preference used during negotiation.
func (r *Registry) Parsers(names ...string) ([]Parser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Parser, 0, len(names))
	for _, name := range names {
		p, ok := r.parsers[name]
		if !ok {
			return nil, fmt.Errorf("parser %q not registered", name)
		}
		out = append(out, p)
	}
	return out, nil
}

// Renderers resolves names to renderers, keeping the given order.
func (r *Registry) Renderers(names ...string) ([]Renderer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Renderer, 0, len(names))
	for _, name := range names {
		rd, ok := r.renderers[name]
		if !ok {
			return nil, fmt.Errorf("renderer %q not registered", name)
		}
		out = append(out, rd)
	}
	return out, nil
}

// DefaultRegistry holds the built-in formatters.
var DefaultRegistry = NewRegistry()

// Parsers resolves names against the default registry.
func Parsers(names ...string) ([]Parser, error) {
	return DefaultRegistry.Parsers(names...)
}

// Renderers resolves names against the default registry.
func Renderers(names ...string) ([]Renderer, error) {
	return DefaultRegistry.Renderers(names...)
}

func mustRegister(err error) {
	if err != nil {
		panic(err)
	}
}
