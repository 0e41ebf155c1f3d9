// Package registry collects views and their routes, detects conflicting
// route claims and builds one action descriptor per route.
package registry

import (
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/artpar/actionkit/core/action"
)

// Endpoint is one route with its action-level filters.
type Endpoint struct {
	action.Route
	Filters []action.Filter
}

// View groups endpoints that share view-level filters.
type View struct {
	Name      string
	Filters   []action.Filter
	Endpoints []Endpoint
}

// Claim records which route owns a method and path.
type Claim struct {
	Method  string
	Pattern string
	View    string
	Route   string
}

// Registry holds the registered routes.
type Registry struct {
	mu sync.RWMutex

	global []action.Filter
	views  map[string]bool

	// claims indexed by Key(method, pattern)
	claims      map[string]Claim
	descriptors map[string]*action.Descriptor
	order       []string
}

// New creates a registry. global filters apply to every route.
func New(global ...action.Filter) *Registry {
	return &Registry{
		global:      global,
		views:       make(map[string]bool),
		claims:      make(map[string]Claim),
		descriptors: make(map[string]*action.Descriptor),
	}
}

// Register adds a view. Either every endpoint is registered or, on a
// conflict or invalid filter, none is.
func (r *Registry) Register(v View) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v.Name == "" {
		return fmt.Errorf("view without name")
	}
	if r.views[v.Name] {
		return fmt.Errorf("view %q already registered", v.Name)
	}

	var conflicts []Conflict
	pending := make(map[string]Claim, len(v.Endpoints))
	built := make(map[string]*action.Descriptor, len(v.Endpoints))
	var keys []string

	for _, ep := range v.Endpoints {
		route := ep.Route
		route.View = v.Name
		route.Method = strings.ToUpper(route.Method)
		if route.Method == "" {
			route.Method = http.MethodGet
		}
		if route.Name == "" {
			route.Name = v.Name + "." + strings.ToLower(route.Method)
		}

		claim := Claim{Method: route.Method, Pattern: route.Pattern, View: v.Name, Route: route.Name}
		key := Key(route.Method, route.Pattern)
		if existing, ok := r.claims[key]; ok {
			conflicts = append(conflicts, Conflict{Method: route.Method, Pattern: route.Pattern, Claims: []Claim{existing, claim}})
			continue
		}
		if existing, ok := pending[key]; ok {
			conflicts = append(conflicts, Conflict{Method: route.Method, Pattern: route.Pattern, Claims: []Claim{existing, claim}})
			continue
		}

		d, err := action.NewDescriptor(route, r.global, v.Filters, ep.Filters)
		if err != nil {
			return fmt.Errorf("view %q: %w", v.Name, err)
		}
		pending[key] = claim
		built[key] = d
		keys = append(keys, key)
	}
	if len(conflicts) > 0 {
		return &ConflictError{Conflicts: conflicts}
	}

	r.views[v.Name] = true
	for _, key := range keys {
		r.claims[key] = pending[key]
		r.descriptors[key] = built[key]
		r.order = append(r.order, key)
	}
	return nil
}

// Descriptors returns every descriptor in registration order.
func (r *Registry) Descriptors() []*action.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*action.Descriptor, len(r.order))
	for i, key := range r.order {
		out[i] = r.descriptors[key]
	}
	return out
}

// Claims returns every claim sorted by pattern, then method.
func (r *Registry) Claims() []Claim {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Claim, 0, len(r.claims))
	for _, c := range r.claims {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pattern != out[j].Pattern {
			return out[i].Pattern < out[j].Pattern
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// Lookup finds the descriptor serving method and a concrete path.
func (r *Registry) Lookup(method, path string) (*action.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	method = strings.ToUpper(method)
	if d, ok := r.descriptors[Key(method, path)]; ok {
		return d, true
	}
	for key, c := range r.claims {
		if c.Method == method && matchPattern(NormalizePath(c.Pattern), NormalizePath(path)) {
			return r.descriptors[key], true
		}
	}
	return nil, false
}

// Allowed lists the methods registered for a concrete path, sorted.
func (r *Registry) Allowed(path string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var methods []string
	for _, c := range r.claims {
		if matchPattern(NormalizePath(c.Pattern), NormalizePath(path)) {
			methods = append(methods, c.Method)
		}
	}
	sort.Strings(methods)
	return methods
}

var paramRe = regexp.MustCompile(`\{[^}]*\}|:[A-Za-z_][A-Za-z0-9_]*|<[^>]*>`)

// NormalizePath trims trailing slashes and rewrites every parameter
// ({id}, :id, <id>, {id:[0-9]+}) to "{}", so patterns differing only in
// parameter names compare equal.
func NormalizePath(path string) string {
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	return paramRe.ReplaceAllString(path, "{}")
}

// Key is the claim key for a method and pattern.
func Key(method, pattern string) string {
	return strings.ToUpper(method) + " " + NormalizePath(pattern)
}

// matchPattern checks a concrete path against a normalized pattern.
func matchPattern(pattern, path string) bool {
	patternParts := strings.Split(pattern, "/")
	pathParts := strings.Split(path, "/")

	if len(patternParts) != len(pathParts) {
		return false
	}
	for i, part := range patternParts {
		if part == "{}" {
			if pathParts[i] == "" {
				return false
			}
			continue
		}
		if part != pathParts[i] {
			return false
		}
	}
	return true
}

// Conflict is a method and pattern claimed more than once.
type Conflict struct {
	Method  string
	Pattern string
	Claims  []Claim
}

func (c Conflict) Error() string {
	owners := make([]string, len(c.Claims))
	for i, cl := range c.Claims {
		owners[i] = cl.View + "/" + cl.Route
	}
	return fmt.Sprintf("%s %s claimed by %s", c.Method, c.Pattern, strings.Join(owners, " and "))
}

// ConflictError represents one or more route conflicts.
type ConflictError struct {
	Conflicts []Conflict
}

// Error returns the conflict error message.
func (e *ConflictError) Error() string {
	var msgs []string
	for _, c := range e.Conflicts {
		msgs = append(msgs, c.Error())
	}
	return fmt.Sprintf("route conflicts detected:\n  - %s", strings.Join(msgs, "\n  - "))
}

// HasConflicts returns true if there are any conflicts.
func (e *ConflictError) HasConflicts() bool {
	return len(e.Conflicts) > 0
}
