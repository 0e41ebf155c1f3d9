package action

import (
	"fmt"
	"sort"
)

// Category is the pipeline stage a filter belongs to.
type Category int

const (
	Authentication Category = iota
	Authorization
	Resource
	Action
	Exception
	Result

	numCategories
)

var categoryNames = [...]string{
	Authentication: "authentication",
	Authorization:  "authorization",
	Resource:       "resource",
	Action:         "action",
	Exception:      "exception",
	Result:         "result",
}

func (c Category) String() string {
	if c < 0 || c >= numCategories {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryNames[c]
}

// Hook is a filter callback. Returning an error aborts the pipeline;
// calling ctx.SetResult in a before hook short-circuits it.
type Hook func(ctx *Context) error

// ExceptionHook inspects an error raised inside the action stage. It
// returns true to mark the error handled, optionally after setting a
// result on ctx.
type ExceptionHook func(ctx *Context, err error) bool

// Filter is one unit of cross-cutting behaviour.
//
// Authentication and Authorization filters use Before. Resource, Action and
// Result filters wrap their stage with Before and After; After runs in
// reverse order and only for filters whose Before ran. Exception filters
// use Handle.
type Filter struct {
	// Name identifies the filter. Filters that do not allow multiples are
	// replaced by a later filter of the same name.
	Name     string
	Category Category
	// Order sorts filters; lower runs first. Ties keep declaration order.
	Order         int
	AllowMultiple bool

	Before Hook
	After  Hook
	Handle ExceptionHook
}

func (f Filter) check() error {
	if f.Name == "" {
		return fmt.Errorf("filter without name")
	}
	if f.Category < 0 || f.Category >= numCategories {
		return fmt.Errorf("filter %q: invalid category %d", f.Name, int(f.Category))
	}
	switch f.Category {
	case Exception:
		if f.Handle == nil {
			return fmt.Errorf("exception filter %q needs Handle", f.Name)
		}
	case Authentication, Authorization:
		if f.Before == nil {
			return fmt.Errorf("%s filter %q needs Before", f.Category, f.Name)
		}
	default:
		if f.Before == nil && f.After == nil {
			return fmt.Errorf("%s filter %q needs Before or After", f.Category, f.Name)
		}
	}
	return nil
}

// Worklists holds the resolved filters of one action, one list per
// category, in execution order.
type Worklists [numCategories][]Filter

// MergeFilters resolves filter scopes, least specific first (global, view,
// action). A filter that does not allow multiples replaces any earlier
// filter with the same name. The merged list is stably sorted by Order and
// partitioned by category.
func MergeFilters(scopes ...[]Filter) (Worklists, error) {
	var merged []Filter
	for _, scope := range scopes {
		for _, f := range scope {
			if err := f.check(); err != nil {
				return Worklists{}, err
			}
			if !f.AllowMultiple {
				merged = removeNamed(merged, f.Name)
			}
			merged = append(merged, f)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Order < merged[j].Order })

	var w Worklists
	for _, f := range merged {
		w[f.Category] = append(w[f.Category], f)
	}
	return w, nil
}

func removeNamed(fs []Filter, name string) []Filter {
	out := fs[:0]
	for _, f := range fs {
		if f.Name != name {
			out = append(out, f)
		}
	}
	return out
}

// Names lists the filter names of a category, for introspection.
func (w Worklists) Names(c Category) []string {
	out := make([]string, len(w[c]))
	for i, f := range w[c] {
		out[i] = f.Name
	}
	return out
}
