// Package action runs requests through an ordered pipeline of filters
// around a handler and turns the outcome into an HTTP response.
//
// The pipeline is a fixed sequence of stages:
//
//	authentication → authorization → resource (before) → action (before)
//	→ handler → action (after) → exception → resource (after)
//	→ result (before) → materialize → result (after)
//
// A before hook that sets a result short-circuits the remaining work:
// after hooks of filters already entered still unwind, then the result
// stage renders the result. Errors raised in the action stage (action
// filters and the handler) are offered to exception filters in reverse
// order; an error nobody handles is translated into an error response.
package action

import (
	"bytes"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/artpar/actionkit/core/formatter"
	"github.com/artpar/actionkit/core/negotiation"
	"github.com/artpar/actionkit/pkg/apierr"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Observer receives pipeline events, typically for metrics.
type Observer interface {
	ShortCircuit(route string, by Category)
	Exception(route string, handled bool)
	ErrorResponse(route string, status int)
}

type nopObserver struct{}

func (nopObserver) ShortCircuit(string, Category) {}
func (nopObserver) Exception(string, bool)        {}
func (nopObserver) ErrorResponse(string, int)     {}

// Settings are shared by every request an Executor serves.
type Settings struct {
	Parsers    []formatter.Parser
	Renderers  []formatter.Renderer
	Negotiator negotiation.Negotiator
	// Debug adds error text and stack traces to 500 responses.
	Debug    bool
	Logger   zerolog.Logger
	Observer Observer
}

// Executor runs descriptors.
type Executor struct {
	settings Settings
}

// NewExecutor creates an executor. At least one renderer is required so
// error responses can always be written.
func NewExecutor(s Settings) (*Executor, error) {
	if len(s.Renderers) == 0 {
		return nil, fmt.Errorf("executor: at least one renderer is required")
	}
	if s.Negotiator == nil {
		s.Negotiator = negotiation.Default{}
	}
	if s.Observer == nil {
		s.Observer = nopObserver{}
	}
	return &Executor{settings: s}, nil
}

// Handler returns an http.Handler serving d. params extracts route
// parameters from the request; it may be nil.
func (e *Executor) Handler(d *Descriptor, params func(*http.Request) map[string]string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p map[string]string
		if params != nil {
			p = params(r)
		}
		e.Execute(d, w, r, p)
	})
}

// NewContext builds the per-request context for d.
func (e *Executor) NewContext(d *Descriptor, r *http.Request, params map[string]string) *Context {
	parsers := d.route.Parsers
	if len(parsers) == 0 {
		parsers = e.settings.Parsers
	}
	renderers := d.route.Renderers
	if len(renderers) == 0 {
		renderers = e.settings.Renderers
	}
	if params == nil {
		params = map[string]string{}
	}
	return &Context{
		Request:    r,
		Descriptor: d,
		Logger: e.settings.Logger.With().
			Str("route", d.Name()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Logger(),
		Debug:      e.settings.Debug,
		Parsers:    append([]formatter.Parser(nil), parsers...),
		Renderers:  append([]formatter.Renderer(nil), renderers...),
		Negotiator: e.settings.Negotiator,
		Params:     params,
		Values:     map[string]any{},
		Header:     http.Header{},
	}
}

type stage int

const (
	stageAuthenticate stage = iota
	stageAuthorize
	stageResourceBefore
	stageActionBefore
	stageHandler
	stageActionAfter
	stageException
	stageResourceAfter
	stageResultBefore
	stageMaterialize
	stageResultAfter
	stageDone
)

var stageNames = [...]string{
	"authenticate", "authorize", "resource-before", "action-before", "handler",
	"action-after", "exception", "resource-after", "result-before",
	"materialize", "result-after", "done",
}

func (s stage) String() string { return stageNames[s] }

// run holds the state of one pipeline execution.
type run struct {
	e   *Executor
	ctx *Context
	w   middleware.WrapResponseWriter

	// entered before hooks, unwound in reverse by the after stages
	resources []Filter
	actions   []Filter
	results   []Filter

	// failed is set when the response must be an error response
	failed bool
	stack  []byte
}

// Execute runs d for one request.
func (e *Executor) Execute(d *Descriptor, w http.ResponseWriter, r *http.Request, params map[string]string) {
	ww, ok := w.(middleware.WrapResponseWriter)
	if !ok {
		ww = middleware.NewWrapResponseWriter(w, r.ProtoMajor)
	}
	rn := &run{e: e, ctx: e.NewContext(d, r, params), w: ww}
	rn.loop()
}

func (rn *run) loop() {
	defer rn.recoverPanic()

	st := stageAuthenticate
	for st != stageDone {
		rn.ctx.Logger.Trace().Stringer("stage", st).Msg("pipeline stage")
		st = rn.step(st)
	}
}

func (rn *run) step(st stage) stage {
	ctx := rn.ctx
	d := ctx.Descriptor

	switch st {
	case stageAuthenticate, stageAuthorize:
		cat := Authentication
		if st == stageAuthorize {
			cat = Authorization
		}
		for _, f := range d.Filters(cat) {
			if err := f.Before(ctx); err != nil {
				rn.fail(err)
				return stageResultBefore
			}
			if ctx.HasResult() {
				rn.e.settings.Observer.ShortCircuit(d.Name(), cat)
				return stageResultBefore
			}
		}
		return st + 1

	case stageResourceBefore:
		return rn.enter(Resource, &rn.resources, stageActionBefore, stageResourceAfter, stageResourceAfter)

	case stageActionBefore:
		return rn.enter(Action, &rn.actions, stageHandler, stageException, stageActionAfter)

	case stageHandler:
		v, err := d.route.Handler(ctx)
		if err != nil {
			ctx.err = err
			return stageException
		}
		ctx.SetResult(v)
		return stageActionAfter

	case stageActionAfter:
		for i := len(rn.actions) - 1; i >= 0; i-- {
			f := rn.actions[i]
			if f.After == nil {
				continue
			}
			if err := f.After(ctx); err != nil {
				ctx.err = err
				return stageException
			}
		}
		return stageResourceAfter

	case stageException:
		filters := d.Filters(Exception)
		for i := len(filters) - 1; i >= 0; i-- {
			if filters[i].Handle(ctx, ctx.err) {
				ctx.handled = true
				break
			}
		}
		if !ctx.handled {
			rn.failed = true
		}
		rn.e.settings.Observer.Exception(d.Name(), ctx.handled)
		return stageResourceAfter

	case stageResourceAfter:
		for i := len(rn.resources) - 1; i >= 0; i-- {
			f := rn.resources[i]
			if f.After == nil {
				continue
			}
			if err := f.After(ctx); err != nil && !rn.failed {
				rn.fail(err)
			}
		}
		return stageResultBefore

	case stageResultBefore:
		if rn.failed {
			return stageMaterialize
		}
		return rn.enter(Result, &rn.results, stageMaterialize, stageMaterialize, stageMaterialize)

	case stageMaterialize:
		if rn.failed {
			rn.writeError(ctx.err)
			return stageDone
		}
		if err := rn.e.materialize(ctx, rn.w); err != nil {
			rn.fail(err)
			rn.writeError(err)
			return stageDone
		}
		return stageResultAfter

	case stageResultAfter:
		for i := len(rn.results) - 1; i >= 0; i-- {
			f := rn.results[i]
			if f.After == nil {
				continue
			}
			if err := f.After(ctx); err != nil {
				ctx.Logger.Error().Err(err).Str("filter", f.Name).Msg("result filter failed after response was written")
			}
		}
		return stageDone
	}
	panic(fmt.Sprintf("action: unknown stage %d", st))
}

// enter runs the before hooks of a wrapping category, recording each
// entered filter. It returns next on success, onErr when a hook fails and
// onShort when a hook sets a result.
func (rn *run) enter(cat Category, entered *[]Filter, next, onErr, onShort stage) stage {
	ctx := rn.ctx
	for _, f := range ctx.Descriptor.Filters(cat) {
		*entered = append(*entered, f)
		if f.Before == nil {
			continue
		}
		if err := f.Before(ctx); err != nil {
			if cat == Action {
				ctx.err = err
			} else {
				rn.fail(err)
			}
			return onErr
		}
		if ctx.HasResult() && cat != Result {
			rn.e.settings.Observer.ShortCircuit(ctx.Descriptor.Name(), cat)
			return onShort
		}
	}
	return next
}

// fail records an error that bypasses exception filters.
func (rn *run) fail(err error) {
	rn.ctx.err = err
	rn.failed = true
}

// writeError translates err into the error envelope and writes it, using
// the first renderer when negotiation cannot be satisfied.
func (rn *run) writeError(err error) {
	ctx := rn.ctx
	if rn.w.Status() != 0 {
		ctx.Logger.Error().Err(err).Msg("error after response was started")
		return
	}

	status, items, ok := apierr.Classify(err)
	if !ok {
		status = http.StatusInternalServerError
		ev := ctx.Logger.Error().Err(err)
		if rn.stack != nil {
			ev = ev.Bytes("stack", rn.stack)
		}
		ev.Msg("unhandled error")
		item := apierr.ServerError("").Items()[0]
		if ctx.Debug {
			item.Message = err.Error()
			// only a recovered panic has a stack of the failure itself
			if rn.stack != nil {
				item.Extra = map[string]any{"stack": string(rn.stack)}
			}
		}
		items = []apierr.Item{item}
	} else {
		ctx.Logger.Debug().Err(err).Int("status", status).Msg("error response")
	}
	rn.e.settings.Observer.ErrorResponse(ctx.Descriptor.Name(), status)

	sel, selErr := ctx.Negotiator.SelectRenderer(ctx.Request.Header.Get("Accept"), ctx.Renderers, true)
	if selErr != nil {
		sel, _ = negotiation.Default{}.SelectRenderer("", rn.e.settings.Renderers, true)
	}

	var buf bytes.Buffer
	if rerr := sel.Renderer.Render(&buf, apierr.Envelope(items...), sel.MediaType.Params); rerr != nil {
		ctx.Logger.Error().Err(rerr).Msg("rendering error response")
		http.Error(rn.w, http.StatusText(status), status)
		return
	}
	h := rn.w.Header()
	copyHeader(h, ctx.Header)
	copyHeader(h, apierr.HeadersOf(err))
	h.Set("Content-Type", sel.ContentType())
	rn.w.WriteHeader(status)
	_, _ = rn.w.Write(buf.Bytes())
}

func (rn *run) recoverPanic() {
	rec := recover()
	if rec == nil {
		return
	}
	if rec == http.ErrAbortHandler {
		panic(rec)
	}
	rn.stack = debug.Stack()
	err, ok := rec.(error)
	if !ok {
		err = fmt.Errorf("%v", rec)
	}
	rn.fail(fmt.Errorf("panic: %w", err))
	rn.writeError(rn.ctx.err)
}
