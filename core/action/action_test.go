package action_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/artpar/actionkit/core/action"
	"github.com/artpar/actionkit/core/field"
	"github.com/artpar/actionkit/core/formatter"
	"github.com/artpar/actionkit/core/schema"
	"github.com/artpar/actionkit/core/validation"
	"github.com/artpar/actionkit/pkg/apierr"
	"github.com/rs/zerolog"
)

func newExecutor(t *testing.T, debug bool) *action.Executor {
	t.Helper()
	e, err := action.NewExecutor(action.Settings{
		Parsers:   []formatter.Parser{formatter.JSONParser{}, formatter.FormParser{}},
		Renderers: []formatter.Renderer{formatter.JSONRenderer{}, formatter.YAMLRenderer{}},
		Debug:     debug,
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	return e
}

func mustDescriptor(t *testing.T, route action.Route, scopes ...[]action.Filter) *action.Descriptor {
	t.Helper()
	if route.Method == "" {
		route.Method = http.MethodGet
		route.Pattern = "/test"
	}
	d, err := action.NewDescriptor(route, scopes...)
	if err != nil {
		t.Fatalf("NewDescriptor: %v", err)
	}
	return d
}

func serve(e *action.Executor, d *action.Descriptor, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.Execute(d, rec, req, nil)
	return rec
}

func get(target string) *http.Request {
	return httptest.NewRequest(http.MethodGet, target, nil)
}

// trace records hook calls in order.
type trace []string

func (tr *trace) add(s string) { *tr = append(*tr, s) }

func (tr *trace) before(name string, cat action.Category, order int) action.Filter {
	return action.Filter{Name: name, Category: cat, Order: order, Before: func(*action.Context) error {
		tr.add(name)
		return nil
	}}
}

func (tr *trace) wrap(name string, cat action.Category, order int) action.Filter {
	return action.Filter{Name: name, Category: cat, Order: order,
		Before: func(*action.Context) error { tr.add(name + ".before"); return nil },
		After:  func(*action.Context) error { tr.add(name + ".after"); return nil },
	}
}

func (tr *trace) catcher(name string, order int, handle bool) action.Filter {
	return action.Filter{Name: name, Category: action.Exception, Order: order,
		Handle: func(ctx *action.Context, err error) bool {
			tr.add(name)
			if handle {
				ctx.SetResult(map[string]any{"recovered": err.Error()})
			}
			return handle
		},
	}
}

func TestMergeFilters(t *testing.T) {
	noop := func(*action.Context) error { return nil }
	f := func(name string, order int, multi bool) action.Filter {
		return action.Filter{Name: name, Category: action.Authorization, Order: order, AllowMultiple: multi, Before: noop}
	}

	tests := []struct {
		name   string
		scopes [][]action.Filter
		want   []string
	}{
		{
			name:   "sorted by order, ties keep declaration order",
			scopes: [][]action.Filter{{f("b", 2, false), f("a", 1, false), f("c", 1, false)}},
			want:   []string{"a", "c", "b"},
		},
		{
			name:   "later scope replaces singleton",
			scopes: [][]action.Filter{{f("throttle", 1, false), f("auth", 0, false)}, {f("throttle", 5, false)}},
			want:   []string{"auth", "throttle"},
		},
		{
			name:   "multiples are kept",
			scopes: [][]action.Filter{{f("role", 1, true)}, {f("role", 1, true)}},
			want:   []string{"role", "role"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := action.MergeFilters(tt.scopes...)
			if err != nil {
				t.Fatalf("MergeFilters: %v", err)
			}
			if got := w.Names(action.Authorization); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("names = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("replacement takes the new order", func(t *testing.T) {
		w, _ := action.MergeFilters([]action.Filter{f("x", 9, false), f("y", 5, false)}, []action.Filter{f("x", 1, false)})
		if got := w[action.Authorization][0]; got.Name != "x" || got.Order != 1 {
			t.Errorf("first = %+v", got)
		}
	})

	bad := [][]action.Filter{
		{{Category: action.Authentication, Before: noop}},
		{{Name: "x", Category: action.Exception}},
		{{Name: "x", Category: action.Authentication}},
		{{Name: "x", Category: action.Resource}},
		{{Name: "x", Category: action.Category(42), Before: noop}},
	}
	for i, scope := range bad {
		if _, err := action.MergeFilters(scope); err == nil {
			t.Errorf("bad scope %d accepted", i)
		}
	}
}

func TestStageOrder(t *testing.T) {
	var tr trace
	filters := []action.Filter{
		tr.wrap("result", action.Result, 0),
		tr.wrap("action1", action.Action, 0),
		tr.wrap("action2", action.Action, 1),
		tr.wrap("resource", action.Resource, 0),
		tr.before("authz", action.Authorization, 0),
		tr.before("authn", action.Authentication, 0),
		tr.catcher("catch", 0, true),
	}
	d := mustDescriptor(t, action.Route{Handler: func(*action.Context) (any, error) {
		tr.add("handler")
		return map[string]any{"ok": true}, nil
	}}, filters)

	rec := serve(newExecutor(t, false), d, get("/test"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	want := []string{
		"authn", "authz", "resource.before", "action1.before", "action2.before",
		"handler", "action2.after", "action1.after", "resource.after",
		"result.before", "result.after",
	}
	if !reflect.DeepEqual([]string(tr), want) {
		t.Errorf("trace = %v\nwant    %v", tr, want)
	}
}

func TestShortCircuit(t *testing.T) {
	tests := []struct {
		name      string
		cat       action.Category
		wantTrace []string
	}{
		{
			name:      "authentication",
			cat:       action.Authentication,
			wantTrace: []string{"authn", "short", "result.before", "result.after"},
		},
		{
			name:      "authorization",
			cat:       action.Authorization,
			wantTrace: []string{"authn", "authz", "short", "result.before", "result.after"},
		},
		{
			name:      "resource unwinds entered resources",
			cat:       action.Resource,
			wantTrace: []string{"authn", "authz", "resource.before", "short", "resource.after", "result.before", "result.after"},
		},
		{
			name: "action unwinds entered actions",
			cat:  action.Action,
			wantTrace: []string{"authn", "authz", "resource.before", "action.before", "short",
				"action.after", "resource.after", "result.before", "result.after"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tr trace
			short := action.Filter{Name: "short", Category: tt.cat, Order: 10, Before: func(ctx *action.Context) error {
				tr.add("short")
				ctx.SetResult(map[string]any{"cached": true})
				return nil
			}}
			filters := []action.Filter{
				tr.before("authn", action.Authentication, 0),
				tr.before("authz", action.Authorization, 0),
				tr.wrap("resource", action.Resource, 0),
				tr.wrap("action", action.Action, 0),
				tr.wrap("result", action.Result, 0),
				short,
			}
			d := mustDescriptor(t, action.Route{Handler: func(*action.Context) (any, error) {
				tr.add("handler")
				return nil, nil
			}}, filters)

			rec := serve(newExecutor(t, false), d, get("/test"))
			if rec.Code != http.StatusOK || rec.Body.String() != `{"cached":true}` {
				t.Errorf("response = %d %s", rec.Code, rec.Body)
			}
			if !reflect.DeepEqual([]string(tr), tt.wantTrace) {
				t.Errorf("trace = %v\nwant    %v", tr, tt.wantTrace)
			}
		})
	}
}

func TestExceptionFiltersRunInReverse(t *testing.T) {
	var tr trace
	filters := []action.Filter{
		tr.catcher("first", 0, true),
		tr.catcher("second", 1, false),
		tr.wrap("resource", action.Resource, 0),
		tr.wrap("action", action.Action, 0),
	}
	d := mustDescriptor(t, action.Route{Handler: func(*action.Context) (any, error) {
		return nil, errors.New("db down")
	}}, filters)

	rec := serve(newExecutor(t, false), d, get("/test"))
	if rec.Code != http.StatusOK || rec.Body.String() != `{"recovered":"db down"}` {
		t.Errorf("response = %d %s", rec.Code, rec.Body)
	}
	want := []string{"resource.before", "action.before", "second", "first", "resource.after"}
	if !reflect.DeepEqual([]string(tr), want) {
		t.Errorf("trace = %v, want %v", tr, want)
	}
}

func TestAuthenticationErrorsSkipExceptionFilters(t *testing.T) {
	var tr trace
	filters := []action.Filter{
		{Name: "token", Category: action.Authentication, Before: func(*action.Context) error {
			return apierr.AuthenticationFailed("")
		}},
		tr.catcher("catch", 0, true),
		tr.wrap("result", action.Result, 0),
	}
	d := mustDescriptor(t, action.Route{Handler: func(*action.Context) (any, error) {
		tr.add("handler")
		return nil, nil
	}}, filters)

	rec := serve(newExecutor(t, false), d, get("/test"))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d", rec.Code)
	}
	if len(tr) != 0 {
		t.Errorf("trace = %v, want nothing", tr)
	}
	want := `{"errors":[{"code":"authentication_failed","message":"Incorrect authentication credentials."}]}`
	if rec.Body.String() != want {
		t.Errorf("body = %s", rec.Body)
	}
}

type conflict struct{}

func (conflict) Error() string   { return "Version conflict." }
func (conflict) StatusCode() int { return http.StatusConflict }

func TestErrorTranslation(t *testing.T) {
	verr := &validation.Error{}
	verr.AddField("email", validation.New("required", "This field is required."))

	tests := []struct {
		name       string
		err        error
		debug      bool
		wantStatus int
		wantBody   string
		wantHeader [2]string
	}{
		{
			name:       "generic error hides details",
			err:        errors.New("connection refused"),
			wantStatus: 500,
			wantBody:   `{"errors":[{"message":"A server error occurred."}]}`,
		},
		{
			name:       "api error keeps status",
			err:        fmt.Errorf("lookup: %w", apierr.NotFound("")),
			wantStatus: 404,
			wantBody:   `{"errors":[{"code":"not_found","message":"Not found."}]}`,
		},
		{
			name:       "native http error keeps status and message",
			err:        conflict{},
			wantStatus: 409,
			wantBody:   `{"errors":[{"message":"Version conflict."}]}`,
		},
		{
			name:       "validation error lists fields",
			err:        verr,
			wantStatus: 400,
			wantBody:   `{"errors":[{"code":"required","field":"email","message":"This field is required."}]}`,
		},
		{
			name:       "headers are sent",
			err:        apierr.MethodNotAllowed("PUT", []string{"GET"}),
			wantStatus: 405,
			wantBody:   `{"errors":[{"code":"method_not_allowed","message":"Method \"PUT\" not allowed."}]}`,
			wantHeader: [2]string{"Allow", "GET"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := mustDescriptor(t, action.Route{Handler: func(*action.Context) (any, error) { return nil, tt.err }})
			rec := serve(newExecutor(t, tt.debug), d, get("/test"))
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %s\nwant   %s", rec.Body, tt.wantBody)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			if tt.wantHeader[0] != "" && rec.Header().Get(tt.wantHeader[0]) != tt.wantHeader[1] {
				t.Errorf("%s = %q", tt.wantHeader[0], rec.Header().Get(tt.wantHeader[0]))
			}
		})
	}
}

func TestDebugModeExposesError(t *testing.T) {
	d := mustDescriptor(t, action.Route{Handler: func(*action.Context) (any, error) {
		return nil, errors.New("connection refused")
	}})
	rec := serve(newExecutor(t, true), d, get("/test"))

	var body struct {
		Errors []struct {
			Message string `json:"message"`
			Stack   string `json:"stack"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Code != 500 || len(body.Errors) != 1 {
		t.Fatalf("response = %d %s", rec.Code, rec.Body)
	}
	if body.Errors[0].Message != "connection refused" || body.Errors[0].Stack != "" {
		t.Errorf("error entry = %+v", body.Errors[0])
	}

	d = mustDescriptor(t, action.Route{Handler: func(*action.Context) (any, error) {
		panic("index out of range")
	}})
	rec = serve(newExecutor(t, true), d, get("/test"))
	body.Errors = nil
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Code != 500 || len(body.Errors) != 1 {
		t.Fatalf("response = %d %s", rec.Code, rec.Body)
	}
	if body.Errors[0].Message != "panic: index out of range" || !strings.Contains(body.Errors[0].Stack, "panic(") {
		t.Errorf("panic entry = %+v", body.Errors[0])
	}
}

func TestPanicsBecomeServerErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler action.Handler
	}{
		{"panic", func(*action.Context) (any, error) { panic("boom") }},
		{"unknown message kind", func(*action.Context) (any, error) {
			return nil, field.Fail(&field.Integer{}, "no_such_kind", nil)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := mustDescriptor(t, action.Route{Handler: tt.handler})
			rec := serve(newExecutor(t, false), d, get("/test"))
			if rec.Code != 500 || rec.Body.String() != `{"errors":[{"message":"A server error occurred."}]}` {
				t.Errorf("response = %d %s", rec.Code, rec.Body)
			}
		})
	}
}

func TestMaterialization(t *testing.T) {
	tests := []struct {
		name       string
		result     any
		accept     string
		wantStatus int
		wantBody   string
		wantType   string
	}{
		{"nil is 204", nil, "", 204, "", ""},
		{"created", action.Created(map[string]any{"id": 1}), "", 201, `{"id":1}`, "application/json"},
		{"response without value", action.Response{Status: http.StatusAccepted}, "", 202, "", ""},
		{"raw", action.Raw{Status: 200, ContentType: "text/plain", Body: []byte("pong")}, "application/json", 200, "pong", "text/plain"},
		{"indent", map[string]any{"a": 1}, "application/json; indent=2", 200, "{\n  \"a\": 1\n}", "application/json; indent=2"},
		{"yaml", map[string]any{"a": 1}, "application/yaml", 200, "a: 1\n", "application/yaml"},
		{"not acceptable forces first renderer", map[string]any{"a": 1}, "application/xml", 406,
			`{"errors":[{"code":"not_acceptable","message":"Could not satisfy the request Accept header."}]}`, "application/json"},
		{"xml then json picks json", map[string]any{"a": 1}, "application/xml,application/json", 200, `{"a":1}`, "application/json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := mustDescriptor(t, action.Route{Handler: func(*action.Context) (any, error) { return tt.result, nil }})
			req := get("/test")
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			rec := serve(newExecutor(t, false), d, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body, tt.wantBody)
			}
			if got := rec.Header().Get("Content-Type"); got != tt.wantType {
				t.Errorf("Content-Type = %q, want %q", got, tt.wantType)
			}
		})
	}
}

func userSchema() *schema.Schema {
	return schema.MustDefine(schema.Definition{
		Name: "user",
		Fields: []schema.Entry{
			schema.F("first_name", &field.String{Base: field.Base{Required: true}}),
			schema.F("last_name", &field.String{Base: field.Base{Required: true}}),
		},
	})
}

func TestSchemaDumpAndFieldSelection(t *testing.T) {
	users := userSchema()
	source := map[string]any{"first_name": "foo", "last_name": "bar", "password": "secret"}

	tests := []struct {
		name       string
		target     string
		result     any
		wantStatus int
		wantBody   string
	}{
		{"full", "/test", source, 200, `{"first_name":"foo","last_name":"bar"}`},
		{"fields narrows", "/test?fields=last_name", source, 200, `{"last_name":"bar"}`},
		{"collection", "/test?fields=first_name", []map[string]any{source, source}, 200, `[{"first_name":"foo"},{"first_name":"foo"}]`},
		{"unknown field", "/test?fields=password", source, 400, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := mustDescriptor(t, action.Route{Schema: users, Handler: func(*action.Context) (any, error) { return tt.result, nil }})
			rec := serve(newExecutor(t, false), d, get(tt.target))
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %s, want %s", rec.Body, tt.wantBody)
			}
		})
	}

	if users.Only() != nil {
		t.Errorf("shared schema was narrowed: %v", users.Only())
	}
}

func TestRequestBodies(t *testing.T) {
	users := userSchema()
	handler := func(ctx *action.Context) (any, error) {
		rec, err := ctx.Load(users)
		if err != nil {
			return nil, err
		}
		return action.Created(rec), nil
	}

	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
		wantBody    string
	}{
		{"json", "application/json", `{"first_name":"Ada","last_name":"Lovelace"}`, 201, `{"first_name":"Ada","last_name":"Lovelace"}`},
		{"form", "application/x-www-form-urlencoded", "first_name=Ada&last_name=Byron", 201, `{"first_name":"Ada","last_name":"Byron"}`},
		{"malformed json", "application/json", `{"first_name":`, 400, ""},
		{"unsupported type", "text/csv", "a,b", 415, `{"errors":[{"code":"unsupported_media_type","media_type":"text/csv","message":"Unsupported media type \"text/csv\" in request."}]}`},
		{"validation", "application/json", `{"first_name":"  "}`, 400,
			`{"errors":[{"code":"blank","field":"first_name","message":"This field may not be blank."},{"code":"required","field":"last_name","message":"This field is required."}]}`},
		{"empty body", "application/json", "", 400,
			`{"errors":[{"code":"invalid","message":"Invalid input type. Expected a mapping but got \"null\"."}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := mustDescriptor(t, action.Route{Method: http.MethodPost, Pattern: "/users", Schema: users, Handler: handler})
			req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rec := serve(newExecutor(t, false), d, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %s\nwant   %s", rec.Body, tt.wantBody)
			}
		})
	}
}

func TestContextIsolation(t *testing.T) {
	var seen []int
	filter := action.Filter{Name: "narrow", Category: action.Resource, Before: func(ctx *action.Context) error {
		seen = append(seen, len(ctx.Renderers))
		ctx.Renderers = ctx.Renderers[:1]
		ctx.Values["touched"] = true
		return nil
	}}
	d := mustDescriptor(t, action.Route{Handler: func(ctx *action.Context) (any, error) {
		if ctx.Principal != nil {
			t.Error("principal leaked between requests")
		}
		return map[string]any{"ok": true}, nil
	}}, []action.Filter{filter})

	e := newExecutor(t, false)
	for i := 0; i < 2; i++ {
		serve(e, d, get("/test"))
	}
	if !reflect.DeepEqual(seen, []int{2, 2}) {
		t.Errorf("renderer counts = %v, want [2 2]", seen)
	}
}
