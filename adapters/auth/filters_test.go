package auth_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/artpar/actionkit/adapters/auth"
	"github.com/artpar/actionkit/adapters/clock"
	"github.com/artpar/actionkit/adapters/hasher"
	"github.com/artpar/actionkit/core/action"
	"github.com/artpar/actionkit/core/formatter"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// whoami answers with the principal ID, or "anonymous".
func whoami(ctx *action.Context) (any, error) {
	if ctx.Principal == nil {
		return map[string]any{"id": "anonymous"}, nil
	}
	return map[string]any{"id": ctx.Principal.ID, "backend": ctx.Principal.Backend}, nil
}

func serveWith(t *testing.T, req *http.Request, filters ...action.Filter) *httptest.ResponseRecorder {
	t.Helper()
	e, err := action.NewExecutor(action.Settings{
		Renderers: []formatter.Renderer{formatter.JSONRenderer{}},
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	d, err := action.NewDescriptor(action.Route{Method: "GET", Pattern: "/me", Handler: whoami}, filters)
	if err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	e.Execute(d, rec, req, nil)
	return rec
}

func TestAuthenticationFilters(t *testing.T) {
	svc := newService(clock.NewFake(epoch))
	token, _, _ := svc.Issue("u1", "Ada", []string{"editor"})

	h := hasher.NewBcrypt(bcrypt.MinCost)
	hash, _ := h.Hash("pw")
	users := map[string]auth.User{"bob": {PasswordHash: string(hash), Roles: []string{"admin"}}}

	filters := []action.Filter{
		auth.JWTFilter(svc, ""),
		auth.BasicFilter("notes", users, h),
	}

	tests := []struct {
		name      string
		setup     func(*http.Request)
		status    int
		body      string
		challenge string
	}{
		{"anonymous", func(*http.Request) {}, 200, `{"id":"anonymous"}`, ""},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, 200,
			`{"backend":"jwt","id":"u1"}`, ""},
		{"lowercase scheme", func(r *http.Request) { r.Header.Set("Authorization", "bearer "+token) }, 200,
			`{"backend":"jwt","id":"u1"}`, ""},
		{"bad bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, 401,
			`{"errors":[{"code":"authentication_failed","message":"Invalid token."}]}`,
			`Bearer realm="api", error="invalid_token"`},
		{"basic", func(r *http.Request) { r.SetBasicAuth("bob", "pw") }, 200,
			`{"backend":"basic","id":"bob"}`, ""},
		{"basic wrong password", func(r *http.Request) { r.SetBasicAuth("bob", "nope") }, 401,
			`{"errors":[{"code":"authentication_failed","message":"Invalid username/password."}]}`,
			`Basic realm="notes"`},
		{"basic unknown user", func(r *http.Request) { r.SetBasicAuth("eve", "pw") }, 401,
			`{"errors":[{"code":"authentication_failed","message":"Invalid username/password."}]}`,
			`Basic realm="notes"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			tt.setup(req)
			rec := serveWith(t, req, filters...)

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if got := strings.TrimSpace(rec.Body.String()); got != tt.body {
				t.Errorf("body = %s, want %s", got, tt.body)
			}
			if got := rec.Header().Get("WWW-Authenticate"); got != tt.challenge {
				t.Errorf("WWW-Authenticate = %q, want %q", got, tt.challenge)
			}
		})
	}
}

// countingHasher records the hashes Compare is called with.
type countingHasher struct {
	hasher.Plain
	compared []string
}

func (h *countingHasher) Compare(hash []byte, plaintext string) bool {
	h.compared = append(h.compared, string(hash))
	return h.Plain.Compare(hash, plaintext)
}

func TestBasicFilterComparesUnknownUsers(t *testing.T) {
	h := &countingHasher{}
	users := map[string]auth.User{"bob": {PasswordHash: "pw"}}
	filter := auth.BasicFilter("", users, h)

	for _, name := range []string{"bob", "eve"} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.SetBasicAuth(name, "wrong")
		if rec := serveWith(t, req, filter); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", name, rec.Code)
		}
	}
	if len(h.compared) != 2 {
		t.Fatalf("Compare calls = %d, want 2", len(h.compared))
	}
	if h.compared[1] == "" || h.compared[1] == "pw" {
		t.Errorf("unknown user compared against %q, want the dummy hash", h.compared[1])
	}

	// the dummy hash never authenticates, even with its own plaintext
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.SetBasicAuth("eve", h.compared[1])
	if rec := serveWith(t, req, filter); rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown user authenticated: %d", rec.Code)
	}
}

func TestAuthorizationFilters(t *testing.T) {
	svc := newService(clock.NewFake(epoch))
	editor, _, _ := svc.Issue("u1", "", []string{"editor"})
	admin, _, _ := svc.Issue("u2", "", []string{"admin", "editor"})

	tests := []struct {
		name    string
		token   string
		filters []action.Filter
		status  int
		code    string
	}{
		{"anonymous rejected", "", []action.Filter{auth.IsAuthenticated("Bearer")}, 401, "not_authenticated"},
		{"authenticated allowed", editor, []action.Filter{auth.IsAuthenticated("Bearer")}, 200, ""},
		{"role missing", editor, []action.Filter{auth.HasRole("admin")}, 403, "permission_denied"},
		{"role present", admin, []action.Filter{auth.HasRole("admin")}, 200, ""},
		{"role anonymous", "", []action.Filter{auth.HasRole("admin")}, 401, "not_authenticated"},
		{"both roles", admin, []action.Filter{auth.HasRole("admin"), auth.HasRole("editor")}, 200, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := serveWith(t, req, append([]action.Filter{auth.JWTFilter(svc, "")}, tt.filters...)...)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body)
			}
			if tt.code != "" && !strings.Contains(rec.Body.String(), `"code":"`+tt.code+`"`) {
				t.Errorf("body = %s, want code %s", rec.Body, tt.code)
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	rec := serveWith(t, req, auth.IsAuthenticated("Bearer"))
	if got := rec.Header().Get("WWW-Authenticate"); got != "Bearer" {
		t.Errorf("WWW-Authenticate = %q, want Bearer", got)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	c := clock.NewFake(epoch)
	svc := newService(c)
	token, _, _ := svc.Issue("u1", "", nil)
	c.Advance(2 * time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	if rec := serveWith(t, req, auth.JWTFilter(svc, "")); rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
