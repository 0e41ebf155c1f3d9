package throttle_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/artpar/actionkit/adapters/clock"
	"github.com/artpar/actionkit/adapters/throttle"
	"github.com/artpar/actionkit/core/action"
	"github.com/artpar/actionkit/core/formatter"
	"github.com/artpar/actionkit/domain/ratelimit"
	"github.com/rs/zerolog"
)

var start = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

type harness struct {
	exec *action.Executor
	d    *action.Descriptor
}

func newHarness(t *testing.T, f action.Filter, extra ...action.Filter) harness {
	t.Helper()
	e, err := action.NewExecutor(action.Settings{
		Renderers: []formatter.Renderer{formatter.JSONRenderer{}},
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	d, err := action.NewDescriptor(action.Route{
		Name: "ping", Method: "GET", Pattern: "/ping",
		Handler: func(*action.Context) (any, error) { return map[string]any{"pong": true}, nil },
	}, append(extra, f))
	if err != nil {
		t.Fatal(err)
	}
	return harness{exec: e, d: d}
}

func (h harness) do(remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.exec.Execute(h.d, rec, req, nil)
	return rec
}

func TestFilterThrottles(t *testing.T) {
	c := clock.NewFake(start.Add(50 * time.Second))
	var rejected []string
	f, err := throttle.Filter(throttle.Options{
		Rate:     ratelimit.Config{Limit: 2, Window: time.Minute},
		Clock:    c,
		OnReject: func(route string) { rejected = append(rejected, route) },
	})
	if err != nil {
		t.Fatal(err)
	}
	h := newHarness(t, f)

	for i, wantRemaining := range []string{"1", "0"} {
		rec := h.do("10.0.0.1:1234")
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, rec.Code)
		}
		if got := rec.Header().Get(throttle.HeaderRemaining); got != wantRemaining {
			t.Errorf("request %d: remaining = %s, want %s", i, got, wantRemaining)
		}
		if got := rec.Header().Get(throttle.HeaderLimit); got != "2" {
			t.Errorf("limit header = %s", got)
		}
	}

	rec := h.do("10.0.0.1:5678")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "10" {
		t.Errorf("Retry-After = %q, want 10", got)
	}
	if got := rec.Header().Get(throttle.HeaderRemaining); got != "0" {
		t.Errorf("remaining on 429 = %q", got)
	}
	want := `{"errors":[{"code":"throttled","message":"Request was throttled. Expected available in 10 seconds."}]}`
	if got := strings.TrimSpace(rec.Body.String()); got != want {
		t.Errorf("body = %s", got)
	}
	if len(rejected) != 1 || rejected[0] != "ping" {
		t.Errorf("OnReject calls = %v", rejected)
	}

	if rec := h.do("10.0.0.2:1"); rec.Code != http.StatusOK {
		t.Errorf("other caller status = %d, want 200", rec.Code)
	}

	c.Advance(10 * time.Second)
	if rec := h.do("10.0.0.1:1"); rec.Code != http.StatusOK {
		t.Errorf("status after window reset = %d, want 200", rec.Code)
	}
}

func TestFilterKeysByPrincipal(t *testing.T) {
	c := clock.NewFake(start)
	f, _ := throttle.Filter(throttle.Options{Rate: ratelimit.Config{Limit: 1, Window: time.Minute}, Clock: c})
	authn := action.Filter{
		Name:     "fake",
		Category: action.Authentication,
		Before: func(ctx *action.Context) error {
			if u := ctx.Request.Header.Get("X-User"); u != "" {
				ctx.Principal = &action.Principal{ID: u}
			}
			return nil
		},
	}
	h := newHarness(t, f, authn)

	req := func(user string) int {
		r := httptest.NewRequest(http.MethodGet, "/ping", nil)
		r.RemoteAddr = "10.0.0.1:1"
		r.Header.Set("X-User", user)
		rec := httptest.NewRecorder()
		h.exec.Execute(h.d, rec, r, nil)
		return rec.Code
	}

	if got := req("ada"); got != 200 {
		t.Errorf("ada first = %d", got)
	}
	if got := req("bob"); got != 200 {
		t.Errorf("bob from the same address = %d, want 200", got)
	}
	if got := req("ada"); got != 429 {
		t.Errorf("ada second = %d, want 429", got)
	}
}

func TestFilterRateSource(t *testing.T) {
	c := clock.NewFake(start)
	rate := ratelimit.Config{Limit: 1, Window: time.Minute}
	f, err := throttle.Filter(throttle.Options{
		RateSource: func() ratelimit.Config { return rate },
		Clock:      c,
	})
	if err != nil {
		t.Fatal(err)
	}
	h := newHarness(t, f)

	if rec := h.do("10.0.0.1:1"); rec.Code != 200 {
		t.Fatalf("first status = %d", rec.Code)
	}
	if rec := h.do("10.0.0.1:1"); rec.Code != 429 {
		t.Fatalf("second status = %d, want 429", rec.Code)
	}

	rate = ratelimit.Config{Limit: 3, Window: time.Minute}
	if rec := h.do("10.0.0.1:1"); rec.Code != 200 || rec.Header().Get(throttle.HeaderLimit) != "3" {
		t.Errorf("after raising the limit: status = %d, limit = %s", rec.Code, rec.Header().Get(throttle.HeaderLimit))
	}

	rate = ratelimit.Config{}
	if rec := h.do("10.0.0.1:1"); rec.Header().Get(throttle.HeaderLimit) != "1" {
		t.Errorf("invalid rate should fall back to the initial one, limit = %s", rec.Header().Get(throttle.HeaderLimit))
	}
}

func TestFilterRejectsBadRate(t *testing.T) {
	if _, err := throttle.Filter(throttle.Options{}); err == nil {
		t.Error("Filter() accepted a zero rate")
	}
}

func TestCallerKey(t *testing.T) {
	tests := []struct {
		remote    string
		principal *action.Principal
		want      string
	}{
		{"192.0.2.1:443", nil, "ip:192.0.2.1"},
		{"[2001:db8::1]:80", nil, "ip:2001:db8::1"},
		{"unix", nil, "ip:unix"},
		{"192.0.2.1:443", &action.Principal{ID: "u1"}, "user:u1"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remote
		ctx := &action.Context{Request: req, Principal: tt.principal}
		if got := throttle.CallerKey(ctx); got != tt.want {
			t.Errorf("CallerKey(%s) = %s, want %s", tt.remote, got, tt.want)
		}
	}
}

func TestMemoryStore(t *testing.T) {
	s := throttle.NewMemoryStore(4)
	rate := ratelimit.Config{Limit: 100, Window: time.Minute}

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				if s.Take("k", rate, start).Allowed {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	if allowed != 100 {
		t.Errorf("allowed = %d, want 100", allowed)
	}

	s.Take("other", rate, start.Add(2*time.Minute))
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	if removed := s.Sweep(start.Add(90 * time.Second)); removed != 1 {
		t.Errorf("Sweep() removed %d, want 1", removed)
	}
	if s.Len() != 1 {
		t.Errorf("Len() after sweep = %d, want 1", s.Len())
	}
}

func TestRunSweeperStops(t *testing.T) {
	s := throttle.NewMemoryStore(1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunSweeper(ctx, time.Millisecond, clock.NewFake(start))
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunSweeper did not stop")
	}
}
