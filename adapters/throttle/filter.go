package throttle

import (
	"net"
	"strconv"

	"github.com/artpar/actionkit/adapters/clock"
	"github.com/artpar/actionkit/core/action"
	"github.com/artpar/actionkit/domain/ratelimit"
	"github.com/artpar/actionkit/pkg/apierr"
)

// FilterName is the name of the throttle filter. A view or route declaring
// its own throttle filter replaces the global one.
const FilterName = "throttle"

// Response headers describing the caller's budget.
const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// Options configure a throttle filter.
type Options struct {
	Rate ratelimit.Config
	// RateSource, when set, is consulted on every request so the rate can
	// change at runtime. Invalid rates fall back to Rate.
	RateSource func() ratelimit.Config
	// Scope separates budgets of filters sharing a store. Defaults to the
	// route name.
	Scope string
	Store Store
	Clock clock.Clock
	// Key identifies the caller. Defaults to CallerKey.
	Key func(*action.Context) string
	// OnReject is called for every throttled request.
	OnReject func(route string)
}

// Filter builds the throttle authorization filter. It runs after the
// identity checks so authenticated callers are counted by principal.
func Filter(opts Options) (action.Filter, error) {
	if opts.RateSource != nil && opts.Rate == (ratelimit.Config{}) {
		opts.Rate = opts.RateSource()
	}
	if err := opts.Rate.Validate(); err != nil {
		return action.Filter{}, err
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore(0)
	}
	if opts.Key == nil {
		opts.Key = CallerKey
	}
	c := clock.OrReal(opts.Clock)

	return action.Filter{
		Name:     FilterName,
		Category: action.Authorization,
		Order:    100,
		Before: func(ctx *action.Context) error {
			scope := opts.Scope
			if scope == "" {
				scope = ctx.Descriptor.Name()
			}
			rate := opts.Rate
			if opts.RateSource != nil {
				if r := opts.RateSource(); r.Validate() == nil {
					rate = r
				}
			}
			now := c.Now()
			d := opts.Store.Take(scope+"|"+opts.Key(ctx), rate, now)

			ctx.Header.Set(HeaderLimit, strconv.Itoa(d.Limit))
			ctx.Header.Set(HeaderRemaining, strconv.Itoa(d.Remaining))
			ctx.Header.Set(HeaderReset, strconv.FormatInt(d.ResetAt.Unix(), 10))
			if d.Allowed {
				return nil
			}

			if opts.OnReject != nil {
				opts.OnReject(ctx.Descriptor.Name())
			}
			ctx.Logger.Debug().Str("scope", scope).Time("reset_at", d.ResetAt).Msg("request throttled")
			return apierr.Throttled(d.RetryAfter(now))
		},
	}, nil
}

// CallerKey identifies authenticated callers by principal and anonymous
// ones by client address.
func CallerKey(ctx *action.Context) string {
	if ctx.Principal != nil {
		return "user:" + ctx.Principal.ID
	}
	host, _, err := net.SplitHostPort(ctx.Request.RemoteAddr)
	if err != nil {
		host = ctx.Request.RemoteAddr
	}
	return "ip:" + host
}
