// Package ratelimit implements the fixed-window throttling algorithm.
// Functions are pure: state goes in, new state comes out, and the caller
// persists it.
package ratelimit

import (
	"errors"
	"time"
)

// Window is the per-key state of one fixed window.
type Window struct {
	Count     int       // requests counted in the window
	BurstUsed int       // burst tokens spent in the window
	End       time.Time // exclusive end of the window
}

// Expired reports whether the window no longer applies at now.
func (w Window) Expired(now time.Time) bool {
	return w.End.IsZero() || !now.Before(w.End)
}

// Config is a throttle rate.
type Config struct {
	Limit  int           // requests per window
	Window time.Duration // window length
	Burst  int           // extra requests allowed once Limit is spent
}

// Validate checks the rate is usable.
func (c Config) Validate() error {
	if c.Limit <= 0 {
		return errors.New("ratelimit: limit must be positive")
	}
	if c.Window <= 0 {
		return errors.New("ratelimit: window must be positive")
	}
	if c.Burst < 0 {
		return errors.New("ratelimit: burst must not be negative")
	}
	return nil
}

// Decision is the outcome of one check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is how long a denied caller should wait. Zero when allowed.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed || !now.Before(d.ResetAt) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// Check counts one request against w. Windows are aligned to multiples of
// cfg.Window so every key rolls over at the same instants.
func Check(w Window, cfg Config, now time.Time) (Decision, Window) {
	if w.Expired(now) {
		w = Window{End: now.Truncate(cfg.Window).Add(cfg.Window)}
	}

	d := Decision{Limit: cfg.Limit, ResetAt: w.End}
	switch {
	case w.Count < cfg.Limit:
		w.Count++
		d.Allowed = true
		d.Remaining = cfg.Limit - w.Count
	case w.BurstUsed < cfg.Burst:
		w.Count++
		w.BurstUsed++
		d.Allowed = true
	}
	return d, w
}
