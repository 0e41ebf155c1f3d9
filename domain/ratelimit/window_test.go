package ratelimit_test

import (
	"testing"
	"time"

	"github.com/artpar/actionkit/domain/ratelimit"
	"pgregory.net/rapid"
)

var (
	baseTime = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	cfg      = ratelimit.Config{Limit: 10, Window: time.Minute, Burst: 2}
)

func TestCheck(t *testing.T) {
	end := baseTime.Add(30 * time.Second)

	tests := []struct {
		name          string
		state         ratelimit.Window
		now           time.Time
		wantAllowed   bool
		wantRemaining int
		wantCount     int
		wantBurst     int
	}{
		{"within limit", ratelimit.Window{Count: 5, End: end}, baseTime, true, 4, 6, 0},
		{"last regular request", ratelimit.Window{Count: 9, End: end}, baseTime, true, 0, 10, 0},
		{"burst", ratelimit.Window{Count: 10, End: end}, baseTime, true, 0, 11, 1},
		{"burst exhausted", ratelimit.Window{Count: 12, BurstUsed: 2, End: end}, baseTime, false, 0, 12, 2},
		{"zero state", ratelimit.Window{}, baseTime, true, 9, 1, 0},
		{"expired window", ratelimit.Window{Count: 12, BurstUsed: 2, End: end}, end.Add(time.Second), true, 9, 1, 0},
		{"window end is exclusive", ratelimit.Window{Count: 12, BurstUsed: 2, End: end}, end, true, 9, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, w := ratelimit.Check(tt.state, cfg, tt.now)
			if d.Allowed != tt.wantAllowed || d.Remaining != tt.wantRemaining {
				t.Errorf("decision = %+v", d)
			}
			if w.Count != tt.wantCount || w.BurstUsed != tt.wantBurst {
				t.Errorf("window = %+v", w)
			}
			if d.Limit != cfg.Limit {
				t.Errorf("limit = %d", d.Limit)
			}
		})
	}
}

func TestWindowsAreAligned(t *testing.T) {
	now := baseTime.Add(17 * time.Second)
	d, w := ratelimit.Check(ratelimit.Window{}, cfg, now)
	if !w.End.Equal(baseTime.Add(time.Minute)) || !d.ResetAt.Equal(w.End) {
		t.Errorf("window end = %v, want %v", w.End, baseTime.Add(time.Minute))
	}
}

func TestRetryAfter(t *testing.T) {
	reset := baseTime.Add(20 * time.Second)
	tests := []struct {
		name string
		d    ratelimit.Decision
		now  time.Time
		want time.Duration
	}{
		{"allowed", ratelimit.Decision{Allowed: true, ResetAt: reset}, baseTime, 0},
		{"denied", ratelimit.Decision{ResetAt: reset}, baseTime, 20 * time.Second},
		{"past reset", ratelimit.Decision{ResetAt: reset}, reset.Add(time.Second), 0},
	}
	for _, tt := range tests {
		if got := tt.d.RetryAfter(tt.now); got != tt.want {
			t.Errorf("%s: RetryAfter() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		cfg     ratelimit.Config
		wantErr bool
	}{
		{cfg, false},
		{ratelimit.Config{Limit: 1, Window: time.Second}, false},
		{ratelimit.Config{Window: time.Second}, true},
		{ratelimit.Config{Limit: 1}, true},
		{ratelimit.Config{Limit: 1, Window: time.Second, Burst: -1}, true},
	}
	for _, tt := range tests {
		if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
			t.Errorf("Validate(%+v) error = %v, wantErr %v", tt.cfg, err, tt.wantErr)
		}
	}
}

// Within one window exactly Limit+Burst requests are admitted.
func TestCheckAdmitsLimitPlusBurst(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := ratelimit.Config{
			Limit:  rapid.IntRange(1, 50).Draw(t, "limit"),
			Window: time.Minute,
			Burst:  rapid.IntRange(0, 10).Draw(t, "burst"),
		}
		n := rapid.IntRange(0, 100).Draw(t, "requests")

		var w ratelimit.Window
		allowed := 0
		for i := 0; i < n; i++ {
			var d ratelimit.Decision
			d, w = ratelimit.Check(w, c, baseTime)
			if d.Allowed {
				allowed++
			}
		}
		want := n
		if want > c.Limit+c.Burst {
			want = c.Limit + c.Burst
		}
		if allowed != want {
			t.Fatalf("allowed %d of %d, want %d", allowed, n, want)
		}
	})
}
