// Package throttle limits request rates per caller with a fixed-window
// authorization filter.
package throttle

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/artpar/actionkit/adapters/clock"
	"github.com/artpar/actionkit/domain/ratelimit"
)

// Store keeps window state per key. Take must check and update the state
// of one key atomically.
type Store interface {
	Take(key string, cfg ratelimit.Config, now time.Time) ratelimit.Decision
}

type shard struct {
	mu      sync.Mutex
	windows map[string]ratelimit.Window
}

// MemoryStore is a sharded in-process Store. Sharding keeps lock
// contention low under many distinct callers.
type MemoryStore struct {
	shards []*shard
}

// NewMemoryStore creates a store with n shards (32 when n <= 0).
func NewMemoryStore(n int) *MemoryStore {
	if n <= 0 {
		n = 32
	}
	s := &MemoryStore{shards: make([]*shard, n)}
	for i := range s.shards {
		s.shards[i] = &shard{windows: make(map[string]ratelimit.Window)}
	}
	return s
}

func (s *MemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// Take counts one request for key.
func (s *MemoryStore) Take(key string, cfg ratelimit.Config, now time.Time) ratelimit.Decision {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	d, w := ratelimit.Check(sh.windows[key], cfg, now)
	sh.windows[key] = w
	return d
}

// Sweep drops windows that ended before now and returns how many it
// removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, w := range sh.windows {
			if w.Expired(now) {
				delete(sh.windows, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		total += len(sh.windows)
		sh.mu.Unlock()
	}
	return total
}

// RunSweeper sweeps every interval until ctx is done.
func (s *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration, c clock.Clock) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	c = clock.OrReal(c)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(c.Now())
		case <-ctx.Done():
			return
		}
	}
}

var _ Store = (*MemoryStore)(nil)
