package ratelimit

import (
	"sync"
	"time"

	"github.com/Wainainajnr/ngongtownbot/internal/domain"
)

// FixedWindow allows limit requests per key within a sliding window of
// recorded timestamps.
type FixedWindow struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time
	done     chan struct{}
	stopOnce sync.Once
}

// NewFixedWindow creates the limiter and starts background eviction.
func NewFixedWindow(limit int, window time.Duration) *FixedWindow {
	rl := newFixedWindow(limit, window, time.Now)
	go rl.evictLoop()
	return rl
}

func newFixedWindow(limit int, window time.Duration, now func() time.Time) *FixedWindow {
	return &FixedWindow{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      now,
		done:     make(chan struct{}),
	}
}

// Allow records a request for key if it is within the limit.
func (r *FixedWindow) Allow(key string) Decision {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	recent := r.fresh(r.requests[key], now)

	allowed := len(recent) < r.limit
	if allowed {
		recent = append(recent, now)
	}
	r.requests[key] = recent

	reset := now.Add(r.window)
	if len(recent) > 0 {
		reset = recent[0].Add(r.window)
	}
	return Decision{
		Allowed: allowed,
		State: domain.RateLimitState{
			Remaining:         max(r.limit-len(recent), 0),
			ResetEpochSeconds: reset.Unix(),
		},
	}
}

// Stop ends background eviction.
func (r *FixedWindow) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

func (r *FixedWindow) fresh(times []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-r.window)
	var out []time.Time
	for _, t := range times {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

// evictLoop periodically drops keys with no requests in the window so the
// map does not grow without bound.
func (r *FixedWindow) evictLoop() {
	ticker := time.NewTicker(r.window)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.evict()
		}
	}
}

func (r *FixedWindow) evict() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for key, times := range r.requests {
		if fresh := r.fresh(times, now); len(fresh) == 0 {
			delete(r.requests, key)
		} else {
			r.requests[key] = fresh
		}
	}
}
