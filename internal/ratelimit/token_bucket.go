package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Wainainajnr/ngongtownbot/internal/domain"
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// TokenBucket refills requests/window tokens continuously, allowing bursts up
// to burst.
type TokenBucket struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	every    rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
	done     chan struct{}
	stopOnce sync.Once
}

// NewTokenBucket creates the limiter and starts background eviction.
func NewTokenBucket(requests int, window time.Duration, burst int) *TokenBucket {
	tb := newTokenBucket(requests, window, burst, time.Now)
	go tb.evictLoop()
	return tb
}

func newTokenBucket(requests int, window time.Duration, burst int, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		buckets: make(map[string]*bucket),
		every:   rate.Every(window / time.Duration(requests)),
		burst:   burst,
		idle:    window,
		now:     now,
		done:    make(chan struct{}),
	}
}

// Allow takes one token for key if available.
func (t *TokenBucket) Allow(key string) Decision {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	b, ok := t.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(t.every, t.burst)}
		t.buckets[key] = b
	}
	b.lastSeen = now

	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)

	// Reset is when the bucket will be full again.
	missing := float64(t.burst) - tokens
	reset := now
	if missing > 0 && t.every > 0 {
		reset = now.Add(time.Duration(missing / float64(t.every) * float64(time.Second)))
	}
	return Decision{
		Allowed: allowed,
		State: domain.RateLimitState{
			Remaining:         int(math.Max(0, math.Floor(tokens))),
			ResetEpochSeconds: int64(math.Ceil(float64(reset.UnixNano()) / float64(time.Second))),
		},
	}
}

// Stop ends background eviction.
func (t *TokenBucket) Stop() {
	t.stopOnce.Do(func() { close(t.done) })
}

func (t *TokenBucket) evictLoop() {
	ticker := time.NewTicker(t.idle)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.evict()
		}
	}
}

func (t *TokenBucket) evict() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for key, b := range t.buckets {
		if now.Sub(b.lastSeen) > t.idle {
			delete(t.buckets, key)
		}
	}
}
