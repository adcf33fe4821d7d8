// Package ratelimit provides pluggable per-key request throttling policies.
package ratelimit

import (
	"fmt"
	"strings"
	"time"

	"github.com/Wainainajnr/ngongtownbot/internal/domain"
)

// Policy names.
const (
	PolicyFixedWindow = "fixed"
	PolicyTokenBucket = "token"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed bool
	State   domain.RateLimitState
}

// RetryAfter returns how long the caller should wait before retrying.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := time.Unix(d.State.ResetEpochSeconds, 0).Sub(now)
	if wait < time.Second {
		return time.Second
	}
	return wait
}

// Policy throttles requests per key.
type Policy interface {
	Allow(key string) Decision
	// Stop releases background resources.
	Stop()
}

// Config configures a policy.
type Config struct {
	Policy   string
	Requests int
	Window   time.Duration
	Burst    int
}

// New builds the configured policy.
func New(cfg Config) (Policy, error) {
	if cfg.Requests <= 0 {
		return nil, fmt.Errorf("rate limit requests must be > 0")
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("rate limit window must be > 0")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Policy)) {
	case "", PolicyFixedWindow:
		return NewFixedWindow(cfg.Requests, cfg.Window), nil
	case PolicyTokenBucket:
		burst := cfg.Burst
		if burst <= 0 {
			burst = cfg.Requests
		}
		return NewTokenBucket(cfg.Requests, cfg.Window, burst), nil
	}
	return nil, fmt.Errorf("unknown rate limit policy %q", cfg.Policy)
}
