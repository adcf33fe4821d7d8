package analytics

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/posthog/posthog-go"
)

// enqueuer is the subset of the PostHog client used here.
type enqueuer interface {
	io.Closer
	Enqueue(msg posthog.Message) error
}

// PostHogConfig configures the PostHog tracker.
type PostHogConfig struct {
	APIKey   string
	Endpoint string
	// Version is attached to every event as app_version.
	Version string
}

// PostHogTracker ships events to PostHog asynchronously.
type PostHogTracker struct {
	client  enqueuer
	version string
	mu      sync.RWMutex
	closed  bool
}

// NewPostHogTracker creates a tracker. APIKey is required.
func NewPostHogTracker(cfg PostHogConfig) (*PostHogTracker, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("posthog api key is required")
	}
	phConfig := posthog.Config{
		BatchSize: 50,
		Interval:  5 * time.Second,
		Logger:    slogPostHogLogger{logger: slog.Default().With("component", "posthog")},
	}
	if cfg.Endpoint != "" {
		phConfig.Endpoint = cfg.Endpoint
	}
	client, err := posthog.NewWithConfig(cfg.APIKey, phConfig)
	if err != nil {
		return nil, fmt.Errorf("create posthog client: %w", err)
	}
	return newPostHogTrackerWithEnqueuer(client, cfg.Version), nil
}

func newPostHogTrackerWithEnqueuer(enq enqueuer, version string) *PostHogTracker {
	return &PostHogTracker{client: enq, version: version}
}

// Track enqueues e. Events without a distinct id are attributed to
// "anonymous".
func (t *PostHogTracker) Track(e Event) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}

	props := posthog.NewProperties()
	for k, v := range e.Properties {
		props.Set(k, v)
	}
	props.Set("app_version", t.version)
	props.Set("$process_person_profile", false)

	id := e.DistinctID
	if id == "" {
		id = "anonymous"
	}
	if err := t.client.Enqueue(posthog.Capture{
		DistinctId: id,
		Event:      e.Name,
		Properties: props,
	}); err != nil {
		slog.Debug("Failed to enqueue analytics event", "event", e.Name, "error", err)
	}
}

// Close flushes pending events.
func (t *PostHogTracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.client.Close()
}

// slogPostHogLogger routes PostHog client logs into slog.
type slogPostHogLogger struct {
	logger *slog.Logger
}

func (l slogPostHogLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l slogPostHogLogger) Logf(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l slogPostHogLogger) Warnf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l slogPostHogLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}
