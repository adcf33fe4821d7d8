// Package analytics defines the tracker collaborator used by sessions and
// handlers to record product events.
package analytics

import (
	"log/slog"
	"maps"
)

// Event names.
const (
	EventChatMessageSent       = "chat_message_sent"
	EventQuickOptionClicked    = "quick_option_clicked"
	EventRegistrationStarted   = "registration_started"
	EventRegistrationCompleted = "registration_completed"
	EventLanguageChanged       = "language_changed"
	EventCourseInfoViewed      = "course_info_viewed"
	EventErrorOccurred         = "error_occurred"
	EventConnectionRestored    = "connection_restored"
	EventConnectionLost        = "connection_lost"
	EventPageView              = "page_view"
)

var known = map[string]bool{
	EventChatMessageSent:       true,
	EventQuickOptionClicked:    true,
	EventRegistrationStarted:   true,
	EventRegistrationCompleted: true,
	EventLanguageChanged:       true,
	EventCourseInfoViewed:      true,
	EventErrorOccurred:         true,
	EventConnectionRestored:    true,
	EventConnectionLost:        true,
	EventPageView:              true,
}

// IsKnown reports whether name is one of the recognised event names.
func IsKnown(name string) bool { return known[name] }

// Event is a single tracked occurrence.
type Event struct {
	Name       string
	DistinctID string
	Properties map[string]any
}

// WithProperty returns a copy of e with key set.
func (e Event) WithProperty(key string, value any) Event {
	props := make(map[string]any, len(e.Properties)+1)
	maps.Copy(props, e.Properties)
	props[key] = value
	e.Properties = props
	return e
}

// Tracker records events. Implementations must not block the caller.
type Tracker interface {
	Track(e Event)
	Close() error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Track(Event)  {}
func (Noop) Close() error { return nil }

// LogTracker writes events to a structured logger.
type LogTracker struct {
	logger *slog.Logger
}

// NewLogTracker returns a tracker logging at debug level. A nil logger uses
// slog.Default().
func NewLogTracker(logger *slog.Logger) *LogTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogTracker{logger: logger}
}

func (t *LogTracker) Track(e Event) {
	t.logger.Debug("analytics event",
		"event", e.Name,
		"distinct_id", e.DistinctID,
		"properties", e.Properties,
	)
}

func (t *LogTracker) Close() error { return nil }
