// Package domain contains core domain types for the ngongtownbot chat widget.
package domain

import (
	"errors"
	"time"
)

// ErrEmptyInput is returned when a request carries no user text or no form data.
var ErrEmptyInput = errors.New("empty input")

// Role identifies the author of a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of a conversation history as exchanged with clients and
// completion providers.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatMessage is an immutable message appended to a conversation session.
type ChatMessage struct {
	ID          string    `json:"id"`
	Role        Role      `json:"role"`
	Content     string    `json:"content"`
	DisplayHint string    `json:"displayHint,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Turn returns the history entry for the message.
func (m ChatMessage) Turn() Turn {
	return Turn{Role: m.Role, Content: m.Content}
}

// LastUserText returns the content of the most recent user turn, or "" when
// there is none.
func LastUserText(history []Turn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser {
			return history[i].Content
		}
	}
	return ""
}

// RateLimitState is advisory rate limit information attached to responses.
type RateLimitState struct {
	Remaining         int   `json:"remaining"`
	ResetEpochSeconds int64 `json:"resetEpochSeconds"`
}
