// Package completion provides the language-model fallback used when no canned
// reply matches. Providers are opaque: history in, free text out.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Wainainajnr/ngongtownbot/internal/domain"
)

// Supported provider names.
const (
	ProviderNone      = "none"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"

	DefaultOllamaURL = "http://localhost:11434"
)

// ErrEmptyCompletion is returned when a provider answers with no text.
var ErrEmptyCompletion = errors.New("empty completion")

// Request is one completion call.
type Request struct {
	// Preamble is the fixed system instruction.
	Preamble string
	// History is the full visible conversation, oldest first.
	History []domain.Turn
}

// Provider generates a reply for a conversation.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

// Func adapts a function to the Provider interface.
type Func func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f Func) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Name implements Provider.
func (f Func) Name() string {
	return "func"
}

// Config selects and configures a provider.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderOllama:
		return "llama3.2"
	case ProviderAnthropic:
		return "claude-3-5-haiku-latest"
	case ProviderGemini:
		return "gemini-1.5-flash-latest"
	}
	return ""
}

// New builds the configured provider. It returns (nil, nil) when completion is
// disabled.
func New(ctx context.Context, cfg Config) (Provider, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" || provider == ProviderNone {
		return nil, nil
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel(provider)
	}

	switch provider {
	case ProviderOpenAI, ProviderOllama, ProviderAnthropic:
		cm, err := newEinoChatModel(ctx, provider, cfg)
		if err != nil {
			return nil, fmt.Errorf("create %s chat model: %w", provider, err)
		}
		return NewEinoProvider(provider, cm), nil
	case ProviderGemini:
		p, err := NewGeminiProvider(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		return p, nil
	}
	return nil, fmt.Errorf("unsupported completion provider: %s (supported: none, openai, ollama, anthropic, gemini)", cfg.Provider)
}

// splitLast separates the history before the final user turn from that turn.
func splitLast(history []domain.Turn) ([]domain.Turn, domain.Turn, error) {
	if len(history) == 0 {
		return nil, domain.Turn{}, fmt.Errorf("history is empty")
	}
	last := history[len(history)-1]
	if last.Role != domain.RoleUser {
		return nil, domain.Turn{}, fmt.Errorf("last turn is from %q, not user", last.Role)
	}
	return history[:len(history)-1], last, nil
}
