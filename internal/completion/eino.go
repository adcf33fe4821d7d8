package completion

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/Wainainajnr/ngongtownbot/internal/domain"
)

const claudeMaxTokens = 1024

func newEinoChatModel(ctx context.Context, provider string, cfg Config) (model.BaseChatModel, error) {
	switch provider {
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key is required")
		}
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		})
	case ProviderOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = DefaultOllamaURL
		}
		return ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: baseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic API key is required")
		}
		return claude.NewChatModel(ctx, &claude.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: claudeMaxTokens,
		})
	}
	return nil, fmt.Errorf("unsupported eino provider: %s", provider)
}

// EinoProvider completes through an eino chat model.
type EinoProvider struct {
	name  string
	model model.BaseChatModel
}

// NewEinoProvider wraps an eino chat model.
func NewEinoProvider(name string, cm model.BaseChatModel) *EinoProvider {
	return &EinoProvider{name: name, model: cm}
}

// Name implements Provider.
func (p *EinoProvider) Name() string {
	return p.name
}

// Complete implements Provider.
func (p *EinoProvider) Complete(ctx context.Context, req Request) (string, error) {
	if _, _, err := splitLast(req.History); err != nil {
		return "", err
	}

	msgs := make([]*schema.Message, 0, len(req.History)+1)
	if req.Preamble != "" {
		msgs = append(msgs, schema.SystemMessage(req.Preamble))
	}
	for _, t := range req.History {
		switch t.Role {
		case domain.RoleUser:
			msgs = append(msgs, schema.UserMessage(t.Content))
		case domain.RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(t.Content, nil))
		}
	}

	resp, err := p.model.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("%s generate: %w", p.name, err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Content, nil
}
