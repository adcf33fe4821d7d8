package completion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/Wainainajnr/ngongtownbot/internal/domain"
)

// GeminiProvider completes through the Gemini API.
type GeminiProvider struct {
	client    *genai.Client
	modelName string
}

// NewGeminiProvider creates a Gemini client.
func NewGeminiProvider(ctx context.Context, cfg Config) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, err
	}
	return &GeminiProvider{client: client, modelName: cfg.Model}, nil
}

// Name implements Provider.
func (p *GeminiProvider) Name() string {
	return ProviderGemini
}

// Close releases the client.
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

// Complete implements Provider.
func (p *GeminiProvider) Complete(ctx context.Context, req Request) (string, error) {
	past, last, err := splitLast(req.History)
	if err != nil {
		return "", err
	}

	m := p.client.GenerativeModel(p.modelName)
	if req.Preamble != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.Preamble)},
		}
	}

	cs := m.StartChat()
	cs.History = geminiHistory(past)

	resp, err := cs.SendMessage(ctx, genai.Text(last.Content))
	if err != nil {
		return "", fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyCompletion
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		} else {
			slog.Debug("Gemini response part was not text", "type", fmt.Sprintf("%T", part))
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrEmptyCompletion
	}
	return sb.String(), nil
}

func geminiHistory(turns []domain.Turn) []*genai.Content {
	out := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := "user"
		if t.Role == domain.RoleAssistant {
			role = "model"
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(t.Content)},
		})
	}
	return out
}
