package summarizer

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiModel generates summaries with the Gemini API.
type GeminiModel struct {
	client    *genai.Client
	model     string
	maxTokens int
}

// NewGeminiModel creates a client for model. baseURL overrides the API
// endpoint when non-empty.
func NewGeminiModel(ctx context.Context, apiKey, model string, maxTokens int, baseURL string) (*GeminiModel, error) {
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to initialize client: %w", err)
	}
	return &GeminiModel{client: client, model: model, maxTokens: maxTokens}, nil
}

func (m *GeminiModel) Name() string { return m.model }

func (m *GeminiModel) Generate(ctx context.Context, p Prompt) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(p.Text)}
	if p.Document != nil {
		parts = append(parts, genai.NewPartFromBytes(p.Document.Data, p.Document.MIMEType))
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.model, []*genai.Content{
		{Role: genai.RoleUser, Parts: parts},
	}, &genai.GenerateContentConfig{
		MaxOutputTokens: int32(m.maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("gemini: %s: %w", m.model, err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini: %s: %w", m.model, ErrEmptyResponse)
	}
	return text, nil
}
