package summarizer

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicModel generates summaries with the Anthropic Messages API.
type AnthropicModel struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

func NewAnthropicModel(apiKey, model string, maxTokens int, opts ...option.RequestOption) *AnthropicModel {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicModel{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (m *AnthropicModel) Name() string { return m.model }

func (m *AnthropicModel) Generate(ctx context.Context, p Prompt) (string, error) {
	blocks := []anthropic.ContentBlockParamUnion{}
	if p.Document != nil {
		encoded := base64.StdEncoding.EncodeToString(p.Document.Data)
		blocks = append(blocks, anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{Data: encoded}))
	}
	blocks = append(blocks, anthropic.NewTextBlock(p.Text))

	resp, err := m.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(m.model),
		MaxTokens: int64(m.maxTokens),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: %s: %w", m.model, err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", fmt.Errorf("anthropic: %s: %w", m.model, ErrEmptyResponse)
	}
	return text.String(), nil
}
