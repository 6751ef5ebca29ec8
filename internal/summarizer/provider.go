package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Provider identifies the API serving a model.
type Provider string

const (
	ProviderGemini    Provider = "gemini"
	ProviderAnthropic Provider = "anthropic"
)

// ErrUnsupportedModel is returned when no provider serves a model identifier.
var ErrUnsupportedModel = errors.New("unsupported model")

// DetectProvider infers the provider from a model identifier such as
// "gemini-2.5-pro", "claude-sonnet-4-5" or "anthropic/claude-haiku-4-5".
func DetectProvider(model string) (Provider, error) {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "claude-"), strings.HasPrefix(m, "anthropic/"):
		return ProviderAnthropic, nil
	case strings.HasPrefix(m, "gemini-"), strings.HasPrefix(m, "gemini/"), strings.HasPrefix(m, "google/"):
		return ProviderGemini, nil
	}
	return "", fmt.Errorf("summarizer: %w: %q", ErrUnsupportedModel, model)
}

// normalizeModel strips a provider prefix ("anthropic/claude-x" -> "claude-x").
func normalizeModel(model string) string {
	if i := strings.Index(model, "/"); i >= 0 {
		return model[i+1:]
	}
	return model
}

// Credentials holds the API keys for each provider.
type Credentials struct {
	GeminiAPIKey    string
	AnthropicAPIKey string
}

// NewModel builds the client serving model.
func NewModel(ctx context.Context, model string, creds Credentials, maxTokens int) (Model, error) {
	provider, err := DetectProvider(model)
	if err != nil {
		return nil, err
	}
	name := normalizeModel(model)

	switch provider {
	case ProviderAnthropic:
		if creds.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("summarizer: anthropic api key is required for %q", model)
		}
		return NewAnthropicModel(creds.AnthropicAPIKey, name, maxTokens), nil
	default:
		if creds.GeminiAPIKey == "" {
			return nil, fmt.Errorf("summarizer: gemini api key is required for %q", model)
		}
		return NewGeminiModel(ctx, creds.GeminiAPIKey, name, maxTokens, "")
	}
}
