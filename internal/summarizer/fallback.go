package summarizer

import (
	"context"
	"errors"
	"fmt"
)

// PromptBuilder turns a subject into a prompt.
type PromptBuilder[T any] func(T) (Prompt, error)

// Caller asks a model for text. tier is the position of m in the fallback
// chain, 0 for the primary. It returns an error for anything unusable,
// including an empty answer.
type Caller func(ctx context.Context, tier int, m Model, p Prompt) (string, error)

// WithFallback builds the prompt for subject once and asks each model in
// order until one answers. It returns the text and the name of the model that
// produced it, or the joined errors of every attempt.
func WithFallback[T any](ctx context.Context, subject T, build PromptBuilder[T], call Caller, models ...Model) (string, string, error) {
	prompt, err := build(subject)
	if err != nil {
		return "", "", fmt.Errorf("summarizer: build prompt: %w", err)
	}

	var errs []error
	for tier, m := range models {
		text, err := call(ctx, tier, m, prompt)
		if err == nil {
			return text, m.Name(), nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return "", "", errors.New("summarizer: no model configured")
	}
	return "", "", errors.Join(errs...)
}
