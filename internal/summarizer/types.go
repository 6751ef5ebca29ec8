package summarizer

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned by a model that answered without usable text.
var ErrEmptyResponse = errors.New("summarizer: empty response")

// Attachment is binary content sent alongside the prompt text.
type Attachment struct {
	MIMEType string
	Data     []byte
}

// Prompt is what a model is asked to summarize.
type Prompt struct {
	Text     string
	Document *Attachment
}

// Model generates a summary for a prompt.
type Model interface {
	Name() string
	Generate(ctx context.Context, p Prompt) (string, error)
}
