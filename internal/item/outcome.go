package item

// FailureSentinel is recorded in place of a summary when both models fail.
const FailureSentinel = "SUMMARIZATION_FAILED: Both LLM models failed to generate a summary for this item."

// OutcomeKind classifies the result of summarizing an item.
type OutcomeKind int

const (
	Summarized OutcomeKind = iota
	Failed
	Skipped
)

func (k OutcomeKind) String() string {
	switch k {
	case Summarized:
		return "summarized"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	}
	return "unknown"
}

// Outcome is the summary attached to an item.
type Outcome struct {
	Kind OutcomeKind
	Text string
}

// NewSummarized returns a successful outcome carrying text.
func NewSummarized(text string) *Outcome {
	return &Outcome{Kind: Summarized, Text: text}
}

// NewFailed returns the outcome recorded when every model failed.
func NewFailed() *Outcome {
	return &Outcome{Kind: Failed, Text: FailureSentinel}
}

// NewSkipped returns the null outcome used when summarization is disabled.
func NewSkipped() *Outcome {
	return &Outcome{Kind: Skipped}
}
