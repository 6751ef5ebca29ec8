package summarizer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/phuslu/log"
	"golang.org/x/time/rate"

	"github.com/ryosukesatoh/daily-digest/internal/item"
	"github.com/ryosukesatoh/daily-digest/internal/logging"
)

// Options tune one batch.
type Options struct {
	// Summarize false records a null outcome for every item without calling
	// any model.
	Summarize bool
	// Delay is the minimum pause between the end of one model-backed item and
	// the start of the next.
	Delay time.Duration
	// Template overrides the modality template (a name registered with
	// Prompts.Add).
	Template string
}

// Orchestrator attaches exactly one outcome to every item of a batch, asking
// the primary model first and the secondary one when the primary fails.
type Orchestrator struct {
	primary     Model
	secondary   Model
	prompts     *Prompts
	callTimeout time.Duration
	logger      *log.Logger
	remove      func(string) error
}

func NewOrchestrator(primary, secondary Model, prompts *Prompts, callTimeout time.Duration, logger *log.Logger) *Orchestrator {
	return &Orchestrator{
		primary:     primary,
		secondary:   secondary,
		prompts:     prompts,
		callTimeout: callTimeout,
		logger:      logging.Component(logger, "summarizer"),
		remove:      os.Remove,
	}
}

// Process returns a copy of items with their outcome set, in the same order.
// Items are handled one at a time. A failing item never stops the batch; the
// only error is ctx ending, in which case nothing should be persisted.
func (o *Orchestrator) Process(ctx context.Context, items []item.Item, opts Options) ([]item.Item, error) {
	out := make([]item.Item, len(items))
	copy(out, items)

	if !opts.Summarize {
		for i := range out {
			out[i].Outcome = item.NewSkipped()
			o.logger.Debug().Str("title", out[i].Title).Msg("summarization disabled, item kept without summary")
		}
		return out, nil
	}

	p := newPacer(opts.Delay)
	build := func(it item.Item) (Prompt, error) {
		return o.prompts.Build(it, opts.Template)
	}

	for i := range out {
		if err := p.wait(ctx); err != nil {
			return nil, fmt.Errorf("summarizer: batch interrupted at item %d/%d: %w", i+1, len(out), err)
		}

		it := &out[i]
		start := time.Now()
		text, model, err := WithFallback(ctx, *it, build, o.call, o.primary, o.secondary)
		p.rearm()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("summarizer: batch interrupted at item %d/%d: %w", i+1, len(out), ctx.Err())
		}
		if err != nil {
			it.Outcome = item.NewFailed()
			o.logger.Warn().Str("title", it.Title).Err(err).Msg("summarization failed with both models")
			continue
		}

		it.Outcome = item.NewSummarized(normalizeSummary(text))
		o.logger.Info().Str("title", it.Title).Str("model", model).Dur("took", time.Since(start)).Msg("item summarized")

		if doc, ok := it.Payload.(item.Document); ok && doc.Path != "" {
			o.removeDocument(doc.Path)
		}
	}
	return out, nil
}

// call applies the per-call deadline and logs a primary failure.
func (o *Orchestrator) call(ctx context.Context, tier int, m Model, p Prompt) (string, error) {
	if m == nil {
		return "", errors.New("summarizer: model not configured")
	}
	callCtx := ctx
	if o.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.callTimeout)
		defer cancel()
	}

	text, err := m.Generate(callCtx, p)
	if err == nil && strings.TrimSpace(text) == "" {
		err = fmt.Errorf("%s: %w", m.Name(), ErrEmptyResponse)
	}
	if err != nil && tier == 0 {
		o.logger.Warn().Str("model", m.Name()).Err(err).Msg("primary model failed, trying secondary")
	}
	return text, err
}

// pacer keeps at least gap between the end of one model-backed item and the
// start of the next. The first item starts immediately.
type pacer struct {
	limit   rate.Limit
	limiter *rate.Limiter
}

func newPacer(gap time.Duration) *pacer {
	limit := rate.Every(gap)
	return &pacer{limit: limit, limiter: rate.NewLimiter(limit, 1)}
}

func (p *pacer) wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// rearm restarts the gap from now by draining the single token.
func (p *pacer) rearm() {
	p.limiter = rate.NewLimiter(p.limit, 1)
	p.limiter.Allow()
}

func (o *Orchestrator) removeDocument(path string) {
	if err := o.remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		o.logger.Warn().Str("path", path).Err(err).Msg("failed to remove document")
	}
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

func normalizeSummary(s string) string {
	return strings.TrimSpace(lineBreaks.Replace(s))
}
