// Package runner drives the per-source pipeline: fetch, keep the new items,
// summarize them, persist the batch and notify.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"

	"github.com/ryosukesatoh/daily-digest/internal/config"
	"github.com/ryosukesatoh/daily-digest/internal/digest"
	"github.com/ryosukesatoh/daily-digest/internal/fetcher"
	"github.com/ryosukesatoh/daily-digest/internal/item"
	"github.com/ryosukesatoh/daily-digest/internal/keyset"
	"github.com/ryosukesatoh/daily-digest/internal/logging"
	"github.com/ryosukesatoh/daily-digest/internal/publisher"
	"github.com/ryosukesatoh/daily-digest/internal/store"
	"github.com/ryosukesatoh/daily-digest/internal/summarizer"
)

// Summarizer attaches an outcome to every item of a batch.
type Summarizer interface {
	Process(ctx context.Context, items []item.Item, opts summarizer.Options) ([]item.Item, error)
}

// Source pairs a configured source with its adapter.
type Source struct {
	Config  config.SourceConfig
	Fetcher fetcher.Fetcher
}

// Result describes one source run.
type Result struct {
	Source    string
	Fetched   int
	New       int
	Failed    int
	Persisted int
	Notified  bool
}

// Runner orchestrates the fetch -> filter -> summarize -> commit -> publish
// pipeline for each source. A source must not be run concurrently with
// itself.
type Runner struct {
	sources    []Source
	store      *store.Store
	summarizer Summarizer
	publishers []publisher.Publisher
	delay      time.Duration
	layout     digest.Layout
	logger     *log.Logger
	now        func() time.Time
}

// New creates a runner. delay is the inter-item pacing used by sources that
// do not override it.
func New(sources []Source, st *store.Store, s Summarizer, pubs []publisher.Publisher, delay time.Duration, logger *log.Logger) *Runner {
	return &Runner{
		sources:    sources,
		store:      st,
		summarizer: s,
		publishers: pubs,
		delay:      delay,
		layout:     digest.DefaultLayout(),
		logger:     logging.Component(logger, "runner"),
		now:        time.Now,
	}
}

// WithLayout replaces the notification table layout.
func (r *Runner) WithLayout(l digest.Layout) *Runner {
	r.layout = l
	return r
}

// Run executes the pipeline once for every source, or only for the sources
// named in only. Sources run one after another; a failing source does not
// stop the others and the failures are returned joined.
func (r *Runner) Run(ctx context.Context, only ...string) error {
	want := keyset.Set{}
	for _, id := range only {
		want.Add(id)
	}

	var errs []error
	ran := 0
	for _, src := range r.sources {
		if len(want) > 0 && !want.Has(src.Config.ID) {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("runner: %s: %w", src.Config.ID, err))
			break
		}
		ran++
		if _, err := r.RunSource(ctx, src); err != nil {
			errs = append(errs, err)
		}
	}
	if len(want) > 0 && ran == 0 {
		return fmt.Errorf("runner: no configured source matches %v", only)
	}
	return errors.Join(errs...)
}

// RunSource executes the pipeline for one source. When nothing new was
// fetched it returns without writing or notifying. Cancellation before the
// commit leaves the dataset untouched.
func (r *Runner) RunSource(ctx context.Context, src Source) (*Result, error) {
	cfg := src.Config
	logger := logging.With(r.logger, "source", cfg.ID, "run_id", uuid.NewString())
	res := &Result{Source: cfg.ID}
	start := time.Now()

	ds, err := r.store.Load(cfg.ID, cfg.KeyField)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load dataset")
		return res, fmt.Errorf("runner: %s: %w", cfg.ID, err)
	}
	logger.Debug().Int("persisted", ds.Len()).Str("known", ds.Known.String()).Msg("dataset loaded")

	fetched, err := src.Fetcher.Fetch(ctx, ds.Known)
	if err != nil {
		logger.Error().Err(err).Msg("fetch failed")
		return res, fmt.Errorf("runner: %s: fetch failed: %w", cfg.ID, err)
	}
	res.Fetched = len(fetched)
	if res.Fetched > 0 && len(keyset.FromItems(fetched, cfg.KeyField)) == 0 {
		logger.Warn().Int("fetched", res.Fetched).Str("key_field", cfg.KeyField).Msg("no fetched item has the key field, all are dropped")
	}

	fresh := keyset.Filter(fetched, ds.Known, cfg.KeyField)
	res.New = len(fresh)
	logger.Info().Int("fetched", res.Fetched).Int("new", res.New).Msg("new items found")
	if len(fresh) == 0 {
		logger.Info().Msg("no new items, nothing to do")
		return res, nil
	}

	processed, err := r.summarizer.Process(ctx, fresh, summarizer.Options{
		Summarize: cfg.SummarizeEnabled(),
		Delay:     cfg.DelayDuration(r.delay),
		Template:  cfg.Template,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("run interrupted before commit, dataset unchanged")
		return res, fmt.Errorf("runner: %s: %w", cfg.ID, err)
	}
	for _, it := range processed {
		if it.Outcome != nil && it.Outcome.Kind == item.Failed {
			res.Failed++
		}
	}

	if err := r.store.Commit(ctx, ds, processed, cfg.KeyField); err != nil {
		logger.Error().Err(err).Msg("failed to persist dataset")
		return res, fmt.Errorf("runner: %s: %w", cfg.ID, err)
	}
	res.Persisted = ds.Len()
	logger.Info().Int("added", len(processed)).Int("failed", res.Failed).Int("persisted", res.Persisted).Str("path", r.store.Path(cfg.ID)).Msg("dataset updated")

	res.Notified = r.notify(ctx, logger, cfg, processed)
	logger.Info().Dur("took", time.Since(start)).Msg("source run completed")
	return res, nil
}

// notify renders the batch and hands it to every publisher. Failures are
// logged; the dataset is already committed.
func (r *Runner) notify(ctx context.Context, logger *log.Logger, cfg config.SourceConfig, processed []item.Item) bool {
	if len(r.publishers) == 0 {
		return false
	}

	now := r.now()
	d := digest.Render(processed, cfg.IgnoreFields, r.layout)
	subject := publisher.Subject(cfg.Category, cfg.Name, now)
	body, err := d.HTML(subject)
	if err != nil {
		logger.Error().Err(err).Msg("failed to render digest")
		return false
	}

	n := &publisher.Notification{
		Source:     cfg.ID,
		Recipients: cfg.Recipients,
		Subject:    subject,
		Body:       body,
		Digest:     d,
		Date:       now,
	}

	failures := 0
	for _, pub := range r.publishers {
		if err := pub.Publish(ctx, n); err != nil {
			failures++
			logger.Warn().Str("publisher", fmt.Sprintf("%T", pub)).Err(err).Msg("publish failed")
			continue
		}
		logger.Debug().Str("publisher", fmt.Sprintf("%T", pub)).Msg("published")
	}
	if failures > 0 {
		logger.Warn().Int("failed", failures).Int("publishers", len(r.publishers)).Msg("notification partially failed")
	}
	return true
}
