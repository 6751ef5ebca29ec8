package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/phuslu/log"
	"github.com/robfig/cron/v3"

	"github.com/ryosukesatoh/daily-digest/internal/config"
	"github.com/ryosukesatoh/daily-digest/internal/digest"
	"github.com/ryosukesatoh/daily-digest/internal/fetcher"
	"github.com/ryosukesatoh/daily-digest/internal/logging"
	"github.com/ryosukesatoh/daily-digest/internal/publisher"
	"github.com/ryosukesatoh/daily-digest/internal/runner"
	"github.com/ryosukesatoh/daily-digest/internal/store"
	"github.com/ryosukesatoh/daily-digest/internal/summarizer"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to config file (.yaml or .toml)")
	once := flag.Bool("once", false, "run the pipeline once and exit")
	only := flag.String("source", "", "comma-separated source ids to run (default: all)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to set up pipeline")
		return 1
	}

	var sources []string
	if *only != "" {
		sources = strings.Split(*only, ",")
	}

	// Start web server if configured
	if a.web != nil {
		if err := a.web.Start(); err != nil {
			logger.Error().Err(err).Msg("failed to start web publisher")
			return 1
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := a.web.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("web server shutdown error")
			}
		}()
	}

	// Single-run mode: run the pipeline once and exit
	if *once {
		logger.Info().Int("sources", len(cfg.Sources)).Msg("running digest (once mode)")
		if err := a.runner.Run(ctx, sources...); err != nil {
			logger.Error().Err(err).Msg("pipeline failed")
			return 1
		}
		logger.Info().Msg("done")
		return 0
	}

	// Run immediately on startup if configured
	if cfg.RunOnStart {
		logger.Info().Msg("running initial digest")
		if err := a.runner.Run(ctx, sources...); err != nil {
			logger.Error().Err(err).Msg("initial run failed")
		}
	}

	// Set up cron scheduler; a tick is skipped while a run is still in progress.
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err = c.AddFunc(cfg.Schedule, func() {
		logger.Info().Msg("cron triggered, running digest")
		if err := a.runner.Run(ctx, sources...); err != nil {
			logger.Error().Err(err).Msg("scheduled run failed")
		}
	})
	if err != nil {
		logger.Error().Err(err).Str("schedule", cfg.Schedule).Msg("failed to set up cron schedule")
		return 1
	}
	c.Start()
	logger.Info().Str("schedule", cfg.Schedule).Msg("scheduled digest")

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info().Msg("received signal, shutting down")

	// Graceful shutdown
	<-c.Stop().Done()
	logger.Info().Msg("shutdown complete")
	return 0
}

type app struct {
	runner *runner.Runner
	web    *publisher.WebPublisher
}

// setup wires the configured sources, models and publishers into a runner.
func setup(ctx context.Context, cfg *config.Config, logger *log.Logger) (*app, error) {
	prompts, err := summarizer.LoadPrompts(cfg.Templates.Dir)
	if err != nil {
		return nil, err
	}

	sources := make([]runner.Source, 0, len(cfg.Sources))
	summarize := false
	for _, src := range cfg.Sources {
		f, err := fetcher.New(src, cfg.DocumentsDir, logger)
		if err != nil {
			return nil, err
		}
		if src.Template != "" {
			if err := prompts.Add(src.Template); err != nil {
				return nil, err
			}
		}
		summarize = summarize || src.SummarizeEnabled()
		sources = append(sources, runner.Source{Config: src, Fetcher: f})
	}

	// Models are only needed when a source summarizes.
	var primary, secondary summarizer.Model
	if summarize {
		creds := summarizer.Credentials{
			GeminiAPIKey:    cfg.Models.GeminiAPIKey,
			AnthropicAPIKey: cfg.Models.AnthropicAPIKey,
		}
		if primary, err = summarizer.NewModel(ctx, cfg.Models.Primary, creds, cfg.Models.MaxTokens); err != nil {
			return nil, fmt.Errorf("primary model: %w", err)
		}
		if secondary, err = summarizer.NewModel(ctx, cfg.Models.Secondary, creds, cfg.Models.MaxTokens); err != nil {
			return nil, fmt.Errorf("secondary model: %w", err)
		}
	}
	orch := summarizer.NewOrchestrator(primary, secondary, prompts, cfg.Models.CallTimeoutDuration(), logger)

	pubs, err := publisher.FromConfig(cfg.Publisher, logger)
	if err != nil {
		return nil, err
	}
	a := &app{}
	for _, p := range pubs {
		if wp, ok := p.(*publisher.WebPublisher); ok {
			a.web = wp
		}
	}

	a.runner = runner.New(sources, store.New(cfg.DataDir), orch, pubs, cfg.Models.DelayDuration(), logger).
		WithLayout(digestLayout(cfg.Digest))
	return a, nil
}

// digestLayout applies the configured column overrides to the default layout.
func digestLayout(cfg config.DigestConfig) digest.Layout {
	cols := make(digest.Layout, len(cfg.Columns))
	for field, c := range cfg.Columns {
		cols[field] = digest.Column{Width: c.Width, Align: c.Align}
	}
	return digest.DefaultLayout().Override(cols)
}
