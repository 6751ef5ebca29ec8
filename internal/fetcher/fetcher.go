// Package fetcher holds the source adapters that produce freshly harvested
// items.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/phuslu/log"

	"github.com/ryosukesatoh/daily-digest/internal/config"
	"github.com/ryosukesatoh/daily-digest/internal/item"
	"github.com/ryosukesatoh/daily-digest/internal/keyset"
	"github.com/ryosukesatoh/daily-digest/internal/logging"
	"github.com/ryosukesatoh/daily-digest/internal/retry"
)

// Fetcher harvests the current items of a source. known holds the identity
// values already persisted, letting adapters skip expensive work (downloads,
// article pages) for items that will be filtered out anyway.
type Fetcher interface {
	Fetch(ctx context.Context, known keyset.Set) ([]item.Item, error)
}

// ErrUnsupportedFetcherType is returned when an unsupported fetcher type is specified
var ErrUnsupportedFetcherType = errors.New("unsupported fetcher type")

const userAgent = "daily-digest/1.0 (+https://github.com/ryosukesatoh/daily-digest)"

// New creates the adapter for a configured source.
func New(src config.SourceConfig, documentsDir string, logger *log.Logger) (Fetcher, error) {
	logger = logging.With(logging.Component(logger, "fetcher"), "source", src.ID)
	switch src.Type {
	case config.SourceArxiv:
		return NewArxivFetcher(src, logger), nil
	case config.SourceHFPapers:
		return NewHFPapersFetcher(src, documentsDir, logger), nil
	case config.SourceActuIA:
		return NewActuIAFetcher(src, logger), nil
	case config.SourceYouTube:
		return NewYouTubeFetcher(src, logger), nil
	case config.SourceInsuranceTimes:
		return NewInsuranceTimesFetcher(src, logger), nil
	default:
		return nil, fmt.Errorf("fetcher: %w %q", ErrUnsupportedFetcherType, src.Type)
	}
}

// httpSource is the HTTP plumbing shared by the adapters.
type httpSource struct {
	client      *http.Client
	retryConfig retry.Config
	logger      *log.Logger
}

func newHTTPSource(logger *log.Logger) httpSource {
	cfg := retry.DefaultConfig()
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.Warn().Int("attempt", attempt).Dur("backoff", delay).Err(err).Msg("retrying request")
	}
	return httpSource{
		client:      &http.Client{Timeout: 30 * time.Second},
		retryConfig: cfg,
		logger:      logger,
	}
}

// get fetches url with retries and returns the response body.
func (h *httpSource) get(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := retry.WithBackoff(ctx, h.retryConfig, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := h.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if err := retry.CheckStatus(resp); err != nil {
			return err
		}
		body, err = io.ReadAll(resp.Body)
		return err
	})
	return body, err
}

// limit truncates items to max when max is positive.
func limit(items []item.Item, max int) []item.Item {
	if max > 0 && len(items) > max {
		return items[:max]
	}
	return items
}
