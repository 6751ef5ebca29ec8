// Package publisher hands the digest of a processed batch to its recipients.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phuslu/log"

	"github.com/ryosukesatoh/daily-digest/internal/config"
	"github.com/ryosukesatoh/daily-digest/internal/digest"
	"github.com/ryosukesatoh/daily-digest/internal/logging"
)

// Notification is the hand-off for one non-empty batch of a source.
type Notification struct {
	Source     string
	Recipients []string
	Subject    string
	// Body is the HTML rendering of Digest.
	Body   string
	Digest *digest.Digest
	Date   time.Time
}

// Publisher publishes a notification to some output destination.
type Publisher interface {
	Publish(ctx context.Context, n *Notification) error
}

// ErrUnsupportedPublisherType is returned for an unknown publisher type.
var ErrUnsupportedPublisherType = errors.New("unsupported publisher type")

// Subject formats the notification subject, e.g.
// "[Techno Monitoring] Hugging Face Papers - 2025-01-15".
func Subject(category, sourceName string, date time.Time) string {
	return fmt.Sprintf("%s %s - %s", category, sourceName, date.Format("2006-01-02"))
}

// FromConfig builds the enabled publishers in configuration order.
func FromConfig(cfg config.PublisherConfig, logger *log.Logger) ([]Publisher, error) {
	logger = logging.Component(logger, "publisher")
	pubs := make([]Publisher, 0, len(cfg.Types))
	for _, t := range cfg.Types {
		switch t {
		case "stdout":
			pubs = append(pubs, NewStdoutPublisher())
		case "email":
			pubs = append(pubs, NewEmailPublisher(cfg.Email, logger))
		case "discord":
			pubs = append(pubs, NewDiscordPublisher(cfg.Discord.WebhookURL))
		case "web":
			pubs = append(pubs, NewWebPublisher(cfg.Web.Addr, logger))
		default:
			return nil, fmt.Errorf("publisher: %w %q", ErrUnsupportedPublisherType, t)
		}
	}
	return pubs, nil
}
