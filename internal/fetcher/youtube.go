package fetcher

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"

	"github.com/phuslu/log"

	"github.com/ryosukesatoh/daily-digest/internal/config"
	"github.com/ryosukesatoh/daily-digest/internal/item"
	"github.com/ryosukesatoh/daily-digest/internal/keyset"
)

// YouTube channel feed XML structures

type youtubeFeed struct {
	XMLName xml.Name       `xml:"feed"`
	Title   string         `xml:"title"`
	Entries []youtubeEntry `xml:"entry"`
}

type youtubeEntry struct {
	VideoID   string        `xml:"http://www.youtube.com/xml/schemas/2015 videoId"`
	Title     string        `xml:"title"`
	Published string        `xml:"published"`
	Author    youtubeAuthor `xml:"author"`
	Group     youtubeGroup  `xml:"http://search.yahoo.com/mrss/ group"`
}

type youtubeAuthor struct {
	Name string `xml:"name"`
}

type youtubeGroup struct {
	Description string `xml:"http://search.yahoo.com/mrss/ description"`
	Thumbnail   struct {
		URL string `xml:"url,attr"`
	} `xml:"http://search.yahoo.com/mrss/ thumbnail"`
}

// transcriptUnavailable is recorded until a transcript provider is wired in.
const transcriptUnavailable = "N/A"

// YouTubeFetcher reads the latest uploads of a channel from its public feed.
type YouTubeFetcher struct {
	httpSource
	feedURL   string
	category  item.Category
	maxVideos int
}

func NewYouTubeFetcher(src config.SourceConfig, logger *log.Logger) *YouTubeFetcher {
	base := src.URL
	if base == "" {
		base = "https://www.youtube.com/feeds/videos.xml"
	}
	return &YouTubeFetcher{
		httpSource: newHTTPSource(logger),
		feedURL:    base + "?channel_id=" + url.QueryEscape(src.Option("channel_id", "")),
		category:   item.Category(src.Option("category", string(item.CategoryTechno))),
		maxVideos:  src.MaxResults,
	}
}

func (f *YouTubeFetcher) Fetch(ctx context.Context, _ keyset.Set) ([]item.Item, error) {
	body, err := f.get(ctx, f.feedURL)
	if err != nil {
		return nil, fmt.Errorf("youtube: %w", err)
	}

	var feed youtubeFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("youtube: failed to parse feed: %w", err)
	}

	items := make([]item.Item, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		if entry.VideoID == "" {
			continue
		}
		channel := strings.TrimSpace(entry.Author.Name)
		if channel == "" {
			channel = strings.TrimSpace(feed.Title)
		}
		date := strings.TrimSpace(entry.Published)
		if len(date) >= 10 {
			date = date[:10]
		}

		items = append(items, item.Item{
			ID:           entry.VideoID,
			Title:        strings.TrimSpace(entry.Title),
			Link:         "https://www.youtube.com/watch?v=" + entry.VideoID,
			Date:         date,
			ThumbnailURL: entry.Group.Thumbnail.URL,
			Payload: item.Transcript{
				ChannelName: channel,
				Description: strings.TrimSpace(entry.Group.Description),
				Transcript:  transcriptUnavailable,
				Category:    f.category,
			},
		})
	}
	items = limit(items, f.maxVideos)

	f.logger.Info().Int("videos", len(items)).Msg("fetched youtube uploads")
	return items, nil
}
