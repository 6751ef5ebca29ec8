package fetcher

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/phuslu/log"

	"github.com/ryosukesatoh/daily-digest/internal/config"
	"github.com/ryosukesatoh/daily-digest/internal/item"
	"github.com/ryosukesatoh/daily-digest/internal/keyset"
)

// arXiv Atom feed XML structures

type arxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string        `xml:"id"`
	Title     string        `xml:"title"`
	Summary   string        `xml:"summary"`
	Authors   []arxivAuthor `xml:"author"`
	Links     []arxivLink   `xml:"link"`
	Published string        `xml:"published"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

type arxivLink struct {
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
	Rel  string `xml:"rel,attr"`
}

const defaultArxivQuery = "cat:cs.AI OR cat:cs.LG"

// ArxivFetcher fetches the latest submissions matching a query from the arXiv API.
type ArxivFetcher struct {
	httpSource
	baseURL    string
	query      string
	maxResults int
}

func NewArxivFetcher(src config.SourceConfig, logger *log.Logger) *ArxivFetcher {
	baseURL := src.URL
	if baseURL == "" {
		baseURL = "http://export.arxiv.org/api/query"
	}
	return &ArxivFetcher{
		httpSource: newHTTPSource(logger),
		baseURL:    baseURL,
		query:      src.Option("query", defaultArxivQuery),
		maxResults: src.MaxResults,
	}
}

func (f *ArxivFetcher) Fetch(ctx context.Context, _ keyset.Set) ([]item.Item, error) {
	query := url.Values{}
	query.Set("search_query", f.query)
	query.Set("start", "0")
	query.Set("max_results", fmt.Sprintf("%d", f.maxResults))
	query.Set("sortBy", "submittedDate")
	query.Set("sortOrder", "descending")

	body, err := f.get(ctx, fmt.Sprintf("%s?%s", f.baseURL, query.Encode()))
	if err != nil {
		return nil, fmt.Errorf("arxiv: %w", err)
	}

	var feed arxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("arxiv: failed to parse XML: %w", err)
	}

	items := make([]item.Item, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		authors := make([]string, len(entry.Authors))
		for i, a := range entry.Authors {
			authors[i] = strings.TrimSpace(a.Name)
		}

		var link string
		for _, l := range entry.Links {
			if l.Rel == "alternate" || (l.Type == "text/html" && link == "") {
				link = l.Href
			}
		}
		if link == "" && len(entry.Links) > 0 {
			link = entry.Links[0].Href
		}
		if link == "" {
			link = strings.TrimSpace(entry.ID)
		}

		var date string
		if published, err := time.Parse(time.RFC3339, strings.TrimSpace(entry.Published)); err == nil {
			date = published.Format("2006-01-02")
		}

		items = append(items, item.Item{
			ID:    arxivID(link),
			Title: collapseSpaces(entry.Title),
			Link:  link,
			Date:  date,
			Payload: item.Text{
				Author:  strings.Join(authors, ", "),
				Content: collapseSpaces(entry.Summary),
			},
		})
	}

	f.logger.Info().Int("entries", len(items)).Str("query", f.query).Msg("fetched arxiv entries")
	return items, nil
}

// arxivID extracts "2501.01234v1" from an abs or pdf URL.
func arxivID(link string) string {
	for _, marker := range []string{"/abs/", "/pdf/"} {
		if i := strings.LastIndex(link, marker); i >= 0 {
			return strings.TrimSuffix(link[i+len(marker):], ".pdf")
		}
	}
	return ""
}

// collapseSpaces joins the lines of s into one and trims it.
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
