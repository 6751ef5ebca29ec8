package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/phuslu/log"

	"github.com/ryosukesatoh/daily-digest/internal/config"
	"github.com/ryosukesatoh/daily-digest/internal/item"
	"github.com/ryosukesatoh/daily-digest/internal/keyset"
)

// ActuIAFetcher scrapes the article listing of an ActuIA domain and reads the
// body of every new article.
type ActuIAFetcher struct {
	httpSource
	listURL     string
	maxArticles int
}

func NewActuIAFetcher(src config.SourceConfig, logger *log.Logger) *ActuIAFetcher {
	base := src.URL
	if base == "" {
		base = "https://www.actuia.com/"
	}
	return &ActuIAFetcher{
		httpSource:  newHTTPSource(logger),
		listURL:     strings.TrimSuffix(base, "/") + "/" + strings.Trim(src.Option("domain", ""), "/") + "/",
		maxArticles: src.MaxResults,
	}
}

func (f *ActuIAFetcher) Fetch(ctx context.Context, known keyset.Set) ([]item.Item, error) {
	body, err := f.get(ctx, f.listURL)
	if err != nil {
		return nil, fmt.Errorf("actuia: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("actuia: failed to parse listing: %w", err)
	}
	base, err := url.Parse(f.listURL)
	if err != nil {
		return nil, fmt.Errorf("actuia: bad listing url: %w", err)
	}

	seen := keyset.Set{}
	var items []item.Item
	doc.Find("div.td_module_16.td_module_wrap").EachWithBreak(func(_ int, article *goquery.Selection) bool {
		if f.maxArticles > 0 && len(items) >= f.maxArticles {
			return false
		}
		titleTag := article.Find("h3.entry-title a").First()
		if titleTag.Length() == 0 {
			titleTag = article.Find(`a[rel="bookmark"]`).First()
		}
		title := collapseSpaces(titleTag.Text())
		if title == "" {
			title, _ = titleTag.Attr("title")
		}
		href, _ := titleTag.Attr("href")
		link, ok := articleURL(base, href)
		if title == "" || !ok {
			f.logger.Debug().Str("href", href).Msg("skipping listing entry without a usable article link")
			return true
		}
		if seen.Has(link) || known.Has(link) {
			return true
		}
		seen.Add(link)

		thumbnail, _ := article.Find("img.entry-thumb").First().Attr("src")
		author := strings.TrimSpace(strings.ReplaceAll(article.Find("span.td-post-author-name").First().Text(), "-", ""))
		date := strings.TrimSpace(article.Find("span.td-post-date").First().Text())

		content, err := f.articleContent(ctx, link)
		if err != nil {
			f.logger.Warn().Str("link", link).Err(err).Msg("failed to read article")
			if ctx.Err() != nil {
				return false
			}
		}

		items = append(items, item.Item{
			Title:        title,
			Link:         link,
			Date:         date,
			ThumbnailURL: thumbnail,
			Payload:      item.Text{Author: author, Content: content},
		})
		return true
	})
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("actuia: %w", err)
	}

	f.logger.Info().Int("articles", len(items)).Str("url", f.listURL).Msg("fetched actuia articles")
	return items, nil
}

// articleContent returns the article body converted to Markdown.
func (f *ActuIAFetcher) articleContent(ctx context.Context, link string) (string, error) {
	body, err := f.get(ctx, link)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse article: %w", err)
	}

	content := doc.Find("div.entry-content").First()
	if content.Length() == 0 {
		content = doc.Find("div.tdb-block-inner.td-fix-index").First()
	}
	if content.Length() == 0 {
		return "", fmt.Errorf("no article body in %s", link)
	}

	content.Find("script, style, noscript").Remove()
	md, err := htmltomarkdown.ConvertNode(content.Nodes[0])
	if err != nil {
		return strings.TrimSpace(content.Text()), nil
	}
	return strings.TrimSpace(string(md)), nil
}

// articleURL resolves href against the listing and accepts only article pages
// of the same site (paths ending with a slash).
func articleURL(base *url.URL, href string) (string, bool) {
	if href == "" {
		return "", false
	}
	u, err := base.Parse(href)
	if err != nil || u.Host != base.Host || !strings.HasSuffix(u.Path, "/") || u.Path == "/" {
		return "", false
	}
	u.Fragment = ""
	u.RawQuery = ""
	return u.String(), true
}
