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

// InsuranceTimesFetcher scrapes an Insurance Times UK section page (home,
// news, a topic) and reads the body of every new article.
type InsuranceTimesFetcher struct {
	httpSource
	listURL     string
	maxArticles int
}

func NewInsuranceTimesFetcher(src config.SourceConfig, logger *log.Logger) *InsuranceTimesFetcher {
	base := src.URL
	if base == "" {
		base = "https://www.insurancetimes.co.uk"
	}
	listURL := strings.TrimSuffix(base, "/") + "/"
	if domain := strings.Trim(src.Option("domain", ""), "/"); domain != "" {
		listURL += domain + "/"
	}
	return &InsuranceTimesFetcher{
		httpSource:  newHTTPSource(logger),
		listURL:     listURL,
		maxArticles: src.MaxResults,
	}
}

func (f *InsuranceTimesFetcher) Fetch(ctx context.Context, known keyset.Set) ([]item.Item, error) {
	body, err := f.get(ctx, f.listURL)
	if err != nil {
		return nil, fmt.Errorf("insurance_times: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("insurance_times: failed to parse listing: %w", err)
	}
	base, err := url.Parse(f.listURL)
	if err != nil {
		return nil, fmt.Errorf("insurance_times: bad listing url: %w", err)
	}

	seen := keyset.Set{}
	var items []item.Item
	doc.Find("div.spinLayout.thumb.onecol.hasPicture").EachWithBreak(func(_ int, teaser *goquery.Selection) bool {
		if f.maxArticles > 0 && len(items) >= f.maxArticles {
			return false
		}
		titleTag := teaser.Find("a:not([class])").FilterFunction(func(_ int, a *goquery.Selection) bool {
			return strings.TrimSpace(a.Text()) != ""
		}).First()
		title := collapseSpaces(titleTag.Text())
		href, _ := titleTag.Attr("href")
		link, ok := sameSiteURL(base, href)
		if title == "" || !ok {
			f.logger.Debug().Str("href", href).Msg("skipping teaser without a usable article link")
			return true
		}
		if seen.Has(link) || known.Has(link) {
			return true
		}
		seen.Add(link)

		thumbnail, _ := teaser.Find("img.lazyloaded").First().Attr("src")
		if thumbnail == "" {
			thumbnail, _ = teaser.Find("img").First().Attr("src")
		}
		author := teaserAuthor(teaser)
		date := strings.TrimSpace(teaser.Find("span.date").First().Text())

		page, err := f.article(ctx, link)
		if err != nil {
			f.logger.Warn().Str("link", link).Err(err).Msg("failed to read article")
			if ctx.Err() != nil {
				return false
			}
		}
		if author == "" {
			author = page.author
		}
		if date == "" {
			date = page.date
		}

		items = append(items, item.Item{
			Title:        title,
			Link:         link,
			Date:         date,
			ThumbnailURL: thumbnail,
			Payload:      item.Text{Author: author, Content: page.content},
		})
		return true
	})
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("insurance_times: %w", err)
	}

	f.logger.Info().Int("articles", len(items)).Str("url", f.listURL).Msg("fetched insurance times articles")
	return items, nil
}

type articlePage struct {
	author  string
	date    string
	content string
}

// article reads an article page. Teasers often lack the byline or the date,
// so both are returned alongside the body converted to Markdown.
func (f *InsuranceTimesFetcher) article(ctx context.Context, link string) (articlePage, error) {
	var page articlePage
	body, err := f.get(ctx, link)
	if err != nil {
		return page, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return page, fmt.Errorf("parse article: %w", err)
	}
	page.author = teaserAuthor(doc.Selection)
	page.date = strings.TrimSpace(doc.Find("span.date").First().Text())

	content := doc.Find("div.articleContent").First()
	if content.Length() == 0 {
		return page, fmt.Errorf("no article body in %s", link)
	}
	content.Find("script, style, noscript").Remove()
	// "Read:" and "Explore" paragraphs link to other articles.
	content.Find("p").FilterFunction(func(_ int, p *goquery.Selection) bool {
		text := strings.TrimSpace(p.Text())
		return strings.HasPrefix(text, "Read:") || strings.HasPrefix(text, "Explore")
	}).Remove()

	md, err := htmltomarkdown.ConvertNode(content.Nodes[0])
	if err != nil {
		page.content = strings.TrimSpace(content.Text())
		return page, nil
	}
	page.content = strings.TrimSpace(string(md))
	return page, nil
}

// teaserAuthor reads the byline, either a linked author bio or a plain name.
func teaserAuthor(s *goquery.Selection) string {
	byline := s.Find("span.author").First()
	if byline.Length() == 0 {
		return ""
	}
	if a := byline.Find("a:not([class])").First(); a.Length() > 0 {
		return strings.TrimSpace(a.Text())
	}
	if plain := byline.Find("span.noLink").First(); plain.Length() > 0 {
		return strings.TrimSpace(plain.Text())
	}
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(byline.Text()), "By "))
}

// sameSiteURL resolves href against the listing and accepts any page of the
// same site other than its root.
func sameSiteURL(base *url.URL, href string) (string, bool) {
	if href == "" {
		return "", false
	}
	u, err := base.Parse(href)
	if err != nil || u.Host != base.Host || u.Path == "" || u.Path == "/" {
		return "", false
	}
	u.Fragment = ""
	return u.String(), true
}
