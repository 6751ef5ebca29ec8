package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/phuslu/log"

	"github.com/ryosukesatoh/daily-digest/internal/config"
	"github.com/ryosukesatoh/daily-digest/internal/item"
	"github.com/ryosukesatoh/daily-digest/internal/keyset"
)

var hfPaperIDRegex = regexp.MustCompile(`/papers/(\d+\.\d+)`)

// HFPapersFetcher scrapes the Hugging Face daily papers page and downloads the
// PDF of every paper not seen before.
type HFPapersFetcher struct {
	httpSource
	pageURL   string
	pdfURL    string
	absURL    string
	pdfDir    string
	validate  func(path string) (int, error)
	maxPapers int
}

func NewHFPapersFetcher(src config.SourceConfig, documentsDir string, logger *log.Logger) *HFPapersFetcher {
	pageURL := src.URL
	if pageURL == "" {
		pageURL = "https://huggingface.co/papers"
	}
	return &HFPapersFetcher{
		httpSource: newHTTPSource(logger),
		pageURL:    pageURL,
		pdfURL:     src.Option("pdf_url", "https://arxiv.org/pdf"),
		absURL:     src.Option("abs_url", "https://arxiv.org/abs"),
		pdfDir:     filepath.Join(documentsDir, "hf_pdfs"),
		validate:   pdfPageCount,
		maxPapers:  src.MaxResults,
	}
}

func (f *HFPapersFetcher) Fetch(ctx context.Context, known keyset.Set) ([]item.Item, error) {
	body, err := f.get(ctx, f.pageURL)
	if err != nil {
		return nil, fmt.Errorf("hf_papers: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("hf_papers: failed to parse page: %w", err)
	}
	if err := os.MkdirAll(f.pdfDir, 0o755); err != nil {
		return nil, fmt.Errorf("hf_papers: failed to create %s: %w", f.pdfDir, err)
	}

	seen := keyset.Set{}
	var items []item.Item
	doc.Find("div.w-full").EachWithBreak(func(_ int, paper *goquery.Selection) bool {
		if f.maxPapers > 0 && len(items) >= f.maxPapers {
			return false
		}
		titleTag := paper.Find("a.line-clamp-3").First()
		if titleTag.Length() == 0 {
			return true
		}
		href, _ := titleTag.Attr("href")
		m := hfPaperIDRegex.FindStringSubmatch(href)
		if m == nil {
			f.logger.Debug().Str("href", href).Msg("no arxiv id in paper link")
			return true
		}
		id := m[1]
		link := fmt.Sprintf("%s/%s", f.absURL, id)
		if seen.Has(id) || known.Has(id) || known.Has(link) {
			return true
		}
		seen.Add(id)

		var authors []string
		paper.Find("li[title]").Each(func(_ int, li *goquery.Selection) {
			if a, ok := li.Attr("title"); ok && strings.TrimSpace(a) != "" {
				authors = append(authors, strings.TrimSpace(a))
			}
		})

		path, err := f.download(ctx, id)
		if err != nil {
			f.logger.Warn().Str("id", id).Err(err).Msg("failed to download paper")
			return ctx.Err() == nil
		}

		items = append(items, item.Item{
			ID:      id,
			Title:   collapseSpaces(titleTag.Text()),
			Link:    link,
			Payload: item.Document{Authors: strings.Join(authors, ", "), Path: path},
		})
		return true
	})
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("hf_papers: %w", err)
	}

	f.logger.Info().Int("papers", len(items)).Msg("fetched hugging face papers")
	return items, nil
}

// download stores the PDF of paper id and checks it parses.
func (f *HFPapersFetcher) download(ctx context.Context, id string) (string, error) {
	data, err := f.get(ctx, fmt.Sprintf("%s/%s.pdf", f.pdfURL, id))
	if err != nil {
		return "", err
	}
	path := filepath.Join(f.pdfDir, id+".pdf")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	pages, err := f.validate(path)
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("invalid pdf: %w", err)
	}
	f.logger.Debug().Str("id", id).Int("pages", pages).Msg("downloaded paper")
	return path, nil
}

func pdfPageCount(path string) (int, error) {
	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return 0, err
	}
	return ctx.PageCount, nil
}
