package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ryosukesatoh/daily-digest/internal/config"
	"github.com/ryosukesatoh/daily-digest/internal/item"
	"github.com/ryosukesatoh/daily-digest/internal/logging"
)

const sampleAtomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/1234.5678v1</id>
    <title>  Sample Paper
      Title  </title>
    <summary>  This is the abstract
      of the paper.  </summary>
    <author><name> Alice </name></author>
    <author><name> Bob </name></author>
    <link href="http://arxiv.org/abs/1234.5678v1" rel="alternate" type="text/html"/>
    <link href="http://arxiv.org/pdf/1234.5678v1" title="pdf" type="application/pdf"/>
    <published>2025-01-15T00:00:00Z</published>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2345.6789v2</id>
    <title>Another Paper</title>
    <summary>Second abstract.</summary>
    <author><name>Charlie</name></author>
    <link href="http://arxiv.org/abs/2345.6789v2" rel="alternate" type="text/html"/>
    <published>2025-01-14T00:00:00Z</published>
  </entry>
</feed>`

func newTestArxivFetcher(baseURL string, opts map[string]string) *ArxivFetcher {
	f := NewArxivFetcher(config.SourceConfig{ID: "arxiv", URL: baseURL, MaxResults: 10, Options: opts}, logging.Discard())
	f.retryConfig.MaxRetries = 0
	return f
}

func TestFetchParsesAtomFeed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(sampleAtomFeed))
	}))
	defer ts.Close()

	items, err := newTestArxivFetcher(ts.URL, nil).Fetch(context.Background(), nil)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}

	it := items[0]
	if it.Title != "Sample Paper Title" {
		t.Errorf("Expected collapsed title 'Sample Paper Title', got %q", it.Title)
	}
	if it.Link != "http://arxiv.org/abs/1234.5678v1" {
		t.Errorf("Expected alternate link, got %q", it.Link)
	}
	if it.ID != "1234.5678v1" {
		t.Errorf("Expected id '1234.5678v1', got %q", it.ID)
	}
	if it.Date != "2025-01-15" {
		t.Errorf("Unexpected date: %q", it.Date)
	}
	text, ok := it.Payload.(item.Text)
	if !ok {
		t.Fatalf("Expected text payload, got %T", it.Payload)
	}
	if text.Author != "Alice, Bob" {
		t.Errorf("Expected joined authors, got %q", text.Author)
	}
	if text.Content != "This is the abstract of the paper." {
		t.Errorf("Expected collapsed abstract, got %q", text.Content)
	}

	if items[1].Title != "Another Paper" {
		t.Errorf("Expected 'Another Paper', got %q", items[1].Title)
	}
}

func TestFetchQueryParameters(t *testing.T) {
	var receivedQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><feed xmlns="http://www.w3.org/2005/Atom"></feed>`))
	}))
	defer ts.Close()

	f := newTestArxivFetcher(ts.URL, map[string]string{"query": "all:quantum computing"})
	f.maxResults = 5
	items, err := f.Fetch(context.Background(), nil)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Expected no items, got %d", len(items))
	}

	for _, want := range []string{"search_query=all%3Aquantum+computing", "max_results=5", "sortBy=submittedDate", "sortOrder=descending"} {
		if !strings.Contains(receivedQuery, want) {
			t.Errorf("Expected query to contain %q, got %q", want, receivedQuery)
		}
	}
}

func TestFetchDefaultQuery(t *testing.T) {
	f := newTestArxivFetcher("", nil)
	if f.baseURL != "http://export.arxiv.org/api/query" {
		t.Errorf("Unexpected default base URL %q", f.baseURL)
	}
	if f.query != defaultArxivQuery {
		t.Errorf("Unexpected default query %q", f.query)
	}
}

func TestFetchBadStatusCode(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := newTestArxivFetcher(ts.URL, nil).Fetch(context.Background(), nil)
	if err == nil {
		t.Fatal("Expected error for 500 status code")
	}
}

func TestFetchInvalidXML(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not xml at all <<<"))
	}))
	defer ts.Close()

	_, err := newTestArxivFetcher(ts.URL, nil).Fetch(context.Background(), nil)
	if err == nil {
		t.Fatal("Expected error for invalid XML")
	}
}

func TestArxivID(t *testing.T) {
	tests := map[string]string{
		"http://arxiv.org/abs/2501.01234v1":     "2501.01234v1",
		"http://arxiv.org/pdf/2501.01234v2.pdf": "2501.01234v2",
		"https://example.com/other":             "",
	}
	for link, want := range tests {
		if got := arxivID(link); got != want {
			t.Errorf("arxivID(%q) = %q, want %q", link, got, want)
		}
	}
}
