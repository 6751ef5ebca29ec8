package publisher

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/phuslu/log"
)

type webEntry struct {
	Source  string
	Subject string
	Rows    int
	Updated time.Time
	body    string
}

var webIndex = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Daily Digest</title></head>
<body style="font-family:sans-serif">
<h1>Daily Digest</h1>
{{- if not .}}
<p>No digest available yet. Check back later.</p>
{{- else}}
<ul>
{{- range .}}
<li><a href="/{{.Source}}">{{.Subject}}</a> ({{.Rows}} new, updated {{.Updated.Format "2006-01-02 15:04"}})</li>
{{- end}}
</ul>
{{- end}}
</body></html>
`))

// WebPublisher serves the latest digest of every source over HTTP.
type WebPublisher struct {
	addr   string
	server *http.Server
	logger *log.Logger

	mu     sync.RWMutex
	latest map[string]webEntry
}

func NewWebPublisher(addr string, logger *log.Logger) *WebPublisher {
	wp := &WebPublisher{addr: addr, logger: logger, latest: make(map[string]webEntry)}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", wp.handleIndex)
	mux.HandleFunc("GET /{source}", wp.handleSource)
	wp.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return wp
}

// Handler returns the HTTP handler, for embedding or tests.
func (wp *WebPublisher) Handler() http.Handler {
	return wp.server.Handler
}

// Start begins serving HTTP in the background. Call Shutdown to stop.
func (wp *WebPublisher) Start() error {
	ln, err := net.Listen("tcp", wp.addr)
	if err != nil {
		return fmt.Errorf("web: failed to listen on %s: %w", wp.addr, err)
	}
	go func() {
		wp.logger.Info().Str("addr", ln.Addr().String()).Msg("web publisher listening")
		if err := wp.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			wp.logger.Error().Err(err).Msg("web publisher stopped")
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (wp *WebPublisher) Shutdown(ctx context.Context) error {
	return wp.server.Shutdown(ctx)
}

func (wp *WebPublisher) Publish(_ context.Context, n *Notification) error {
	updated := n.Date
	if updated.IsZero() {
		updated = time.Now()
	}
	wp.mu.Lock()
	wp.latest[n.Source] = webEntry{
		Source:  n.Source,
		Subject: n.Subject,
		Rows:    n.Digest.Len(),
		Updated: updated,
		body:    n.Body,
	}
	wp.mu.Unlock()
	wp.logger.Info().Str("source", n.Source).Msg("web publisher updated")
	return nil
}

func (wp *WebPublisher) handleIndex(w http.ResponseWriter, r *http.Request) {
	wp.mu.RLock()
	entries := make([]webEntry, 0, len(wp.latest))
	for _, e := range wp.latest {
		entries = append(entries, e)
	}
	wp.mu.RUnlock()
	sort.Slice(entries, func(i, j int) bool { return entries[i].Source < entries[j].Source })

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := webIndex.Execute(w, entries); err != nil {
		wp.logger.Error().Err(err).Msg("failed to render index")
	}
}

func (wp *WebPublisher) handleSource(w http.ResponseWriter, r *http.Request) {
	wp.mu.RLock()
	e, ok := wp.latest[r.PathValue("source")]
	wp.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, e.body)
}
