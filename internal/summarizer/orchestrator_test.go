package summarizer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryosukesatoh/daily-digest/internal/item"
	"github.com/ryosukesatoh/daily-digest/internal/logging"
)

// fakeModel answers from a per-title script.
type fakeModel struct {
	name    string
	answers map[string]string
	errs    map[string]error
	block   bool

	mu      sync.Mutex
	prompts []Prompt
}

func (m *fakeModel) Name() string { return m.name }

func (m *fakeModel) Generate(ctx context.Context, p Prompt) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, p)
	m.mu.Unlock()

	if m.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	for title, err := range m.errs {
		if containsTitle(p.Text, title) {
			return "", err
		}
	}
	for title, text := range m.answers {
		if containsTitle(p.Text, title) {
			return text, nil
		}
	}
	return "", errors.New("no scripted answer")
}

func (m *fakeModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

func containsTitle(prompt, title string) bool {
	return title != "" && strings.Contains(prompt, title)
}

func newTestOrchestrator(t *testing.T, primary, secondary Model) *Orchestrator {
	t.Helper()
	prompts, err := LoadPrompts("")
	require.NoError(t, err)
	return NewOrchestrator(primary, secondary, prompts, time.Second, logging.Discard())
}

func article(title string) item.Item {
	return item.Item{Title: title, Link: "https://example.com/" + title, Payload: item.Text{Content: "body of " + title}}
}

func TestProcessPrimarySucceeds(t *testing.T) {
	primary := &fakeModel{name: "p", answers: map[string]string{"alpha": "line one\nline two\r\nthree"}}
	secondary := &fakeModel{name: "s"}
	o := newTestOrchestrator(t, primary, secondary)

	out, err := o.Process(context.Background(), []item.Item{article("alpha")}, Options{Summarize: true})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, item.Summarized, out[0].Outcome.Kind)
	assert.Equal(t, "line one line two three", out[0].Outcome.Text)
	assert.Equal(t, 0, secondary.calls())
}

func TestProcessFallsBackToSecondary(t *testing.T) {
	primary := &fakeModel{name: "p", errs: map[string]error{"alpha": errors.New("quota exceeded")}}
	secondary := &fakeModel{name: "s", answers: map[string]string{"alpha": "from secondary"}}
	o := newTestOrchestrator(t, primary, secondary)

	out, err := o.Process(context.Background(), []item.Item{article("alpha")}, Options{Summarize: true})
	require.NoError(t, err)
	assert.Equal(t, "from secondary", out[0].Outcome.Text)
	assert.Equal(t, 1, primary.calls())
	assert.Equal(t, 1, secondary.calls())
	assert.Equal(t, primary.prompts[0], secondary.prompts[0])
}

func TestProcessEmptyPrimaryCountsAsFailure(t *testing.T) {
	primary := &fakeModel{name: "p", answers: map[string]string{"alpha": "  \n"}}
	secondary := &fakeModel{name: "s", answers: map[string]string{"alpha": "ok"}}
	o := newTestOrchestrator(t, primary, secondary)

	out, err := o.Process(context.Background(), []item.Item{article("alpha")}, Options{Summarize: true})
	require.NoError(t, err)
	assert.Equal(t, "ok", out[0].Outcome.Text)
}

func TestProcessBothFailRecordsSentinel(t *testing.T) {
	primary := &fakeModel{name: "p", errs: map[string]error{"alpha": errors.New("boom")}}
	secondary := &fakeModel{name: "s", errs: map[string]error{"alpha": errors.New("boom again")}}
	o := newTestOrchestrator(t, primary, secondary)

	out, err := o.Process(context.Background(), []item.Item{article("alpha")}, Options{Summarize: true})
	require.NoError(t, err)
	require.NotNil(t, out[0].Outcome)
	assert.Equal(t, item.Failed, out[0].Outcome.Kind)
	assert.Equal(t, item.FailureSentinel, out[0].Outcome.Text)
}

func TestProcessFailureDoesNotStopBatch(t *testing.T) {
	primary := &fakeModel{
		name:    "p",
		answers: map[string]string{"alpha": "sa", "gamma": "sc"},
		errs:    map[string]error{"beta": errors.New("boom")},
	}
	secondary := &fakeModel{name: "s", errs: map[string]error{"beta": errors.New("boom")}}
	o := newTestOrchestrator(t, primary, secondary)

	out, err := o.Process(context.Background(), []item.Item{article("alpha"), article("beta"), article("gamma")}, Options{Summarize: true})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "sa", out[0].Outcome.Text)
	assert.Equal(t, item.FailureSentinel, out[1].Outcome.Text)
	assert.Equal(t, "sc", out[2].Outcome.Text)
}

func TestProcessCallTimeoutCountsAsFailure(t *testing.T) {
	primary := &fakeModel{name: "p", block: true}
	secondary := &fakeModel{name: "s", answers: map[string]string{"alpha": "late but fine"}}
	prompts, err := LoadPrompts("")
	require.NoError(t, err)
	o := NewOrchestrator(primary, secondary, prompts, 20*time.Millisecond, logging.Discard())

	out, err := o.Process(context.Background(), []item.Item{article("alpha")}, Options{Summarize: true})
	require.NoError(t, err)
	assert.Equal(t, "late but fine", out[0].Outcome.Text)
}

func TestProcessDisabledRecordsNullWithoutCalls(t *testing.T) {
	primary := &fakeModel{name: "p"}
	secondary := &fakeModel{name: "s"}
	o := newTestOrchestrator(t, primary, secondary)

	out, err := o.Process(context.Background(), []item.Item{article("alpha"), article("beta")}, Options{Summarize: false})
	require.NoError(t, err)
	for _, it := range out {
		assert.Equal(t, item.Skipped, it.Outcome.Kind)
	}
	assert.Equal(t, 0, primary.calls())
	assert.Equal(t, 0, secondary.calls())
}

func TestProcessDisabledLogsEverySkippedItem(t *testing.T) {
	var buf bytes.Buffer
	prompts, err := LoadPrompts("")
	require.NoError(t, err)
	o := NewOrchestrator(&fakeModel{name: "p"}, &fakeModel{name: "s"}, prompts, time.Second, logging.New("debug", "json", &buf))

	_, err = o.Process(context.Background(), []item.Item{article("alpha"), article("beta")}, Options{Summarize: false})
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(buf.String(), "summarization disabled"))
	assert.Contains(t, buf.String(), `"title":"beta"`)
}

func TestProcessDoesNotMutateInput(t *testing.T) {
	primary := &fakeModel{name: "p", answers: map[string]string{"alpha": "x"}}
	o := newTestOrchestrator(t, primary, &fakeModel{name: "s"})

	in := []item.Item{article("alpha")}
	_, err := o.Process(context.Background(), in, Options{Summarize: true})
	require.NoError(t, err)
	assert.Nil(t, in[0].Outcome)
}

func TestProcessRemovesDocumentOnlyOnSuccess(t *testing.T) {
	dir := t.TempDir()
	okPath := filepath.Join(dir, "ok.pdf")
	failPath := filepath.Join(dir, "fail.pdf")
	require.NoError(t, os.WriteFile(okPath, []byte("%PDF-1.4 ok"), 0o644))
	require.NoError(t, os.WriteFile(failPath, []byte("%PDF-1.4 fail"), 0o644))

	primary := &fakeModel{name: "p", answers: map[string]string{"Good": "summary"}, errs: map[string]error{"Bad": errors.New("boom")}}
	secondary := &fakeModel{name: "s", errs: map[string]error{"Bad": errors.New("boom")}}
	o := newTestOrchestrator(t, primary, secondary)

	items := []item.Item{
		{Title: "Good", Link: "u1", Payload: item.Document{Path: okPath}},
		{Title: "Bad", Link: "u2", Payload: item.Document{Path: failPath}},
	}
	out, err := o.Process(context.Background(), items, Options{Summarize: true})
	require.NoError(t, err)

	assert.Equal(t, "summary", out[0].Outcome.Text)
	assert.NoFileExists(t, okPath)
	assert.FileExists(t, failPath)

	require.Len(t, primary.prompts, 2)
	require.NotNil(t, primary.prompts[0].Document)
	assert.Equal(t, "application/pdf", primary.prompts[0].Document.MIMEType)
	assert.Equal(t, []byte("%PDF-1.4 ok"), primary.prompts[0].Document.Data)
}

func TestProcessMissingDocumentIsFailedNotFatal(t *testing.T) {
	primary := &fakeModel{name: "p", answers: map[string]string{"Gone": "never used"}}
	o := newTestOrchestrator(t, primary, &fakeModel{name: "s"})

	items := []item.Item{{Title: "Gone", Link: "u1", Payload: item.Document{Path: filepath.Join(t.TempDir(), "missing.pdf")}}}
	out, err := o.Process(context.Background(), items, Options{Summarize: true})
	require.NoError(t, err)
	assert.Equal(t, item.Failed, out[0].Outcome.Kind)
	assert.Equal(t, 0, primary.calls())
}

func TestProcessAlreadyRemovedDocumentIsIgnored(t *testing.T) {
	primary := &fakeModel{name: "p", answers: map[string]string{"alpha": "fine"}}
	o := newTestOrchestrator(t, primary, &fakeModel{name: "s"})
	removed := 0
	o.remove = func(string) error {
		removed++
		return os.ErrNotExist
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "a.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o644))

	out, err := o.Process(context.Background(), []item.Item{{Title: "alpha", Link: "u", Payload: item.Document{Path: path}}}, Options{Summarize: true})
	require.NoError(t, err)
	assert.Equal(t, "fine", out[0].Outcome.Text)
	assert.Equal(t, 1, removed)
}

// slowModel takes a while to answer and records when each call ran.
type slowModel struct {
	took time.Duration

	mu     sync.Mutex
	starts []time.Time
	ends   []time.Time
}

func (m *slowModel) Name() string { return "slow" }

func (m *slowModel) Generate(ctx context.Context, _ Prompt) (string, error) {
	m.mu.Lock()
	m.starts = append(m.starts, time.Now())
	m.mu.Unlock()

	select {
	case <-time.After(m.took):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	m.mu.Lock()
	m.ends = append(m.ends, time.Now())
	m.mu.Unlock()
	return "summary", nil
}

func TestProcessPausesAfterEachItem(t *testing.T) {
	const delay = 100 * time.Millisecond
	primary := &slowModel{took: 120 * time.Millisecond}
	o := newTestOrchestrator(t, primary, &fakeModel{name: "s"})

	_, err := o.Process(context.Background(), []item.Item{article("alpha"), article("beta"), article("gamma")}, Options{Summarize: true, Delay: delay})
	require.NoError(t, err)

	require.Len(t, primary.starts, 3)
	require.Len(t, primary.ends, 3)
	for i := 0; i+1 < len(primary.starts); i++ {
		gap := primary.starts[i+1].Sub(primary.ends[i])
		assert.GreaterOrEqual(t, gap, delay, "pause before item %d", i+2)
	}
}

func TestProcessFirstItemStartsImmediately(t *testing.T) {
	primary := &slowModel{took: time.Millisecond}
	o := newTestOrchestrator(t, primary, &fakeModel{name: "s"})

	start := time.Now()
	_, err := o.Process(context.Background(), []item.Item{article("alpha")}, Options{Summarize: true, Delay: time.Second})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

// valueModel is a non-comparable Model value.
type valueModel struct {
	name     string
	failures []string
}

func (m valueModel) Name() string { return m.name }

func (m valueModel) Generate(context.Context, Prompt) (string, error) {
	return "", errors.New(strings.Join(m.failures, ", "))
}

func TestProcessNonComparablePrimaryFallsBack(t *testing.T) {
	primary := valueModel{name: "p", failures: []string{"quota"}}
	secondary := &fakeModel{name: "s", answers: map[string]string{"alpha": "from secondary"}}
	o := newTestOrchestrator(t, primary, secondary)

	var (
		out []item.Item
		err error
	)
	require.NotPanics(t, func() {
		out, err = o.Process(context.Background(), []item.Item{article("alpha")}, Options{Summarize: true})
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, item.Summarized, out[0].Outcome.Kind)
	assert.Equal(t, "from secondary", out[0].Outcome.Text)
}

func TestProcessCancelledReturnsError(t *testing.T) {
	primary := &fakeModel{name: "p", answers: map[string]string{"alpha": "a"}}
	o := newTestOrchestrator(t, primary, &fakeModel{name: "s"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := o.Process(ctx, []item.Item{article("alpha")}, Options{Summarize: true})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, out)
	assert.Equal(t, 0, primary.calls())
}
