package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/hyperifyio/newsdigest/internal/blocks"
	"github.com/hyperifyio/newsdigest/internal/classify"
	"github.com/hyperifyio/newsdigest/internal/content"
	"github.com/hyperifyio/newsdigest/internal/destination"
	"github.com/hyperifyio/newsdigest/internal/extract"
	"github.com/hyperifyio/newsdigest/internal/state"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	order   []string
	msgs    map[string]content.Message
	getErr  map[string]error
	listErr error
	queries []string
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) QueryMessages(_ context.Context, q string, max int) ([]string, error) {
	f.queries = append(f.queries, q)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.order, nil
}

func (f *fakeSource) GetMessage(_ context.Context, id string) (content.Message, error) {
	if err := f.getErr[id]; err != nil {
		return content.Message{}, err
	}
	return f.msgs[id], nil
}

type recordingWriter struct {
	docs   []destination.Document
	reject func(destination.Document) error
}

func (w *recordingWriter) Create(_ context.Context, doc destination.Document) (string, error) {
	w.docs = append(w.docs, doc)
	if w.reject != nil {
		if err := w.reject(doc); err != nil {
			return "", err
		}
	}
	return "page-" + doc.Title(), nil
}

type fakeWeb struct {
	res   extract.Result
	err   error
	calls []string
}

func (f *fakeWeb) Extract(_ context.Context, url string) (extract.Result, error) {
	f.calls = append(f.calls, url)
	if f.err != nil {
		return extract.Result{FinalURL: url}, f.err
	}
	return f.res, nil
}

type countingStore struct {
	state.Store
	saves int
}

func (c *countingStore) Save(ctx context.Context, p *state.Processed) error {
	c.saves++
	return c.Store.Save(ctx, p)
}

func testCategories() []classify.Category {
	return []classify.Category{
		{Name: "AI", Keywords: []string{"model", "agent"}},
		{Name: "Security", Keywords: []string{"vulnerability", "exploit"}},
	}
}

func newsletterSource() *fakeSource {
	return &fakeSource{
		order: []string{"m1", "m2"},
		msgs: map[string]content.Message{
			"m1": {
				ID: "m1", Subject: "TLDR AI", Sender: "TLDR <dan@tldr.test>",
				ReceivedAt: testNow.Add(-2 * time.Hour),
				HTML:       `<a href="https://news.test/view/online/1">View Online</a><p>short</p>`,
				Body:       "short",
				Links:      []string{"https://news.test/view/online/1"},
			},
			"m2": {
				ID: "m2", Subject: "Weekly", Sender: "sec@letters.test",
				ReceivedAt: testNow.Add(-time.Hour),
				Body:       "A new exploit for an old vulnerability.\n\nPatch now.",
				Links:      []string{"https://cve.test/1"},
			},
		},
	}
}

func webResult() extract.Result {
	return extract.Result{
		FinalURL: "https://news.test/issue/1",
		Strategy: "vendor",
		Links:    []string{"https://a.test/model"},
		Sections: []content.Section{{
			Name:  "Headlines",
			Items: []content.Item{{Title: "New agent model", Text: "**New agent model**\n\nA model for agents", URL: "https://a.test/model"}},
		}},
	}
}

func newTestApp(t *testing.T, cfg Config, deps Deps) *App {
	t.Helper()
	if cfg.Senders == nil {
		cfg.Senders = []string{"dan@tldr.test", "sec@letters.test"}
	}
	if cfg.Categories == nil {
		cfg.Categories = testCategories()
	}
	if deps.Classifier == nil {
		deps.Classifier = classify.NewKeywordClassifier(cfg.Categories, 0.1)
	}
	if deps.Store == nil {
		deps.Store = &state.FileStore{Path: filepath.Join(t.TempDir(), "state.json")}
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return testNow }
	}
	a, err := NewWithDeps(cfg, deps)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a
}

func TestRunOnce_Pipeline(t *testing.T) {
	src := newsletterSource()
	w := &recordingWriter{}
	web := &fakeWeb{res: webResult()}
	statePath := filepath.Join(t.TempDir(), "state.json")
	a := newTestApp(t, Config{}, Deps{Source: src, Writer: w, Web: web, Store: &state.FileStore{Path: statePath}})

	stats, err := a.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Listed != 2 || stats.Processed != 2 || stats.Failed != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.WebExtracted != 1 || stats.EmailFallback != 1 || stats.KeywordCategorized != 2 {
		t.Fatalf("unexpected enrichment stats %+v", stats)
	}
	wantQuery := "(from:dan@tldr.test OR from:sec@letters.test) after:" + strconv.FormatInt(testNow.AddDate(0, 0, -7).Unix(), 10)
	if src.queries[0] != wantQuery {
		t.Fatalf("query %q want %q", src.queries[0], wantQuery)
	}
	if len(web.calls) != 1 || web.calls[0] != "https://news.test/view/online/1" {
		t.Fatalf("unexpected web calls %v", web.calls)
	}

	first := w.docs[0]
	if first.Properties["Category"].Text != "AI" {
		t.Fatalf("web content should classify as AI, got %+v", first.Properties["Category"])
	}
	if first.Properties["Source"].Text != mailLinkPrefix+"m1" {
		t.Fatalf("unexpected source %q", first.Properties["Source"].Text)
	}
	var sawSection, sawLink bool
	for _, b := range first.Blocks {
		if b.Kind == blocks.Heading3 && b.Text == "Headlines" {
			sawSection = true
		}
		if b.URL == "https://a.test/model" {
			sawLink = true
		}
	}
	if !sawSection || !sawLink {
		t.Fatalf("web sections missing from page: %+v", first.Blocks)
	}
	if w.docs[1].Properties["Category"].Text != "Security" {
		t.Fatalf("second message category %+v", w.docs[1].Properties["Category"])
	}

	st, err := (&state.FileStore{Path: statePath}).Load(context.Background())
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if !st.Has("m1") || !st.Has("m2") || !st.LastCheck.Equal(testNow) {
		t.Fatalf("state not persisted: %v %v", st.IDs(), st.LastCheck)
	}
}

func TestRunOnce_SkipsProcessedAndUsesLastCheck(t *testing.T) {
	src := newsletterSource()
	w := &recordingWriter{}
	a := newTestApp(t, Config{}, Deps{Source: src, Writer: w})
	if _, err := a.RunOnce(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	stats, err := a.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if stats.Skipped != 2 || stats.Processed != 0 || len(w.docs) != 2 {
		t.Fatalf("expected all skipped, got %+v docs=%d", stats, len(w.docs))
	}
	if !strings.HasSuffix(src.queries[1], "after:"+strconv.FormatInt(testNow.Unix(), 10)) {
		t.Fatalf("second query should start at last check: %q", src.queries[1])
	}
}

func TestRunOnce_ListFailureAborts(t *testing.T) {
	src := &fakeSource{listErr: errors.New("quota")}
	a := newTestApp(t, Config{}, Deps{Source: src, Writer: &recordingWriter{}})
	if _, err := a.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRunOnce_NoSenders(t *testing.T) {
	a := newTestApp(t, Config{Senders: []string{}}, Deps{Source: &fakeSource{}, Writer: &recordingWriter{}})
	if _, err := a.RunOnce(context.Background()); !errors.Is(err, ErrNoSenders) {
		t.Fatalf("expected ErrNoSenders, got %v", err)
	}
}

func TestRunOnce_MessageFailureIsolated(t *testing.T) {
	src := newsletterSource()
	w := &recordingWriter{reject: func(d destination.Document) error {
		if d.Title() == "Weekly" {
			return errors.New("connection reset")
		}
		return nil
	}}
	statePath := filepath.Join(t.TempDir(), "state.json")
	a := newTestApp(t, Config{}, Deps{Source: src, Writer: w, Store: &state.FileStore{Path: statePath}})
	stats, err := a.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Processed != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	st, _ := (&state.FileStore{Path: statePath}).Load(context.Background())
	if !st.Has("m1") || st.Has("m2") {
		t.Fatalf("failed message must not be marked: %v", st.IDs())
	}
	want := src.msgs["m2"].ReceivedAt.Add(-time.Second)
	if !st.LastCheck.Equal(want) {
		t.Fatalf("last check %v want %v", st.LastCheck, want)
	}
}

type panickingWriter struct {
	recordingWriter
	title string
}

func (w *panickingWriter) Create(ctx context.Context, doc destination.Document) (string, error) {
	if doc.Title() == w.title {
		panic("nil map write")
	}
	return w.recordingWriter.Create(ctx, doc)
}

func TestRunOnce_PanicIsolatedToMessage(t *testing.T) {
	src := newsletterSource()
	w := &panickingWriter{title: "TLDR AI"}
	statePath := filepath.Join(t.TempDir(), "state.json")
	a := newTestApp(t, Config{}, Deps{Source: src, Writer: w, Store: &state.FileStore{Path: statePath}})
	stats, err := a.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Processed != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	st, _ := (&state.FileStore{Path: statePath}).Load(context.Background())
	if st.Has("m1") || !st.Has("m2") {
		t.Fatalf("unexpected processed ids %v", st.IDs())
	}
	want := src.msgs["m1"].ReceivedAt.Add(-time.Second)
	if !st.LastCheck.Equal(want) {
		t.Fatalf("last check %v want %v", st.LastCheck, want)
	}
}

func TestRunOnce_UnreadableMessageHoldsLastCheck(t *testing.T) {
	src := newsletterSource()
	src.getErr = map[string]error{"m1": errors.New("404")}
	statePath := filepath.Join(t.TempDir(), "state.json")
	a := newTestApp(t, Config{}, Deps{Source: src, Writer: &recordingWriter{}, Store: &state.FileStore{Path: statePath}})
	if _, err := a.RunOnce(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	st, _ := (&state.FileStore{Path: statePath}).Load(context.Background())
	if !st.LastCheck.IsZero() || !st.Has("m2") {
		t.Fatalf("unexpected state %v %v", st.IDs(), st.LastCheck)
	}
}

func TestRunOnce_MinimalFallback(t *testing.T) {
	src := newsletterSource()
	src.order = []string{"m2"}
	w := &recordingWriter{reject: func(d destination.Document) error {
		if _, ok := d.Properties["Sender"]; ok {
			return &destination.APIError{Status: 400, Code: "validation_error", Message: "Sender is not a property"}
		}
		return nil
	}}
	a := newTestApp(t, Config{}, Deps{Source: src, Writer: w})
	stats, err := a.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Processed != 1 || stats.MinimalFallbacks != 1 || len(w.docs) != 2 {
		t.Fatalf("unexpected stats %+v docs=%d", stats, len(w.docs))
	}
	min := w.docs[1]
	if len(min.Blocks) > minimalMaxBlocks {
		t.Fatalf("minimal variant too long: %d", len(min.Blocks))
	}
	for name := range min.Properties {
		if !coreProperties[name] {
			t.Fatalf("minimal variant kept %q", name)
		}
	}
	var sawLinks bool
	for _, b := range min.Blocks {
		if b.Kind.IsHeading() && b.Text == minimalLinksHeading {
			sawLinks = true
		}
	}
	if !sawLinks {
		t.Fatalf("minimal variant should carry a links heading: %+v", min.Blocks)
	}
}

func TestRunOnce_DryRunKeepsStateUntouched(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	w := &recordingWriter{}
	a := newTestApp(t, Config{DryRun: true}, Deps{Source: newsletterSource(), Writer: w, Store: &state.FileStore{Path: statePath}})
	stats, err := a.RunOnce(context.Background())
	if err != nil || stats.Processed != 2 {
		t.Fatalf("unexpected %+v %v", stats, err)
	}
	if _, err := os.Stat(statePath); !os.IsNotExist(err) {
		t.Fatalf("dry run must not write state")
	}
}

func TestRunOnce_BatchSaves(t *testing.T) {
	store := &countingStore{Store: &state.FileStore{Path: filepath.Join(t.TempDir(), "s.json")}}
	a := newTestApp(t, Config{BatchSaveCount: 1}, Deps{Source: newsletterSource(), Writer: &recordingWriter{}, Store: store})
	if _, err := a.RunOnce(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if store.saves != 3 {
		t.Fatalf("expected a save per message plus the final one, got %d", store.saves)
	}
}

func TestRunOnce_WebFailureFallsBackToEmail(t *testing.T) {
	src := newsletterSource()
	src.order = []string{"m1"}
	w := &recordingWriter{}
	a := newTestApp(t, Config{}, Deps{Source: src, Writer: w, Web: &fakeWeb{err: extract.ErrNoContent}})
	stats, err := a.RunOnce(context.Background())
	if err != nil || stats.EmailFallback != 1 || stats.WebExtracted != 0 || stats.Uncategorized != 1 {
		t.Fatalf("unexpected %+v %v", stats, err)
	}
	if w.docs[0].Properties["Category"].Text != classify.Uncategorized {
		t.Fatalf("expected sentinel category, got %+v", w.docs[0].Properties["Category"])
	}
}

func TestNewWithDeps_RequiresCollaborators(t *testing.T) {
	if _, err := NewWithDeps(Config{}, Deps{}); err == nil {
		t.Fatalf("expected error")
	}
}
