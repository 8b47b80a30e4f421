package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/progress"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/source"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
)

var corpus = source.Static{
	{Path: "doc0.txt", Content: "the cat sat"},
	{Path: "doc1.txt", Content: "the dog ran"},
}

// gatedSource blocks until its context ends.
type gatedSource struct{ started chan struct{} }

func (g *gatedSource) Name() string { return "gated" }

func (g *gatedSource) Load(ctx context.Context, _ progress.Sink) ([]index.RawDocument, error) {
	close(g.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

func setup(t *testing.T, src source.Source, build bool) (*indexer.Engine, http.Handler) {
	t.Helper()
	e, err := indexer.NewEngine(config.Default().Index, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if build {
		if _, err := e.Build(context.Background(), corpus); err != nil {
			t.Fatal(err)
		}
	}
	mux := http.NewServeMux()
	New(executor.New(e, 100), e, src, nil, nil).Register(mux, nil)
	return e, mux
}

func do(t *testing.T, h http.Handler, method, target string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("%s %s: decoding %q: %v", method, target, rec.Body.String(), err)
		}
	}
	return rec.Code
}

func waitIdle(t *testing.T, e *indexer.Engine) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for e.Building() {
		if time.Now().After(deadline) {
			t.Fatal("build did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSearch(t *testing.T) {
	_, h := setup(t, corpus, true)

	tests := []struct {
		target string
		code   int
		docs   int
	}{
		{"/api/v1/search?q=the", http.StatusOK, 2},
		{"/api/v1/search?q=cat", http.StatusOK, 1},
		{"/api/v1/search?q=fish", http.StatusOK, 0},
		{"/api/v1/search?q=", http.StatusOK, 0},
		{"/api/v1/search?q=the&limit=1", http.StatusOK, 1},
		{"/api/v1/search", http.StatusBadRequest, -1},
		{"/api/v1/search?q=the&limit=0", http.StatusBadRequest, -1},
		{"/api/v1/search?q=the&limit=abc", http.StatusBadRequest, -1},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			var res executor.SearchResult
			var out any = &res
			if tt.docs < 0 {
				out = nil
			}
			if code := do(t, h, http.MethodGet, tt.target, out); code != tt.code {
				t.Fatalf("status = %d, want %d", code, tt.code)
			}
			if tt.docs >= 0 && len(res.Results) != tt.docs {
				t.Errorf("results = %d, want %d", len(res.Results), tt.docs)
			}
		})
	}
}

func TestSearchResultShape(t *testing.T) {
	_, h := setup(t, corpus, true)
	var res executor.SearchResult
	do(t, h, http.MethodGet, "/api/v1/search?q=dog", &res)
	if res.Generation != 1 || len(res.Results) != 1 {
		t.Fatalf("result = %+v", res)
	}
	hit := res.Results[0]
	if hit.DocID != 1 || hit.Path != "doc1.txt" || hit.Snippet.Hit != "dog" || hit.Position != 1 {
		t.Errorf("hit = %+v", hit)
	}
}

func TestSuggestAndDocument(t *testing.T) {
	_, h := setup(t, corpus, true)

	var sug struct {
		Suggestions []indexer.Suggestion `json:"suggestions"`
	}
	do(t, h, http.MethodGet, "/api/v1/suggest?prefix=D", &sug)
	if len(sug.Suggestions) != 1 || sug.Suggestions[0].Token != "dog" {
		t.Errorf("suggestions = %+v", sug.Suggestions)
	}

	var doc index.Document
	if code := do(t, h, http.MethodGet, "/api/v1/documents/1", &doc); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if doc.Path != "doc1.txt" || doc.Content != "the dog ran" {
		t.Errorf("doc = %+v", doc)
	}
	if code := do(t, h, http.MethodGet, "/api/v1/documents/9", nil); code != http.StatusNotFound {
		t.Errorf("unknown doc status = %d, want 404", code)
	}
	if code := do(t, h, http.MethodGet, "/api/v1/documents/x", nil); code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", code)
	}
}

func TestClearIndex(t *testing.T) {
	_, h := setup(t, corpus, true)
	if code := do(t, h, http.MethodDelete, "/api/v1/index", nil); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var st indexer.Stats
	do(t, h, http.MethodGet, "/api/v1/index/stats", &st)
	if st.Documents != 0 || st.Generation != 2 {
		t.Errorf("stats after clear = %+v", st)
	}
	var res executor.SearchResult
	do(t, h, http.MethodGet, "/api/v1/search?q=the", &res)
	if len(res.Results) != 0 {
		t.Errorf("search after clear returned %d results", len(res.Results))
	}
}

func TestRebuild(t *testing.T) {
	e, h := setup(t, corpus, false)
	var body map[string]string
	if code := do(t, h, http.MethodPost, "/api/v1/index/rebuild", &body); code != http.StatusAccepted {
		t.Fatalf("status = %d", code)
	}
	if body["build_id"] == "" {
		t.Error("missing build_id")
	}
	waitIdle(t, e)
	if st := e.Stats(); st.Generation != 1 || st.Documents != 2 || st.BuildID != body["build_id"] {
		t.Errorf("stats = %+v", st)
	}
}

func TestRebuildConflictAndCancel(t *testing.T) {
	src := &gatedSource{started: make(chan struct{})}
	e, h := setup(t, src, false)

	if code := do(t, h, http.MethodPost, "/api/v1/index/rebuild", nil); code != http.StatusAccepted {
		t.Fatalf("first rebuild status = %d", code)
	}
	<-src.started
	if code := do(t, h, http.MethodPost, "/api/v1/index/rebuild", nil); code != http.StatusConflict {
		t.Errorf("second rebuild status = %d, want 409", code)
	}
	if code := do(t, h, http.MethodDelete, "/api/v1/index/rebuild", nil); code != http.StatusAccepted {
		t.Errorf("cancel status = %d, want 202", code)
	}
	waitIdle(t, e)
	if e.Ready() {
		t.Error("cancelled build was published")
	}
	if code := do(t, h, http.MethodDelete, "/api/v1/index/rebuild", nil); code != http.StatusNotFound {
		t.Errorf("idle cancel status = %d, want 404", code)
	}
}

func TestRebuildWithoutSource(t *testing.T) {
	_, h := setup(t, nil, false)
	if code := do(t, h, http.MethodPost, "/api/v1/index/rebuild", nil); code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
}

func TestCacheDisabled(t *testing.T) {
	_, h := setup(t, corpus, true)
	var st map[string]string
	do(t, h, http.MethodGet, "/api/v1/cache/stats", &st)
	if st["status"] != "disabled" {
		t.Errorf("cache stats = %v", st)
	}
	if code := do(t, h, http.MethodPost, "/api/v1/cache/invalidate", nil); code != http.StatusServiceUnavailable {
		t.Errorf("invalidate status = %d, want 503", code)
	}
}
