package indexer

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/progress"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/source"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

var catDog = []index.RawDocument{
	{Path: "doc0.txt", Content: "the cat sat"},
	{Path: "doc1.txt", Content: "the dog ran"},
}

func newEngine(t *testing.T, backend string) *Engine {
	t.Helper()
	cfg := config.Default().Index
	cfg.Backend = backend
	cfg.Seed = 7
	e, err := NewEngine(cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

// blockingSource waits for its context to end before returning.
type blockingSource struct {
	started chan struct{}
}

func (b *blockingSource) Name() string { return "blocking" }

func (b *blockingSource) Load(ctx context.Context, _ progress.Sink) ([]index.RawDocument, error) {
	close(b.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

type failingSource struct{ err error }

func (f failingSource) Name() string { return "failing" }

func (f failingSource) Load(context.Context, progress.Sink) ([]index.RawDocument, error) {
	return nil, f.err
}

func TestNewEngineRejectsUnknownBackend(t *testing.T) {
	cfg := config.Default().Index
	cfg.Backend = "btree"
	if _, err := NewEngine(cfg, nil, nil); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestBuild(t *testing.T) {
	for _, backend := range []string{"skiplist", "trie"} {
		t.Run(backend, func(t *testing.T) {
			e := newEngine(t, backend)
			if e.Ready() {
				t.Fatal("engine should not be ready before the first build")
			}

			report, err := e.Build(context.Background(), catDog)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if report.Status != StatusSucceeded || report.Generation != 1 {
				t.Errorf("report = %+v", report)
			}
			if report.Documents != 2 || report.Entries != 5 || report.Postings != 6 || report.Batches != 1 {
				t.Errorf("report counts = %+v", report)
			}

			snap := e.Current()
			if !e.Ready() || snap.BuildID != report.BuildID {
				t.Fatalf("snapshot not swapped in: %+v", snap)
			}
			if snap.Backend.Kind() != index.Kind(backend) {
				t.Errorf("backend = %s", snap.Backend.Kind())
			}
			the, ok := snap.Find("the")
			if !ok || len(the.Postings) != 2 {
				t.Fatalf("the = %+v", the)
			}
			for i, p := range the.Postings {
				if p.DocID != i || p.Weight != 1.0/3.0 || p.Position != 0 {
					t.Errorf("posting %d = %+v", i, p)
				}
			}
			if e.Building() {
				t.Error("Building() after Build returned")
			}
		})
	}
}

func TestBuildAssignsDenseIDs(t *testing.T) {
	e := newEngine(t, "skiplist")
	if _, err := e.Build(context.Background(), catDog); err != nil {
		t.Fatal(err)
	}
	for i, raw := range catDog {
		doc, err := e.Document(i)
		if err != nil {
			t.Fatal(err)
		}
		if doc.ID != i || doc.Path != raw.Path || doc.Content != raw.Content {
			t.Errorf("Document(%d) = %+v", i, doc)
		}
	}
	if _, err := e.Document(2); !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Errorf("Document(2) err = %v", err)
	}
	if _, err := e.Document(-1); !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Errorf("Document(-1) err = %v", err)
	}
}

func TestBuildCancelledKeepsPreviousSnapshot(t *testing.T) {
	e := newEngine(t, "skiplist")
	if _, err := e.Build(context.Background(), catDog); err != nil {
		t.Fatal(err)
	}
	prev := e.Current()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := e.Build(ctx, []index.RawDocument{{Path: "x", Content: "fish"}})
	if report.Status != StatusCancelled {
		t.Errorf("status = %s, want cancelled", report.Status)
	}
	if !errors.Is(err, apperrors.ErrBuildCancelled) || !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want ErrBuildCancelled wrapping context.Canceled", err)
	}
	if e.Current() != prev {
		t.Error("cancelled build replaced the snapshot")
	}
}

func TestBuildFailureKeepsPreviousSnapshot(t *testing.T) {
	e := newEngine(t, "trie")
	if _, err := e.Build(context.Background(), catDog); err != nil {
		t.Fatal(err)
	}
	prev := e.Current()

	boom := errors.New("disk on fire")
	report, err := e.Rebuild(context.Background(), failingSource{err: boom})
	if report.Status != StatusFailed || report.Error == "" {
		t.Errorf("report = %+v", report)
	}
	if !errors.Is(err, apperrors.ErrBuildFailed) || !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
	if e.Current() != prev {
		t.Error("failed build replaced the snapshot")
	}
}

func TestOneBuildAtATimeAndCancel(t *testing.T) {
	e := newEngine(t, "skiplist")
	src := &blockingSource{started: make(chan struct{})}

	type outcome struct {
		report BuildReport
		err    error
	}
	done := make(chan outcome, 1)
	id, err := e.StartRebuild(src, func(r BuildReport, err error) {
		done <- outcome{r, err}
	})
	if err != nil {
		t.Fatal(err)
	}
	<-src.started

	if !e.Building() {
		t.Error("Building() = false while a build runs")
	}
	if _, err := e.Build(context.Background(), catDog); !errors.Is(err, apperrors.ErrBuildInProgress) {
		t.Errorf("concurrent Build err = %v, want ErrBuildInProgress", err)
	}
	if _, err := e.StartRebuild(source.Static(catDog), nil); !errors.Is(err, apperrors.ErrBuildInProgress) {
		t.Errorf("concurrent StartRebuild err = %v", err)
	}

	if !e.Cancel() {
		t.Fatal("Cancel() = false while a build runs")
	}
	select {
	case out := <-done:
		if out.report.Status != StatusCancelled || out.report.BuildID != id {
			t.Errorf("report = %+v", out.report)
		}
		if !errors.Is(out.err, apperrors.ErrBuildCancelled) || !errors.Is(out.err, errCancelRequested) {
			t.Errorf("err = %v", out.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled build did not finish")
	}

	if e.Cancel() {
		t.Error("Cancel() = true with no build running")
	}
	if e.Ready() {
		t.Error("cancelled first build made the engine ready")
	}
	if _, err := e.Build(context.Background(), catDog); err != nil {
		t.Errorf("build after cancel: %v", err)
	}
}

func TestClear(t *testing.T) {
	e := newEngine(t, "skiplist")
	var mu sync.Mutex
	var swaps [][2]uint64
	e.OnSwap(func(prev, next *Snapshot) {
		mu.Lock()
		swaps = append(swaps, [2]uint64{prev.Generation, next.Generation})
		mu.Unlock()
	})
	if _, err := e.Build(context.Background(), catDog); err != nil {
		t.Fatal(err)
	}
	e.Clear()

	snap := e.Current()
	if snap.Generation != 2 || !snap.Empty() || snap.Backend.Len() != 0 {
		t.Errorf("after Clear: %+v", e.Stats())
	}
	if _, ok := snap.Find("the"); ok {
		t.Error("cleared index still finds tokens")
	}
	if want := [][2]uint64{{0, 1}, {1, 2}}; !reflect.DeepEqual(swaps, want) {
		t.Errorf("swaps = %v, want %v", swaps, want)
	}
}

func TestSuggest(t *testing.T) {
	e := newEngine(t, "trie")
	docs := []index.RawDocument{
		{Path: "a", Content: "search searching seal"},
		{Path: "b", Content: "Search engines sea"},
	}
	if _, err := e.Build(context.Background(), docs); err != nil {
		t.Fatal(err)
	}
	got := e.Suggest("SEA", 3)
	want := []Suggestion{{"sea", 1}, {"seal", 1}, {"search", 2}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Suggest = %v, want %v", got, want)
	}
	if got := e.Suggest("zzz", 5); len(got) != 0 {
		t.Errorf("Suggest(zzz) = %v", got)
	}
}

func TestStats(t *testing.T) {
	e := newEngine(t, "skiplist")
	if _, err := e.Build(context.Background(), catDog); err != nil {
		t.Fatal(err)
	}
	st := e.Stats()
	if st.Generation != 1 || st.Documents != 2 || st.Entries != 5 || st.Postings != 6 {
		t.Errorf("Stats = %+v", st)
	}
	if st.Backend != index.KindSkipList || st.SkipListLevel < 1 || st.BuildID == "" {
		t.Errorf("Stats = %+v", st)
	}
}

func TestBuildMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	cfg := config.Default().Index
	cfg.BatchSize = 1
	e, err := NewEngine(cfg, m, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Build(context.Background(), catDog); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.Build(ctx, catDog)

	if got := testutil.ToFloat64(m.IndexBuildsTotal.WithLabelValues("succeeded")); got != 1 {
		t.Errorf("succeeded builds = %v", got)
	}
	if got := testutil.ToFloat64(m.IndexBuildsTotal.WithLabelValues("cancelled")); got != 1 {
		t.Errorf("cancelled builds = %v", got)
	}
	if got := testutil.ToFloat64(m.IndexDocuments); got != 2 {
		t.Errorf("index_documents = %v", got)
	}
	if got := testutil.ToFloat64(m.IndexEntries); got != 5 {
		t.Errorf("index_entries = %v", got)
	}
}

func TestBuildReportsProgress(t *testing.T) {
	cfg := config.Default().Index
	cfg.BatchSize = 1
	var mu sync.Mutex
	phases := map[progress.Phase]int{}
	sink := progress.Func(func(ev progress.Event) {
		mu.Lock()
		phases[ev.Phase]++
		mu.Unlock()
	})
	e, err := NewEngine(cfg, nil, sink)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Rebuild(context.Background(), source.Static(catDog)); err != nil {
		t.Fatal(err)
	}
	want := map[progress.Phase]int{progress.PhaseLoad: 2, progress.PhaseIndex: 2, progress.PhaseMerge: 2}
	if !reflect.DeepEqual(phases, want) {
		t.Errorf("phases = %v, want %v", phases, want)
	}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []kafka.Event
}

func (f *fakePublisher) Publish(_ context.Context, ev kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func TestPublishBuilds(t *testing.T) {
	e := newEngine(t, "skiplist")
	pub := &fakePublisher{}
	e.OnBuild(PublishBuilds(pub))
	report, err := e.Build(context.Background(), catDog)
	if err != nil {
		t.Fatal(err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	ev := pub.events[0]
	if ev.Key != report.BuildID.String() || ev.Headers["status"] != "succeeded" {
		t.Errorf("event = %+v", ev)
	}
	payload, ok := ev.Value.(IndexCompleteEvent)
	if !ok {
		t.Fatalf("value type %T", ev.Value)
	}
	if payload.Documents != 2 || payload.Generation != 1 || payload.Status != StatusSucceeded {
		t.Errorf("payload = %+v", payload)
	}
}

func TestBuildContextWindowZero(t *testing.T) {
	cfg := config.Default().Index
	cfg.ContextWindow = 0
	e, err := NewEngine(cfg, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Build(context.Background(), []index.RawDocument{{Content: "a b c d e"}}); err != nil {
		t.Fatal(err)
	}
	entry, ok := e.Current().Find("c")
	if !ok {
		t.Fatal("c not indexed")
	}
	snip := entry.Postings[0].Context
	if snip.Hit != "c" || len(snip.Before) != 0 || len(snip.After) != 0 {
		t.Errorf("snippet = %+v, want the hit alone", snip)
	}
}
