// Package indexer owns the index lifecycle: it loads a corpus, runs the
// parallel batch build and the sequential merge, and atomically publishes
// the result as the current Snapshot.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/batch"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/merge"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/progress"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/source"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

type BuildStatus string

const (
	StatusSucceeded BuildStatus = "succeeded"
	StatusFailed    BuildStatus = "failed"
	StatusCancelled BuildStatus = "cancelled"
)

// BuildReport describes a finished build, successful or not.
type BuildReport struct {
	BuildID    uuid.UUID     `json:"build_id"`
	Status     BuildStatus   `json:"status"`
	Generation uint64        `json:"generation,omitempty"`
	Documents  int           `json:"documents"`
	Entries    int           `json:"entries"`
	Postings   int           `json:"postings"`
	Batches    int           `json:"batches"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// Stats summarizes the current snapshot.
type Stats struct {
	Generation    uint64        `json:"generation"`
	BuildID       string        `json:"build_id,omitempty"`
	Backend       index.Kind    `json:"backend"`
	Documents     int           `json:"documents"`
	Entries       int           `json:"entries"`
	Postings      int           `json:"postings"`
	SkipListLevel int           `json:"skiplist_level,omitempty"`
	BuiltAt       time.Time     `json:"built_at"`
	BuildDuration time.Duration `json:"build_duration"`
	Building      bool          `json:"building"`
}

// Suggestion is a token that starts with a requested prefix.
type Suggestion struct {
	Token   string `json:"token"`
	DocFreq uint64 `json:"doc_freq"`
}

var errCancelRequested = errors.New("cancel requested")

type Engine struct {
	cfg      config.IndexConfig
	kind     index.Kind
	metrics  *metrics.Metrics
	progress progress.Sink
	logger   *slog.Logger
	current  atomic.Pointer[Snapshot]

	swapMu     sync.Mutex
	generation uint64

	mu       sync.Mutex
	building bool
	cancel   context.CancelCauseFunc

	hookMu  sync.RWMutex
	onSwap  []func(prev, next *Snapshot)
	onBuild []func(BuildReport)
}

// NewEngine creates an engine whose current snapshot is empty and not ready.
// m and sink may be nil.
func NewEngine(cfg config.IndexConfig, m *metrics.Metrics, sink progress.Sink) (*Engine, error) {
	kind := index.Kind(cfg.Backend)
	if _, err := index.NewBackend(kind); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
	}
	if kind == "" {
		kind = index.KindSkipList
	}
	e := &Engine{
		cfg:      cfg,
		kind:     kind,
		metrics:  m,
		progress: progress.OrDiscard(sink),
		logger:   slog.Default().With("component", "indexer"),
	}
	e.current.Store(emptySnapshot(kind))
	return e, nil
}

// Current returns the snapshot queries should read. It never returns nil.
func (e *Engine) Current() *Snapshot {
	return e.current.Load()
}

// Ready reports whether a snapshot has been published since start.
func (e *Engine) Ready() bool {
	return e.Current().Generation > 0
}

// Building reports whether a build is running.
func (e *Engine) Building() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.building
}

// OnSwap registers fn to run after every snapshot swap, including Clear.
func (e *Engine) OnSwap(fn func(prev, next *Snapshot)) {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	e.onSwap = append(e.onSwap, fn)
}

// OnBuild registers fn to run after every build, whatever its status.
func (e *Engine) OnBuild(fn func(BuildReport)) {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	e.onBuild = append(e.onBuild, fn)
}

// Build indexes docs, assigning ids in the order given, and publishes the
// result. A cancelled build returns a report with StatusCancelled and an
// error wrapping ErrBuildCancelled; any other failure wraps ErrBuildFailed.
// Either way the previous snapshot stays current.
func (e *Engine) Build(ctx context.Context, docs []index.RawDocument) (BuildReport, error) {
	run, err := e.begin(ctx)
	if err != nil {
		return BuildReport{}, err
	}
	return e.run(run, func(context.Context) ([]index.RawDocument, error) {
		return docs, nil
	})
}

// Rebuild loads the corpus from src and builds it as one exclusive build.
func (e *Engine) Rebuild(ctx context.Context, src source.Source) (BuildReport, error) {
	run, err := e.begin(ctx)
	if err != nil {
		return BuildReport{}, err
	}
	return e.run(run, e.loader(src))
}

// StartRebuild claims the build slot synchronously and runs the rebuild in
// the background, detached from any request context. done, if set, receives
// the outcome.
func (e *Engine) StartRebuild(src source.Source, done func(BuildReport, error)) (uuid.UUID, error) {
	run, err := e.begin(context.Background())
	if err != nil {
		return uuid.Nil, err
	}
	go func() {
		report, err := e.run(run, e.loader(src))
		if done != nil {
			done(report, err)
		}
	}()
	return run.id, nil
}

// Cancel asks the running build to stop and reports whether one was running.
func (e *Engine) Cancel() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.building || e.cancel == nil {
		return false
	}
	e.cancel(errCancelRequested)
	return true
}

// Clear publishes an empty snapshot. A build already running is not
// affected and will replace the empty snapshot when it succeeds.
func (e *Engine) Clear() {
	next := emptySnapshot(e.kind)
	e.swap(next)
	e.logger.Info("index cleared", "generation", next.Generation)
}

// Document returns a document of the current snapshot.
func (e *Engine) Document(id int) (index.Document, error) {
	doc, ok := e.Current().Document(id)
	if !ok {
		return index.Document{}, fmt.Errorf("document %d: %w", id, apperrors.ErrDocumentNotFound)
	}
	return doc, nil
}

// Suggest returns up to n tokens of the current snapshot that start with
// prefix, in token order.
func (e *Engine) Suggest(prefix string, n int) []Suggestion {
	if n <= 0 {
		n = 10
	}
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	out := make([]Suggestion, 0, n)
	e.Current().Backend.AscendPrefix(prefix, func(entry *index.Entry) bool {
		out = append(out, Suggestion{Token: entry.Token, DocFreq: entry.DocFreq()})
		return len(out) < n
	})
	return out
}

func (e *Engine) Stats() Stats {
	snap := e.Current()
	st := Stats{
		Generation:    snap.Generation,
		Backend:       snap.Backend.Kind(),
		Documents:     len(snap.Documents),
		Entries:       snap.Backend.Len(),
		Postings:      snap.Postings,
		BuiltAt:       snap.BuiltAt,
		BuildDuration: snap.BuildDuration,
		Building:      e.Building(),
	}
	if snap.BuildID != uuid.Nil {
		st.BuildID = snap.BuildID.String()
	}
	if sl, ok := snap.Backend.(*index.SkipList); ok {
		st.SkipListLevel = sl.Level()
	}
	return st
}

type buildRun struct {
	id     uuid.UUID
	ctx    context.Context
	cancel context.CancelCauseFunc
	start  time.Time
}

func (e *Engine) begin(parent context.Context) (*buildRun, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.building {
		return nil, apperrors.ErrBuildInProgress
	}
	ctx, cancel := context.WithCancelCause(parent)
	e.building = true
	e.cancel = cancel
	return &buildRun{id: uuid.New(), ctx: ctx, cancel: cancel, start: time.Now()}, nil
}

func (e *Engine) end(run *buildRun) {
	e.mu.Lock()
	e.building = false
	e.cancel = nil
	e.mu.Unlock()
	run.cancel(nil)
}

func (e *Engine) loader(src source.Source) func(context.Context) ([]index.RawDocument, error) {
	return func(ctx context.Context) ([]index.RawDocument, error) {
		e.logger.Info("loading corpus", "source", src.Name())
		return src.Load(ctx, e.progress)
	}
}

func (e *Engine) run(run *buildRun, load func(context.Context) ([]index.RawDocument, error)) (BuildReport, error) {
	defer e.end(run)
	report := BuildReport{BuildID: run.id}
	logger := e.logger.With("build_id", run.id)

	snap, err := e.build(run, load, &report, logger)
	report.Duration = time.Since(run.start)
	switch {
	case err == nil:
		report.Status = StatusSucceeded
		snap.BuildDuration = report.Duration
		e.swap(snap)
		report.Generation = snap.Generation
		logger.Info("index build complete",
			"generation", snap.Generation,
			"doc_count", report.Documents,
			"entries", report.Entries,
			"postings", report.Postings,
			"batches", report.Batches,
			"elapsed", report.Duration,
		)
	case run.ctx.Err() != nil:
		report.Status = StatusCancelled
		err = fmt.Errorf("%w: %w", apperrors.ErrBuildCancelled, context.Cause(run.ctx))
		logger.Info("index build cancelled", "elapsed", report.Duration, "reason", context.Cause(run.ctx))
	default:
		report.Status = StatusFailed
		err = fmt.Errorf("%w: %w", apperrors.ErrBuildFailed, err)
		logger.Error("index build failed", "error", err)
	}
	if err != nil {
		report.Error = err.Error()
	}
	e.metrics.ObserveBuild(string(report.Status), report.Duration)
	e.notifyBuild(report)
	return report, err
}

func (e *Engine) build(run *buildRun, load func(context.Context) ([]index.RawDocument, error), report *BuildReport, logger *slog.Logger) (*Snapshot, error) {
	ctx := run.ctx
	raw, err := load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading documents: %w", err)
	}
	docs := make([]index.Document, len(raw))
	for i, r := range raw {
		docs[i] = index.Document{ID: i, Path: r.Path, Content: r.Content}
	}
	report.Documents = len(docs)
	logger.Info("index build started", "doc_count", len(docs), "backend", e.kind)

	batches, err := batch.Build(ctx, docs, batch.Options{
		BatchSize:     e.cfg.BatchSize,
		ContextWindow: e.cfg.ContextWindow,
		Workers:       e.cfg.Workers,
		Progress:      e.progress,
		OnBatch: func(_ *batch.IndexBatch, elapsed time.Duration) {
			e.metrics.ObserveBatch(elapsed)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("indexing batches: %w", err)
	}
	report.Batches = len(batches)

	backend, err := index.NewBackend(e.kind, e.skipListOptions()...)
	if err != nil {
		return nil, err
	}
	st, err := merge.Merge(ctx, batches, backend, e.progress)
	if err != nil {
		return nil, err
	}
	report.Entries = backend.Len()
	report.Postings = st.Postings

	return &Snapshot{
		BuildID:   run.id,
		Documents: docs,
		Backend:   backend,
		Postings:  st.Postings,
		BuiltAt:   time.Now(),
	}, nil
}

func (e *Engine) skipListOptions() []index.SkipListOption {
	opts := []index.SkipListOption{
		index.WithMaxLevel(e.cfg.SkipListMaxLevel),
		index.WithPromotionProbability(e.cfg.SkipListPromotionProbability),
	}
	if e.cfg.Seed != 0 {
		opts = append(opts, index.WithSeed(e.cfg.Seed))
	}
	return opts
}

// swap stamps next with the following generation and publishes it. Swaps are
// serialized so generations are published in increasing order.
func (e *Engine) swap(next *Snapshot) {
	e.swapMu.Lock()
	e.generation++
	next.Generation = e.generation
	prev := e.current.Swap(next)
	e.swapMu.Unlock()

	e.metrics.SetIndex(len(next.Documents), next.Backend.Len(), next.Generation)
	e.hookMu.RLock()
	hooks := e.onSwap
	e.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(prev, next)
	}
}

func (e *Engine) notifyBuild(report BuildReport) {
	e.hookMu.RLock()
	hooks := e.onBuild
	e.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(report)
	}
}
