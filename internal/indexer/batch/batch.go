// Package batch turns a document array into per-range partial indexes. Each
// range is processed by its own worker with no shared mutable state, so the
// workers need no locks; the only cross-worker traffic is the progress
// counter.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/progress"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
)

const (
	DefaultBatchSize     = 20
	DefaultContextWindow = 25
)

// Range is a half-open slice [Start, End) of the document array.
type Range struct {
	ID    int `json:"id"`
	Start int `json:"start"`
	End   int `json:"end"`
}

func (r Range) Len() int { return r.End - r.Start }

// IndexBatch is the partial index built from one Range. Entries are in the
// order their token first appeared in the range and KeywordMap maps each
// token to its slot in Entries.
type IndexBatch struct {
	ID         int
	Range      Range
	Entries    []index.Entry
	KeywordMap map[string]int
	Tokens     int
}

// Lookup returns the batch-local entry for token.
func (b *IndexBatch) Lookup(token string) (*index.Entry, bool) {
	i, ok := b.KeywordMap[token]
	if !ok {
		return nil, false
	}
	return &b.Entries[i], true
}

type Options struct {
	BatchSize int
	// ContextWindow is the number of tokens kept on each side of a hit. Zero
	// keeps the hit alone; negative means DefaultContextWindow.
	ContextWindow int
	// Workers caps concurrently running ranges; 0 means GOMAXPROCS.
	Workers  int
	Progress progress.Sink
	// OnBatch is called from the worker goroutine after a range completes.
	OnBatch func(b *IndexBatch, elapsed time.Duration)
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.ContextWindow < 0 {
		o.ContextWindow = DefaultContextWindow
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	o.Progress = progress.OrDiscard(o.Progress)
	return o
}

// Partition splits n documents into contiguous ranges of size; the last range
// may be short. size <= 0 yields a single range.
func Partition(n, size int) []Range {
	if n <= 0 {
		return nil
	}
	if size <= 0 || size > n {
		size = n
	}
	ranges := make([]Range, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		ranges = append(ranges, Range{
			ID:    len(ranges),
			Start: start,
			End:   min(start+size, n),
		})
	}
	return ranges
}

// Build runs one worker per range, at most opts.Workers at a time, and
// returns the batches ordered by range. The first failing range cancels the
// rest and its error is returned; no partial result is returned on error.
// Cancellation is checked before each range starts.
func Build(ctx context.Context, docs []index.Document, opts Options) ([]IndexBatch, error) {
	opts = opts.withDefaults()
	ranges := Partition(len(docs), opts.BatchSize)
	logger := slog.Default().With("component", "batch-indexer")
	logger.Debug("starting batch build",
		"doc_count", len(docs),
		"batch_count", len(ranges),
		"workers", opts.Workers,
	)

	results := make([]IndexBatch, len(ranges))
	var done atomic.Int64
	total := len(docs)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, r := range ranges {
		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("batch %d panicked: %v", r.ID, p)
				}
			}()
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			b := ProcessRange(docs, r, opts.ContextWindow, func(doc index.Document) {
				n := done.Add(1)
				opts.Progress.Report(progress.Event{
					Phase:   progress.PhaseIndex,
					Current: int(n),
					Total:   total,
					Message: doc.Path,
				})
			})
			elapsed := time.Since(start)
			if opts.OnBatch != nil {
				opts.OnBatch(&b, elapsed)
			}
			logger.Debug("batch complete",
				"batch_id", r.ID,
				"docs", r.Len(),
				"entries", len(b.Entries),
				"elapsed", elapsed,
			)
			results[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ProcessRange indexes docs[r.Start:r.End]. Each posting's weight is the
// token's count in its document over the document's token count, computed
// once per document. onDoc, if set, is called after each document.
func ProcessRange(docs []index.Document, r Range, window int, onDoc func(index.Document)) IndexBatch {
	b := IndexBatch{
		ID:         r.ID,
		Range:      r,
		KeywordMap: make(map[string]int),
	}
	counts := make(map[string]int)
	for _, doc := range docs[r.Start:r.End] {
		terms := tokenizer.Terms(doc.Content)
		clear(counts)
		for _, t := range terms {
			counts[t]++
		}
		total := float64(len(terms))
		for pos, t := range terms {
			i, ok := b.KeywordMap[t]
			if !ok {
				i = len(b.Entries)
				b.KeywordMap[t] = i
				b.Entries = append(b.Entries, index.Entry{Token: t})
			}
			b.Entries[i].Postings = append(b.Entries[i].Postings, index.Posting{
				DocID:    doc.ID,
				Position: pos,
				Context:  index.ExtractSnippet(terms, pos, window),
				Weight:   float64(counts[t]) / total,
			})
		}
		b.Tokens += len(terms)
		if onDoc != nil {
			onDoc(doc)
		}
	}
	return b
}
