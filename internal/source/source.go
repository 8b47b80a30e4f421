// Package source supplies the raw (path, content) pairs an index is built
// from. Sources report per-document progress while loading.
package source

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/progress"
)

// Source loads a whole corpus. The order of the returned documents decides
// their ids.
type Source interface {
	Name() string
	Load(ctx context.Context, sink progress.Sink) ([]index.RawDocument, error)
}

// Static serves a fixed in-memory corpus.
type Static []index.RawDocument

func (s Static) Name() string { return "static" }

func (s Static) Load(ctx context.Context, sink progress.Sink) ([]index.RawDocument, error) {
	sink = progress.OrDiscard(sink)
	out := make([]index.RawDocument, 0, len(s))
	for i, d := range s {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, d)
		sink.Report(progress.Event{Phase: progress.PhaseLoad, Current: i + 1, Total: len(s), Message: d.Path})
	}
	return out, nil
}
