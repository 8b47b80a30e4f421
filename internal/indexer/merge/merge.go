// Package merge folds per-batch partial indexes into one Backend.
package merge

import (
	"context"
	"fmt"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/batch"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/progress"
)

// Stats summarizes a merge.
type Stats struct {
	Batches  int
	Inserted int
	Extended int
	Postings int
}

// Merge applies batches to dst in ascending batch id, and entries within a
// batch in batch order. A token already present in dst has the batch's
// postings appended to its list; the backend's replacing Insert is only used
// for tokens seen for the first time. The result therefore does not depend on
// how documents were partitioned. ctx is checked before the first batch and
// between batches; on cancellation dst is left partially merged and must be
// discarded by the caller.
func Merge(ctx context.Context, batches []batch.IndexBatch, dst index.Backend, sink progress.Sink) (Stats, error) {
	sink = progress.OrDiscard(sink)
	order := make([]int, len(batches))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return batches[a].ID - batches[b].ID
	})

	var st Stats
	for n, i := range order {
		if err := ctx.Err(); err != nil {
			return st, fmt.Errorf("merging batch %d: %w", batches[i].ID, err)
		}
		b := &batches[i]
		for _, e := range b.Entries {
			if existing, ok := dst.Find(e.Token); ok {
				existing.Postings = append(existing.Postings, e.Postings...)
				st.Extended++
			} else {
				dst.Insert(index.Entry{
					Token:    e.Token,
					Postings: slices.Clip(e.Postings),
				})
				st.Inserted++
			}
			st.Postings += len(e.Postings)
		}
		st.Batches++
		sink.Report(progress.Event{
			Phase:   progress.PhaseMerge,
			Current: n + 1,
			Total:   len(batches),
			Message: fmt.Sprintf("batch %d", b.ID),
		})
	}
	return st, nil
}
