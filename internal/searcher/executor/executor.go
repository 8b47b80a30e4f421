// Package executor answers queries against the current index snapshot.
package executor

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
)

const DefaultMaxResults = 100

// Hit is one ranked document.
type Hit struct {
	DocID    int           `json:"doc_id"`
	Path     string        `json:"path"`
	Token    string        `json:"token"`
	Position int           `json:"position"`
	Snippet  index.Snippet `json:"snippet"`
	Weight   float64       `json:"weight"`
}

type SearchResult struct {
	Query      string         `json:"query"`
	Tokens     []string       `json:"tokens"`
	Generation uint64         `json:"generation"`
	TotalHits  int            `json:"total_hits"`
	Results    []Hit          `json:"results"`
	TermStats  map[string]int `json:"term_stats"`
}

// SnapshotSource yields the snapshot to query. *indexer.Engine satisfies it.
type SnapshotSource interface {
	Current() *indexer.Snapshot
}

type Executor struct {
	source     SnapshotSource
	maxResults int
}

// New creates an Executor. maxResults <= 0 uses DefaultMaxResults.
func New(source SnapshotSource, maxResults int) *Executor {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Executor{
		source:     source,
		maxResults: maxResults,
	}
}

func (e *Executor) MaxResults() int { return e.maxResults }

// Execute tokenizes query, collects the postings of every token in query
// order, keeps the first posting per document and returns the documents by
// descending weight. limit <= 0 means the configured maximum, and larger
// limits are clamped to it. Tokens missing from the index contribute
// nothing; a query without tokens yields an empty result.
func (e *Executor) Execute(ctx context.Context, query string, limit int) (*SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > e.maxResults {
		limit = e.maxResults
	}
	snap := e.source.Current()
	tokens := uniqueTerms(tokenizer.Terms(query))
	result := &SearchResult{
		Query:      query,
		Tokens:     tokens,
		Generation: snap.Generation,
		Results:    []Hit{},
		TermStats:  make(map[string]int, len(tokens)),
	}
	if len(tokens) == 0 {
		return result, nil
	}

	entries := make([]*index.Entry, 0, len(tokens))
	for _, tok := range tokens {
		if entry, ok := snap.Find(tok); ok {
			entries = append(entries, entry)
			result.TermStats[tok] = len(entry.Postings)
		}
	}
	candidates := ranker.Dedupe(ranker.Collect(entries))
	result.TotalHits = len(candidates)

	for _, c := range ranker.Rank(candidates, limit) {
		doc, _ := snap.Document(c.Posting.DocID)
		result.Results = append(result.Results, Hit{
			DocID:    c.Posting.DocID,
			Path:     doc.Path,
			Token:    c.Token,
			Position: c.Posting.Position,
			Snippet:  c.Posting.Context,
			Weight:   c.Posting.Weight,
		})
	}

	logger.FromContext(ctx).Debug("query executed",
		"query", query,
		"tokens", tokens,
		"generation", snap.Generation,
		"candidates", result.TotalHits,
		"results", len(result.Results),
	)
	return result, nil
}

// uniqueTerms drops repeated tokens, keeping the first occurrence. A repeat
// could only contribute documents that were already seen.
func uniqueTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
