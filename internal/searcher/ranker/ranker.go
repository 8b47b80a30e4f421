// Package ranker turns raw postings collected for a query into the final
// result order: one hit per document, highest weight first.
package ranker

import (
	"container/heap"

	"github.com/RoaringBitmap/roaring"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
)

// Candidate is one posting found for one query token. Seq is the order in
// which the candidate was discovered and breaks weight ties.
type Candidate struct {
	Token   string
	Posting index.Posting
	Seq     int
}

// Collect flattens entries into candidates, query token order first and
// posting order second.
func Collect(entries []*index.Entry) []Candidate {
	n := 0
	for _, e := range entries {
		n += len(e.Postings)
	}
	out := make([]Candidate, 0, n)
	for _, e := range entries {
		for _, p := range e.Postings {
			out = append(out, Candidate{Token: e.Token, Posting: p, Seq: len(out)})
		}
	}
	return out
}

// Dedupe keeps the first candidate seen for each document and drops the
// rest, preserving order.
func Dedupe(cands []Candidate) []Candidate {
	seen := roaring.New()
	out := cands[:0:0]
	for _, c := range cands {
		if seen.CheckedAdd(uint32(c.Posting.DocID)) {
			out = append(out, c)
		}
	}
	return out
}

// Rank returns the limit best candidates by weight, descending. Equal
// weights keep discovery order. limit <= 0 returns every candidate.
func Rank(cands []Candidate, limit int) []Candidate {
	if limit <= 0 || limit > len(cands) {
		limit = len(cands)
	}
	if limit == 0 {
		return []Candidate{}
	}
	h := make(candidateHeap, 0, limit+1)
	for _, c := range cands {
		if h.Len() < limit {
			heap.Push(&h, c)
			continue
		}
		if worse(h[0], c) {
			h[0] = c
			heap.Fix(&h, 0)
		}
	}
	result := make([]Candidate, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&h).(Candidate)
	}
	return result
}

// worse reports whether a ranks below b.
func worse(a, b Candidate) bool {
	if a.Posting.Weight != b.Posting.Weight {
		return a.Posting.Weight < b.Posting.Weight
	}
	return a.Seq > b.Seq
}

// candidateHeap is a min-heap on rank: the root is the worst kept candidate.
type candidateHeap []Candidate

func (h candidateHeap) Len() int { return len(h) }

func (h candidateHeap) Less(i, j int) bool { return worse(h[i], h[j]) }

func (h candidateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *candidateHeap) Push(x any) {
	*h = append(*h, x.(Candidate))
}

func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
