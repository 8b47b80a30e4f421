// Package index holds the inverted-index data model and its two backing
// structures: a trie-routed posting store and a skip list. Both satisfy
// Backend, so the build pipeline and the query path do not care which one
// is active.
package index

import "fmt"

// Kind names a backing structure.
type Kind string

const (
	KindSkipList Kind = "skiplist"
	KindTrie     Kind = "trie"
)

// Backend is the token → Entry contract shared by both structures. Insert
// has replace semantics; callers that need union semantics look the entry up
// first and extend it. A Backend is not safe for concurrent mutation.
type Backend interface {
	Kind() Kind
	Insert(entry Entry)
	Find(token string) (*Entry, bool)
	AscendPrefix(prefix string, fn func(*Entry) bool)
	Len() int
	Clear()
}

// NewBackend builds an empty backend of the given kind. Skip list options are
// ignored for the trie.
func NewBackend(kind Kind, opts ...SkipListOption) (Backend, error) {
	switch kind {
	case KindSkipList, "":
		return NewSkipList(opts...), nil
	case KindTrie:
		return NewPostingStore(), nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", kind)
	}
}

// CountPostings sums the posting lists of every entry in b.
func CountPostings(b Backend) int {
	n := 0
	b.AscendPrefix("", func(e *Entry) bool {
		n += len(e.Postings)
		return true
	})
	return n
}
