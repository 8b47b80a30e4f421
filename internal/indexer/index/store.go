package index

// PostingStore keeps entries in insertion order and routes tokens to them
// through a Trie.
type PostingStore struct {
	trie    *Trie
	entries []*Entry
}

func NewPostingStore() *PostingStore {
	return &PostingStore{trie: NewTrie()}
}

func (s *PostingStore) Kind() Kind { return KindTrie }

// Insert stores entry, replacing the postings of an existing token.
func (s *PostingStore) Insert(entry Entry) {
	if id, ok := s.trie.Find(entry.Token); ok {
		s.entries[id].Postings = entry.Postings
		return
	}
	e := entry
	s.entries = append(s.entries, &e)
	s.trie.Insert(entry.Token, len(s.entries)-1)
}

func (s *PostingStore) Find(token string) (*Entry, bool) {
	id, ok := s.trie.Find(token)
	if !ok {
		return nil, false
	}
	return s.entries[id], true
}

func (s *PostingStore) AscendPrefix(prefix string, fn func(*Entry) bool) {
	s.trie.WalkPrefix(prefix, func(_ string, id int) bool {
		return fn(s.entries[id])
	})
}

func (s *PostingStore) Len() int { return len(s.entries) }

func (s *PostingStore) Clear() {
	s.trie.Reset()
	s.entries = nil
}
