package index

import "github.com/RoaringBitmap/roaring"

// RawDocument is a (path, content) pair handed over by an import source.
type RawDocument struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Document is an imported document with its dense, 0-based id.
type Document struct {
	ID      int    `json:"id"`
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Snippet is the token window around a hit. Callers decide how to render it.
type Snippet struct {
	Before []string `json:"before"`
	Hit    string   `json:"hit"`
	After  []string `json:"after"`
}

// Posting records one occurrence of a token in a document. Weight is the
// token's term frequency within that document and is always > 0.
type Posting struct {
	DocID    int     `json:"doc_id"`
	Position int     `json:"position"`
	Context  Snippet `json:"context"`
	Weight   float64 `json:"weight"`
}

type PostingList []Posting

// Entry is the complete posting list of one token.
type Entry struct {
	Token    string      `json:"token"`
	Postings PostingList `json:"postings"`
}

// DocFreq returns the number of distinct documents in the entry.
func (e *Entry) DocFreq() uint64 {
	docs := roaring.New()
	for _, p := range e.Postings {
		docs.Add(uint32(p.DocID))
	}
	return docs.GetCardinality()
}

// ExtractSnippet returns the window of up to window terms on each side of
// terms[pos]. The returned slices alias terms and must not be modified.
func ExtractSnippet(terms []string, pos, window int) Snippet {
	if pos < 0 || pos >= len(terms) {
		return Snippet{}
	}
	if window < 0 {
		window = 0
	}
	start := max(0, pos-window)
	end := min(len(terms), pos+window+1)
	return Snippet{
		Before: terms[start:pos:pos],
		Hit:    terms[pos],
		After:  terms[pos+1 : end : end],
	}
}
