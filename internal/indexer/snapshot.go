package indexer

import (
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
)

// Snapshot is one fully built index. It is never mutated after it has been
// published, so readers need no locks.
type Snapshot struct {
	Generation    uint64
	BuildID       uuid.UUID
	Documents     []index.Document
	Backend       index.Backend
	Postings      int
	BuiltAt       time.Time
	BuildDuration time.Duration
}

// Document returns the document with the given id.
func (s *Snapshot) Document(id int) (index.Document, bool) {
	if id < 0 || id >= len(s.Documents) {
		return index.Document{}, false
	}
	return s.Documents[id], true
}

// Find looks a token up in the snapshot's backend.
func (s *Snapshot) Find(token string) (*index.Entry, bool) {
	return s.Backend.Find(token)
}

func (s *Snapshot) Empty() bool {
	return len(s.Documents) == 0
}

func emptySnapshot(kind index.Kind) *Snapshot {
	b, err := index.NewBackend(kind)
	if err != nil {
		b = index.NewSkipList()
	}
	return &Snapshot{
		Backend: b,
		BuiltAt: time.Now(),
	}
}
