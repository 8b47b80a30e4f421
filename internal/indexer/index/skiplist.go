package index

import (
	"math/rand"
	"strings"
	"time"
)

const (
	DefaultMaxLevel             = 16
	DefaultPromotionProbability = 0.5
)

// RandSource draws uniform floats in [0, 1). *rand.Rand satisfies it.
type RandSource interface {
	Float64() float64
}

type skipNode struct {
	key     string
	entry   *Entry
	forward []*skipNode
}

// SkipList keeps entries ordered by token. Level i of the list is reached
// through forward[i]; every node on level i is also on all levels below.
type SkipList struct {
	head     *skipNode
	level    int
	maxLevel int
	p        float64
	rng      RandSource
	length   int
}

type SkipListOption func(*SkipList)

func WithMaxLevel(n int) SkipListOption {
	return func(sl *SkipList) {
		if n > 0 {
			sl.maxLevel = n
		}
	}
}

func WithPromotionProbability(p float64) SkipListOption {
	return func(sl *SkipList) {
		if p > 0 && p < 1 {
			sl.p = p
		}
	}
}

// WithRand injects the level source; tests pass a seeded one.
func WithRand(src RandSource) SkipListOption {
	return func(sl *SkipList) {
		if src != nil {
			sl.rng = src
		}
	}
}

// WithSeed seeds a private source for this list.
func WithSeed(seed int64) SkipListOption {
	return WithRand(rand.New(rand.NewSource(seed)))
}

func NewSkipList(opts ...SkipListOption) *SkipList {
	sl := &SkipList{
		maxLevel: DefaultMaxLevel,
		p:        DefaultPromotionProbability,
	}
	for _, opt := range opts {
		opt(sl)
	}
	if sl.rng == nil {
		sl.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	sl.head = &skipNode{forward: make([]*skipNode, sl.maxLevel)}
	sl.level = 1
	return sl
}

func (sl *SkipList) Kind() Kind { return KindSkipList }

// Insert adds entry under entry.Token. If the token is already present its
// postings are replaced in place and the list shape is untouched.
func (sl *SkipList) Insert(entry Entry) {
	update := make([]*skipNode, sl.maxLevel)
	cur := sl.head
	for i := sl.level - 1; i >= 0; i-- {
		for cur.forward[i] != nil && cur.forward[i].key < entry.Token {
			cur = cur.forward[i]
		}
		update[i] = cur
	}
	if next := cur.forward[0]; next != nil && next.key == entry.Token {
		next.entry.Postings = entry.Postings
		return
	}

	lvl := sl.randomLevel()
	if lvl > sl.level {
		for i := sl.level; i < lvl; i++ {
			update[i] = sl.head
		}
		sl.level = lvl
	}
	e := entry
	node := &skipNode{
		key:     entry.Token,
		entry:   &e,
		forward: make([]*skipNode, lvl),
	}
	for i := 0; i < lvl; i++ {
		node.forward[i] = update[i].forward[i]
		update[i].forward[i] = node
	}
	sl.length++
}

// Find returns the entry stored under key. The pointer stays valid until the
// list is cleared.
func (sl *SkipList) Find(key string) (*Entry, bool) {
	node := sl.seek(key)
	if node == nil || node.key != key {
		return nil, false
	}
	return node.entry, true
}

// AscendPrefix visits entries whose token starts with prefix in key order.
func (sl *SkipList) AscendPrefix(prefix string, fn func(*Entry) bool) {
	for node := sl.seek(prefix); node != nil; node = node.forward[0] {
		if !strings.HasPrefix(node.key, prefix) || !fn(node.entry) {
			return
		}
	}
}

// Clear unlinks every node and resets the list to a single level.
func (sl *SkipList) Clear() {
	for i := range sl.head.forward {
		sl.head.forward[i] = nil
	}
	sl.level = 1
	sl.length = 0
}

func (sl *SkipList) Len() int { return sl.length }

// Level returns the highest level currently in use.
func (sl *SkipList) Level() int { return sl.level }

// seek returns the first node whose key is >= key.
func (sl *SkipList) seek(key string) *skipNode {
	cur := sl.head
	for i := sl.level - 1; i >= 0; i-- {
		for cur.forward[i] != nil && cur.forward[i].key < key {
			cur = cur.forward[i]
		}
	}
	return cur.forward[0]
}

func (sl *SkipList) randomLevel() int {
	lvl := 1
	for lvl < sl.maxLevel && sl.rng.Float64() < sl.p {
		lvl++
	}
	return lvl
}

// keysAt lists the keys linked on a 0-based level.
func (sl *SkipList) keysAt(level int) []string {
	var keys []string
	for node := sl.head.forward[level]; node != nil; node = node.forward[level] {
		keys = append(keys, node.key)
	}
	return keys
}
