package index

import (
	"slices"
	"strings"
)

// noEntry marks a trie node that does not terminate an inserted token.
const noEntry = -1

type trieNode struct {
	children map[byte]int32
	terminal bool
	entryID  int
}

// Trie routes a token to an entry id by walking one node per byte, so any
// byte string is a distinct key and walks come out in byte order.
// Nodes live in a single arena slice and refer to children by index, so the
// whole tree is dropped with the slice.
type Trie struct {
	nodes []trieNode
	size  int
}

func NewTrie() *Trie {
	t := &Trie{}
	t.Reset()
	return t
}

// Insert records entryID for token, creating missing nodes along the way.
// Re-inserting a token overwrites its entry id.
func (t *Trie) Insert(token string, entryID int) {
	cur := int32(0)
	for i := 0; i < len(token); i++ {
		c := token[i]
		next, ok := t.nodes[cur].children[c]
		if !ok {
			next = int32(len(t.nodes))
			t.nodes = append(t.nodes, trieNode{entryID: noEntry})
			if t.nodes[cur].children == nil {
				t.nodes[cur].children = make(map[byte]int32, 1)
			}
			t.nodes[cur].children[c] = next
		}
		cur = next
	}
	node := &t.nodes[cur]
	if !node.terminal {
		t.size++
	}
	node.terminal = true
	node.entryID = entryID
}

// Find returns the entry id for token. A node reached by a strict prefix of
// some inserted token is not a match unless the prefix itself was inserted.
func (t *Trie) Find(token string) (int, bool) {
	cur, ok := t.walk(token)
	if !ok || !t.nodes[cur].terminal {
		return noEntry, false
	}
	return t.nodes[cur].entryID, true
}

// WalkPrefix visits every inserted token starting with prefix in
// lexicographic order until fn returns false.
func (t *Trie) WalkPrefix(prefix string, fn func(token string, entryID int) bool) {
	start, ok := t.walk(prefix)
	if !ok {
		return
	}
	var buf strings.Builder
	buf.WriteString(prefix)
	t.dfs(start, &buf, fn)
}

// Len returns the number of distinct tokens inserted.
func (t *Trie) Len() int {
	return t.size
}

// Reset drops every node except a fresh root.
func (t *Trie) Reset() {
	t.nodes = []trieNode{{entryID: noEntry}}
	t.size = 0
}

func (t *Trie) walk(token string) (int32, bool) {
	cur := int32(0)
	for i := 0; i < len(token); i++ {
		next, ok := t.nodes[cur].children[token[i]]
		if !ok {
			return 0, false
		}
		cur = next
	}
	return cur, true
}

func (t *Trie) dfs(idx int32, buf *strings.Builder, fn func(string, int) bool) bool {
	node := t.nodes[idx]
	if node.terminal && !fn(buf.String(), node.entryID) {
		return false
	}
	if len(node.children) == 0 {
		return true
	}
	keys := make([]byte, 0, len(node.children))
	for c := range node.children {
		keys = append(keys, c)
	}
	slices.Sort(keys)
	prefix := buf.String()
	for _, c := range keys {
		buf.Reset()
		buf.WriteString(prefix)
		buf.WriteByte(c)
		if !t.dfs(node.children[c], buf, fn) {
			return false
		}
	}
	return true
}
