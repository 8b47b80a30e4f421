package index

import (
	"reflect"
	"testing"
)

func TestTrie_InsertFind(t *testing.T) {
	tr := NewTrie()
	pairs := map[string]int{"search": 0, "sea": 1, "engine": 2, "搜": 3, "搜索": 4, "123": 5}
	for tok, id := range pairs {
		tr.Insert(tok, id)
	}
	for tok, id := range pairs {
		got, ok := tr.Find(tok)
		if !ok || got != id {
			t.Errorf("Find(%q) = %d, %v; want %d, true", tok, got, ok, id)
		}
	}
	if tr.Len() != len(pairs) {
		t.Errorf("Len() = %d, want %d", tr.Len(), len(pairs))
	}
}

func TestTrie_PrefixIsNotAMatch(t *testing.T) {
	tr := NewTrie()
	tr.Insert("searching", 7)
	for _, tok := range []string{"s", "sea", "search", "searchingx", "", "x"} {
		if id, ok := tr.Find(tok); ok {
			t.Errorf("Find(%q) = %d, want not found", tok, id)
		}
	}
}

func TestTrie_OverwriteLastWins(t *testing.T) {
	tr := NewTrie()
	tr.Insert("cat", 1)
	tr.Insert("cat", 9)
	if id, _ := tr.Find("cat"); id != 9 {
		t.Errorf("Find(cat) = %d, want 9", id)
	}
	if tr.Len() != 1 {
		t.Errorf("Len() = %d, want 1", tr.Len())
	}
}

func TestTrie_EmptyToken(t *testing.T) {
	tr := NewTrie()
	if _, ok := tr.Find(""); ok {
		t.Fatal("empty token should miss before insert")
	}
	tr.Insert("", 4)
	if id, ok := tr.Find(""); !ok || id != 4 {
		t.Errorf("Find(\"\") = %d, %v", id, ok)
	}
}

func TestTrie_WalkPrefixSorted(t *testing.T) {
	tr := NewTrie()
	for i, tok := range []string{"cat", "car", "cart", "dog", "ca", "猫", "c"} {
		tr.Insert(tok, i)
	}
	var got []string
	tr.WalkPrefix("ca", func(tok string, _ int) bool {
		got = append(got, tok)
		return true
	})
	if want := []string{"ca", "car", "cart", "cat"}; !reflect.DeepEqual(got, want) {
		t.Errorf("WalkPrefix(ca) = %v, want %v", got, want)
	}

	got = nil
	tr.WalkPrefix("", func(tok string, _ int) bool {
		got = append(got, tok)
		return true
	})
	if want := []string{"c", "ca", "car", "cart", "cat", "dog", "猫"}; !reflect.DeepEqual(got, want) {
		t.Errorf("WalkPrefix(\"\") = %v, want %v", got, want)
	}

	got = nil
	tr.WalkPrefix("zebra", func(tok string, _ int) bool {
		got = append(got, tok)
		return true
	})
	if got != nil {
		t.Errorf("WalkPrefix(zebra) = %v, want nothing", got)
	}
}

func TestTrie_Reset(t *testing.T) {
	tr := NewTrie()
	tr.Insert("abc", 1)
	tr.Reset()
	if _, ok := tr.Find("abc"); ok || tr.Len() != 0 {
		t.Fatal("Reset should drop all tokens")
	}
}

func TestTrie_InvalidUTF8KeysStayDistinct(t *testing.T) {
	tr := NewTrie()
	tr.Insert("\xff", 1)
	if id, ok := tr.Find("\xfe"); ok {
		t.Errorf("Find(\\xfe) = %d, want not found", id)
	}
	if id, ok := tr.Find("�"); ok {
		t.Errorf("Find(U+FFFD) = %d, want not found", id)
	}
	tr.Insert("\xfe", 2)
	tr.Insert("a\xffb", 3)
	if tr.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", tr.Len())
	}
	for tok, want := range map[string]int{"\xff": 1, "\xfe": 2, "a\xffb": 3} {
		if got, ok := tr.Find(tok); !ok || got != want {
			t.Errorf("Find(%q) = %d, %v; want %d", tok, got, ok, want)
		}
	}
}
