// Package tokenizer splits raw document text into search tokens. CJK
// ideographs become single-character tokens; runs of letters and digits
// become lower-cased multi-character tokens; everything else separates.
package tokenizer

import (
	"strings"
	"unicode"
)

const (
	cjkFirst = '一'
	cjkLast  = '鿿'
)

// Token is a single normalised term and its ordinal within the text.
type Token struct {
	Term     string
	Position int
}

// IsCJK reports whether r lies in the CJK Unified Ideographs block.
func IsCJK(r rune) bool {
	return r >= cjkFirst && r <= cjkLast
}

// Tokenize breaks text into Tokens. It is pure and safe for concurrent use.
func Tokenize(text string) []Token {
	terms := Terms(text)
	tokens := make([]Token, len(terms))
	for i, term := range terms {
		tokens[i] = Token{Term: term, Position: i}
	}
	return tokens
}

// Terms is Tokenize without positions; the position of a term is its index.
func Terms(text string) []string {
	terms := make([]string, 0, len(text)/4)
	var acc strings.Builder
	flush := func() {
		if acc.Len() > 0 {
			terms = append(terms, acc.String())
			acc.Reset()
		}
	}
	for _, r := range text {
		switch {
		case IsCJK(r):
			flush()
			terms = append(terms, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			acc.WriteRune(unicode.ToLower(r))
		default:
			flush()
		}
	}
	flush()
	return terms
}
