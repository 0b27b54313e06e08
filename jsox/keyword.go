package jsox

import (
	"math"
	"unicode"
)

// ============================================================
// Keyword automaton
// ============================================================
//
// Keywords are matched one rune at a time by a trie. Each state is a
// partially matched keyword; kwDead means no keyword can match any more and
// the word will become a bareword string.

const (
	kwDead  = -1
	kwStart = 0
)

type kwNode struct {
	next   map[rune]int
	accept int // index into keywords, or -1
}

type keyword struct {
	text string
	build func(negative bool) *Value
	// signed reports whether a leading '-' or '+' is allowed.
	signed bool
}

var keywords = []keyword{
	{text: "true", build: func(bool) *Value { return Bool(true) }},
	{text: "false", build: func(bool) *Value { return Bool(false) }},
	{text: "null", build: func(bool) *Value { return Null() }},
	{text: "undefined", build: func(bool) *Value { return Undefined() }},
	{text: "NaN", signed: true, build: func(neg bool) *Value {
		if neg {
			return NegNaN()
		}
		return NaN()
	}},
	{text: "Infinity", signed: true, build: func(neg bool) *Value {
		if neg {
			return Number(math.Inf(-1))
		}
		return Number(math.Inf(1))
	}},
}

var kwTrie = buildKeywordTrie()

func buildKeywordTrie() []kwNode {
	nodes := []kwNode{{next: map[rune]int{}, accept: -1}}
	for ki, kw := range keywords {
		state := kwStart
		for _, r := range kw.text {
			n, ok := nodes[state].next[r]
			if !ok {
				nodes = append(nodes, kwNode{next: map[rune]int{}, accept: -1})
				n = len(nodes) - 1
				nodes[state].next[r] = n
			}
			state = n
		}
		nodes[state].accept = ki
	}
	return nodes
}

func kwStep(state int, r rune) int {
	if state == kwDead {
		return kwDead
	}
	n, ok := kwTrie[state].next[r]
	if !ok {
		return kwDead
	}
	return n
}

// kwAccept returns the keyword matched in state, if any.
func kwAccept(state int) (keyword, bool) {
	if state == kwDead || kwTrie[state].accept < 0 {
		return keyword{}, false
	}
	return keywords[kwTrie[state].accept], true
}

// ============================================================
// Character classes
// ============================================================

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\uFEFF' || unicode.IsSpace(r)
}

func isQuote(r rune) bool {
	return r == '"' || r == '\'' || r == '`'
}

// isWordRune reports whether r can be part of a bareword, key or tag.
func isWordRune(r rune) bool {
	switch r {
	case '{', '}', '[', ']', ':', ',', '"', '\'', '`', '/', '#':
		return false
	}
	return !isSpace(r)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isHexDigit(r rune) bool {
	return isDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func hexVal(r rune) rune {
	switch {
	case r >= '0' && r <= '9':
		return r - '0'
	case r >= 'a' && r <= 'f':
		return r - 'a' + 10
	default:
		return r - 'A' + 10
	}
}

func isLetter(r rune) bool {
	return unicode.IsLetter(r) || r == '_' || r == '$'
}
