package router

import (
	"strings"
	"unicode"
)

// KeywordSet matches whole tokens of a message against a fixed vocabulary.
type KeywordSet map[string]struct{}

func NewKeywordSet(words ...[]string) KeywordSet {
	set := KeywordSet{}
	for _, group := range words {
		for _, w := range group {
			if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
				set[w] = struct{}{}
			}
		}
	}
	return set
}

// Match returns the first token of text that belongs to the set.
func (k KeywordSet) Match(text string) (string, bool) {
	if len(k) == 0 {
		return "", false
	}
	for _, tok := range Tokenize(text) {
		if _, ok := k[tok]; ok {
			return tok, true
		}
	}
	return "", false
}

// Tokenize lowercases text and splits it on every rune that is neither a
// letter nor a digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
