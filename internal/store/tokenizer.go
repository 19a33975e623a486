package store

import (
	"strings"
	"unicode"
)

// Tokenize splits text into lowercased terms. Runs of letters and digits
// form one term, except Han, Hiragana, Katakana and Hangul runs, which are
// split into overlapping bigrams (a lone character stays a unigram). This
// mirrors Bleve's CJK analyzer so both backends see similar terms.
func Tokenize(text string) []string {
	var tokens []string
	var word []rune
	var cjk []rune

	flushWord := func() {
		if len(word) > 0 {
			tokens = append(tokens, strings.ToLower(string(word)))
			word = word[:0]
		}
	}
	flushCJK := func() {
		switch {
		case len(cjk) == 1:
			tokens = append(tokens, string(cjk))
		case len(cjk) > 1:
			for i := 0; i+1 < len(cjk); i++ {
				tokens = append(tokens, string(cjk[i:i+2]))
			}
		}
		cjk = cjk[:0]
	}

	for _, r := range text {
		switch {
		case isCJK(r):
			flushWord()
			cjk = append(cjk, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			flushCJK()
			word = append(word, r)
		default:
			flushWord()
			flushCJK()
		}
	}
	flushWord()
	flushCJK()

	return tokens
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

// joinTerms renders tokens back into index text for backends that
// tokenize on whitespace.
func joinTerms(text string) string {
	return strings.Join(Tokenize(text), " ")
}
