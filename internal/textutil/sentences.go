// Package textutil holds text helpers shared by chunking, generation and display.
package textutil

import (
	"regexp"
	"strings"
	"unicode"
)

// SentencePattern matches one sentence ending in terminal punctuation.
var SentencePattern = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)

// SplitSentences returns the trimmed sentences re finds in text, in order.
// Text between or after matches, such as a trailing line without punctuation,
// is kept as its own sentence when it contains a letter or digit.
func SplitSentences(re *regexp.Regexp, text string) []string {
	var out []string
	keep := func(s string, requireWord bool) {
		s = strings.TrimSpace(s)
		if s == "" || (requireWord && !hasWord(s)) {
			return
		}
		out = append(out, s)
	}
	pos := 0
	for _, loc := range re.FindAllStringIndex(text, -1) {
		keep(text[pos:loc[0]], true)
		keep(text[loc[0]:loc[1]], false)
		pos = loc[1]
	}
	keep(text[pos:], true)
	return out
}

func hasWord(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}
