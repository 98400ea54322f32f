package app

import (
	"strings"
	"unicode"
)

// Excerpt cuts s to at most n runes, backing off to the last word boundary,
// and reports whether anything was dropped.
func Excerpt(s string, n int) (string, bool) {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s, false
	}
	cut := n
	for i := n; i > n/2; i-- {
		if unicode.IsSpace(r[i]) {
			cut = i
			break
		}
	}
	return strings.TrimRightFunc(string(r[:cut]), func(c rune) bool {
		return unicode.IsSpace(c) || unicode.IsPunct(c)
	}) + "…", true
}
