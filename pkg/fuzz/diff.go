package fuzz

import (
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ResponseDiff returns the share of a and b that differs, from 0 (identical)
// to 1 (nothing in common).
func ResponseDiff(a, b string) float64 {
	if a == b {
		return 0
	}
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 0
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(a, b, false)
	distance := dmp.DiffLevenshtein(diffs)
	return min(1.0, float64(distance)/float64(longest))
}
