package verify

import (
	"strings"
	"unicode/utf8"
)

// DefaultOverlapThreshold is the share of the smaller word set that must be
// shared before two facts are worth a semantic comparison
const DefaultOverlapThreshold = 0.15

// minTokenLen excludes short function words by length alone
const minTokenLen = 3

// Tokens returns the set of lower-cased words of at least three characters
func Tokens(fact string) map[string]struct{} {
	words := strings.Fields(fact)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) >= minTokenLen {
			set[strings.ToLower(w)] = struct{}{}
		}
	}
	return set
}

// Overlaps is the lexical prefilter. It is recall-biased: it only trims
// candidates before a semantic comparison and is never a final verdict.
func Overlaps(a, b string, threshold float64) bool {
	return tokensOverlap(Tokens(a), Tokens(b), threshold)
}

func tokensOverlap(wa, wb map[string]struct{}, threshold float64) bool {
	if len(wa) == 0 || len(wb) == 0 {
		return false
	}

	small, large := wa, wb
	if len(large) < len(small) {
		small, large = large, small
	}

	shared := 0
	for w := range small {
		if _, ok := large[w]; ok {
			shared++
		}
	}

	return float64(shared) >= threshold*float64(len(small))
}

// shortlist returns the indices of candidates that pass the prefilter against fact
func shortlist(fact string, candidates []string, threshold float64) []int {
	words := Tokens(fact)
	var out []int
	for i, c := range candidates {
		if tokensOverlap(words, Tokens(c), threshold) {
			out = append(out, i)
		}
	}
	return out
}
