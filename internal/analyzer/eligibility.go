package analyzer

import (
	"strings"

	"github.com/jonathan/resource-pipeline/internal/types"
)

// DefaultThreshold is the confidence a description must exceed to be proposed.
const DefaultThreshold = 0.7

// MinDelta is the length difference, in characters, that alone makes an edit non-trivial.
const MinDelta = 10

// similarityCeiling is the token similarity at or above which an edit of
// similar length is treated as a rewording.
const similarityCeiling = 0.9

// EligibleDescription reports whether a proposed description may surface as a
// change: confidence must exceed threshold and the edit must be non-trivial.
func EligibleDescription(stored, proposed string, confidence, threshold float64) bool {
	if confidence <= threshold {
		return false
	}
	return NonTrivialChange(stored, proposed)
}

// NonTrivialChange reports whether proposed differs meaningfully from stored.
// Whitespace and letter case are ignored.
func NonTrivialChange(stored, proposed string) bool {
	a := strings.ToLower(types.NormalizeText(stored))
	b := strings.ToLower(types.NormalizeText(proposed))
	if b == "" || a == b {
		return false
	}
	delta := len(a) - len(b)
	if delta < 0 {
		delta = -delta
	}
	if delta >= MinDelta {
		return true
	}
	return TokenSimilarity(a, b) < similarityCeiling
}

// TokenSimilarity is the Jaccard index of the word sets of a and b.
func TokenSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	shared := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			shared++
		}
	}
	union := len(setA) + len(setB) - shared
	return float64(shared) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127)
	}) {
		set[tok] = struct{}{}
	}
	return set
}
