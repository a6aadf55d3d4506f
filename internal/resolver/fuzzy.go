package resolver

import (
	"sort"
	"strings"

	"github.com/agext/levenshtein"
)

// ratio is a plain Levenshtein similarity on a 0-100 scale.
func ratio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	return levenshtein.Similarity(a, b, nil) * 100
}

// tokenSortRatio compares strings after sorting their tokens, so word order
// does not matter ("nagar gandhi" matches "gandhi nagar").
func tokenSortRatio(a, b string) float64 {
	return ratio(sortTokens(a), sortTokens(b))
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// editDistance is the Levenshtein distance between two strings.
func editDistance(a, b string) int {
	return levenshtein.Distance(a, b, nil)
}

// plausiblePostalCode reports whether a token belongs to the postal-code
// digit-length family and may be fuzzy-matched against the code index.
func plausiblePostalCode(code string) bool {
	if len(code) < 5 || len(code) > 7 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
