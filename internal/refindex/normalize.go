package refindex

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Key normalizes a place name or postal code into an index key: trimmed,
// lowercased, diacritics folded. Dataset exports and collaborator output
// disagree on accents, so keys must be accent-insensitive.
func Key(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	// The chained transformer carries internal state, so build it per call
	// rather than sharing one across goroutines.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

// placeKey joins a city key and a state key into a composite map key.
func placeKey(cityKey, stateKey string) string {
	return cityKey + "\x1f" + stateKey
}
