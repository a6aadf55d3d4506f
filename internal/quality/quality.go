// Package quality scores how much usable structure a cleaned address carries.
// The score feeds confidence fusion as the data-quality signal when the
// caller does not supply one.
package quality

import (
	"regexp"
	"strings"

	"github.com/geofuse/geofuse/internal/model"
	"github.com/geofuse/geofuse/internal/refindex"
)

// Scoring rules: base 50, +15 postal code present, +10 city recognized,
// -20 no city at all, -10 vague location tokens, -15 too short. Clamped to
// [0, 100].
const (
	baseScore       = 50
	postalBonus     = 15
	knownCityBonus  = 10
	noCityPenalty   = 20
	vaguePenalty    = 10
	tooShortPenalty = 15
	minUsefulLength = 15
)

var postalCodePattern = regexp.MustCompile(`\b\d{6}\b`)

// vagueTokens mark addresses anchored to something else rather than to a
// location of their own.
var vagueTokens = []string{
	"near", "nearby", "near by", "close to", "close by", "next to",
	"beside", "besides", "opposite", "opp", "adj", "adjacent",
	"behind", "in front of", "front of", "back of", "around", "towards",
	"somewhere", "approximately", "approx", "about", "roughly", "circa",
	"area", "locality", "region", "zone", "vicinity", "neighborhood",
	"not far from",
}

// Assessment is the scoring outcome for one cleaned address.
type Assessment struct {
	// Score is the data-quality score in [0, 100].
	Score float64 `json:"score"`

	// Issues names each rule that penalized the address.
	Issues []string `json:"issues"`

	// Components holds the postal code and city extracted while scoring.
	Components model.Components `json:"components"`
}

// Scorer assesses cleaned address text against the reference store's known
// place names.
type Scorer struct {
	store *refindex.Store
}

// New builds a Scorer over the reference store.
func New(store *refindex.Store) *Scorer {
	return &Scorer{store: store}
}

// Assess scores the cleaned address. Pure function of the text and the
// immutable store.
func (s *Scorer) Assess(cleaned string) Assessment {
	a := Assessment{Score: baseScore}
	trimmed := strings.TrimSpace(cleaned)

	if code := ExtractPostalCode(trimmed); code != "" {
		a.Components.PostalCode = code
		a.Score += postalBonus
	} else {
		a.Issues = append(a.Issues, "missing_postal_code")
	}

	if city := s.extractCity(trimmed); city != "" {
		a.Components.City = city
		a.Score += knownCityBonus
	} else {
		a.Score -= noCityPenalty
		a.Issues = append(a.Issues, "no_city_found")
	}

	if ContainsVagueTokens(trimmed) {
		a.Score -= vaguePenalty
		a.Issues = append(a.Issues, "contains_vague_tokens")
	}

	if len(trimmed) < minUsefulLength {
		a.Score -= tooShortPenalty
		a.Issues = append(a.Issues, "too_short")
	}

	if a.Score < 0 {
		a.Score = 0
	}
	if a.Score > 100 {
		a.Score = 100
	}
	return a
}

// ExtractPostalCode returns the first 6-digit token in the text, or "".
func ExtractPostalCode(text string) string {
	return postalCodePattern.FindString(text)
}

// extractCity scans the text tokens against the store's known cities,
// localities, and landmarks. Longer windows are tried first so "navi mumbai"
// wins over "mumbai".
func (s *Scorer) extractCity(text string) string {
	tokens := tokenize(text)
	for window := 3; window >= 1; window-- {
		for i := 0; i+window <= len(tokens); i++ {
			name := strings.Join(tokens[i:i+window], " ")
			if len(name) < 4 {
				continue
			}
			if s.store.KnownCity(name) {
				return name
			}
		}
	}
	return ""
}

// ContainsVagueTokens reports whether the text contains a vague location
// phrase, matched on word boundaries.
func ContainsVagueTokens(text string) bool {
	padded := " " + strings.Join(tokenize(text), " ") + " "
	for _, tok := range vagueTokens {
		if strings.Contains(padded, " "+tok+" ") {
			return true
		}
	}
	return false
}

// tokenize lowercases and splits on whitespace and common punctuation.
func tokenize(text string) []string {
	replaced := strings.Map(func(r rune) rune {
		switch r {
		case ',', ';', '.', '!', '?', ':', '(', ')', '-', '[', ']', '{', '}':
			return ' '
		}
		return r
	}, strings.ToLower(text))
	return strings.Fields(replaced)
}
