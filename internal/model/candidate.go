package model

// Tier identifies the resolver strategy that produced a candidate.
// Candidates from a higher-priority tier are never discarded in favor of a
// lower-priority one, regardless of any secondary score.
type Tier string

const (
	TierExactCode  Tier = "exact_code"
	TierFuzzyCode  Tier = "fuzzy_code"
	TierExactPlace Tier = "exact_place"
	TierFuzzyPlace Tier = "fuzzy_place"
	TierLocality   Tier = "locality"
	TierLandmark   Tier = "landmark"
	TierEmbedding  Tier = "embedding"
)

// tierRank orders tiers by resolution priority (lower is stronger).
var tierRank = map[Tier]int{
	TierExactCode:  0,
	TierFuzzyCode:  1,
	TierExactPlace: 2,
	TierLocality:   2,
	TierLandmark:   2,
	TierFuzzyPlace: 3,
	TierEmbedding:  4,
}

// Rank returns the priority rank of the tier (lower dominates).
func (t Tier) Rank() int {
	if r, ok := tierRank[t]; ok {
		return r
	}
	return len(tierRank)
}

// Candidate is a single geocode result. Candidates are immutable values,
// compared only by value.
type Candidate struct {
	City       string  `json:"city,omitempty"`
	District   string  `json:"district,omitempty"`
	State      string  `json:"state,omitempty"`
	PostalCode string  `json:"postal_code,omitempty"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Confidence float64 `json:"confidence"`
	SourceTier Tier    `json:"source_tier"`

	// Address is the formatted address string, when a collaborator supplied
	// one (external geocoders, reverse geocoding). Empty for index-derived
	// candidates.
	Address string `json:"address,omitempty"`

	// Similarity carries the raw embedding similarity for embedding-tier
	// candidates; zero otherwise.
	Similarity float64 `json:"similarity,omitempty"`
}

// HasCoords reports whether the candidate carries usable coordinates.
func (c *Candidate) HasCoords() bool {
	return c != nil && !(c.Lat == 0 && c.Lon == 0)
}

// Components carries the best-effort address components extracted by the
// external text-cleaning collaborator.
type Components struct {
	PostalCode string `json:"postal_code,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
}
