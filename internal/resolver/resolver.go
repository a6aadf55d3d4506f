// Package resolver implements the tiered internal geocoder. Tiers are tried
// in strict priority order and the first tier that produces a candidate wins;
// later tiers are never consulted to second-guess an earlier hit.
package resolver

import (
	"context"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/geofuse/geofuse/internal/embed"
	"github.com/geofuse/geofuse/internal/model"
	"github.com/geofuse/geofuse/internal/refindex"
)

// Tier confidences. Exact postal hits are authoritative; everything below is
// progressively weaker, and the embedding tier can never exceed 0.7.
const (
	confExactCode = 1.0
	confFuzzyCode = 0.95
	confLocality  = 0.8
	confCity      = 0.7

	embedConfCap   = 0.7
	embedSimWeight = 0.5
	embedCityBoost = 0.2

	maxCodeEditDistance = 2
	placeAcceptScore    = 75.0
	localityAcceptScore = 80.0
	minFuzzyPlaceLen    = 3
	minFuzzyLocalityLen = 4
)

// Resolver answers geocode queries from the reference store, with an optional
// embedding index as the last-resort tier. It holds no mutable state and is
// safe for concurrent use.
type Resolver struct {
	store *refindex.Store
	emb   *embed.Index
	topK  int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithEmbeddings attaches the semantic fallback index.
func WithEmbeddings(ix *embed.Index) Option {
	return func(r *Resolver) { r.emb = ix }
}

// WithTopK sets how many embedding matches are retained as candidates.
func WithTopK(k int) Option {
	return func(r *Resolver) {
		if k > 0 {
			r.topK = k
		}
	}
}

// New builds a Resolver over the reference store.
func New(store *refindex.Store, opts ...Option) *Resolver {
	r := &Resolver{store: store, topK: 5}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Outcome is the result of one resolution attempt. Best is nil when no tier
// matched; Candidates lists alternatives (embedding tier only), best first.
type Outcome struct {
	Best       *model.Candidate
	Candidates []model.Candidate
	Confidence float64
}

// Resolve runs the tier chain against the cleaned address text and its
// extracted components. The same inputs always produce the same outcome.
//
// Tier order: exact postal code, fuzzy postal code, exact place (landmark,
// locality, alias-resolved city), fuzzy place, embedding. The embedding tier
// runs only when the components carried neither a postal code nor a city
// hint, so a weak semantic match can never shadow a failed structured lookup.
func (r *Resolver) Resolve(ctx context.Context, cleaned string, comps model.Components) (Outcome, error) {
	code := refindex.Key(comps.PostalCode)
	if code != "" {
		if rec, ok := r.store.ByPostalCode(code); ok {
			return single(candidateFromRecord(rec, confExactCode, model.TierExactCode)), nil
		}
		if rec, ok := r.fuzzyPostalCode(code); ok {
			return single(candidateFromRecord(rec, confFuzzyCode, model.TierFuzzyCode)), nil
		}
	}

	if comps.City != "" {
		if c, ok := r.matchPlace(comps.City, comps.State); ok {
			return single(c), nil
		}
	}

	if code == "" && comps.City == "" {
		return r.embeddingTier(ctx, cleaned)
	}
	return Outcome{}, nil
}

// fuzzyPostalCode scans the code index for the closest code within the edit
// distance budget. Only digit strings of postal-code length are scanned, so a
// street number can never drift into a code match. Ties keep the
// lexicographically smaller code.
func (r *Resolver) fuzzyPostalCode(code string) (refindex.Record, bool) {
	if !plausiblePostalCode(code) {
		return refindex.Record{}, false
	}
	best := refindex.Record{}
	bestDist := maxCodeEditDistance + 1
	for _, indexed := range r.store.PostalCodes() {
		d := editDistance(code, indexed)
		if d < bestDist {
			rec, _ := r.store.ByPostalCode(indexed)
			best, bestDist = rec, d
		}
	}
	return best, bestDist <= maxCodeEditDistance
}

// matchPlace resolves a city hint through landmarks, localities, and the
// (city, state) index, exact before fuzzy.
func (r *Resolver) matchPlace(city, stateHint string) (model.Candidate, bool) {
	q := refindex.Key(city)
	if q == "" {
		return model.Candidate{}, false
	}

	if lm, ok := r.store.Landmark(q); ok {
		return landmarkCandidate(lm), true
	}
	if rec, ok := r.store.ByLocality(q); ok {
		return candidateFromRecord(rec, confLocality, model.TierLocality), true
	}
	if stateHint != "" {
		if rec, ok := r.store.ByPlace(city, stateHint); ok {
			return candidateFromRecord(rec, confCity, model.TierExactPlace), true
		}
	}
	if rec, ok := r.store.ByCityAnyState(city); ok {
		return candidateFromRecord(rec, confCity, model.TierExactPlace), true
	}

	if c, ok := r.fuzzyPlace(q, refindex.Key(stateHint)); ok {
		return c, true
	}
	return r.fuzzyLocality(q)
}

// fuzzyPlace scans the place index with a token-sort similarity. When a state
// hint is present the score blends city and state similarity 70/30, so "Pune
// MH" cannot match a same-named town in another state. Scanning sorted
// entries with a strictly-greater comparison keeps ties deterministic.
func (r *Resolver) fuzzyPlace(cityKey, stateKey string) (model.Candidate, bool) {
	if len(cityKey) < minFuzzyPlaceLen {
		return model.Candidate{}, false
	}
	q := r.store.Alias(cityKey)

	var best refindex.Record
	bestScore := 0.0
	for _, pe := range r.store.Places() {
		score := tokenSortRatio(q, pe.CityKey)
		if stateKey != "" {
			score = 0.7*score + 0.3*ratio(stateKey, pe.StateKey)
		}
		if score > bestScore {
			best, bestScore = pe.Rec, score
		}
	}
	if bestScore < placeAcceptScore {
		return model.Candidate{}, false
	}
	return candidateFromRecord(best, confCity, model.TierFuzzyPlace), true
}

// fuzzyLocality scans registered locality tokens with a tighter acceptance
// bar than cities; locality names are short and collide easily.
func (r *Resolver) fuzzyLocality(q string) (model.Candidate, bool) {
	if len(q) < minFuzzyLocalityLen {
		return model.Candidate{}, false
	}
	var best refindex.Record
	bestScore := 0.0
	for _, le := range r.store.Localities() {
		score := tokenSortRatio(q, le.Name)
		if score > bestScore {
			best, bestScore = le.Rec, score
		}
	}
	if bestScore < localityAcceptScore {
		return model.Candidate{}, false
	}
	return candidateFromRecord(best, confLocality, model.TierLocality), true
}

// embeddingTier searches the semantic corpus. Confidence is derived from the
// cosine similarity, boosted when the matched city literally appears in the
// query text, and hard-capped below every structured tier.
func (r *Resolver) embeddingTier(ctx context.Context, cleaned string) (Outcome, error) {
	if !r.emb.Available() || strings.TrimSpace(cleaned) == "" {
		return Outcome{}, nil
	}

	matches, err := r.emb.Search(ctx, cleaned, r.topK)
	if err != nil {
		zap.L().Warn("resolver: embedding search failed", zap.Error(err))
		return Outcome{}, err
	}
	if len(matches) == 0 {
		return Outcome{}, nil
	}

	lowered := strings.ToLower(cleaned)
	candidates := make([]model.Candidate, 0, len(matches))
	for _, m := range matches {
		conf := m.Similarity * embedSimWeight
		if m.City != "" && strings.Contains(lowered, strings.ToLower(m.City)) {
			conf += embedCityBoost
		}
		conf = round4(math.Min(math.Max(conf, 0), embedConfCap))
		candidates = append(candidates, model.Candidate{
			City:       m.City,
			State:      m.State,
			Lat:        m.Lat,
			Lon:        m.Lon,
			Confidence: conf,
			SourceTier: model.TierEmbedding,
			Address:    m.Text,
			Similarity: m.Similarity,
		})
	}
	best := candidates[0]
	return Outcome{Best: &best, Candidates: candidates, Confidence: best.Confidence}, nil
}

func candidateFromRecord(rec refindex.Record, conf float64, tier model.Tier) model.Candidate {
	return model.Candidate{
		City:       rec.City,
		District:   rec.District,
		State:      rec.State,
		PostalCode: rec.PostalCode,
		Lat:        rec.Lat,
		Lon:        rec.Lon,
		Confidence: conf,
		SourceTier: tier,
	}
}

func landmarkCandidate(lm refindex.Landmark) model.Candidate {
	return model.Candidate{
		City:       lm.City,
		State:      lm.State,
		Lat:        lm.Lat,
		Lon:        lm.Lon,
		Confidence: confCity,
		SourceTier: model.TierLandmark,
	}
}

func single(c model.Candidate) Outcome {
	return Outcome{Best: &c, Candidates: []model.Candidate{c}, Confidence: c.Confidence}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
