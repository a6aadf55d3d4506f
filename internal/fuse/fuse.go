// Package fuse combines the per-signal confidence scores into one scalar.
package fuse

import "math"

// Signal weights. They sum to 1.0; keep that property under any reweighting.
const (
	weightDataQuality = 0.25
	weightResolver    = 0.25
	weightExternal    = 0.30
	weightGeospatial  = 0.20
)

// geoNeutral is used when no pairwise distance is available: the geospatial
// signal neither rewards nor punishes.
const geoNeutral = 0.5

// geoFullPenaltyKM is the mismatch distance at which the geospatial component
// bottoms out at zero.
const geoFullPenaltyKM = 10.0

// Provenance is the per-signal breakdown behind a fused value, each component
// already normalized to [0,1].
type Provenance struct {
	DataQuality        float64 `json:"data_quality"`
	ResolverConfidence float64 `json:"resolver_confidence"`
	ExternalConfidence float64 `json:"external_confidence"`
	Geospatial         float64 `json:"geospatial_component"`
}

// Fused is the combined confidence with its provenance. Recomputed per query,
// never cached across distinct inputs.
type Fused struct {
	Value      float64    `json:"value"`
	Provenance Provenance `json:"provenance"`
}

// Fuse combines a data-quality score (0-100), the resolver and external
// geocoder confidences (0-1), and the validator's pairwise mismatch distance
// into a single scalar in [0,1], rounded to 4 decimal places.
func Fuse(dataQuality, resolverConf, externalConf float64, mismatchKM *float64) Fused {
	geo := geoNeutral
	if mismatchKM != nil {
		geo = 1 - math.Min(*mismatchKM/geoFullPenaltyKM, 1)
	}

	p := Provenance{
		DataQuality:        clamp01(dataQuality / 100),
		ResolverConfidence: clamp01(resolverConf),
		ExternalConfidence: clamp01(externalConf),
		Geospatial:         clamp01(geo),
	}
	value := weightDataQuality*p.DataQuality +
		weightResolver*p.ResolverConfidence +
		weightExternal*p.ExternalConfidence +
		weightGeospatial*p.Geospatial

	return Fused{
		Value:      math.Round(clamp01(value)*10000) / 10000,
		Provenance: p,
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
