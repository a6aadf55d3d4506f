// Package validate cross-checks two independently produced geocode candidates
// against each other, the postal-code centroid, and administrative boundaries.
// Validation is deterministic and performs no I/O.
package validate

import (
	"fmt"
	"math"

	"github.com/geofuse/geofuse/internal/boundary"
	"github.com/geofuse/geofuse/internal/model"
	"github.com/geofuse/geofuse/internal/refindex"
)

// postalDeviationKM is the maximum accepted distance between a candidate and
// its postal-code centroid. PIN areas in the reference dataset rarely exceed
// this radius.
const postalDeviationKM = 50.0

// perIssuePenalty is subtracted from the consistency score for every
// component disagreement.
const perIssuePenalty = 0.1

// Report is the consistency report for one candidate pair.
type Report struct {
	// MismatchKM is the great-circle distance between the two candidates;
	// nil when either side lacks coordinates.
	MismatchKM *float64 `json:"mismatch_km"`

	PostalCodeMismatch bool `json:"postal_code_mismatch"`
	BoundaryViolation  bool `json:"boundary_violation"`

	// ComponentIssues lists field disagreements as
	// "<field>_mismatch_<sideX>_<sideY>".
	ComponentIssues []string `json:"component_issues"`

	// ConsistencyScore starts at 1 and loses a fixed penalty per issue.
	ConsistencyScore float64 `json:"consistency_score"`

	// Detail carries supporting measurements keyed by check name.
	Detail map[string]any `json:"detail"`
}

// labeled tags a candidate with its side of the comparison for detail keys.
type labeled struct {
	label string
	c     *model.Candidate
}

// Validator holds the read-only reference data the checks run against.
type Validator struct {
	store  *refindex.Store
	bounds *boundary.Set
}

// New builds a Validator over the reference store and boundary set.
func New(store *refindex.Store, bounds *boundary.Set) *Validator {
	return &Validator{store: store, bounds: bounds}
}

// Validate compares candidate a (internal resolver) with candidate b
// (external geocoder) under the extracted components. Either candidate may be
// nil; the affected checks are skipped, not failed.
func (v *Validator) Validate(a, b *model.Candidate, comps model.Components) Report {
	rep := Report{
		ConsistencyScore: 1.0,
		Detail:           map[string]any{},
	}

	if a.HasCoords() && b.HasCoords() {
		km := HaversineKM(a.Lat, a.Lon, b.Lat, b.Lon)
		rep.MismatchKM = &km
	}

	v.checkPostalCentroid(&rep, a, b, comps.PostalCode)
	v.checkBoundary(&rep, a, b, comps.City)
	v.crossCheckComponents(&rep, a, b, comps)

	rep.ConsistencyScore = math.Max(0, 1.0-perIssuePenalty*float64(len(rep.ComponentIssues)))
	return rep
}

// checkPostalCentroid flags the pair when either candidate strays too far
// from the centroid of the claimed postal code, or when the code is unknown
// to the index at all.
func (v *Validator) checkPostalCentroid(rep *Report, a, b *model.Candidate, postalCode string) {
	code := refindex.Key(postalCode)
	if code == "" {
		return
	}

	rec, ok := v.store.ByPostalCode(code)
	if !ok {
		rep.PostalCodeMismatch = true
		rep.Detail["postal_code_not_found"] = code
		return
	}

	for _, s := range []labeled{{"resolver", a}, {"external", b}} {
		if !s.c.HasCoords() {
			continue
		}
		km := HaversineKM(s.c.Lat, s.c.Lon, rec.Lat, rec.Lon)
		rep.Detail["postal_centroid_km_"+s.label] = round2(km)
		if km > postalDeviationKM {
			rep.PostalCodeMismatch = true
		}
	}
}

// checkBoundary tests both candidates against the city's boundary definition
// when one exists. No definition means unconstrained.
func (v *Validator) checkBoundary(rep *Report, a, b *model.Candidate, city string) {
	def, ok := v.bounds.Lookup(city)
	if !ok {
		return
	}
	for _, s := range []labeled{{"resolver", a}, {"external", b}} {
		if !s.c.HasCoords() {
			continue
		}
		if !def.Contains(s.c.Lat, s.c.Lon) {
			rep.BoundaryViolation = true
			rep.Detail["boundary_outside_"+s.label] = def.Name
		}
	}
}

// crossCheckComponents compares city/state/postal fields across the three
// sources pairwise. Comparison is case-, whitespace-, and diacritic-
// insensitive; a field is only compared when both sides report it.
func (v *Validator) crossCheckComponents(rep *Report, a, b *model.Candidate, comps model.Components) {
	type side struct {
		label              string
		city, state, postal string
	}
	sides := make([]side, 0, 3)
	if a != nil {
		sides = append(sides, side{"resolver", a.City, a.State, a.PostalCode})
	}
	if b != nil {
		sides = append(sides, side{"external", b.City, b.State, b.PostalCode})
	}
	sides = append(sides, side{"components", comps.City, comps.State, comps.PostalCode})

	fields := []struct {
		name string
		get  func(side) string
	}{
		{"city", func(s side) string { return s.city }},
		{"state", func(s side) string { return s.state }},
		{"postal_code", func(s side) string { return s.postal }},
	}

	for i := 0; i < len(sides); i++ {
		for j := i + 1; j < len(sides); j++ {
			for _, f := range fields {
				x := refindex.Key(f.get(sides[i]))
				y := refindex.Key(f.get(sides[j]))
				if x == "" || y == "" || x == y {
					continue
				}
				// City names may differ only by historical alias.
				if f.name == "city" && v.store.Alias(x) == v.store.Alias(y) {
					continue
				}
				rep.ComponentIssues = append(rep.ComponentIssues,
					fmt.Sprintf("%s_mismatch_%s_%s", f.name, sides[i].label, sides[j].label))
			}
		}
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
