package heal

import (
	"context"
	"fmt"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/geofuse/geofuse/internal/anomaly"
	"github.com/geofuse/geofuse/internal/model"
	"github.com/geofuse/geofuse/internal/quality"
	"github.com/geofuse/geofuse/internal/refindex"
)

// Strategy IDs, stable identifiers recorded in the audit log.
const (
	StrategyStrictReclean    = "strict_reclean"
	StrategyReverseReconcile = "reverse_reconcile"
	StrategyPostalFallback   = "postal_fallback"
)

// reverseMatchThreshold is the fuzzy similarity above which a reverse-geocoded
// address confirms the other side's result.
const reverseMatchThreshold = 0.7

// input carries everything a strategy may inspect. Strategies never mutate it.
type input struct {
	raw     string
	cleaned string
	a, b    *model.Candidate
}

// strategy pairs a reason code with its recovery routine. Strategies are
// values in a fixed registry; the orchestrator picks those whose reason was
// reported and runs them independently.
type strategy struct {
	id     string
	reason anomaly.ReasonCode
	run    func(ctx context.Context, in input) Action
}

// strictReclean re-invokes the cleaner in strict mode and re-resolves.
// The new result is accepted only when its confidence strictly beats the
// original; equal confidence is attempted-but-not-improved.
func (o *Orchestrator) strictReclean(ctx context.Context, in input) Action {
	act := Action{Strategy: StrategyStrictReclean, Reason: anomaly.ReasonLowIntegrity}

	cleaned, err := o.clean(ctx, in.raw, true)
	if err != nil {
		act.Notes = "strict re-clean failed: " + err.Error()
		return act
	}
	if cleaned.Text == "" || cleaned.Text == in.cleaned {
		act.Succeeded = true
		act.Notes = "strict cleaning produced identical result"
		return act
	}

	outcome, err := o.resolver.Resolve(ctx, cleaned.Text, cleaned.Components)
	if err != nil {
		act.Notes = "re-resolution failed: " + err.Error()
		return act
	}

	oldConf := 0.0
	if in.a != nil {
		oldConf = in.a.Confidence
	}
	act.Succeeded = true
	if outcome.Best != nil && outcome.Confidence > oldConf {
		act.Improved = true
		act.Result = outcome.Best
		act.Confidence = outcome.Confidence
		act.Notes = fmt.Sprintf("confidence improved %.4f -> %.4f after strict re-clean", oldConf, outcome.Confidence)
	} else {
		act.Notes = "strict cleaning applied but confidence did not improve"
	}
	return act
}

// reverseReconcile reverse-geocodes candidate A's coordinates and compares
// the returned address against candidate B. A strong similarity means the
// two sides agree after all and the reverse-geocoded result stands.
func (o *Orchestrator) reverseReconcile(ctx context.Context, in input) Action {
	act := Action{Strategy: StrategyReverseReconcile, Reason: anomaly.ReasonResolverMismatch}

	if !in.a.HasCoords() {
		act.Notes = "no coordinates available for reverse geocoding"
		return act
	}
	rev, err := o.reverseGeocode(ctx, in.a.Lat, in.a.Lon)
	if err != nil {
		act.Notes = "reverse geocoding failed: " + err.Error()
		return act
	}
	if rev == nil {
		act.Notes = "reverse geocoding returned no result"
		return act
	}
	act.Succeeded = true

	other := addressString(in.b)
	if other == "" {
		act.Notes = "no external address available for comparison"
		return act
	}

	sim := levenshtein.Similarity(strings.ToLower(addressString(rev)), strings.ToLower(other), nil)
	if sim > reverseMatchThreshold {
		act.Improved = true
		act.Result = rev
		act.Confidence = sim
		act.Notes = fmt.Sprintf("reverse geocoding reconciled the candidates (similarity %.2f)", sim)
	} else {
		act.Notes = fmt.Sprintf("reverse geocode similarity too low (%.2f)", sim)
	}
	return act
}

// postalFallback rebuilds a minimal structured query around the postal code
// in the cleaned text and accepts the collaborator's answer only when it
// echoes that exact code back.
func (o *Orchestrator) postalFallback(ctx context.Context, in input) Action {
	act := Action{Strategy: StrategyPostalFallback, Reason: anomaly.ReasonPostalCodeMismatch}

	code := quality.ExtractPostalCode(in.cleaned)
	if code == "" {
		act.Notes = "no postal code found in cleaned address"
		return act
	}

	city, state := cityState(in.a, in.b)
	query := code
	switch {
	case city != "" && state != "":
		query = fmt.Sprintf("%s, %s, %s", code, city, state)
	case city != "":
		query = fmt.Sprintf("%s, %s", code, city)
	}

	result, err := o.geocode(ctx, query)
	if err != nil {
		act.Notes = "fallback geocoding failed: " + err.Error()
		return act
	}
	if result == nil {
		act.Notes = "fallback geocoding returned no result"
		return act
	}
	act.Succeeded = true

	echoed := result.PostalCode
	if echoed == "" {
		echoed = quality.ExtractPostalCode(result.Address)
	}
	if refindex.Key(echoed) == refindex.Key(code) {
		act.Improved = true
		act.Result = result
		act.Confidence = result.Confidence
		act.Notes = fmt.Sprintf("postal code %s validated with query %q", code, query)
	} else {
		act.Notes = fmt.Sprintf("result postal code %q does not match expected %s", echoed, code)
	}
	return act
}

// addressString flattens a candidate to a comparable address line.
func addressString(c *model.Candidate) string {
	if c == nil {
		return ""
	}
	if c.Address != "" {
		return c.Address
	}
	parts := make([]string, 0, 3)
	for _, p := range []string{c.City, c.State, c.PostalCode} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// cityState takes city/state from whichever candidate reports them, the
// internal one first.
func cityState(a, b *model.Candidate) (city, state string) {
	for _, c := range []*model.Candidate{a, b} {
		if c == nil {
			continue
		}
		if city == "" {
			city = c.City
		}
		if state == "" {
			state = c.State
		}
	}
	return city, state
}
