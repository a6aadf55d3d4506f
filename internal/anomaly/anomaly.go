// Package anomaly evaluates fused resolution signals against fixed thresholds
// and classifies the result. Every comparison is a strict inequality so exact
// boundary values never flap.
package anomaly

import "sort"

// ReasonCode names one triggered anomaly rule. The set is closed; healing
// strategies key off these values.
type ReasonCode string

const (
	ReasonLowFusedConf       ReasonCode = "low_fused_conf"
	ReasonLowIntegrity       ReasonCode = "low_integrity"
	ReasonResolverMismatch   ReasonCode = "resolver_mismatch"
	ReasonLowExternalConf    ReasonCode = "low_external_conf"
	ReasonPostalCodeMismatch ReasonCode = "postal_code_mismatch"
	ReasonHighLatency        ReasonCode = "high_latency"
)

// Severity classes, ordered none < low < medium < high < critical.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rule thresholds.
const (
	minFusedConfidence    = 0.5
	minDataQuality        = 40.0
	maxMismatchKM         = 3.0
	minExternalConfidence = 0.4
	maxLatencyMS          = 1500.0
)

var descriptions = map[ReasonCode]string{
	ReasonLowFusedConf:       "fused confidence below 0.5",
	ReasonLowIntegrity:       "data-quality score below 40",
	ReasonResolverMismatch:   "resolver and external geocoder disagree by more than 3 km",
	ReasonLowExternalConf:    "external geocoder confidence below 0.4",
	ReasonPostalCodeMismatch: "candidate coordinates inconsistent with the claimed postal code",
	ReasonHighLatency:        "resolution latency above 1500 ms",
}

// Describe returns the human-readable description for a reason code.
func Describe(code ReasonCode) string {
	return descriptions[code]
}

// Report is the detector's verdict for one resolution.
type Report struct {
	Flagged bool `json:"flagged"`

	// Reasons is sorted lexicographically so reports compare by value.
	Reasons []ReasonCode `json:"reasons"`

	Severity     Severity `json:"severity"`
	Descriptions []string `json:"descriptions"`
}

// Signals carries everything the detector evaluates.
type Signals struct {
	FusedConfidence    float64
	DataQuality        float64
	ExternalConfidence float64
	MismatchKM         *float64
	PostalCodeMismatch bool
	LatencyMS          float64
}

// Detect runs the six threshold rules over the signals. Each rule is
// independent; reasons accumulate.
func Detect(s Signals) Report {
	var reasons []ReasonCode
	if s.FusedConfidence < minFusedConfidence {
		reasons = append(reasons, ReasonLowFusedConf)
	}
	if s.DataQuality < minDataQuality {
		reasons = append(reasons, ReasonLowIntegrity)
	}
	if s.MismatchKM != nil && *s.MismatchKM > maxMismatchKM {
		reasons = append(reasons, ReasonResolverMismatch)
	}
	if s.ExternalConfidence < minExternalConfidence {
		reasons = append(reasons, ReasonLowExternalConf)
	}
	if s.PostalCodeMismatch {
		reasons = append(reasons, ReasonPostalCodeMismatch)
	}
	if s.LatencyMS > maxLatencyMS {
		reasons = append(reasons, ReasonHighLatency)
	}

	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })

	rep := Report{
		Flagged:  len(reasons) > 0,
		Reasons:  reasons,
		Severity: classify(reasons),
	}
	for _, r := range reasons {
		rep.Descriptions = append(rep.Descriptions, descriptions[r])
	}
	return rep
}

// classify maps reason membership to a severity class. Group priority is
// fixed: integrity and postal failures dominate, then confidence failures,
// then geospatial disagreement, then latency alone.
func classify(reasons []ReasonCode) Severity {
	if len(reasons) == 0 {
		return SeverityNone
	}
	has := func(codes ...ReasonCode) bool {
		for _, c := range codes {
			for _, r := range reasons {
				if r == c {
					return true
				}
			}
		}
		return false
	}
	switch {
	case has(ReasonLowIntegrity, ReasonPostalCodeMismatch):
		return SeverityCritical
	case has(ReasonLowFusedConf, ReasonLowExternalConf):
		return SeverityHigh
	case has(ReasonResolverMismatch):
		return SeverityMedium
	default:
		return SeverityLow
	}
}
