package anomaly

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func km(v float64) *float64 { return &v }

// healthy returns signals that trigger no rule.
func healthy() Signals {
	return Signals{
		FusedConfidence:    0.9,
		DataQuality:        85,
		ExternalConfidence: 0.9,
		MismatchKM:         km(0.5),
		LatencyMS:          120,
	}
}

func TestDetectHealthySignals(t *testing.T) {
	rep := Detect(healthy())
	assert.False(t, rep.Flagged)
	assert.Empty(t, rep.Reasons)
	assert.Equal(t, SeverityNone, rep.Severity)
}

func TestDetectIndividualRules(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Signals)
		reason   ReasonCode
		severity Severity
	}{
		{"low fused confidence", func(s *Signals) { s.FusedConfidence = 0.49 }, ReasonLowFusedConf, SeverityHigh},
		{"low data quality", func(s *Signals) { s.DataQuality = 39 }, ReasonLowIntegrity, SeverityCritical},
		{"resolver mismatch", func(s *Signals) { s.MismatchKM = km(3.01) }, ReasonResolverMismatch, SeverityMedium},
		{"low external confidence", func(s *Signals) { s.ExternalConfidence = 0.39 }, ReasonLowExternalConf, SeverityHigh},
		{"postal code mismatch", func(s *Signals) { s.PostalCodeMismatch = true }, ReasonPostalCodeMismatch, SeverityCritical},
		{"high latency", func(s *Signals) { s.LatencyMS = 1501 }, ReasonHighLatency, SeverityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := healthy()
			tt.mutate(&s)

			rep := Detect(s)
			assert.True(t, rep.Flagged)
			assert.Equal(t, []ReasonCode{tt.reason}, rep.Reasons)
			assert.Equal(t, tt.severity, rep.Severity)
		})
	}
}

func TestDetectThresholdsAreStrict(t *testing.T) {
	s := healthy()
	s.FusedConfidence = 0.5
	s.DataQuality = 40
	s.MismatchKM = km(3)
	s.ExternalConfidence = 0.4
	s.LatencyMS = 1500

	rep := Detect(s)
	assert.False(t, rep.Flagged, "exact boundary values must not flag")
}

func TestDetectNilMismatchSkipsDistanceRule(t *testing.T) {
	s := healthy()
	s.MismatchKM = nil

	rep := Detect(s)
	assert.False(t, rep.Flagged)
}

func TestDetectSeverityPriority(t *testing.T) {
	// Critical group dominates even when lower-severity reasons coexist.
	s := healthy()
	s.FusedConfidence = 0.2
	s.PostalCodeMismatch = true
	s.LatencyMS = 2000
	assert.Equal(t, SeverityCritical, Detect(s).Severity)

	s = healthy()
	s.FusedConfidence = 0.2
	s.MismatchKM = km(8)
	assert.Equal(t, SeverityHigh, Detect(s).Severity)

	s = healthy()
	s.MismatchKM = km(8)
	s.LatencyMS = 2000
	assert.Equal(t, SeverityMedium, Detect(s).Severity)
}

func TestDetectReasonsSortedWithDescriptions(t *testing.T) {
	s := healthy()
	s.FusedConfidence = 0.1
	s.DataQuality = 10
	s.ExternalConfidence = 0.1
	s.PostalCodeMismatch = true
	s.LatencyMS = 2000
	s.MismatchKM = km(50)

	rep := Detect(s)
	assert.Len(t, rep.Reasons, 6)
	assert.True(t, sort.SliceIsSorted(rep.Reasons, func(i, j int) bool {
		return rep.Reasons[i] < rep.Reasons[j]
	}))
	assert.Len(t, rep.Descriptions, 6)
	for i, r := range rep.Reasons {
		assert.Equal(t, Describe(r), rep.Descriptions[i])
		assert.NotEmpty(t, rep.Descriptions[i])
	}
}
