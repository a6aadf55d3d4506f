package heal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geofuse/geofuse/internal/anomaly"
	"github.com/geofuse/geofuse/internal/model"
	"github.com/geofuse/geofuse/internal/resolver"
)

type fakeCleaner struct {
	text  string
	comps model.Components
	err   error
}

func (f fakeCleaner) Clean(ctx context.Context, raw string, strict bool) (Cleaned, error) {
	if f.err != nil {
		return Cleaned{}, f.err
	}
	return Cleaned{Text: f.text, Components: f.comps, Confidence: 0.9}, nil
}

type fakeGeocoder struct {
	geocode   func(query string) (*model.Candidate, error)
	reverse   func(lat, lon float64) (*model.Candidate, error)
	lastQuery string
}

func (f *fakeGeocoder) Geocode(ctx context.Context, query string) (*model.Candidate, error) {
	f.lastQuery = query
	if f.geocode == nil {
		return nil, errors.New("geocode unavailable")
	}
	return f.geocode(query)
}

func (f *fakeGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (*model.Candidate, error) {
	if f.reverse == nil {
		return nil, errors.New("reverse geocode unavailable")
	}
	return f.reverse(lat, lon)
}

type fakeResolver struct {
	outcome resolver.Outcome
	err     error
}

func (f fakeResolver) Resolve(ctx context.Context, cleaned string, comps model.Components) (resolver.Outcome, error) {
	return f.outcome, f.err
}

func outcomeWith(conf float64) resolver.Outcome {
	c := model.Candidate{City: "Mumbai", Lat: 19.07, Lon: 72.87, Confidence: conf, SourceTier: model.TierExactPlace}
	return resolver.Outcome{Best: &c, Candidates: []model.Candidate{c}, Confidence: conf}
}

func TestHealNoReasons(t *testing.T) {
	o := New(fakeCleaner{}, &fakeGeocoder{}, fakeResolver{})

	res := o.Heal(context.Background(), "raw", "cleaned", nil, nil, nil)
	assert.False(t, res.Healed)
	assert.Empty(t, res.Actions)
	assert.Contains(t, res.Summary, "0 anomaly reason(s)")
	assert.Contains(t, res.Summary, "NOT HEALED")
}

func TestStrictRecleanImproves(t *testing.T) {
	o := New(
		fakeCleaner{text: "clean mumbai 400001"},
		&fakeGeocoder{},
		fakeResolver{outcome: outcomeWith(0.9)},
	)
	original := &model.Candidate{Confidence: 0.5}

	res := o.Heal(context.Background(), "raw text", "messy text", original, nil,
		[]anomaly.ReasonCode{anomaly.ReasonLowIntegrity})

	require.Len(t, res.Actions, 1)
	act := res.Actions[0]
	assert.Equal(t, StrategyStrictReclean, act.Strategy)
	assert.True(t, act.Succeeded)
	assert.True(t, act.Improved)
	assert.True(t, res.Healed)
	assert.Equal(t, 0.9, res.FinalConfidence)
	require.NotNil(t, res.FinalResult)
	assert.Equal(t, "Mumbai", res.FinalResult.City)
	assert.Contains(t, res.Summary, "HEALED")
}

func TestStrictRecleanNoImprovement(t *testing.T) {
	o := New(
		fakeCleaner{text: "clean mumbai 400001"},
		&fakeGeocoder{},
		fakeResolver{outcome: outcomeWith(0.5)},
	)
	original := &model.Candidate{Confidence: 0.5}

	res := o.Heal(context.Background(), "raw text", "messy text", original, nil,
		[]anomaly.ReasonCode{anomaly.ReasonLowIntegrity})

	require.Len(t, res.Actions, 1)
	assert.True(t, res.Actions[0].Succeeded)
	assert.False(t, res.Actions[0].Improved, "equal confidence is not an improvement")
	assert.False(t, res.Healed)
}

func TestStrictRecleanIdenticalText(t *testing.T) {
	o := New(
		fakeCleaner{text: "same text"},
		&fakeGeocoder{},
		fakeResolver{outcome: outcomeWith(0.9)},
	)

	res := o.Heal(context.Background(), "raw", "same text", nil, nil,
		[]anomaly.ReasonCode{anomaly.ReasonLowIntegrity})

	require.Len(t, res.Actions, 1)
	assert.True(t, res.Actions[0].Succeeded)
	assert.False(t, res.Actions[0].Improved)
	assert.Contains(t, res.Actions[0].Notes, "identical")
}

func TestReverseReconcileMatch(t *testing.T) {
	g := &fakeGeocoder{
		reverse: func(lat, lon float64) (*model.Candidate, error) {
			return &model.Candidate{Address: "123 Marine Drive, Mumbai", Lat: lat, Lon: lon, Confidence: 0.8}, nil
		},
	}
	o := New(fakeCleaner{}, g, fakeResolver{})

	a := &model.Candidate{Lat: 18.94, Lon: 72.82}
	b := &model.Candidate{Address: "123 Marine Drive, Mumbai"}

	res := o.Heal(context.Background(), "raw", "cleaned", a, b,
		[]anomaly.ReasonCode{anomaly.ReasonResolverMismatch})

	require.Len(t, res.Actions, 1)
	act := res.Actions[0]
	assert.Equal(t, StrategyReverseReconcile, act.Strategy)
	assert.True(t, act.Improved)
	assert.True(t, res.Healed)
	assert.InDelta(t, 1.0, res.FinalConfidence, 1e-9)
}

func TestReverseReconcileLowSimilarity(t *testing.T) {
	g := &fakeGeocoder{
		reverse: func(lat, lon float64) (*model.Candidate, error) {
			return &model.Candidate{Address: "Connaught Place, New Delhi"}, nil
		},
	}
	o := New(fakeCleaner{}, g, fakeResolver{})

	a := &model.Candidate{Lat: 18.94, Lon: 72.82}
	b := &model.Candidate{Address: "123 Marine Drive, Mumbai"}

	res := o.Heal(context.Background(), "raw", "cleaned", a, b,
		[]anomaly.ReasonCode{anomaly.ReasonResolverMismatch})

	require.Len(t, res.Actions, 1)
	assert.True(t, res.Actions[0].Succeeded)
	assert.False(t, res.Actions[0].Improved)
	assert.False(t, res.Healed)
}

func TestPostalFallbackValidated(t *testing.T) {
	g := &fakeGeocoder{
		geocode: func(query string) (*model.Candidate, error) {
			return &model.Candidate{PostalCode: "400001", City: "Mumbai", Confidence: 0.85}, nil
		},
	}
	o := New(fakeCleaner{}, g, fakeResolver{})

	a := &model.Candidate{City: "Mumbai", State: "Maharashtra"}

	res := o.Heal(context.Background(), "raw", "fort area mumbai 400001", a, nil,
		[]anomaly.ReasonCode{anomaly.ReasonPostalCodeMismatch})

	require.Len(t, res.Actions, 1)
	act := res.Actions[0]
	assert.Equal(t, StrategyPostalFallback, act.Strategy)
	assert.True(t, act.Improved)
	assert.True(t, res.Healed)
	assert.Equal(t, 0.85, res.FinalConfidence)
	assert.Equal(t, "400001, Mumbai, Maharashtra", g.lastQuery)
}

func TestPostalFallbackWrongEcho(t *testing.T) {
	g := &fakeGeocoder{
		geocode: func(query string) (*model.Candidate, error) {
			return &model.Candidate{PostalCode: "400002", Confidence: 0.85}, nil
		},
	}
	o := New(fakeCleaner{}, g, fakeResolver{})

	res := o.Heal(context.Background(), "raw", "fort area mumbai 400001", nil, nil,
		[]anomaly.ReasonCode{anomaly.ReasonPostalCodeMismatch})

	require.Len(t, res.Actions, 1)
	assert.True(t, res.Actions[0].Succeeded)
	assert.False(t, res.Actions[0].Improved)
	assert.False(t, res.Healed)
}

func TestPostalFallbackNoCodeInText(t *testing.T) {
	o := New(fakeCleaner{}, &fakeGeocoder{}, fakeResolver{})

	res := o.Heal(context.Background(), "raw", "no code here", nil, nil,
		[]anomaly.ReasonCode{anomaly.ReasonPostalCodeMismatch})

	require.Len(t, res.Actions, 1)
	assert.False(t, res.Actions[0].Succeeded)
	assert.Contains(t, res.Actions[0].Notes, "no postal code")
}

func TestStrategiesRunIndependently(t *testing.T) {
	// The cleaner fails, but the postal fallback must still run and succeed.
	g := &fakeGeocoder{
		geocode: func(query string) (*model.Candidate, error) {
			return &model.Candidate{PostalCode: "400001", Confidence: 0.8}, nil
		},
	}
	o := New(fakeCleaner{err: errors.New("cleaner down")}, g, fakeResolver{})

	res := o.Heal(context.Background(), "raw", "mumbai 400001 somewhere", nil, nil,
		[]anomaly.ReasonCode{anomaly.ReasonLowIntegrity, anomaly.ReasonPostalCodeMismatch})

	require.Len(t, res.Actions, 2)
	assert.Equal(t, StrategyStrictReclean, res.Actions[0].Strategy, "registry order preserved")
	assert.False(t, res.Actions[0].Succeeded)
	assert.Equal(t, StrategyPostalFallback, res.Actions[1].Strategy)
	assert.True(t, res.Actions[1].Improved)
	assert.True(t, res.Healed)
}

func TestHealUnhandledReasonsProduceNoActions(t *testing.T) {
	o := New(fakeCleaner{}, &fakeGeocoder{}, fakeResolver{})

	res := o.Heal(context.Background(), "raw", "cleaned", nil, nil,
		[]anomaly.ReasonCode{anomaly.ReasonHighLatency, anomaly.ReasonLowFusedConf})

	assert.Empty(t, res.Actions)
	assert.False(t, res.Healed)
	assert.Contains(t, res.Summary, "strategies attempted: 0")
}

func TestSummaryListsEveryAction(t *testing.T) {
	g := &fakeGeocoder{
		geocode: func(query string) (*model.Candidate, error) {
			return &model.Candidate{PostalCode: "400001", Confidence: 0.8}, nil
		},
	}
	o := New(fakeCleaner{text: "better text 400001"}, g, fakeResolver{outcome: outcomeWith(0.9)})

	res := o.Heal(context.Background(), "raw", "poor text 400001", nil, nil,
		[]anomaly.ReasonCode{anomaly.ReasonLowIntegrity, anomaly.ReasonPostalCodeMismatch})

	assert.Contains(t, res.Summary, "2 anomaly reason(s)")
	assert.Contains(t, res.Summary, StrategyStrictReclean)
	assert.Contains(t, res.Summary, StrategyPostalFallback)
	assert.Contains(t, res.Summary, "final status: HEALED")
}
