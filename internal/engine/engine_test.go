package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geofuse/geofuse/internal/anomaly"
	"github.com/geofuse/geofuse/internal/boundary"
	"github.com/geofuse/geofuse/internal/heal"
	"github.com/geofuse/geofuse/internal/model"
	"github.com/geofuse/geofuse/internal/quality"
	"github.com/geofuse/geofuse/internal/refindex"
	"github.com/geofuse/geofuse/internal/resolver"
	"github.com/geofuse/geofuse/internal/validate"
)

type fakeGeocoder struct {
	candidate *model.Candidate
	err       error
}

func (f fakeGeocoder) Geocode(ctx context.Context, query string) (*model.Candidate, error) {
	return f.candidate, f.err
}

func (f fakeGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (*model.Candidate, error) {
	return f.candidate, f.err
}

func testStore(t *testing.T) *refindex.Store {
	t.Helper()
	rows := []refindex.Row{
		{PostalCode: "400001", City: "Mumbai", District: "Mumbai City", State: "Maharashtra", Lat: 18.94, Lon: 72.84},
		{PostalCode: "110001", City: "New Delhi", District: "Central Delhi", State: "Delhi", Lat: 28.63, Lon: 77.22},
	}
	return refindex.Build(rows, refindex.Region{})
}

func testEngine(t *testing.T, geocoder heal.Geocoder, healer *heal.Orchestrator) *Engine {
	t.Helper()
	store := testStore(t)
	return New(Params{
		Resolver:  resolver.New(store),
		Validator: validate.New(store, boundary.Empty()),
		Scorer:    quality.New(store),
		Geocoder:  geocoder,
		Healer:    healer,
	})
}

func TestResolveHappyPath(t *testing.T) {
	external := &model.Candidate{
		City: "Mumbai", State: "Maharashtra", PostalCode: "400001",
		Lat: 18.945, Lon: 72.845, Confidence: 0.95,
	}
	eng := testEngine(t, fakeGeocoder{candidate: external}, nil)

	rep := eng.Resolve(context.Background(), "123 Main St, Mumbai 400001")

	assert.NotEmpty(t, rep.TraceID)
	require.NotNil(t, rep.Resolved)
	assert.Equal(t, model.TierExactCode, rep.Resolved.SourceTier)
	assert.Equal(t, 75.0, rep.Quality.Score)
	require.NotNil(t, rep.Consistency.MismatchKM)
	assert.Less(t, *rep.Consistency.MismatchKM, 1.5)
	assert.Greater(t, rep.Fused.Value, 0.8)
	assert.False(t, rep.Anomaly.Flagged)
	assert.Nil(t, rep.Healing)
	assert.GreaterOrEqual(t, rep.LatencyMS, 0.0)
}

func TestResolveFlaggedWithoutHealerSkipsHealing(t *testing.T) {
	// External geocoder points at Delhi with weak confidence; the internal
	// resolver stays in Mumbai.
	external := &model.Candidate{City: "New Delhi", Lat: 28.7, Lon: 77.1, Confidence: 0.2}
	eng := testEngine(t, fakeGeocoder{candidate: external}, nil)

	rep := eng.Resolve(context.Background(), "123 Main St, Mumbai 400001")

	assert.True(t, rep.Anomaly.Flagged)
	assert.Contains(t, rep.Anomaly.Reasons, anomaly.ReasonResolverMismatch)
	assert.Contains(t, rep.Anomaly.Reasons, anomaly.ReasonLowExternalConf)
	assert.Nil(t, rep.Healing)
}

func TestResolveFlaggedTriggersHealing(t *testing.T) {
	external := &model.Candidate{City: "New Delhi", Lat: 28.7, Lon: 77.1, Confidence: 0.2}
	store := testStore(t)
	res := resolver.New(store)
	healer := heal.New(nil, fakeGeocoder{candidate: external}, res)

	eng := New(Params{
		Resolver:  res,
		Validator: validate.New(store, boundary.Empty()),
		Scorer:    quality.New(store),
		Geocoder:  fakeGeocoder{candidate: external},
		Healer:    healer,
	})

	rep := eng.Resolve(context.Background(), "123 Main St, Mumbai 400001")

	require.NotNil(t, rep.Healing)
	assert.NotEmpty(t, rep.Healing.Actions)
	assert.NotEmpty(t, rep.Healing.Summary)
}

func TestResolveExternalGeocoderFailureDegrades(t *testing.T) {
	eng := testEngine(t, fakeGeocoder{err: errors.New("upstream down")}, nil)

	rep := eng.Resolve(context.Background(), "123 Main St, Mumbai 400001")

	assert.Nil(t, rep.External)
	assert.Nil(t, rep.Consistency.MismatchKM)
	require.NotNil(t, rep.Resolved)
	assert.Equal(t, 0.5, rep.Fused.Provenance.Geospatial, "missing distance is neutral")
}

func TestResolveNoMatchAnywhere(t *testing.T) {
	eng := testEngine(t, nil, nil)

	rep := eng.Resolve(context.Background(), "completely unrecognizable text")

	assert.Nil(t, rep.Resolved)
	assert.True(t, rep.Anomaly.Flagged)
}

func TestBatchResolvePreservesOrder(t *testing.T) {
	eng := testEngine(t, nil, nil)
	addrs := []string{
		"123 Main St, Mumbai 400001",
		"Connaught Place, New Delhi 110001",
		"unknown place",
	}

	reports := eng.BatchResolve(context.Background(), addrs)
	require.Len(t, reports, len(addrs))
	for i, rep := range reports {
		assert.Equal(t, addrs[i], rep.RawAddress)
		assert.NotEmpty(t, rep.TraceID)
	}
	assert.NotEqual(t, reports[0].TraceID, reports[1].TraceID)
}

func TestMergeComponents(t *testing.T) {
	merged := mergeComponents(
		model.Components{City: "Mumbai"},
		model.Components{City: "Pune", PostalCode: "400001", State: "Maharashtra"},
	)
	assert.Equal(t, "Mumbai", merged.City, "primary wins")
	assert.Equal(t, "400001", merged.PostalCode, "fallback fills blanks")
	assert.Equal(t, "Maharashtra", merged.State)
}
