package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geofuse/geofuse/internal/boundary"
	"github.com/geofuse/geofuse/internal/model"
	"github.com/geofuse/geofuse/internal/refindex"
)

const (
	mumbaiLat = 19.0760
	mumbaiLon = 72.8777
	delhiLat  = 28.7041
	delhiLon  = 77.1025
)

func testStore(t *testing.T) *refindex.Store {
	t.Helper()
	rows := []refindex.Row{
		{PostalCode: "400001", City: "Mumbai", District: "Mumbai City", State: "Maharashtra", Lat: 18.94, Lon: 72.84},
		{PostalCode: "110001", City: "New Delhi", District: "Central Delhi", State: "Delhi", Lat: 28.63, Lon: 77.22},
	}
	return refindex.Build(rows, refindex.Region{})
}

func TestHaversineZero(t *testing.T) {
	assert.Zero(t, HaversineKM(mumbaiLat, mumbaiLon, mumbaiLat, mumbaiLon))
}

func TestHaversineMumbaiDelhi(t *testing.T) {
	km := HaversineKM(mumbaiLat, mumbaiLon, delhiLat, delhiLon)
	assert.InDelta(t, 1153, km, 12) // within 1%
}

func TestHaversineSymmetry(t *testing.T) {
	ab := HaversineKM(mumbaiLat, mumbaiLon, delhiLat, delhiLon)
	ba := HaversineKM(delhiLat, delhiLon, mumbaiLat, mumbaiLon)
	assert.InDelta(t, ab, ba, 1e-9)
}

func TestValidatePairwiseDistance(t *testing.T) {
	v := New(testStore(t), boundary.Empty())
	a := &model.Candidate{City: "Mumbai", Lat: mumbaiLat, Lon: mumbaiLon}
	b := &model.Candidate{City: "Mumbai", Lat: mumbaiLat + 0.01, Lon: mumbaiLon}

	rep := v.Validate(a, b, model.Components{})
	require.NotNil(t, rep.MismatchKM)
	assert.InDelta(t, 1.11, *rep.MismatchKM, 0.05)
}

func TestValidateMissingCandidateNilDistance(t *testing.T) {
	v := New(testStore(t), boundary.Empty())
	a := &model.Candidate{Lat: mumbaiLat, Lon: mumbaiLon}

	rep := v.Validate(a, nil, model.Components{})
	assert.Nil(t, rep.MismatchKM)
	assert.Equal(t, 1.0, rep.ConsistencyScore)
}

func TestValidatePostalCentroidDeviation(t *testing.T) {
	v := New(testStore(t), boundary.Empty())
	a := &model.Candidate{Lat: mumbaiLat, Lon: mumbaiLon}
	b := &model.Candidate{Lat: delhiLat, Lon: delhiLon} // ~1150 km from the 400001 centroid

	rep := v.Validate(a, b, model.Components{PostalCode: "400001"})
	assert.True(t, rep.PostalCodeMismatch)
	assert.Contains(t, rep.Detail, "postal_centroid_km_external")
}

func TestValidatePostalWithinThreshold(t *testing.T) {
	v := New(testStore(t), boundary.Empty())
	a := &model.Candidate{Lat: 18.95, Lon: 72.85}
	b := &model.Candidate{Lat: 18.93, Lon: 72.83}

	rep := v.Validate(a, b, model.Components{PostalCode: "400001"})
	assert.False(t, rep.PostalCodeMismatch)
}

func TestValidatePostalNotFound(t *testing.T) {
	v := New(testStore(t), boundary.Empty())
	a := &model.Candidate{Lat: mumbaiLat, Lon: mumbaiLon}

	rep := v.Validate(a, nil, model.Components{PostalCode: "999999"})
	assert.True(t, rep.PostalCodeMismatch)
	assert.Equal(t, "999999", rep.Detail["postal_code_not_found"])
}

func TestValidateBoundaryViolation(t *testing.T) {
	bounds := boundary.NewSet([]boundary.Definition{
		{Name: "Mumbai", BBox: &boundary.BBox{MinLng: 72.7, MinLat: 18.8, MaxLng: 73.1, MaxLat: 19.3}},
	})
	v := New(testStore(t), bounds)

	inside := &model.Candidate{Lat: mumbaiLat, Lon: mumbaiLon}
	outside := &model.Candidate{Lat: delhiLat, Lon: delhiLon}

	rep := v.Validate(inside, outside, model.Components{City: "Mumbai"})
	assert.True(t, rep.BoundaryViolation)
	assert.Equal(t, "Mumbai", rep.Detail["boundary_outside_external"])

	rep = v.Validate(inside, inside, model.Components{City: "Mumbai"})
	assert.False(t, rep.BoundaryViolation)
}

func TestValidateNoBoundaryDefinitionIsUnconstrained(t *testing.T) {
	v := New(testStore(t), boundary.Empty())
	outside := &model.Candidate{Lat: delhiLat, Lon: delhiLon}

	rep := v.Validate(outside, outside, model.Components{City: "Mumbai"})
	assert.False(t, rep.BoundaryViolation)
}

func TestValidateComponentCrossCheck(t *testing.T) {
	v := New(testStore(t), boundary.Empty())
	a := &model.Candidate{City: "Mumbai", State: "Maharashtra", Lat: mumbaiLat, Lon: mumbaiLon}
	b := &model.Candidate{City: "New Delhi", State: "Delhi", Lat: delhiLat, Lon: delhiLon}

	rep := v.Validate(a, b, model.Components{City: "Mumbai", State: "Maharashtra"})

	assert.Contains(t, rep.ComponentIssues, "city_mismatch_resolver_external")
	assert.Contains(t, rep.ComponentIssues, "city_mismatch_external_components")
	assert.Contains(t, rep.ComponentIssues, "state_mismatch_resolver_external")
	assert.Contains(t, rep.ComponentIssues, "state_mismatch_external_components")
	assert.InDelta(t, 0.6, rep.ConsistencyScore, 1e-9)
}

func TestValidateCaseAndAliasInsensitive(t *testing.T) {
	v := New(testStore(t), boundary.Empty())
	a := &model.Candidate{City: "BOMBAY", Lat: mumbaiLat, Lon: mumbaiLon}
	b := &model.Candidate{City: " mumbai ", Lat: mumbaiLat, Lon: mumbaiLon}

	rep := v.Validate(a, b, model.Components{City: "Mumbai"})
	assert.Empty(t, rep.ComponentIssues)
	assert.Equal(t, 1.0, rep.ConsistencyScore)
}

func TestValidateBlankFieldsNotCompared(t *testing.T) {
	v := New(testStore(t), boundary.Empty())
	a := &model.Candidate{City: "Mumbai", Lat: mumbaiLat, Lon: mumbaiLon}
	b := &model.Candidate{Lat: mumbaiLat, Lon: mumbaiLon}

	rep := v.Validate(a, b, model.Components{})
	assert.Empty(t, rep.ComponentIssues)
}
