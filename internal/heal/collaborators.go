package heal

import (
	"context"

	"github.com/geofuse/geofuse/internal/model"
	"github.com/geofuse/geofuse/internal/resolver"
)

// Cleaned is the text-cleaning collaborator's response.
type Cleaned struct {
	Text       string           `json:"text"`
	Components model.Components `json:"components"`
	Confidence float64          `json:"confidence"`
}

// Cleaner is the external text-cleaning collaborator. Strict mode trades
// recall for precision: aggressive token dropping, no guessing.
type Cleaner interface {
	Clean(ctx context.Context, raw string, strict bool) (Cleaned, error)
}

// Geocoder is the external mapping collaborator.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (*model.Candidate, error)
	ReverseGeocode(ctx context.Context, lat, lon float64) (*model.Candidate, error)
}

// Resolver re-runs the internal tiered resolution during healing.
type Resolver interface {
	Resolve(ctx context.Context, cleaned string, comps model.Components) (resolver.Outcome, error)
}
