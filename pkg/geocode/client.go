// Package geocode provides forward and reverse geocoding against a
// Nominatim-compatible HTTP endpoint.
package geocode

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/geofuse/geofuse/internal/model"
)

// Client geocodes free-text queries and reverse geocodes coordinates.
type Client interface {
	// Geocode resolves a free-text query to a single best candidate.
	// A query with no match returns (nil, nil).
	Geocode(ctx context.Context, query string) (*model.Candidate, error)

	// ReverseGeocode resolves coordinates to the nearest known address.
	ReverseGeocode(ctx context.Context, lat, lon float64) (*model.Candidate, error)
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second rate limit.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithUserAgent sets the User-Agent header sent on every request. Public
// Nominatim instances reject requests without an identifying agent.
func WithUserAgent(ua string) Option {
	return func(g *geocoder) {
		g.userAgent = ua
	}
}

// WithCacheTTL enables in-memory response caching with the given lifetime.
func WithCacheTTL(ttl time.Duration) Option {
	return func(g *geocoder) {
		g.cache = newCache(ttl)
	}
}

type geocoder struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
	cache      *memCache
}

// NewClient creates a geocoding Client against the given base URL.
func NewClient(baseURL string, opts ...Option) Client {
	g := &geocoder{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(1, 1), // Nominatim usage policy: 1 req/s
		userAgent:  "geofuse",
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}
