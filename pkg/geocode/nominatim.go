package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/geofuse/geofuse/internal/model"
	"github.com/geofuse/geofuse/internal/resilience"
)

// nominatimPlace is one entry of a /search response, or the body of a
// /reverse response. Coordinates come back as strings.
type nominatimPlace struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Importance  float64 `json:"importance"`
	Address     struct {
		City     string `json:"city"`
		Town     string `json:"town"`
		Village  string `json:"village"`
		District string `json:"state_district"`
		State    string `json:"state"`
		Postcode string `json:"postcode"`
	} `json:"address"`
}

// Geocode resolves a free-text query via the /search endpoint.
func (g *geocoder) Geocode(ctx context.Context, query string) (*model.Candidate, error) {
	key := cacheKey("search", query)
	if hit, ok := g.cache.get(key); ok {
		return hit, nil
	}

	params := url.Values{
		"q":              {query},
		"format":         {"jsonv2"},
		"addressdetails": {"1"},
		"limit":          {"1"},
	}

	var places []nominatimPlace
	if err := g.doRequest(ctx, "/search", params, &places); err != nil {
		return nil, err
	}

	if len(places) == 0 {
		zap.L().Debug("geocode: no match", zap.String("query", query))
		g.cache.put(key, nil)
		return nil, nil
	}

	cand, err := placeToCandidate(places[0])
	if err != nil {
		return nil, err
	}
	g.cache.put(key, cand)
	return cand, nil
}

// ReverseGeocode resolves coordinates via the /reverse endpoint.
func (g *geocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (*model.Candidate, error) {
	key := cacheKey("reverse", fmt.Sprintf("%.6f,%.6f", lat, lon))
	if hit, ok := g.cache.get(key); ok {
		return hit, nil
	}

	params := url.Values{
		"lat":            {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":            {strconv.FormatFloat(lon, 'f', -1, 64)},
		"format":         {"jsonv2"},
		"addressdetails": {"1"},
	}

	var place nominatimPlace
	if err := g.doRequest(ctx, "/reverse", params, &place); err != nil {
		return nil, err
	}

	if place.Lat == "" {
		zap.L().Debug("geocode: no reverse match",
			zap.Float64("lat", lat),
			zap.Float64("lon", lon),
		)
		g.cache.put(key, nil)
		return nil, nil
	}

	cand, err := placeToCandidate(place)
	if err != nil {
		return nil, err
	}
	g.cache.put(key, cand)
	return cand, nil
}

// doRequest issues a rate-limited GET and decodes the JSON body into out.
func (g *geocoder) doRequest(ctx context.Context, path string, params url.Values, out any) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "geocode: rate limit")
	}

	reqURL := g.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return eris.Wrap(err, "geocode: build request")
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("geocode: endpoint returned status %d", resp.StatusCode)
		// Throttling and server-side failures are retryable by the healing
		// orchestrator's retry policy; other statuses are permanent.
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "geocode: read body")
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "geocode: parse response")
	}
	return nil
}

// placeToCandidate converts a Nominatim place into a candidate. Importance
// maps onto confidence, clamped to [0, 1].
func placeToCandidate(p nominatimPlace) (*model.Candidate, error) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: parse lat")
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: parse lon")
	}

	conf := p.Importance
	if conf <= 0 {
		conf = 0.5 // importance is absent on /reverse responses
	}
	if conf > 1 {
		conf = 1
	}

	return &model.Candidate{
		City:       firstNonEmpty(p.Address.City, p.Address.Town, p.Address.Village),
		District:   p.Address.District,
		State:      p.Address.State,
		PostalCode: p.Address.Postcode,
		Lat:        lat,
		Lon:        lon,
		Confidence: conf,
		Address:    p.DisplayName,
	}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
