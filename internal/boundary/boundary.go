// Package boundary holds administrative boundary definitions used by the
// geospatial validator. A city may be bounded by an axis-aligned bounding box
// or an explicit polygon; absence of a definition means unconstrained.
package boundary

import (
	"github.com/twpayne/go-geom"

	"github.com/geofuse/geofuse/internal/refindex"
)

// BBox is an axis-aligned geographic bounding box.
type BBox struct {
	MinLng float64 `json:"min_lng"`
	MinLat float64 `json:"min_lat"`
	MaxLng float64 `json:"max_lng"`
	MaxLat float64 `json:"max_lat"`
}

// Contains reports whether the point lies inside the box (edges inclusive).
func (b BBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLng && lon <= b.MaxLng
}

// Definition bounds one named city. Exactly one of BBox or Polygon is set.
type Definition struct {
	Name    string
	BBox    *BBox
	Polygon *geom.Polygon
}

// Contains tests point membership: bbox containment for box definitions,
// ray-casting point-in-polygon for polygon definitions. A definition with
// neither shape constrains nothing.
func (d Definition) Contains(lat, lon float64) bool {
	if d.BBox != nil {
		return d.BBox.Contains(lat, lon)
	}
	if d.Polygon != nil {
		bounds := d.Polygon.Bounds()
		if lon < bounds.Min(0) || lon > bounds.Max(0) || lat < bounds.Min(1) || lat > bounds.Max(1) {
			return false
		}
		return pointInRing(lat, lon, d.Polygon.LinearRing(0).Coords())
	}
	return true
}

// pointInRing is the ray-casting test over a polygon ring. Coords follow the
// GeoJSON axis order (X = longitude, Y = latitude).
func pointInRing(lat, lon float64, ring []geom.Coord) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	p1 := ring[0]
	for i := 1; i <= n; i++ {
		p2 := ring[i%n]
		p1Lon, p1Lat := p1.X(), p1.Y()
		p2Lon, p2Lat := p2.X(), p2.Y()

		if lon > min64(p1Lon, p2Lon) && lon <= max64(p1Lon, p2Lon) && lat <= max64(p1Lat, p2Lat) {
			var xIntersect float64
			if p1Lon != p2Lon {
				xIntersect = (lon-p1Lon)*(p2Lat-p1Lat)/(p2Lon-p1Lon) + p1Lat
			}
			if p1Lat == p2Lat || lat <= xIntersect {
				inside = !inside
			}
		}
		p1 = p2
	}
	return inside
}

// Set maps normalized city names to their boundary definitions. Built once at
// startup; read-only afterwards.
type Set struct {
	defs map[string]Definition
}

// NewSet builds a Set from definitions, keyed by normalized city name.
func NewSet(defs []Definition) *Set {
	m := make(map[string]Definition, len(defs))
	for _, d := range defs {
		key := refindex.Key(d.Name)
		if key == "" {
			continue
		}
		m[key] = d
	}
	return &Set{defs: m}
}

// Empty returns a Set with no definitions; every membership test passes.
func Empty() *Set { return &Set{defs: map[string]Definition{}} }

// Lookup returns the definition for a city, if one exists.
func (s *Set) Lookup(city string) (Definition, bool) {
	if s == nil {
		return Definition{}, false
	}
	d, ok := s.defs[refindex.Key(city)]
	return d, ok
}

// Len reports the number of definitions.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.defs)
}

func min64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
