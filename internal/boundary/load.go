package boundary

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// LoadGeoJSON reads city boundary definitions from a GeoJSON feature
// collection. The city name comes from the "city" (or "name") property.
// Features with Polygon/MultiPolygon geometry become polygon definitions;
// features with a "bbox" property [minLng, minLat, maxLng, maxLat] and no
// geometry become bounding-box definitions.
func LoadGeoJSON(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: read geojson %s", path)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrapf(err, "boundary: parse geojson %s", path)
	}

	var defs []Definition
	for _, feat := range fc.Features {
		name := featureName(feat.Properties)
		if name == "" {
			continue
		}

		switch g := feat.Geometry.(type) {
		case *geom.Polygon:
			defs = append(defs, Definition{Name: name, Polygon: g})
		case *geom.MultiPolygon:
			// Largest member polygon stands in for the whole city.
			if p := largestPolygon(g); p != nil {
				defs = append(defs, Definition{Name: name, Polygon: p})
			}
		default:
			if bb := bboxProperty(feat.Properties); bb != nil {
				defs = append(defs, Definition{Name: name, BBox: bb})
			}
		}
	}

	set := NewSet(defs)
	zap.L().Info("boundary: loaded geojson definitions",
		zap.String("path", path),
		zap.Int("cities", set.Len()),
	)
	return set, nil
}

// LoadShapefile reads polygon boundary definitions from a shapefile, taking
// the city name from nameField (case-insensitive attribute match).
func LoadShapefile(path, nameField string) (*Set, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	nameIdx := -1
	for i, f := range reader.Fields() {
		name := strings.TrimRight(f.String(), "\x00")
		if strings.EqualFold(name, nameField) {
			nameIdx = i
			break
		}
	}
	if nameIdx < 0 {
		return nil, eris.Errorf("boundary: shapefile %s has no field %q", path, nameField)
	}

	var defs []Definition
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok || len(poly.Points) < 3 {
			skipped++
			continue
		}

		name := strings.TrimSpace(strings.TrimRight(reader.Attribute(nameIdx), "\x00"))
		if name == "" {
			skipped++
			continue
		}

		defs = append(defs, Definition{Name: name, Polygon: shpPolygon(poly)})
	}
	if skipped > 0 {
		zap.L().Debug("boundary: skipped shapefile records", zap.Int("skipped", skipped))
	}

	set := NewSet(defs)
	zap.L().Info("boundary: loaded shapefile definitions",
		zap.String("path", path),
		zap.Int("cities", set.Len()),
	)
	return set, nil
}

// Load resolves boundary definitions from the configured path, dispatching on
// extension. A missing or empty path yields an empty set: no city is
// constrained, which is not an error.
func Load(path, shapeNameField string) *Set {
	if path == "" {
		return Empty()
	}
	var (
		set *Set
		err error
	)
	if strings.HasSuffix(strings.ToLower(path), ".shp") {
		if shapeNameField == "" {
			shapeNameField = "NAME"
		}
		set, err = LoadShapefile(path, shapeNameField)
	} else {
		set, err = LoadGeoJSON(path)
	}
	if err != nil {
		zap.L().Warn("boundary: definitions unavailable", zap.String("path", path), zap.Error(err))
		return Empty()
	}
	return set
}

// shpPolygon converts a shapefile polygon's first ring to a geom.Polygon in
// GeoJSON axis order.
func shpPolygon(p *shp.Polygon) *geom.Polygon {
	end := len(p.Points)
	if len(p.Parts) > 1 {
		end = int(p.Parts[1])
	}
	coords := make([]geom.Coord, 0, end)
	for _, pt := range p.Points[:end] {
		coords = append(coords, geom.Coord{pt.X, pt.Y})
	}
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{coords})
}

// largestPolygon picks the multipolygon member with the widest bounding box
// span.
func largestPolygon(mp *geom.MultiPolygon) *geom.Polygon {
	var best *geom.Polygon
	bestSpan := -1.0
	for i := 0; i < mp.NumPolygons(); i++ {
		p := mp.Polygon(i)
		b := p.Bounds()
		span := (b.Max(0) - b.Min(0)) * (b.Max(1) - b.Min(1))
		if span > bestSpan {
			best = p
			bestSpan = span
		}
	}
	return best
}

func featureName(props map[string]any) string {
	for _, key := range []string{"city", "name", "NAME"} {
		if v, ok := props[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func bboxProperty(props map[string]any) *BBox {
	raw, ok := props["bbox"].([]any)
	if !ok || len(raw) != 4 {
		return nil
	}
	vals := make([]float64, 4)
	for i, v := range raw {
		f, ok := v.(float64)
		if !ok {
			return nil
		}
		vals[i] = f
	}
	return &BBox{MinLng: vals[0], MinLat: vals[1], MaxLng: vals[2], MaxLat: vals[3]}
}
