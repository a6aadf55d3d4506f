package refindex

import (
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Region restricts the coordinates accepted at build time. A zero Region
// accepts the whole globe.
type Region struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

func (r Region) isZero() bool {
	return r.MinLat == 0 && r.MaxLat == 0 && r.MinLon == 0 && r.MaxLon == 0
}

func (r Region) contains(lat, lon float64) bool {
	if r.isZero() {
		return true
	}
	return lat >= r.MinLat && lat <= r.MaxLat && lon >= r.MinLon && lon <= r.MaxLon
}

// minLocalityLen is the shortest composite-city sub-token registered as a
// locality; shorter tokens produce too many false positives ("main", "mall").
const minLocalityLen = 4

// Build constructs the immutable store from raw dataset rows. Rows with
// missing or out-of-range coordinates are dropped. This is the offline batch
// path; query-time callers load a prebuilt artifact instead.
func Build(rows []Row, region Region) *Store {
	clean := make([]Row, 0, len(rows))
	for _, row := range rows {
		if !validCoord(row.Lat, row.Lon) || !region.contains(row.Lat, row.Lon) {
			continue
		}
		clean = append(clean, row)
	}
	dropped := len(rows) - len(clean)
	if dropped > 0 {
		zap.L().Debug("refindex: dropped rows with invalid coordinates", zap.Int("dropped", dropped))
	}

	sp, err := loadStaticPlaces()
	if err != nil {
		zap.L().Warn("refindex: static places table unavailable", zap.Error(err))
	}

	postal := buildPostalIndex(clean)
	places := buildPlaceIndex(clean, sp.Aliases)
	localities := buildLocalityIndex(clean, cityKeySet(clean))

	s := newStore(postal, places, localities, sp)

	np, npl, nl, nlm := s.Counts()
	zap.L().Info("refindex: built indices",
		zap.Int("rows", len(clean)),
		zap.Int("postal_codes", np),
		zap.Int("places", npl),
		zap.Int("localities", nl),
		zap.Int("landmarks", nlm),
	)
	return s
}

func validCoord(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	if lat == 0 && lon == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// buildPostalIndex groups rows by postal code, storing the coordinate
// centroid and the modal city/district/state of each group.
func buildPostalIndex(rows []Row) map[string]Record {
	groups := make(map[string][]Row)
	for _, row := range rows {
		code := Key(row.PostalCode)
		if code == "" {
			continue
		}
		groups[code] = append(groups[code], row)
	}

	index := make(map[string]Record, len(groups))
	for code, group := range groups {
		lat, lon := centroid(group)
		index[code] = Record{
			PostalCode: code,
			City:       modal(group, func(r Row) string { return r.City }),
			District:   modal(group, func(r Row) string { return r.District }),
			State:      modal(group, func(r Row) string { return r.State }),
			Lat:        lat,
			Lon:        lon,
		}
	}
	return index
}

// buildPlaceIndex groups rows by (city, state). Historical aliases are
// registered so either name resolves to the same record. Each record carries
// an example postal code from its group.
func buildPlaceIndex(rows []Row, aliases map[string]string) map[string]Record {
	type group struct {
		rows  []Row
		first Row
	}
	groups := make(map[string]*group)
	order := make([]string, 0)
	for _, row := range rows {
		cityKey := Key(row.City)
		if cityKey == "" {
			continue
		}
		key := placeKey(cityKey, Key(row.State))
		g, ok := groups[key]
		if !ok {
			g = &group{first: row}
			groups[key] = g
			order = append(order, key)
		}
		g.rows = append(g.rows, row)
	}
	sort.Strings(order)

	aliasByKey := make(map[string]string, len(aliases))
	for old, current := range aliases {
		aliasByKey[Key(current)] = Key(old)
	}

	index := make(map[string]Record, len(groups))
	for _, key := range order {
		g := groups[key]
		cityKey, stateKey := splitPlaceKey(key)
		lat, lon := centroid(g.rows)
		rec := Record{
			PostalCode: Key(g.first.PostalCode),
			City:       strings.TrimSpace(g.first.City),
			District:   modal(g.rows, func(r Row) string { return r.District }),
			State:      strings.TrimSpace(g.first.State),
			Lat:        lat,
			Lon:        lon,
		}
		index[key] = rec
		// Dataset rows under the old name also resolve under the current
		// one, and vice versa.
		if current, ok := aliases[cityKey]; ok {
			index[placeKey(Key(current), stateKey)] = rec
		}
		if old, ok := aliasByKey[cityKey]; ok {
			if _, exists := index[placeKey(old, stateKey)]; !exists {
				index[placeKey(old, stateKey)] = rec
			}
		}
	}
	return index
}

// cityKeySet collects the normalized city names present in the dataset, so
// locality registration cannot shadow a real city entry.
func cityKeySet(rows []Row) map[string]struct{} {
	keys := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if k := Key(row.City); k != "" {
			keys[k] = struct{}{}
		}
	}
	return keys
}

// buildLocalityIndex scans composite city fields ("X - Y", "X, Y") and
// registers each sub-token as a locality pointing at the parent row's
// coordinates. Existing entries are never overwritten, and a sub-token that
// names a full city stays a city.
func buildLocalityIndex(rows []Row, cities map[string]struct{}) map[string]Record {
	index := make(map[string]Record)
	for _, row := range rows {
		city := Key(row.City)
		if !strings.Contains(city, " - ") && !strings.Contains(city, ", ") {
			continue
		}
		parts := strings.Split(strings.ReplaceAll(city, " - ", ","), ",")
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if len(part) < minLocalityLen {
				continue
			}
			if _, isCity := cities[part]; isCity {
				continue
			}
			if _, exists := index[part]; exists {
				continue
			}
			index[part] = Record{
				PostalCode: Key(row.PostalCode),
				City:       strings.TrimSpace(row.City),
				District:   strings.TrimSpace(row.District),
				State:      strings.TrimSpace(row.State),
				Lat:        row.Lat,
				Lon:        row.Lon,
			}
		}
	}
	return index
}

func centroid(rows []Row) (lat, lon float64) {
	if len(rows) == 0 {
		return 0, 0
	}
	for _, r := range rows {
		lat += r.Lat
		lon += r.Lon
	}
	n := float64(len(rows))
	return lat / n, lon / n
}

// modal returns the most frequent non-empty value of field in the group.
// Ties break to the lexicographically smallest value.
func modal(rows []Row, field func(Row) string) string {
	counts := make(map[string]int)
	for _, r := range rows {
		v := strings.TrimSpace(field(r))
		if v == "" {
			continue
		}
		counts[v]++
	}
	best := ""
	bestCount := 0
	for v, n := range counts {
		if n > bestCount || (n == bestCount && (best == "" || v < best)) {
			best = v
			bestCount = n
		}
	}
	return best
}
