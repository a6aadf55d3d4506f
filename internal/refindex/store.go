package refindex

import (
	"sort"
)

// Store is the immutable reference index: postal-code centroids, (city, state)
// records with historical aliases, sub-city localities, and a static landmark
// table. It is built once and never mutated afterwards, so concurrent readers
// need no locking.
type Store struct {
	postal     map[string]Record
	places     map[string]Record   // placeKey(city, state) -> record
	cityStates map[string][]string // city key -> sorted state keys present
	localities map[string]Record
	landmarks  map[string]Landmark
	aliases    map[string]string

	sortedCodes      []string
	sortedPlaces     []PlaceEntry
	sortedLocalities []LocalityEntry
}

// NewEmpty returns a store with empty indices. Lookups all miss; tiers backed
// by the store degrade to no-ops.
func NewEmpty() *Store {
	sp, _ := loadStaticPlaces()
	return newStore(nil, nil, nil, sp)
}

func newStore(postal, places, localities map[string]Record, sp staticPlaces) *Store {
	s := &Store{
		postal:     postal,
		places:     places,
		localities: localities,
		landmarks:  make(map[string]Landmark, len(sp.Landmarks)),
		aliases:    make(map[string]string, len(sp.Aliases)),
		cityStates: make(map[string][]string),
	}
	if s.postal == nil {
		s.postal = map[string]Record{}
	}
	if s.places == nil {
		s.places = map[string]Record{}
	}
	if s.localities == nil {
		s.localities = map[string]Record{}
	}
	for old, current := range sp.Aliases {
		s.aliases[Key(old)] = Key(current)
	}
	for _, lm := range sp.Landmarks {
		s.landmarks[Key(lm.Name)] = lm
	}
	s.freeze()
	return s
}

// freeze precomputes the sorted scan slices. Scans over maps would be
// order-unstable, and tie-breaks must be reproducible.
func (s *Store) freeze() {
	s.sortedCodes = make([]string, 0, len(s.postal))
	for code := range s.postal {
		s.sortedCodes = append(s.sortedCodes, code)
	}
	sort.Strings(s.sortedCodes)

	s.sortedPlaces = make([]PlaceEntry, 0, len(s.places))
	for key, rec := range s.places {
		cityKey, stateKey := splitPlaceKey(key)
		s.sortedPlaces = append(s.sortedPlaces, PlaceEntry{CityKey: cityKey, StateKey: stateKey, Rec: rec})
		s.cityStates[cityKey] = append(s.cityStates[cityKey], stateKey)
	}
	sort.Slice(s.sortedPlaces, func(i, j int) bool {
		if s.sortedPlaces[i].CityKey != s.sortedPlaces[j].CityKey {
			return s.sortedPlaces[i].CityKey < s.sortedPlaces[j].CityKey
		}
		return s.sortedPlaces[i].StateKey < s.sortedPlaces[j].StateKey
	})
	for _, states := range s.cityStates {
		sort.Strings(states)
	}

	s.sortedLocalities = make([]LocalityEntry, 0, len(s.localities))
	for name, rec := range s.localities {
		s.sortedLocalities = append(s.sortedLocalities, LocalityEntry{Name: name, Rec: rec})
	}
	sort.Slice(s.sortedLocalities, func(i, j int) bool {
		return s.sortedLocalities[i].Name < s.sortedLocalities[j].Name
	})
}

// Empty reports whether the store holds no dataset-derived entries.
func (s *Store) Empty() bool {
	return len(s.postal) == 0 && len(s.places) == 0 && len(s.localities) == 0
}

// ByPostalCode looks up the centroid record for an exact postal code.
func (s *Store) ByPostalCode(code string) (Record, bool) {
	rec, ok := s.postal[Key(code)]
	return rec, ok
}

// ByPlace looks up the record for a (city, state) pair. The city name is
// alias-resolved first. An empty state matches only records indexed without
// a state.
func (s *Store) ByPlace(city, state string) (Record, bool) {
	rec, ok := s.places[placeKey(s.Alias(city), Key(state))]
	return rec, ok
}

// ByCityAnyState returns the record for a city in whichever state sorts
// first, for queries carrying no usable state hint.
func (s *Store) ByCityAnyState(city string) (Record, bool) {
	states, ok := s.cityStates[s.Alias(city)]
	if !ok || len(states) == 0 {
		return Record{}, false
	}
	rec, ok := s.places[placeKey(s.Alias(city), states[0])]
	return rec, ok
}

// ByLocality looks up a registered sub-city locality token.
func (s *Store) ByLocality(name string) (Record, bool) {
	rec, ok := s.localities[Key(name)]
	return rec, ok
}

// Landmark looks up the static landmark table.
func (s *Store) Landmark(name string) (Landmark, bool) {
	lm, ok := s.landmarks[Key(name)]
	return lm, ok
}

// Alias resolves a historical city name to its current one. Names with no
// registered alias pass through as their normalized key.
func (s *Store) Alias(city string) string {
	key := Key(city)
	if current, ok := s.aliases[key]; ok {
		return current
	}
	return key
}

// KnownCity reports whether a name resolves to any city, locality, or
// landmark entry.
func (s *Store) KnownCity(name string) bool {
	key := s.Alias(name)
	if _, ok := s.cityStates[key]; ok {
		return true
	}
	if _, ok := s.localities[key]; ok {
		return true
	}
	_, ok := s.landmarks[Key(name)]
	return ok
}

// PostalCodes returns all indexed postal codes in sorted order, for the
// fuzzy-match linear scan.
func (s *Store) PostalCodes() []string { return s.sortedCodes }

// Places returns all (city, state) entries in sorted order.
func (s *Store) Places() []PlaceEntry { return s.sortedPlaces }

// Localities returns all locality entries in sorted order.
func (s *Store) Localities() []LocalityEntry { return s.sortedLocalities }

// Counts returns index sizes for startup logging.
func (s *Store) Counts() (postal, places, localities, landmarks int) {
	return len(s.postal), len(s.places), len(s.localities), len(s.landmarks)
}

func splitPlaceKey(key string) (cityKey, stateKey string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '\x1f' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}
