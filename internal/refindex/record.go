package refindex

// Row is a single raw row of the reference postal dataset. Column names match
// the tabular export headers.
type Row struct {
	PostalCode string  `csv:"postal_code"`
	City       string  `csv:"city"`
	District   string  `csv:"district"`
	State      string  `csv:"state"`
	Lat        float64 `csv:"latitude"`
	Lon        float64 `csv:"longitude"`
}

// Record is an aggregated index entry: the coordinate centroid of all rows
// sharing the index key plus the modal city/district/state of the group.
// Records are immutable after Build.
type Record struct {
	PostalCode string  `json:"postal_code,omitempty"`
	City       string  `json:"city,omitempty"`
	District   string  `json:"district,omitempty"`
	State      string  `json:"state,omitempty"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
}

// Landmark is a well-known named place mapped to its host city.
type Landmark struct {
	Name  string  `yaml:"name" json:"name"`
	City  string  `yaml:"city" json:"city"`
	State string  `yaml:"state" json:"state"`
	Lat   float64 `yaml:"lat" json:"lat"`
	Lon   float64 `yaml:"lon" json:"lon"`
}

// PlaceEntry is a (city, state) index entry exposed for linear scans by the
// fuzzy matching tier. The slice returned by Store.Places is sorted so scans
// are deterministic.
type PlaceEntry struct {
	CityKey  string
	StateKey string
	Rec      Record
}

// LocalityEntry is a sub-city locality index entry, likewise exposed for
// deterministic fuzzy scans.
type LocalityEntry struct {
	Name string
	Rec  Record
}
