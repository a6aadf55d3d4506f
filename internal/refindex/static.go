package refindex

import (
	_ "embed"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed data/places.yaml
var placesYAML []byte

// staticPlaces holds the compiled-in alias and landmark tables.
type staticPlaces struct {
	Aliases   map[string]string `yaml:"aliases"`
	Landmarks []Landmark        `yaml:"landmarks"`
}

// loadStaticPlaces parses the embedded alias/landmark table.
func loadStaticPlaces() (staticPlaces, error) {
	var sp staticPlaces
	if err := yaml.Unmarshal(placesYAML, &sp); err != nil {
		return sp, eris.Wrap(err, "refindex: parse embedded places table")
	}
	return sp, nil
}
