package geocode

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/albapepper/burrito-league/internal/location"
)

//go:embed known.yaml
var knownYAML []byte

// Source records where a stored coordinate came from.
type Source string

const (
	SourceGeocoded Source = "geocoded"
	SourceManual   Source = "manual"
	// SourceStatic marks entries from the embedded list; never stored.
	SourceStatic Source = "static"
)

// Coordinate is a chapter city with its position.
type Coordinate struct {
	City    string  `json:"city" yaml:"city"`
	State   string  `json:"state" yaml:"state"`
	Country string  `json:"country" yaml:"country"`
	Lat     float64 `json:"lat" yaml:"lat"`
	Lng     float64 `json:"lng" yaml:"lng"`
	Source  Source  `json:"source" yaml:"-"`
}

// Key is the location.Key of the coordinate's city.
func (c Coordinate) Key() string { return location.Key(c.City, c.State, c.Country) }

// Known returns the embedded coordinate list.
func Known() ([]Coordinate, error) {
	var doc struct {
		Coordinates []Coordinate `yaml:"coordinates"`
	}
	if err := yaml.Unmarshal(knownYAML, &doc); err != nil {
		return nil, fmt.Errorf("parse known coordinates: %w", err)
	}
	for i := range doc.Coordinates {
		doc.Coordinates[i].Source = SourceStatic
	}
	return doc.Coordinates, nil
}

// Merge combines the embedded list with stored coordinates. Stored rows win
// when both name the same city.
func Merge(known, stored []Coordinate) []Coordinate {
	index := make(map[string]int, len(known)+len(stored))
	out := make([]Coordinate, 0, len(known)+len(stored))
	for _, list := range [][]Coordinate{known, stored} {
		for _, c := range list {
			k := c.Key()
			if i, ok := index[k]; ok {
				out[i] = c
				continue
			}
			index[k] = len(out)
			out = append(out, c)
		}
	}
	return out
}
