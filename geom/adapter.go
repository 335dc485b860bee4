// Package geom holds the normalized feature model and the format
// adapter contract that feeds the tile pipeline.
package geom

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/paulmach/orb/geojson"
)

// Adapter converts between an external format and GeoJSON. The tile
// pipeline only ever sees the GeoJSON side.
type Adapter interface {
	// Name is the canonical format name, e.g. "geojson".
	Name() string
	ToGeoJSON(data []byte) (*geojson.FeatureCollection, error)
	FromGeoJSON(fc *geojson.FeatureCollection) ([]byte, error)
}

var adapters = map[string]Adapter{
	"geojson": GeoJSONAdapter{},
	"json":    GeoJSONAdapter{},
	"csv":     CSVAdapter{},
}

// AdapterFor resolves an adapter from a format name or file extension.
func AdapterFor(format string) (Adapter, error) {
	key := strings.ToLower(strings.TrimPrefix(format, "."))
	a, ok := adapters[key]
	if !ok {
		return nil, fmt.Errorf("no adapter for format %q", format)
	}
	return a, nil
}

// GeoJSONAdapter is the identity adapter.
type GeoJSONAdapter struct{}

func (GeoJSONAdapter) Name() string { return "geojson" }

func (GeoJSONAdapter) ToGeoJSON(data []byte) (*geojson.FeatureCollection, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse geojson: %w", err)
	}
	return fc, nil
}

func (GeoJSONAdapter) FromGeoJSON(fc *geojson.FeatureCollection) ([]byte, error) {
	return json.Marshal(fc)
}
