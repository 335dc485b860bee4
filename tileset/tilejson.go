package tileset

import (
	"encoding/json"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// TileJSON is the tiles.json manifest, version 2.2.0. Zoom fields hold
// the range actually populated by the job, not the configured one.
type TileJSON struct {
	TileJSON string     `json:"tilejson"`
	Name     string     `json:"name,omitempty"`
	Tiles    []string   `json:"tiles"`
	MinZoom  int        `json:"minzoom"`
	MaxZoom  int        `json:"maxzoom"`
	Bounds   [4]float64 `json:"bounds"`
}

const tileJSONVersion = "2.2.0"
const tileURLTemplate = "{z}/{x}/{y}.pbf"

func newTileJSON(name string, minZoom, maxZoom maptile.Zoom, bound orb.Bound) TileJSON {
	return TileJSON{
		TileJSON: tileJSONVersion,
		Name:     name,
		Tiles:    []string{tileURLTemplate},
		MinZoom:  int(minZoom),
		MaxZoom:  int(maxZoom),
		Bounds:   [4]float64{bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1]},
	}
}

// Marshal renders the manifest; field order is fixed by the struct so
// the bytes are reproducible.
func (tj TileJSON) Marshal() ([]byte, error) {
	return json.MarshalIndent(tj, "", "  ")
}
