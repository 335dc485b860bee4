// Package tileset generates sparse vector-tile pyramids from
// normalized features and packages them as a directory, zip archive,
// or mbtiles database together with a TileJSON manifest.
package tileset

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// TileSize 默认瓦片大小
const TileSize = 256

// ZoomMin 最小级别
const ZoomMin = 0

// ZoomMax 最大级别
const ZoomMax = 22

// DefaultMaxZoom is the deepest level generated when not configured.
const DefaultMaxZoom = 14

// DefaultBuffer is the clip margin in 256px-tile pixels.
const DefaultBuffer = 64

// Options configures one generation job.
type Options struct {
	MinZoom   maptile.Zoom
	MaxZoom   maptile.Zoom
	Buffer    uint32 // pixels
	Extent    uint32 // quantization grid
	LayerName string
	Workers   int
}

// DefaultOptions returns the recognized defaults.
func DefaultOptions() Options {
	return Options{
		MinZoom:   ZoomMin,
		MaxZoom:   DefaultMaxZoom,
		Buffer:    DefaultBuffer,
		Extent:    4096,
		LayerName: "layer",
		Workers:   4,
	}
}

func (o *Options) validate() error {
	if o.MaxZoom > ZoomMax {
		return fmt.Errorf("maxzoom %d above limit %d", o.MaxZoom, ZoomMax)
	}
	if o.MinZoom > o.MaxZoom {
		return fmt.Errorf("minzoom %d above maxzoom %d", o.MinZoom, o.MaxZoom)
	}
	if o.Extent == 0 {
		return fmt.Errorf("zero extent")
	}
	if o.LayerName == "" {
		return fmt.Errorf("empty layer name")
	}
	if o.Workers < 1 {
		o.Workers = 1
	}
	return nil
}

// EncodedTile 自定义瓦片存储
type EncodedTile struct {
	T maptile.Tile
	C []byte
}

// Path is the tile's location inside the output package.
func (t EncodedTile) Path() string {
	return fmt.Sprintf("%d/%d/%d.pbf", t.T.Z, t.T.X, t.T.Y)
}

func (t EncodedTile) flipY() uint32 {
	return (1 << uint32(t.T.Z)) - t.T.Y - 1
}

// BoundsOf is the Web-Mercator bound of a tile; (0,0,0) covers the
// whole world.
func BoundsOf(t maptile.Tile) orb.Bound {
	return t.Bound()
}

// CoveringZoom enumerates the tiles of one zoom level intersecting a
// geographic bound, in row-major order (y then x ascending) so callers
// iterate deterministically. Only the covered rectangle of the grid is
// visited, never the full 2^z × 2^z set.
func CoveringZoom(b orb.Bound, z maptile.Zoom) []maptile.Tile {
	dim := uint32(1) << z
	clamp := func(v uint32) uint32 {
		if v >= dim {
			return dim - 1
		}
		return v
	}
	// y grows southward, so the min row comes from the max latitude
	topLeft := maptile.At(orb.Point{b.Min[0], b.Max[1]}, z)
	bottomRight := maptile.At(orb.Point{b.Max[0], b.Min[1]}, z)
	x0, x1 := clamp(topLeft.X), clamp(bottomRight.X)
	y0, y1 := clamp(topLeft.Y), clamp(bottomRight.Y)

	tiles := make([]maptile.Tile, 0, (x1-x0+1)*(y1-y0+1))
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			tiles = append(tiles, maptile.New(x, y, z))
		}
	}
	return tiles
}
