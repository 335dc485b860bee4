// Package mvt turns normalized features into Mapbox Vector Tile
// buffers: per-tile clipping and quantization plus the binary layer
// encoding.
package mvt

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// DefaultExtent is the conventional MVT grid resolution.
const DefaultExtent = 4096

// webMercatorMaxLat is the latitude limit of the projection; input
// beyond it is clamped rather than rejected.
const webMercatorMaxLat = 85.05112877980659

// GeomType mirrors the MVT geometry type enum.
type GeomType uint8

const (
	GeomPoint   GeomType = 1
	GeomLine    GeomType = 2
	GeomPolygon GeomType = 3
)

// Point is a quantized tile-local coordinate.
type Point struct {
	X, Y int32
}

// Geometry is one feature's geometry clipped to a tile and quantized
// onto the extent grid. Parts are points of a single multipoint, line
// parts, or polygon rings (exterior rings wind positive, holes
// negative, per the MVT convention with y growing downward).
type Geometry struct {
	Type  GeomType
	Parts [][]Point
}

// DropReason says why a feature produced no geometry for a tile.
type DropReason int

const (
	// DropNone: geometry survived.
	DropNone DropReason = iota
	// DropOutside: nothing of the feature lies within the buffered
	// tile; expected and silent.
	DropOutside
	// DropDegenerate: the feature overlapped the tile but collapsed
	// under clipping or quantization; counted as a warning upstream.
	DropDegenerate
)

// Clipper clips and quantizes features for tiles of one generation
// job. It carries no per-tile state and is safe for concurrent use.
type Clipper struct {
	extent uint32
	buffer float64 // clip margin in extent units
}

// NewClipper builds a clipper for the given grid resolution and
// buffer. The buffer is given in pixels of a 256px tile, the unit map
// tooling conventionally uses, and is scaled to extent units here.
func NewClipper(extent uint32, bufferPixels uint32) *Clipper {
	if extent == 0 {
		extent = DefaultExtent
	}
	return &Clipper{
		extent: extent,
		buffer: float64(bufferPixels) * float64(extent) / 256.0,
	}
}

// Extent returns the grid resolution the clipper quantizes onto.
func (c *Clipper) Extent() uint32 { return c.extent }

// BufferFraction is the buffer as a fraction of the tile span, the
// form orb's Tile.Bound wants.
func (c *Clipper) BufferFraction() float64 {
	return c.buffer / float64(c.extent)
}

// ClipGeometry clips a geographic geometry to one tile and quantizes
// it. The bounding-box fast-reject against the buffered tile bound
// runs first so features elsewhere cost nothing.
func (c *Clipper) ClipGeometry(g orb.Geometry, tile maptile.Tile) (Geometry, DropReason) {
	tileBound := tile.Bound(c.BufferFraction())
	if !tileBound.Intersects(g.Bound()) {
		return Geometry{}, DropOutside
	}

	proj := newTileProjection(tile, c.extent)
	lo := -c.buffer
	hi := float64(c.extent) + c.buffer

	switch g := g.(type) {
	case orb.Point:
		return c.clipPoints(proj, lo, hi, []orb.Point{g})
	case orb.MultiPoint:
		return c.clipPoints(proj, lo, hi, g)
	case orb.LineString:
		return c.clipLines(proj, lo, hi, []orb.LineString{g})
	case orb.MultiLineString:
		return c.clipLines(proj, lo, hi, g)
	case orb.Polygon:
		return c.clipPolygons(proj, lo, hi, []orb.Polygon{g})
	case orb.MultiPolygon:
		return c.clipPolygons(proj, lo, hi, g)
	}
	return Geometry{}, DropDegenerate
}

func (c *Clipper) clipPoints(proj tileProjection, lo, hi float64, pts []orb.Point) (Geometry, DropReason) {
	var kept []Point
	for _, p := range pts {
		x, y := proj.project(p)
		if x < lo || x > hi || y < lo || y > hi {
			continue
		}
		kept = append(kept, quantize(x, y))
	}
	if len(kept) == 0 {
		return Geometry{}, DropOutside
	}
	return Geometry{Type: GeomPoint, Parts: [][]Point{kept}}, DropNone
}

func (c *Clipper) clipLines(proj tileProjection, lo, hi float64, lines []orb.LineString) (Geometry, DropReason) {
	var parts [][]Point
	clippedSomething := false
	for _, ls := range lines {
		if len(ls) < 2 {
			continue
		}
		for _, part := range clipLine(projectLine(proj, ls), lo, hi) {
			clippedSomething = true
			q := quantizePath(part, false)
			if len(q) >= 2 {
				parts = append(parts, q)
			}
		}
	}
	if len(parts) == 0 {
		if clippedSomething {
			return Geometry{}, DropDegenerate
		}
		return Geometry{}, DropOutside
	}
	return Geometry{Type: GeomLine, Parts: parts}, DropNone
}

func (c *Clipper) clipPolygons(proj tileProjection, lo, hi float64, polys []orb.Polygon) (Geometry, DropReason) {
	var parts [][]Point
	clippedSomething := false
	for _, poly := range polys {
		for i, ring := range poly {
			clipped := clipRing(projectRing(proj, ring), lo, hi)
			if len(clipped) < 3 {
				if i == 0 {
					break // exterior gone, holes are meaningless
				}
				continue
			}
			clippedSomething = true
			q := quantizePath(clipped, true)
			if len(q) < 3 || signedArea2(q) == 0 {
				if i == 0 {
					break
				}
				continue
			}
			exterior := i == 0
			if exterior != (signedArea2(q) > 0) {
				reverse(q)
			}
			if i == 0 {
				parts = append(parts, q)
			} else if len(parts) > 0 {
				parts = append(parts, q)
			}
		}
	}
	if len(parts) == 0 {
		if clippedSomething {
			return Geometry{}, DropDegenerate
		}
		return Geometry{}, DropOutside
	}
	return Geometry{Type: GeomPolygon, Parts: parts}, DropNone
}

// tileProjection is the affine map from WGS84 to one tile's local
// float coordinates on the extent grid.
type tileProjection struct {
	scale            float64
	originX, originY float64
}

func newTileProjection(tile maptile.Tile, extent uint32) tileProjection {
	scale := float64(uint64(1)<<tile.Z) * float64(extent)
	return tileProjection{
		scale:   scale,
		originX: float64(tile.X) * float64(extent),
		originY: float64(tile.Y) * float64(extent),
	}
}

func (p tileProjection) project(pt orb.Point) (x, y float64) {
	lat := pt[1]
	if lat > webMercatorMaxLat {
		lat = webMercatorMaxLat
	} else if lat < -webMercatorMaxLat {
		lat = -webMercatorMaxLat
	}
	x = (pt[0]+180.0)/360.0*p.scale - p.originX
	sin := math.Sin(lat * math.Pi / 180.0)
	y = (0.5-math.Log((1+sin)/(1-sin))/(4*math.Pi))*p.scale - p.originY
	return x, y
}

type fpoint struct {
	x, y float64
}

func projectLine(proj tileProjection, ls orb.LineString) []fpoint {
	out := make([]fpoint, len(ls))
	for i, p := range ls {
		out[i].x, out[i].y = proj.project(p)
	}
	return out
}

func projectRing(proj tileProjection, ring orb.Ring) []fpoint {
	// drop the closing duplicate, the ring is implicit
	n := len(ring)
	if n > 1 && ring[0] == ring[n-1] {
		n--
	}
	out := make([]fpoint, n)
	for i := 0; i < n; i++ {
		out[i].x, out[i].y = proj.project(ring[i])
	}
	return out
}

// clipRing runs Sutherland–Hodgman against the four sides of the
// square [lo,hi]^2, preserving winding.
func clipRing(ring []fpoint, lo, hi float64) []fpoint {
	edges := []func(fpoint) bool{
		func(p fpoint) bool { return p.x >= lo },
		func(p fpoint) bool { return p.x <= hi },
		func(p fpoint) bool { return p.y >= lo },
		func(p fpoint) bool { return p.y <= hi },
	}
	cross := []func(a, b fpoint) fpoint{
		func(a, b fpoint) fpoint { return intersectX(a, b, lo) },
		func(a, b fpoint) fpoint { return intersectX(a, b, hi) },
		func(a, b fpoint) fpoint { return intersectY(a, b, lo) },
		func(a, b fpoint) fpoint { return intersectY(a, b, hi) },
	}
	out := ring
	for e := range edges {
		in := out
		out = nil
		if len(in) == 0 {
			return nil
		}
		prev := in[len(in)-1]
		for _, cur := range in {
			if edges[e](cur) {
				if !edges[e](prev) {
					out = append(out, cross[e](prev, cur))
				}
				out = append(out, cur)
			} else if edges[e](prev) {
				out = append(out, cross[e](prev, cur))
			}
			prev = cur
		}
	}
	return out
}

func intersectX(a, b fpoint, x float64) fpoint {
	t := (x - a.x) / (b.x - a.x)
	return fpoint{x: x, y: a.y + t*(b.y-a.y)}
}

func intersectY(a, b fpoint, y float64) fpoint {
	t := (y - a.y) / (b.y - a.y)
	return fpoint{x: a.x + t*(b.x-a.x), y: y}
}

// clipLine clips a polyline to the square [lo,hi]^2 segment by
// segment (Liang–Barsky), splitting it where it leaves the square.
func clipLine(line []fpoint, lo, hi float64) [][]fpoint {
	var parts [][]fpoint
	var cur []fpoint
	for i := 0; i+1 < len(line); i++ {
		a, b, ok, aMoved := clipSegment(line[i], line[i+1], lo, hi)
		if !ok {
			if len(cur) >= 2 {
				parts = append(parts, cur)
			}
			cur = nil
			continue
		}
		if len(cur) == 0 || aMoved {
			if len(cur) >= 2 {
				parts = append(parts, cur)
			}
			cur = []fpoint{a}
		}
		cur = append(cur, b)
	}
	if len(cur) >= 2 {
		parts = append(parts, cur)
	}
	return parts
}

// clipSegment returns the clipped segment and whether the start point
// was moved (meaning the polyline re-entered the square).
func clipSegment(a, b fpoint, lo, hi float64) (fpoint, fpoint, bool, bool) {
	t0, t1 := 0.0, 1.0
	dx := b.x - a.x
	dy := b.y - a.y
	checks := [4][2]float64{
		{-dx, a.x - lo},
		{dx, hi - a.x},
		{-dy, a.y - lo},
		{dy, hi - a.y},
	}
	for _, ck := range checks {
		p, q := ck[0], ck[1]
		if p == 0 {
			if q < 0 {
				return fpoint{}, fpoint{}, false, false
			}
			continue
		}
		r := q / p
		if p < 0 {
			if r > t1 {
				return fpoint{}, fpoint{}, false, false
			}
			if r > t0 {
				t0 = r
			}
		} else {
			if r < t0 {
				return fpoint{}, fpoint{}, false, false
			}
			if r < t1 {
				t1 = r
			}
		}
	}
	ca := fpoint{x: a.x + t0*dx, y: a.y + t0*dy}
	cb := fpoint{x: a.x + t1*dx, y: a.y + t1*dy}
	return ca, cb, true, t0 > 0
}

// quantizePath rounds a float path onto the integer grid, dropping
// points that collapse onto their predecessor. Rounding is
// half-to-even so output is reproducible bit for bit.
func quantizePath(path []fpoint, ring bool) []Point {
	out := make([]Point, 0, len(path))
	for _, p := range path {
		q := quantize(p.x, p.y)
		if len(out) > 0 && out[len(out)-1] == q {
			continue
		}
		out = append(out, q)
	}
	// a ring may also collapse across the implicit closing edge
	if ring {
		for len(out) > 1 && out[0] == out[len(out)-1] {
			out = out[:len(out)-1]
		}
	}
	return out
}

func quantize(x, y float64) Point {
	return Point{
		X: int32(math.RoundToEven(x)),
		Y: int32(math.RoundToEven(y)),
	}
}

// signedArea2 is twice the signed area of a ring in tile coordinates.
// With y growing downward, a positive value means the on-screen
// clockwise winding MVT expects of exterior rings.
func signedArea2(ring []Point) int64 {
	var sum int64
	n := len(ring)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += int64(ring[i].X)*int64(ring[j].Y) - int64(ring[j].X)*int64(ring[i].Y)
	}
	return sum
}

func reverse(pts []Point) {
	for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
		pts[i], pts[j] = pts[j], pts[i]
	}
}
