package mvt

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClipPointInTile(t *testing.T) {
	c := NewClipper(4096, 64)
	g, drop := c.ClipGeometry(orb.Point{139.767, 35.681}, maptile.New(0, 0, 0))
	require.Equal(t, DropNone, drop)
	require.Equal(t, GeomPoint, g.Type)
	require.Len(t, g.Parts, 1)
	require.Len(t, g.Parts[0], 1)
	p := g.Parts[0][0]
	assert.True(t, p.X >= 0 && p.X <= 4096, "x=%d", p.X)
	assert.True(t, p.Y >= 0 && p.Y <= 4096, "y=%d", p.Y)
	// Tokyo sits east of the antimeridian's opposite and north of the
	// equator, i.e. in the upper right quadrant of the world tile
	assert.Greater(t, p.X, int32(2048))
	assert.Less(t, p.Y, int32(2048))
}

func TestClipFastReject(t *testing.T) {
	c := NewClipper(4096, 64)
	// Tokyo vs the north-west quadrant
	_, drop := c.ClipGeometry(orb.Point{139.767, 35.681}, maptile.New(0, 0, 1))
	assert.Equal(t, DropOutside, drop)

	// a polygon over Europe vs a tile over South America
	poly := orb.Polygon{{{0, 45}, {10, 45}, {10, 55}, {0, 55}, {0, 45}}}
	_, drop = c.ClipGeometry(poly, maptile.New(1, 2, 2))
	assert.Equal(t, DropOutside, drop)
}

// projectTo0 mirrors the Web-Mercator projection onto the z0 tile
// grid, written out independently of the clipper internals.
func projectTo0(pt orb.Point, extent float64) Point {
	x := (pt[0] + 180.0) / 360.0 * extent
	latRad := pt[1] * math.Pi / 180.0
	y := (0.5 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/(2*math.Pi)) * extent
	return Point{X: int32(math.RoundToEven(x)), Y: int32(math.RoundToEven(y))}
}

func TestClipPolygonInsideTileIsIdentity(t *testing.T) {
	c := NewClipper(4096, 64)
	// wound so the projected ring already matches the output
	// convention, otherwise the winding pass would reverse it
	ring := orb.Ring{{-60, -30}, {-60, 40}, {60, 40}, {60, -30}, {-60, -30}}
	g, drop := c.ClipGeometry(orb.Polygon{ring}, maptile.New(0, 0, 0))
	require.Equal(t, DropNone, drop)
	require.Equal(t, GeomPolygon, g.Type)
	require.Len(t, g.Parts, 1)

	want := make([]Point, 0, len(ring)-1)
	for _, pt := range ring[:len(ring)-1] {
		want = append(want, projectTo0(pt, 4096))
	}
	assert.Equal(t, want, g.Parts[0])
}

func TestClipPolygonWinding(t *testing.T) {
	c := NewClipper(4096, 64)
	ccw := orb.Ring{{-60, -30}, {60, -30}, {60, 40}, {-60, 40}, {-60, -30}}
	cw := orb.Ring{{-60, -30}, {-60, 40}, {60, 40}, {60, -30}, {-60, -30}}

	for name, ring := range map[string]orb.Ring{"ccw input": ccw, "cw input": cw} {
		t.Run(name, func(t *testing.T) {
			g, drop := c.ClipGeometry(orb.Polygon{ring}, maptile.New(0, 0, 0))
			require.Equal(t, DropNone, drop)
			assert.Positive(t, signedArea2(g.Parts[0]), "exterior ring must wind positive")
		})
	}
}

func TestClipPolygonWithHole(t *testing.T) {
	c := NewClipper(4096, 64)
	poly := orb.Polygon{
		{{-60, -30}, {60, -30}, {60, 40}, {-60, 40}, {-60, -30}},
		{{-20, -10}, {-20, 15}, {20, 15}, {20, -10}, {-20, -10}}, // hole, CW
	}
	g, drop := c.ClipGeometry(poly, maptile.New(0, 0, 0))
	require.Equal(t, DropNone, drop)
	require.Len(t, g.Parts, 2)
	assert.Positive(t, signedArea2(g.Parts[0]))
	assert.Negative(t, signedArea2(g.Parts[1]))
}

func TestClipPolygonStraddlingTileEdge(t *testing.T) {
	c := NewClipper(4096, 0) // no buffer, clip exactly at the tile edge
	// spans both z1 western and eastern hemispheres
	poly := orb.Polygon{{{-40, -20}, {40, -20}, {40, 30}, {-40, 30}, {-40, -20}}}
	g, drop := c.ClipGeometry(poly, maptile.New(0, 0, 1))
	require.Equal(t, DropNone, drop)
	require.Len(t, g.Parts, 1)
	for _, p := range g.Parts[0] {
		assert.True(t, p.X >= 0 && p.X <= 4096, "x=%d outside clip rect", p.X)
		assert.True(t, p.Y >= 0 && p.Y <= 4096, "y=%d outside clip rect", p.Y)
	}
	// the eastern edge of the clipped shape lies on the tile boundary
	var maxX int32
	for _, p := range g.Parts[0] {
		if p.X > maxX {
			maxX = p.X
		}
	}
	assert.Equal(t, int32(4096), maxX)
}

func TestClipLineSplit(t *testing.T) {
	c := NewClipper(4096, 0)
	// dips out of the z1 western tile in the middle
	line := orb.LineString{{-120, 10}, {-60, 10}, {30, 10}, {-30, 20}}
	g, drop := c.ClipGeometry(line, maptile.New(0, 0, 1))
	require.Equal(t, DropNone, drop)
	require.Equal(t, GeomLine, g.Type)
	assert.Len(t, g.Parts, 2, "line leaving and re-entering the tile must split")
	for _, part := range g.Parts {
		require.GreaterOrEqual(t, len(part), 2)
		for _, p := range part {
			assert.True(t, p.X >= 0 && p.X <= 4096)
		}
	}
}

func TestClipLineOutside(t *testing.T) {
	c := NewClipper(4096, 0)
	line := orb.LineString{{30, 10}, {60, 20}}
	_, drop := c.ClipGeometry(line, maptile.New(0, 0, 1))
	assert.Equal(t, DropOutside, drop)
}

func TestClipDegenerateSliver(t *testing.T) {
	c := NewClipper(4096, 64)
	// a polygon far thinner than one grid cell collapses under
	// quantization
	base := 10.0
	eps := 1e-9
	poly := orb.Polygon{{
		{base, 10}, {base + eps, 10}, {base + eps, 10 + eps}, {base, 10 + eps}, {base, 10},
	}}
	_, drop := c.ClipGeometry(poly, maptile.New(0, 0, 0))
	assert.Equal(t, DropDegenerate, drop)
}

func TestClipMultiPoint(t *testing.T) {
	c := NewClipper(4096, 0)
	mp := orb.MultiPoint{{-90, 10}, {90, 10}, {-45, 20}}
	g, drop := c.ClipGeometry(mp, maptile.New(0, 0, 1))
	require.Equal(t, DropNone, drop)
	require.Len(t, g.Parts, 1)
	assert.Len(t, g.Parts[0], 2, "only the western points survive")
}

func TestQuantizeRoundHalfToEven(t *testing.T) {
	assert.Equal(t, Point{X: 2, Y: 4}, quantize(2.5, 3.5))
	assert.Equal(t, Point{X: -2, Y: 4}, quantize(-2.5, 4.5))
}
