package geom

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ErrInvalidGeometry marks a feature the normalizer refuses to accept.
var ErrInvalidGeometry = errors.New("invalid geometry")

// Feature is the normalized, read-only form every later stage works on.
// IDs are assigned in input order and end up as MVT feature IDs.
type Feature struct {
	ID         uint64
	Geometry   orb.Geometry
	Properties geojson.Properties
}

// Normalize validates a parsed FeatureCollection and flattens it into
// the internal feature list. The same input always produces the same
// IDs, so results are safe to cache and compare.
func Normalize(fc *geojson.FeatureCollection) ([]Feature, error) {
	if fc == nil {
		return nil, fmt.Errorf("%w: nil feature collection", ErrInvalidGeometry)
	}
	features := make([]Feature, 0, len(fc.Features))
	for i, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			return nil, fmt.Errorf("%w: feature %d has no geometry", ErrInvalidGeometry, i)
		}
		if err := checkGeometry(f.Geometry); err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		props := f.Properties
		if props == nil {
			props = geojson.Properties{}
		}
		features = append(features, Feature{
			ID:         uint64(i),
			Geometry:   orb.Clone(f.Geometry),
			Properties: props.Clone(),
		})
	}
	return features, nil
}

// Bound returns the union bound of all features, or a zero bound for an
// empty list.
func Bound(features []Feature) orb.Bound {
	if len(features) == 0 {
		return orb.Bound{}
	}
	b := features[0].Geometry.Bound()
	for _, f := range features[1:] {
		b = b.Union(f.Geometry.Bound())
	}
	return b
}

func checkGeometry(g orb.Geometry) error {
	switch g := g.(type) {
	case orb.Point:
		return checkPoint(g)
	case orb.MultiPoint:
		if len(g) == 0 {
			return fmt.Errorf("%w: empty MultiPoint", ErrInvalidGeometry)
		}
		for _, p := range g {
			if err := checkPoint(p); err != nil {
				return err
			}
		}
	case orb.LineString:
		return checkLine(orb.LineString(g))
	case orb.MultiLineString:
		if len(g) == 0 {
			return fmt.Errorf("%w: empty MultiLineString", ErrInvalidGeometry)
		}
		for _, ls := range g {
			if err := checkLine(ls); err != nil {
				return err
			}
		}
	case orb.Polygon:
		return checkPolygon(g)
	case orb.MultiPolygon:
		if len(g) == 0 {
			return fmt.Errorf("%w: empty MultiPolygon", ErrInvalidGeometry)
		}
		for _, p := range g {
			if err := checkPolygon(p); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: unsupported type %s", ErrInvalidGeometry, g.GeoJSONType())
	}
	return nil
}

func checkPoint(p orb.Point) error {
	if !finite(p[0]) || !finite(p[1]) {
		return fmt.Errorf("%w: non-finite coordinate (%v, %v)", ErrInvalidGeometry, p[0], p[1])
	}
	return nil
}

func checkLine(ls orb.LineString) error {
	if len(ls) < 2 {
		return fmt.Errorf("%w: LineString with %d points", ErrInvalidGeometry, len(ls))
	}
	for _, p := range ls {
		if err := checkPoint(p); err != nil {
			return err
		}
	}
	return nil
}

func checkPolygon(poly orb.Polygon) error {
	if len(poly) == 0 {
		return fmt.Errorf("%w: empty Polygon", ErrInvalidGeometry)
	}
	for _, ring := range poly {
		if len(ring) < 4 {
			return fmt.Errorf("%w: ring with %d points", ErrInvalidGeometry, len(ring))
		}
		for _, p := range ring {
			if err := checkPoint(p); err != nil {
				return err
			}
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
