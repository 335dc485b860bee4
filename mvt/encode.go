package mvt

import (
	"fmt"
	"math"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// Wire layout of vector_tile.proto (MVT 2.1).
const (
	tileLayersField = 3

	layerVersionField  = 15
	layerNameField     = 1
	layerFeaturesField = 2
	layerKeysField     = 3
	layerValuesField   = 4
	layerExtentField   = 5

	featureIDField       = 1
	featureTagsField     = 2
	featureTypeField     = 3
	featureGeometryField = 4

	valueStringField = 1
	valueFloatField  = 2
	valueDoubleField = 3
	valueIntField    = 4
	valueUintField   = 5
	valueSintField   = 6
	valueBoolField   = 7

	layerVersion = 2
)

// Geometry command IDs.
const (
	cmdMoveTo    = 1
	cmdLineTo    = 2
	cmdClosePath = 7

	// command counts are packed into 29 bits
	maxCmdCount = 1<<29 - 1
)

// Feature is one encodable feature: clipped geometry plus the original
// attributes and ID.
type Feature struct {
	ID         uint64
	Geometry   Geometry
	Properties map[string]interface{}
}

// Layer is a named set of features sharing one key/value pool.
type Layer struct {
	Name     string
	Extent   uint32
	Features []Feature
}

// Marshal serializes layers into a single tile buffer. Output is
// byte-identical across runs for identical input: property keys are
// visited in sorted order and the pools keep insertion order.
func Marshal(layers []Layer) ([]byte, error) {
	var buf []byte
	for _, layer := range layers {
		lb, err := marshalLayer(layer)
		if err != nil {
			return nil, fmt.Errorf("layer %q: %w", layer.Name, err)
		}
		buf = protowire.AppendTag(buf, tileLayersField, protowire.BytesType)
		buf = protowire.AppendBytes(buf, lb)
	}
	return buf, nil
}

// pool deduplicates layer keys and values, preserving first-seen
// order. Values are keyed by their encoded bytes so equal values of
// equal type collapse and nothing depends on map iteration.
type pool struct {
	keys     []string
	keyIndex map[string]uint32
	values   [][]byte
	valIndex map[string]uint32
}

func newPool() *pool {
	return &pool{
		keyIndex: make(map[string]uint32),
		valIndex: make(map[string]uint32),
	}
}

func (p *pool) key(k string) uint32 {
	if i, ok := p.keyIndex[k]; ok {
		return i
	}
	i := uint32(len(p.keys))
	p.keys = append(p.keys, k)
	p.keyIndex[k] = i
	return i
}

func (p *pool) value(encoded []byte) uint32 {
	if i, ok := p.valIndex[string(encoded)]; ok {
		return i
	}
	i := uint32(len(p.values))
	p.values = append(p.values, encoded)
	p.valIndex[string(encoded)] = i
	return i
}

func marshalLayer(layer Layer) ([]byte, error) {
	extent := layer.Extent
	if extent == 0 {
		extent = DefaultExtent
	}

	pl := newPool()
	var featureBufs [][]byte
	for _, f := range layer.Features {
		fb, err := marshalFeature(f, pl)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", f.ID, err)
		}
		featureBufs = append(featureBufs, fb)
	}

	var buf []byte
	buf = protowire.AppendTag(buf, layerVersionField, protowire.VarintType)
	buf = protowire.AppendVarint(buf, layerVersion)
	buf = protowire.AppendTag(buf, layerNameField, protowire.BytesType)
	buf = protowire.AppendString(buf, layer.Name)
	for _, fb := range featureBufs {
		buf = protowire.AppendTag(buf, layerFeaturesField, protowire.BytesType)
		buf = protowire.AppendBytes(buf, fb)
	}
	for _, k := range pl.keys {
		buf = protowire.AppendTag(buf, layerKeysField, protowire.BytesType)
		buf = protowire.AppendString(buf, k)
	}
	for _, v := range pl.values {
		buf = protowire.AppendTag(buf, layerValuesField, protowire.BytesType)
		buf = protowire.AppendBytes(buf, v)
	}
	buf = protowire.AppendTag(buf, layerExtentField, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(extent))
	return buf, nil
}

func marshalFeature(f Feature, pl *pool) ([]byte, error) {
	geometry, err := f.Geometry.commands()
	if err != nil {
		return nil, err
	}

	var tags []uint32
	for _, k := range sortedPropertyKeys(f.Properties) {
		encoded, ok := marshalValue(f.Properties[k])
		if !ok {
			continue // unrepresentable value, e.g. nil or nested object
		}
		tags = append(tags, pl.key(k), pl.value(encoded))
	}

	var buf []byte
	buf = protowire.AppendTag(buf, featureIDField, protowire.VarintType)
	buf = protowire.AppendVarint(buf, f.ID)
	if len(tags) > 0 {
		buf = protowire.AppendTag(buf, featureTagsField, protowire.BytesType)
		buf = protowire.AppendBytes(buf, packVarints(tags))
	}
	buf = protowire.AppendTag(buf, featureTypeField, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(f.Geometry.Type))
	buf = protowire.AppendTag(buf, featureGeometryField, protowire.BytesType)
	buf = protowire.AppendBytes(buf, packVarints(geometry))
	return buf, nil
}

// commands flattens geometry parts into the MVT command stream:
// MoveTo/LineTo/ClosePath with zigzag-encoded coordinate deltas. The
// cursor persists across parts of one feature.
func (g Geometry) commands() ([]uint32, error) {
	var out []uint32
	var cx, cy int32
	emit := func(p Point) {
		out = append(out, zigzag(p.X-cx), zigzag(p.Y-cy))
		cx, cy = p.X, p.Y
	}

	switch g.Type {
	case GeomPoint:
		if len(g.Parts) != 1 {
			return nil, fmt.Errorf("point geometry with %d parts", len(g.Parts))
		}
		pts := g.Parts[0]
		if len(pts) > maxCmdCount {
			return nil, fmt.Errorf("command count overflow: %d points", len(pts))
		}
		out = append(out, command(cmdMoveTo, uint32(len(pts))))
		for _, p := range pts {
			emit(p)
		}
	case GeomLine:
		for _, part := range g.Parts {
			if len(part) < 2 {
				return nil, fmt.Errorf("line part with %d points", len(part))
			}
			if len(part)-1 > maxCmdCount {
				return nil, fmt.Errorf("command count overflow: %d points", len(part))
			}
			out = append(out, command(cmdMoveTo, 1))
			emit(part[0])
			out = append(out, command(cmdLineTo, uint32(len(part)-1)))
			for _, p := range part[1:] {
				emit(p)
			}
		}
	case GeomPolygon:
		for _, ring := range g.Parts {
			if len(ring) < 3 {
				return nil, fmt.Errorf("ring with %d points", len(ring))
			}
			if len(ring)-1 > maxCmdCount {
				return nil, fmt.Errorf("command count overflow: %d points", len(ring))
			}
			out = append(out, command(cmdMoveTo, 1))
			emit(ring[0])
			out = append(out, command(cmdLineTo, uint32(len(ring)-1)))
			for _, p := range ring[1:] {
				emit(p)
			}
			out = append(out, command(cmdClosePath, 1))
		}
	default:
		return nil, fmt.Errorf("unknown geometry type %d", g.Type)
	}
	return out, nil
}

func command(id, count uint32) uint32 {
	return (id & 0x7) | (count << 3)
}

func zigzag(v int32) uint32 {
	return uint32((v << 1) ^ (v >> 31))
}

func packVarints(vals []uint32) []byte {
	var buf []byte
	for _, v := range vals {
		buf = protowire.AppendVarint(buf, uint64(v))
	}
	return buf
}

// marshalValue encodes one property value as an MVT Value message.
// GeoJSON numbers arrive as float64 and encode as doubles; integer Go
// values from adapters keep their integer encodings.
func marshalValue(v interface{}) ([]byte, bool) {
	var buf []byte
	switch v := v.(type) {
	case string:
		buf = protowire.AppendTag(buf, valueStringField, protowire.BytesType)
		buf = protowire.AppendString(buf, v)
	case bool:
		buf = protowire.AppendTag(buf, valueBoolField, protowire.VarintType)
		if v {
			buf = protowire.AppendVarint(buf, 1)
		} else {
			buf = protowire.AppendVarint(buf, 0)
		}
	case float64:
		buf = protowire.AppendTag(buf, valueDoubleField, protowire.Fixed64Type)
		buf = protowire.AppendFixed64(buf, math.Float64bits(v))
	case float32:
		buf = protowire.AppendTag(buf, valueFloatField, protowire.Fixed32Type)
		buf = protowire.AppendFixed32(buf, math.Float32bits(v))
	case int:
		buf = protowire.AppendTag(buf, valueSintField, protowire.VarintType)
		buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(int64(v)))
	case int64:
		buf = protowire.AppendTag(buf, valueSintField, protowire.VarintType)
		buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(v))
	case uint64:
		buf = protowire.AppendTag(buf, valueUintField, protowire.VarintType)
		buf = protowire.AppendVarint(buf, v)
	default:
		return nil, false
	}
	return buf, true
}

func sortedPropertyKeys(props map[string]interface{}) []string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
