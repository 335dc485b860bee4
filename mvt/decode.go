package mvt

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Unmarshal parses a tile buffer back into layers. It understands the
// subset of the format Marshal produces and exists for verification
// and inspection, not as a general-purpose reader.
func Unmarshal(data []byte) ([]Layer, error) {
	var layers []Layer
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
		if num == tileLayersField && typ == protowire.BytesType {
			lb, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
			layer, err := unmarshalLayer(lb)
			if err != nil {
				return nil, err
			}
			layers = append(layers, layer)
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
	}
	return layers, nil
}

func unmarshalLayer(data []byte) (Layer, error) {
	layer := Layer{Extent: DefaultExtent}
	var keys []string
	var values []interface{}
	var rawFeatures [][]byte

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return layer, protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == layerNameField && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return layer, protowire.ParseError(n)
			}
			layer.Name = s
			data = data[n:]
		case num == layerExtentField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return layer, protowire.ParseError(n)
			}
			layer.Extent = uint32(v)
			data = data[n:]
		case num == layerKeysField && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return layer, protowire.ParseError(n)
			}
			keys = append(keys, s)
			data = data[n:]
		case num == layerValuesField && typ == protowire.BytesType:
			vb, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return layer, protowire.ParseError(n)
			}
			v, err := unmarshalValue(vb)
			if err != nil {
				return layer, err
			}
			values = append(values, v)
			data = data[n:]
		case num == layerFeaturesField && typ == protowire.BytesType:
			fb, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return layer, protowire.ParseError(n)
			}
			rawFeatures = append(rawFeatures, fb)
			data = data[n:]
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return layer, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}

	for _, fb := range rawFeatures {
		f, err := unmarshalFeature(fb, keys, values)
		if err != nil {
			return layer, err
		}
		layer.Features = append(layer.Features, f)
	}
	return layer, nil
}

func unmarshalFeature(data []byte, keys []string, values []interface{}) (Feature, error) {
	f := Feature{Properties: map[string]interface{}{}}
	var tags, geometry []uint32

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return f, protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == featureIDField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return f, protowire.ParseError(n)
			}
			f.ID = v
			data = data[n:]
		case num == featureTypeField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return f, protowire.ParseError(n)
			}
			f.Geometry.Type = GeomType(v)
			data = data[n:]
		case num == featureTagsField && typ == protowire.BytesType:
			vals, n, err := unpackVarints(data)
			if err != nil {
				return f, err
			}
			tags = vals
			data = data[n:]
		case num == featureGeometryField && typ == protowire.BytesType:
			vals, n, err := unpackVarints(data)
			if err != nil {
				return f, err
			}
			geometry = vals
			data = data[n:]
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return f, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}

	if len(tags)%2 != 0 {
		return f, fmt.Errorf("odd tag count %d", len(tags))
	}
	for i := 0; i+1 < len(tags); i += 2 {
		ki, vi := tags[i], tags[i+1]
		if int(ki) >= len(keys) || int(vi) >= len(values) {
			return f, fmt.Errorf("tag index out of range (%d, %d)", ki, vi)
		}
		f.Properties[keys[ki]] = values[vi]
	}

	parts, err := decodeCommands(geometry)
	if err != nil {
		return f, err
	}
	f.Geometry.Parts = parts
	return f, nil
}

func decodeCommands(stream []uint32) ([][]Point, error) {
	var parts [][]Point
	var cur []Point
	var cx, cy int32
	i := 0
	for i < len(stream) {
		cmd := stream[i] & 0x7
		count := stream[i] >> 3
		i++
		switch cmd {
		case cmdMoveTo:
			if cur != nil {
				parts = append(parts, cur)
			}
			cur = nil
			for c := uint32(0); c < count; c++ {
				if i+2 > len(stream) {
					return nil, fmt.Errorf("truncated MoveTo at %d", i)
				}
				cx += unzigzag(stream[i])
				cy += unzigzag(stream[i+1])
				i += 2
				cur = append(cur, Point{X: cx, Y: cy})
			}
		case cmdLineTo:
			for c := uint32(0); c < count; c++ {
				if i+2 > len(stream) {
					return nil, fmt.Errorf("truncated LineTo at %d", i)
				}
				cx += unzigzag(stream[i])
				cy += unzigzag(stream[i+1])
				i += 2
				cur = append(cur, Point{X: cx, Y: cy})
			}
		case cmdClosePath:
			// the ring's closing edge is implicit
		default:
			return nil, fmt.Errorf("unknown command %d", cmd)
		}
	}
	if cur != nil {
		parts = append(parts, cur)
	}
	return parts, nil
}

func unmarshalValue(data []byte) (interface{}, error) {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case valueStringField:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			return s, nil
		case valueDoubleField:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			return math.Float64frombits(v), nil
		case valueFloatField:
			v, n := protowire.ConsumeFixed32(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			return math.Float32frombits(v), nil
		case valueIntField:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			return int64(v), nil
		case valueSintField:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			return protowire.DecodeZigZag(v), nil
		case valueUintField:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			return v, nil
		case valueBoolField:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			return v != 0, nil
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return nil, fmt.Errorf("empty value message")
}

func unpackVarints(data []byte) ([]uint32, int, error) {
	payload, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	var vals []uint32
	for len(payload) > 0 {
		v, vn := protowire.ConsumeVarint(payload)
		if vn < 0 {
			return nil, 0, protowire.ParseError(vn)
		}
		vals = append(vals, uint32(v))
		payload = payload[vn:]
	}
	return vals, n, nil
}

func unzigzag(v uint32) int32 {
	return int32(v>>1) ^ -int32(v&1)
}
