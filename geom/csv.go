package geom

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// CSVAdapter reads point tables with longitude/latitude columns. Column
// names are matched case-insensitively against the usual suspects; the
// remaining columns become string properties.
type CSVAdapter struct{}

func (CSVAdapter) Name() string { return "csv" }

var lonNames = []string{"lon", "lng", "long", "longitude", "x"}
var latNames = []string{"lat", "latitude", "y"}

func (CSVAdapter) ToGeoJSON(data []byte) (*geojson.FeatureCollection, error) {
	r := csv.NewReader(bytes.NewReader(data))
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	lonIdx, latIdx := -1, -1
	for i, name := range header {
		n := strings.ToLower(strings.TrimSpace(name))
		if lonIdx < 0 && contains(lonNames, n) {
			lonIdx = i
		} else if latIdx < 0 && contains(latNames, n) {
			latIdx = i
		}
	}
	if lonIdx < 0 || latIdx < 0 {
		return nil, fmt.Errorf("csv has no longitude/latitude columns (header: %v)", header)
	}

	fc := geojson.NewFeatureCollection()
	line := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(record[lonIdx]), 64)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: bad longitude %q", line, record[lonIdx])
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(record[latIdx]), 64)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: bad latitude %q", line, record[latIdx])
		}
		f := geojson.NewFeature(orb.Point{lon, lat})
		for i, v := range record {
			if i == lonIdx || i == latIdx {
				continue
			}
			f.Properties[header[i]] = v
		}
		fc.Append(f)
	}
	return fc, nil
}

// FromGeoJSON writes point features back out as a table. Non-point
// geometries are rejected since CSV has no way to carry them.
func (CSVAdapter) FromGeoJSON(fc *geojson.FeatureCollection) ([]byte, error) {
	keys := propertyKeys(fc)
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := append([]string{"lon", "lat"}, keys...)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for i, f := range fc.Features {
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			return nil, fmt.Errorf("feature %d: csv export supports points only, got %s", i, f.Geometry.GeoJSONType())
		}
		record := []string{
			strconv.FormatFloat(pt[0], 'f', -1, 64),
			strconv.FormatFloat(pt[1], 'f', -1, 64),
		}
		for _, k := range keys {
			record = append(record, fmt.Sprint(f.Properties[k]))
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// propertyKeys collects the union of property names in first-seen
// order so the column layout is stable.
func propertyKeys(fc *geojson.FeatureCollection) []string {
	seen := map[string]struct{}{}
	var keys []string
	for _, f := range fc.Features {
		for _, k := range sortedKeys(f.Properties) {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
	}
	return keys
}

func sortedKeys(props geojson.Properties) []string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
