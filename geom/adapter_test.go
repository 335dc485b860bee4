package geom

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdapterFor(t *testing.T) {
	for _, format := range []string{"geojson", ".geojson", "json", "CSV"} {
		a, err := AdapterFor(format)
		require.NoError(t, err, format)
		require.NotNil(t, a)
	}
	_, err := AdapterFor("kml")
	assert.Error(t, err)
}

func TestGeoJSONAdapterRoundTrip(t *testing.T) {
	raw := []byte(`{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":{"type":"Point","coordinates":[139.767,35.681]},"properties":{"name":"tokyo"}}
	]}`)
	a := GeoJSONAdapter{}
	fc, err := a.ToGeoJSON(raw)
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, orb.Point{139.767, 35.681}, fc.Features[0].Geometry)
	assert.Equal(t, "tokyo", fc.Features[0].Properties["name"])

	out, err := a.FromGeoJSON(fc)
	require.NoError(t, err)
	fc2, err := a.ToGeoJSON(out)
	require.NoError(t, err)
	assert.Equal(t, fc.Features[0].Geometry, fc2.Features[0].Geometry)
}

func TestGeoJSONAdapterRejectsGarbage(t *testing.T) {
	_, err := GeoJSONAdapter{}.ToGeoJSON([]byte(`{"type":"bogus"`))
	assert.Error(t, err)
}

func TestCSVAdapter(t *testing.T) {
	data := []byte("name,Lat,Lng\ntokyo,35.681,139.767\nosaka,34.694,135.502\n")
	fc, err := CSVAdapter{}.ToGeoJSON(data)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, orb.Point{139.767, 35.681}, fc.Features[0].Geometry)
	assert.Equal(t, "tokyo", fc.Features[0].Properties["name"])
	assert.Equal(t, orb.Point{135.502, 34.694}, fc.Features[1].Geometry)

	out, err := CSVAdapter{}.FromGeoJSON(fc)
	require.NoError(t, err)
	fc2, err := CSVAdapter{}.ToGeoJSON(out)
	require.NoError(t, err)
	require.Len(t, fc2.Features, 2)
	assert.Equal(t, fc.Features[0].Geometry, fc2.Features[0].Geometry)
}

func TestCSVAdapterErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"no coordinate columns", "a,b\n1,2\n"},
		{"bad longitude", "lon,lat\nxx,35\n"},
		{"bad latitude", "lon,lat\n139,yy\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CSVAdapter{}.ToGeoJSON([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}
