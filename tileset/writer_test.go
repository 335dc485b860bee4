package tileset

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResult(t *testing.T) *Result {
	t.Helper()
	p := newTestPipeline(t, func(o *Options) {
		o.MaxZoom = 2
		o.LayerName = "tokyo"
	})
	result, err := p.Generate(context.Background(), pointCollection(orb.Point{139.767, 35.681}))
	require.NoError(t, err)
	return result
}

func TestNewWriter(t *testing.T) {
	for _, format := range []string{FormatFiles, FormatZip, FormatMBTiles} {
		w, err := NewWriter(format, "out")
		require.NoError(t, err, format)
		require.NotNil(t, w)
	}
	_, err := NewWriter("png", "out")
	assert.Error(t, err)
}

func TestDirWriter(t *testing.T) {
	result := testResult(t)
	dir := t.TempDir()
	require.NoError(t, (&DirWriter{Dir: dir}).Write(result))

	for _, path := range []string{"0/0/0.pbf", "1/1/0.pbf", "2/3/1.pbf"} {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(path)))
		require.NoError(t, err, path)
		assert.NotEmpty(t, data)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "tiles.json"))
	require.NoError(t, err)
	var manifest TileJSON
	require.NoError(t, json.Unmarshal(raw, &manifest))
	assert.Empty(t, cmp.Diff(result.Manifest, manifest))
	assert.Equal(t, 0, manifest.MinZoom)
	assert.Equal(t, 2, manifest.MaxZoom)
}

func TestZipWriter(t *testing.T) {
	result := testResult(t)
	path := filepath.Join(t.TempDir(), "tokyo.zip")
	require.NoError(t, (&ZipWriter{Path: path}).Write(result))

	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	for _, want := range []string{"0/0/0.pbf", "1/1/0.pbf", "2/3/1.pbf", "tiles.json"} {
		assert.True(t, names[want], "missing %s", want)
	}
}

func TestMBTilesWriter(t *testing.T) {
	result := testResult(t)
	path := filepath.Join(t.TempDir(), "tokyo.mbtiles")
	require.NoError(t, (&MBTilesWriter{Path: path}).Write(result))

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM tiles`).Scan(&count))
	assert.Equal(t, 3, count)

	// z2 tile 3/1 stores as TMS row (1<<2)-1-1 = 2, gzipped
	var blob []byte
	require.NoError(t, db.QueryRow(
		`SELECT tile_data FROM tiles WHERE zoom_level = 2 AND tile_column = 3 AND tile_row = 2`,
	).Scan(&blob))
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, result.Tiles[2].C, body)

	meta := map[string]string{}
	rows, err := db.Query(`SELECT name, value FROM metadata`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var name, value string
		require.NoError(t, rows.Scan(&name, &value))
		meta[name] = value
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, "pbf", meta["format"])
	assert.Equal(t, "0", meta["minzoom"])
	assert.Equal(t, "2", meta["maxzoom"])
	assert.Equal(t, "tokyo", meta["name"])
	assert.Contains(t, meta["json"], `"vector_layers"`)
	assert.Contains(t, meta["json"], `"tokyo"`)
}
