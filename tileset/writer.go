package tileset

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Output formats.
const (
	FormatFiles   = "files"
	FormatZip     = "zip"
	FormatMBTiles = "mbtiles"
)

// Writer packages a finished job.
type Writer interface {
	Write(result *Result) error
}

// NewWriter picks a writer for the configured output format. path is a
// directory for files output and a file path otherwise.
func NewWriter(format, path string) (Writer, error) {
	switch format {
	case FormatFiles:
		return &DirWriter{Dir: path}, nil
	case FormatZip:
		return &ZipWriter{Path: path}, nil
	case FormatMBTiles:
		return &MBTilesWriter{Path: path}, nil
	}
	return nil, fmt.Errorf("unknown output format %q", format)
}

// DirWriter lays tiles out as {dir}/{z}/{x}/{y}.pbf next to tiles.json.
type DirWriter struct {
	Dir string
}

func (w *DirWriter) Write(result *Result) error {
	for _, tile := range result.Tiles {
		dir := filepath.Join(w.Dir, fmt.Sprintf("%d", tile.T.Z), fmt.Sprintf("%d", tile.T.X))
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return err
		}
		name := filepath.Join(dir, fmt.Sprintf("%d.pbf", tile.T.Y))
		if err := os.WriteFile(name, tile.C, os.ModePerm); err != nil {
			return err
		}
	}
	manifest, err := result.Manifest.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(w.Dir, os.ModePerm); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(w.Dir, "tiles.json"), manifest, os.ModePerm)
}

// ZipWriter writes the same layout into a single archive.
type ZipWriter struct {
	Path string
}

func (w *ZipWriter) Write(result *Result) error {
	file, err := os.Create(w.Path)
	if err != nil {
		return err
	}
	defer file.Close()

	zw := zip.NewWriter(file)
	for _, tile := range result.Tiles {
		f, err := zw.Create(tile.Path())
		if err != nil {
			return err
		}
		if _, err := f.Write(tile.C); err != nil {
			return err
		}
	}
	manifest, err := result.Manifest.Marshal()
	if err != nil {
		return err
	}
	f, err := zw.Create("tiles.json")
	if err != nil {
		return err
	}
	if _, err := f.Write(manifest); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return file.Close()
}

// MBTilesWriter stores the pyramid in an mbtiles database. Rows use
// the TMS flipped-Y convention and pbf bodies are gzip-compressed, as
// mbtiles consumers expect.
type MBTilesWriter struct {
	Path string
}

func (w *MBTilesWriter) Write(result *Result) error {
	os.Remove(w.Path)
	db, err := sql.Open("sqlite3", w.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	schema := `
CREATE TABLE metadata (name TEXT, value TEXT);
CREATE TABLE tiles (zoom_level INTEGER, tile_column INTEGER, tile_row INTEGER, tile_data BLOB);
CREATE UNIQUE INDEX tile_index ON tiles (zoom_level, tile_column, tile_row);`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create mbtiles schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	insert, err := tx.Prepare(`INSERT INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insert.Close()

	for _, tile := range result.Tiles {
		body, err := gzipBytes(tile.C)
		if err != nil {
			return err
		}
		if _, err := insert.Exec(tile.T.Z, tile.T.X, tile.flipY(), body); err != nil {
			return fmt.Errorf("insert tile %s: %w", tile.Path(), err)
		}
	}

	for _, row := range w.metadata(result) {
		if _, err := tx.Exec(`INSERT INTO metadata (name, value) VALUES (?, ?)`, row[0], row[1]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (w *MBTilesWriter) metadata(result *Result) [][2]string {
	m := result.Manifest
	bounds := fmt.Sprintf("%v,%v,%v,%v", m.Bounds[0], m.Bounds[1], m.Bounds[2], m.Bounds[3])

	type vectorLayer struct {
		ID     string            `json:"id"`
		Fields map[string]string `json:"fields"`
	}
	vls := make([]vectorLayer, 0, len(result.Layers))
	for _, name := range result.Layers {
		vls = append(vls, vectorLayer{ID: name, Fields: map[string]string{}})
	}
	vlJSON, _ := json.Marshal(map[string]interface{}{"vector_layers": vls})

	name := m.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(w.Path), filepath.Ext(w.Path))
	}
	return [][2]string{
		{"name", name},
		{"format", "pbf"},
		{"minzoom", fmt.Sprintf("%d", m.MinZoom)},
		{"maxzoom", fmt.Sprintf("%d", m.MaxZoom)},
		{"bounds", bounds},
		{"json", string(vlJSON)},
	}
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
