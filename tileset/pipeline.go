package tileset

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/sirupsen/logrus"

	"vtiler/geom"
	"vtiler/mvt"
)

// Job-level error classes. Per-feature issues never surface here; they
// aggregate into Result.Skipped.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrEncoding     = errors.New("encoding failure")
)

// Status 任务状态
type Status int32

const (
	StatusIdle Status = iota
	StatusNormalizing
	StatusTiling
	StatusEncoding
	StatusPackaging
	StatusDone
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusNormalizing:
		return "normalizing"
	case StatusTiling:
		return "tiling"
	case StatusEncoding:
		return "encoding"
	case StatusPackaging:
		return "packaging"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Source is one thematic layer: a name plus its normalized features.
type Source struct {
	Name     string
	Features []geom.Feature
}

// Result is everything a generation job emits. Tiles are ordered by
// zoom ascending then row-major, matching the enumeration order.
type Result struct {
	Tiles    []EncodedTile
	Manifest TileJSON
	MinZoom  maptile.Zoom
	MaxZoom  maptile.Zoom
	Layers   []string
	Skipped  int64
}

// Pipeline runs generation jobs. One Pipeline serves one job at a
// time; jobs share nothing, so concurrent jobs just use separate
// Pipelines.
type Pipeline struct {
	opts    Options
	clipper *mvt.Clipper
	log     *logrus.Logger
	status  atomic.Int32

	// OnBegin, when set, is called once with the candidate tile count
	// before any encoding starts. It runs on the caller's goroutine.
	OnBegin func(total int64)

	// OnProgress, when set, is called after every finished tile task.
	// It runs on worker goroutines and must be safe for concurrent
	// use.
	OnProgress func(done, total int64)
}

// New validates options and builds a pipeline.
func New(opts Options, log *logrus.Logger) (*Pipeline, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Pipeline{
		opts:    opts,
		clipper: mvt.NewClipper(opts.Extent, opts.Buffer),
		log:     log,
	}, nil
}

// Status reports the job's current stage.
func (p *Pipeline) Status() Status {
	return Status(p.status.Load())
}

func (p *Pipeline) setStatus(s Status) {
	p.status.Store(int32(s))
}

// Generate normalizes a single FeatureCollection into one layer named
// by the options and runs the job.
func (p *Pipeline) Generate(ctx context.Context, fc *geojson.FeatureCollection) (*Result, error) {
	p.setStatus(StatusNormalizing)
	features, err := geom.Normalize(fc)
	if err != nil {
		p.setStatus(StatusFailed)
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	return p.Run(ctx, []Source{{Name: p.opts.LayerName, Features: features}})
}

// Run generates the pyramid for already-normalized sources. Each
// source becomes one layer in every tile it touches.
func (p *Pipeline) Run(ctx context.Context, sources []Source) (*Result, error) {
	fail := func(err error) (*Result, error) {
		p.setStatus(StatusFailed)
		return nil, err
	}

	var count int
	var bound orb.Bound
	seeded := false
	for _, src := range sources {
		if src.Name == "" {
			return fail(fmt.Errorf("%w: unnamed source", ErrInvalidInput))
		}
		count += len(src.Features)
		if len(src.Features) == 0 {
			continue
		}
		// Bound.Union extends the receiver's corners even when it has
		// never seen data, so the first source seeds the bound outright.
		if !seeded {
			bound = geom.Bound(src.Features)
			seeded = true
		} else {
			bound = bound.Union(geom.Bound(src.Features))
		}
	}
	if count == 0 {
		return fail(fmt.Errorf("%w: no features", ErrInvalidInput))
	}

	var total int64
	perZoom := make([][]maptile.Tile, 0, p.opts.MaxZoom-p.opts.MinZoom+1)
	for z := p.opts.MinZoom; z <= p.opts.MaxZoom; z++ {
		tiles := CoveringZoom(bound, z)
		perZoom = append(perZoom, tiles)
		total += int64(len(tiles))
	}

	if p.OnBegin != nil {
		p.OnBegin(total)
	}

	result := &Result{MinZoom: maptile.Zoom(ZoomMax + 1)}
	for _, src := range sources {
		result.Layers = append(result.Layers, src.Name)
	}

	var done int64
	for i, tiles := range perZoom {
		z := p.opts.MinZoom + maptile.Zoom(i)
		p.setStatus(StatusTiling)
		p.log.Debugf("zoom %d: %d candidate tiles", z, len(tiles))

		p.setStatus(StatusEncoding)
		encoded, skipped, err := p.encodeZoom(ctx, sources, tiles, total, &done)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				p.setStatus(StatusCancelled)
				return nil, err
			}
			return fail(err)
		}
		result.Skipped += skipped
		for _, t := range encoded {
			if t.T.Z < result.MinZoom {
				result.MinZoom = t.T.Z
			}
			if t.T.Z > result.MaxZoom {
				result.MaxZoom = t.T.Z
			}
			result.Tiles = append(result.Tiles, t)
		}
	}

	if len(result.Tiles) == 0 {
		// nothing survived anywhere; an all-water dataset of
		// degenerate slivers can do this
		result.MinZoom, result.MaxZoom = p.opts.MinZoom, p.opts.MinZoom
	}

	p.setStatus(StatusPackaging)
	name := result.Layers[0]
	result.Manifest = newTileJSON(name, result.MinZoom, result.MaxZoom, bound)
	p.setStatus(StatusDone)
	return result, nil
}

// encodeZoom fans one zoom level's candidate tiles out to the worker
// pool and joins. Workers write only their own slot, so the merge
// needs no locking; cancellation is checked between tile dispatches.
func (p *Pipeline) encodeZoom(ctx context.Context, sources []Source, tiles []maptile.Tile, total int64, done *int64) ([]EncodedTile, int64, error) {
	bufs := make([][]byte, len(tiles))
	errs := make([]error, len(tiles))
	var skipped int64

	var tileWG sync.WaitGroup
	workers := make(chan struct{}, p.opts.Workers)

	for i, t := range tiles {
		select {
		case <-ctx.Done():
			tileWG.Wait()
			return nil, 0, ctx.Err()
		case workers <- struct{}{}:
		}
		tileWG.Add(1)
		go func(i int, t maptile.Tile) {
			defer func() {
				tileWG.Done()
				<-workers
			}()
			buf, skip, err := p.encodeTile(sources, t)
			bufs[i] = buf
			errs[i] = err
			atomic.AddInt64(&skipped, skip)
			d := atomic.AddInt64(done, 1)
			if p.OnProgress != nil {
				p.OnProgress(d, total)
			}
		}(i, t)
	}
	tileWG.Wait()

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if err := errors.Join(errs...); err != nil {
		return nil, 0, err
	}

	var out []EncodedTile
	for i, buf := range bufs {
		if len(buf) == 0 {
			continue // empty tiles are not materialized
		}
		out = append(out, EncodedTile{T: tiles[i], C: buf})
	}
	return out, skipped, nil
}

// encodeTile clips every source against one tile and encodes the
// survivors. A nil buffer means the tile is empty.
func (p *Pipeline) encodeTile(sources []Source, tile maptile.Tile) ([]byte, int64, error) {
	var layers []mvt.Layer
	var skipped int64
	for _, src := range sources {
		var feats []mvt.Feature
		for _, f := range src.Features {
			g, drop := p.clipper.ClipGeometry(f.Geometry, tile)
			switch drop {
			case mvt.DropNone:
				feats = append(feats, mvt.Feature{
					ID:         f.ID,
					Geometry:   g,
					Properties: f.Properties,
				})
			case mvt.DropDegenerate:
				skipped++
				p.log.Warnf("feature %d degenerate in tile %d/%d/%d, skipped", f.ID, tile.Z, tile.X, tile.Y)
			}
		}
		if len(feats) > 0 {
			layers = append(layers, mvt.Layer{
				Name:     src.Name,
				Extent:   p.clipper.Extent(),
				Features: feats,
			})
		}
	}
	if len(layers) == 0 {
		return nil, skipped, nil
	}
	buf, err := mvt.Marshal(layers)
	if err != nil {
		return nil, skipped, fmt.Errorf("%w: tile %d/%d/%d: %s", ErrEncoding, tile.Z, tile.X, tile.Y, err)
	}
	return buf, skipped, nil
}
