package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/paulmach/orb/maptile"
	"github.com/teris-io/shortid"
	pb "gopkg.in/cheggaaa/pb.v1"

	"vtiler/geom"
	"vtiler/tileset"
)

func InitTask() {
	start := time.Now()

	input := inputPath
	if input == "" {
		input = conf.Input.File
	}
	if input == "" {
		log.Fatal("no input file (use -i or input.file in config)")
	}

	format := formatFlag
	if format == "" {
		format = conf.Output.Format
	}

	task, err := NewGenTask(input, format)
	if err != nil {
		log.Fatalf("task setup error: %s", err)
	}
	// 注册安全退出
	SafeExitInst.Register(task.Cancel)

	if err := task.Generate(); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warnf("task %s cancelled, partial output discarded", task.ID)
			return
		}
		log.Fatalf("task %s failed: %s", task.ID, err)
	}

	secs := time.Since(start).Seconds()
	log.Printf("\n%.3fs finished...", secs)
}

// GenTask 生成任务
type GenTask struct {
	ID       string
	Input    string
	Output   string
	Format   string
	Layer    string
	Options  tileset.Options
	Bar      *pb.ProgressBar
	pipeline *tileset.Pipeline
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewGenTask wires a generation task from flags and config.
func NewGenTask(input, format string) (*GenTask, error) {
	id, _ := shortid.Generate()

	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	layer := conf.Tile.Layer
	if layer == "" {
		layer = base
	}

	opts := tileset.DefaultOptions()
	opts.MinZoom = maptile.Zoom(conf.Tile.Minzoom)
	opts.MaxZoom = maptile.Zoom(conf.Tile.Maxzoom)
	opts.Buffer = uint32(conf.Tile.Buffer)
	opts.Extent = uint32(conf.Tile.Extent)
	opts.Workers = conf.Task.Workers
	opts.LayerName = layer

	output := outputPath
	if output == "" {
		switch format {
		case tileset.FormatZip:
			output = filepath.Join(conf.Output.Directory, base+".zip")
		case tileset.FormatMBTiles:
			output = filepath.Join(conf.Output.Directory, base+".mbtiles")
		default:
			output = filepath.Join(conf.Output.Directory, base)
		}
	}

	pipeline, err := tileset.New(opts, log)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	task := &GenTask{
		ID:       id,
		Input:    input,
		Output:   output,
		Format:   format,
		Layer:    layer,
		Options:  opts,
		pipeline: pipeline,
		ctx:      ctx,
		cancel:   cancel,
	}
	return task, nil
}

// Cancel 结束任务
func (task *GenTask) Cancel() {
	task.cancel()
}

// Generate runs the whole job: adapt input to GeoJSON, build the
// pyramid, write the package.
func (task *GenTask) Generate() error {
	data, err := os.ReadFile(task.Input)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	inFormat := conf.Input.Format
	if inFormat == "" {
		inFormat = filepath.Ext(task.Input)
	}
	adapter, err := geom.AdapterFor(inFormat)
	if err != nil {
		return err
	}
	fc, err := adapter.ToGeoJSON(data)
	if err != nil {
		return err
	}

	log.Infof("task %s: %s (%s, %d features) -> %s [%s], zoom %d-%d",
		task.ID, task.Input, adapter.Name(), len(fc.Features), task.Output, task.Format,
		task.Options.MinZoom, task.Options.MaxZoom)

	bar := pb.New64(0).Prefix(fmt.Sprintf("Tiles %s : ", task.ID))
	bar.SetRefreshRate(time.Second)
	task.Bar = bar
	// Total is a plain field the refresher reads, so it is fixed
	// before Start and never touched from the workers.
	task.pipeline.OnBegin = func(total int64) {
		bar.Total = total
		bar.Start()
	}
	task.pipeline.OnProgress = func(done, _ int64) {
		bar.Set64(done)
	}

	result, err := task.pipeline.Generate(task.ctx, fc)
	if err != nil {
		bar.Finish()
		return err
	}
	bar.FinishPrint(fmt.Sprintf("Task %s encoding finished ~", task.ID))

	if result.Skipped > 0 {
		log.Warnf("task %s: %d feature/tile pairs skipped as degenerate", task.ID, result.Skipped)
	}

	writer, err := tileset.NewWriter(task.Format, task.Output)
	if err != nil {
		return err
	}
	if err := writer.Write(result); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	log.Infof("task %s: %d tiles, zoom %d-%d, wrote %s",
		task.ID, len(result.Tiles), result.MinZoom, result.MaxZoom, task.Output)
	return nil
}
