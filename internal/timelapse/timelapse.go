// Package timelapse renders monthly basemap frames of each target as PNG
// images and animated GIFs.
package timelapse

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nucleus/lightpipe/internal/basemap"
	"github.com/nucleus/lightpipe/internal/logging"
	"github.com/nucleus/lightpipe/internal/planet"
	"github.com/nucleus/lightpipe/pkg/geo"
	"github.com/nucleus/lightpipe/pkg/raster"
)

// ErrNoOutput means neither images nor GIFs were requested.
var ErrNoOutput = errors.New("timelapse: at least one of make-gifs or save-images is required")

// FrameSource renders one frame. *basemap.Fetcher implements it.
type FrameSource interface {
	Frame(ctx context.Context, mosaic string, target geo.Target, zoom int) (*basemap.Frame, error)
}

// Options select the frames and outputs of a run.
type Options struct {
	Start time.Time
	End   time.Time
	Zooms []int
	// Duration is the display time of each GIF frame.
	Duration   time.Duration
	MakeGIFs   bool
	SaveImages bool
	OutDir     string
	// Workers bounds the targets rendered concurrently (default 4).
	Workers int
}

// Report summarizes a run.
type Report struct {
	Targets    int
	Frames     int
	Images     int
	GIFs       int
	NoCoverage int
}

// Runner renders timelapses.
type Runner struct {
	Frames FrameSource
	Logger *zap.Logger
}

// ImagePath is where one frame image is saved.
func ImagePath(outDir, target string, zoom int, month time.Time) string {
	return filepath.Join(outDir, geo.SafeName(target), fmt.Sprintf("z%d", zoom), planet.MonthKey(month)+".png")
}

// GIFPath is where the animation of one target and zoom is saved.
func GIFPath(outDir, target string, zoom int) string {
	return filepath.Join(outDir, geo.SafeName(target), fmt.Sprintf("z%d.gif", zoom))
}

// Run renders every target at every zoom for every month in [Start, End].
func (r *Runner) Run(ctx context.Context, targets []geo.Target, opts Options) (*Report, error) {
	if !opts.MakeGIFs && !opts.SaveImages {
		return nil, ErrNoOutput
	}
	if len(targets) == 0 {
		return nil, geo.ErrNoTargets
	}
	if err := geo.CheckSafeNames(targets); err != nil {
		return nil, err
	}
	if len(opts.Zooms) == 0 {
		return nil, fmt.Errorf("timelapse: no zoom levels")
	}
	if opts.OutDir == "" {
		opts.OutDir = "timelapses"
	}
	months, err := planet.Months(opts.Start, opts.End)
	if err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	log := logging.OrNop(r.Logger).Named("timelapse")

	var frames, images, gifs, noCoverage atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, target := range targets {
		g.Go(func() error {
			for _, zoom := range opts.Zooms {
				var rendered []*raster.Raster
				for _, month := range months {
					mosaic := planet.MonthlyMosaicName(month)
					frame, err := r.Frames.Frame(gctx, mosaic, target, zoom)
					if errors.Is(err, basemap.ErrNoCoverage) {
						noCoverage.Add(1)
						log.Debug("no coverage", zap.String("target", target.ID), zap.String("mosaic", mosaic), zap.Int("zoom", zoom))
						continue
					}
					if err != nil {
						return fmt.Errorf("target %s zoom %d month %s: %w", target.ID, zoom, planet.MonthKey(month), err)
					}
					frames.Add(1)
					if opts.SaveImages {
						path := ImagePath(opts.OutDir, target.ID, zoom, month)
						if err := raster.Write(path, frame.Raster, raster.Uint8); err != nil {
							return fmt.Errorf("save %s: %w", path, err)
						}
						images.Add(1)
					}
					if opts.MakeGIFs {
						rendered = append(rendered, frame.Raster)
					}
				}
				if opts.MakeGIFs && len(rendered) > 0 {
					path := GIFPath(opts.OutDir, target.ID, zoom)
					if err := WriteGIF(path, rendered, opts.Duration); err != nil {
						return fmt.Errorf("gif %s: %w", path, err)
					}
					gifs.Add(1)
					log.Info("timelapse written",
						zap.String("target", target.ID),
						zap.Int("zoom", zoom),
						zap.Int("frames", len(rendered)),
						zap.String("path", path))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Report{
		Targets:    len(targets),
		Frames:     int(frames.Load()),
		Images:     int(images.Load()),
		GIFs:       int(gifs.Load()),
		NoCoverage: int(noCoverage.Load()),
	}, nil
}
