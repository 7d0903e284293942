// Package imagery implements get-imagery: one basemap frame per target and
// month, written to a bucket together with a sample manifest.
package imagery

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nucleus/lightpipe/internal/basemap"
	"github.com/nucleus/lightpipe/internal/connector/gcs"
	"github.com/nucleus/lightpipe/internal/logging"
	"github.com/nucleus/lightpipe/internal/manifest"
	"github.com/nucleus/lightpipe/internal/planet"
	"github.com/nucleus/lightpipe/pkg/geo"
	"github.com/nucleus/lightpipe/pkg/raster"
)

// ManifestName is the manifest object written under the path prefix.
const ManifestName = "manifest.json"

// FrameSource renders one frame. *basemap.Fetcher implements it.
type FrameSource interface {
	Frame(ctx context.Context, mosaic string, target geo.Target, zoom int) (*basemap.Frame, error)
}

var _ FrameSource = (*basemap.Fetcher)(nil)

// Options select what to acquire and where to put it.
type Options struct {
	Bucket     string
	PathPrefix string
	Zoom       int
	Start      time.Time
	End        time.Time
	// Workers bounds the targets processed concurrently (default 4).
	Workers int
}

// Report summarizes a run.
type Report struct {
	Targets     int
	Frames      int
	NoCoverage  int
	Bytes       int64
	ManifestKey string
}

// Runner writes frames to an object store.
type Runner struct {
	Frames FrameSource
	Store  gcs.ObjectStore
	Logger *zap.Logger
	// Now stamps the manifest; nil means time.Now.
	Now func() time.Time
}

// FrameKey is the object key of one frame image.
func FrameKey(prefix, target, month string, zoom int) string {
	return gcs.JoinKey(prefix, target, month, fmt.Sprintf("z%d.png", zoom))
}

// Run fetches every target for every month in [opts.Start, opts.End].
func (r *Runner) Run(ctx context.Context, targets []geo.Target, opts Options) (*Report, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if len(targets) == 0 {
		return nil, geo.ErrNoTargets
	}
	if err := geo.CheckSafeNames(targets); err != nil {
		return nil, err
	}
	months, err := planet.Months(opts.Start, opts.End)
	if err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	log := logging.OrNop(r.Logger).Named("imagery")
	log.Info("acquiring imagery",
		zap.Int("targets", len(targets)),
		zap.String("start", planet.MonthKey(months[0])),
		zap.String("end", planet.MonthKey(months[len(months)-1])),
		zap.Int("zoom", opts.Zoom))

	var (
		frames     atomic.Int64
		noCoverage atomic.Int64
		written    atomic.Int64
	)
	samples := make([]manifest.Sample, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, target := range targets {
		g.Go(func() error {
			sample := manifest.Sample{UID: geo.SafeName(target.ID), Target: target.ID}
			for _, month := range months {
				mosaic := planet.MonthlyMosaicName(month)
				frame, err := r.Frames.Frame(gctx, mosaic, target, opts.Zoom)
				if errors.Is(err, basemap.ErrNoCoverage) {
					noCoverage.Add(1)
					log.Warn("no coverage", zap.String("target", target.ID), zap.String("mosaic", mosaic))
					continue
				}
				if err != nil {
					return fmt.Errorf("target %s month %s: %w", target.ID, planet.MonthKey(month), err)
				}
				key := FrameKey(opts.PathPrefix, sample.UID, planet.MonthKey(month), opts.Zoom)
				n, err := r.putFrame(gctx, opts.Bucket, key, frame.Raster)
				if err != nil {
					return err
				}
				frames.Add(1)
				written.Add(n)
				sample.Datasets = append(sample.Datasets, manifest.Dataset{
					Key: key,
					Metadata: map[string]any{
						"month":   planet.MonthKey(month),
						"mosaic":  mosaic,
						"zoom":    opts.Zoom,
						"missing": frame.Missing,
					},
				})
				log.Debug("frame written", zap.String("key", key), zap.Int64("bytes", n))
			}
			samples[i] = sample
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	doc := &manifest.Document{
		Version:   manifest.Version,
		CreatedAt: r.now().UTC(),
		Bucket:    opts.Bucket,
		Prefix:    opts.PathPrefix,
	}
	for _, s := range samples {
		if len(s.Datasets) > 0 {
			doc.Samples = append(doc.Samples, s)
		}
	}
	data, err := doc.Encode()
	if err != nil {
		return nil, err
	}
	manifestKey := gcs.JoinKey(opts.PathPrefix, ManifestName)
	if err := r.Store.PutObject(ctx, opts.Bucket, manifestKey, data, "application/json"); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	report := &Report{
		Targets:     len(targets),
		Frames:      int(frames.Load()),
		NoCoverage:  int(noCoverage.Load()),
		Bytes:       written.Load(),
		ManifestKey: manifestKey,
	}
	log.Info("imagery complete",
		zap.Int("frames", report.Frames),
		zap.Int("no_coverage", report.NoCoverage),
		zap.Int64("bytes", report.Bytes),
		zap.String("manifest", "gs://"+opts.Bucket+"/"+manifestKey))
	return report, nil
}

func (r *Runner) putFrame(ctx context.Context, bucket, key string, img *raster.Raster) (int64, error) {
	data, err := raster.EncodeBytes(img, raster.FormatPNG, raster.Uint8)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", key, err)
	}
	if err := r.Store.PutObject(ctx, bucket, key, data, "image/png"); err != nil {
		return 0, fmt.Errorf("write %s: %w", key, err)
	}
	world := raster.WorldFilePath(key)
	if err := r.Store.PutObject(ctx, bucket, world, raster.EncodeWorldFile(img.GeoTransform), "text/plain"); err != nil {
		return 0, fmt.Errorf("write %s: %w", world, err)
	}
	return int64(len(data)), nil
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
