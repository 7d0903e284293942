package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nucleus/lightpipe/internal/basemap"
	"github.com/nucleus/lightpipe/internal/config"
	"github.com/nucleus/lightpipe/internal/imagery"
	"github.com/nucleus/lightpipe/internal/planet"
	"github.com/nucleus/lightpipe/pkg/geo"
)

type getImageryFlags struct {
	targetsDir   string
	planetAPIKey string
	pathPrefix   string
	bucket       string
	credPath     string
	start        string
	end          string
	zoom         int
	workers      int
}

func newGetImageryCmd(a *app) *cobra.Command {
	var f getImageryFlags
	cmd := &cobra.Command{
		Use:   "get-imagery",
		Short: "Fetch monthly basemap frames for every target into a bucket",
		Long: `Loads the GeoJSON targets in --targets-dir, renders one frame per target and
month from the Planet global monthly basemaps and writes them, with world files
and a sample manifest, under --path-prefix in --bucket.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runGetImagery(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.targetsDir, "targets-dir", "", "Directory of GeoJSON target files (required)")
	cmd.Flags().StringVar(&f.planetAPIKey, "planet-api-key", "", "Planet API key (or set PLANET_API_KEY)")
	cmd.Flags().StringVar(&f.pathPrefix, "path-prefix", "", "Object key prefix for frames and manifest")
	cmd.Flags().StringVar(&f.bucket, "bucket", "", "Destination bucket (required)")
	cmd.Flags().StringVar(&f.credPath, "gcs-cred-str-path", "", "HMAC credentials file (or set GCS_HMAC_ACCESS_KEY/GCS_HMAC_SECRET)")
	cmd.Flags().StringVar(&f.start, "start", "", "First month, YYYY-MM (default: twelve months ago)")
	cmd.Flags().StringVar(&f.end, "end", "", "Last month, YYYY-MM (default: last month)")
	cmd.Flags().IntVar(&f.zoom, "zoom", 0, "Tile zoom level (default from config)")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "Targets fetched concurrently (default from config)")
	_ = cmd.MarkFlagRequired("targets-dir")
	_ = cmd.MarkFlagRequired("bucket")
	return cmd
}

func (a *app) runGetImagery(cmd *cobra.Command, f getImageryFlags) error {
	ctx := cmd.Context()
	zoom := a.cfg.Imagery.Zoom
	if cmd.Flags().Changed("zoom") {
		zoom = f.zoom
	}
	if err := config.CheckZoom(zoom); err != nil {
		return fmt.Errorf("--zoom: %w", err)
	}
	targets, err := geo.LoadTargetsDir(f.targetsDir)
	if err != nil {
		return err
	}
	start, end, err := dateRange(f.start, f.end, a.cfg.Imagery.Start, a.cfg.Imagery.End)
	if err != nil {
		return err
	}
	workers := a.cfg.Imagery.Workers
	if f.workers > 0 {
		workers = f.workers
	}

	store, gcsCfg, err := a.openStore(ctx, f.credPath, f.bucket, "")
	if err != nil {
		return err
	}
	client, err := a.planetClient(f.planetAPIKey)
	if err != nil {
		return err
	}
	if err := client.CheckMonths(ctx, start, end); err != nil {
		return err
	}
	runner := &imagery.Runner{
		Frames: &basemap.Fetcher{
			Source:   client,
			Padding:  a.cfg.Imagery.TilePadding,
			MaxTiles: a.cfg.Imagery.MaxFrameTiles,
			Workers:  a.cfg.GCS.Workers,
			Logger:   a.logger,
		},
		Store:  store,
		Logger: a.logger,
	}
	report, err := runner.Run(ctx, targets, imagery.Options{
		Bucket:     gcsCfg.Bucket,
		PathPrefix: f.pathPrefix,
		Zoom:       zoom,
		Start:      start,
		End:        end,
		Workers:    workers,
	})
	if err != nil {
		return err
	}
	a.logger.Info("get-imagery finished",
		zap.Int("targets", report.Targets),
		zap.Int("frames", report.Frames),
		zap.Int("no_coverage", report.NoCoverage))
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d frames for %d targets; manifest gs://%s/%s\n",
		report.Frames, report.Targets, gcsCfg.Bucket, report.ManifestKey)
	return nil
}

// dateRange resolves a start/end pair from flags, then config, then the
// default twelve-month window.
func dateRange(startFlag, endFlag, startCfg, endCfg string) (time.Time, time.Time, error) {
	defStart, defEnd := planet.DefaultRange(time.Now())
	start, err := pickDate(defStart, startFlag, startCfg)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start: %w", err)
	}
	end, err := pickDate(defEnd, endFlag, endCfg)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end: %w", err)
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("start %s is after end %s", planet.MonthKey(start), planet.MonthKey(end))
	}
	return start, end, nil
}

func pickDate(def time.Time, values ...string) (time.Time, error) {
	for _, v := range values {
		if v != "" {
			return planet.ParseDate(v)
		}
	}
	return def, nil
}
