package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nucleus/lightpipe/internal/basemap"
	"github.com/nucleus/lightpipe/internal/config"
	"github.com/nucleus/lightpipe/internal/timelapse"
	"github.com/nucleus/lightpipe/pkg/geo"
)

type timelapseFlags struct {
	start        string
	end          string
	durationMS   int
	planetAPIKey string
	targetsDir   string
	predsCSVPath string
	targetValue  string
	predColumn   string
	zooms        []int
	makeGIFs     bool
	saveImages   bool
	outDir       string
}

func newTimelapseCmd(a *app) *cobra.Command {
	var f timelapseFlags
	cmd := &cobra.Command{
		Use:   "timelapse",
		Short: "Render monthly basemap frames of each target as images and GIFs",
		Long: `Targets come from --targets-dir (GeoJSON) or --preds-csv-path (points with
lat/lon columns, filtered to rows whose prediction column equals
--target-value). For every target, zoom in --zooms and month in
[--start, --end], a frame is rendered; --save-images writes each frame,
--make-gifs writes one animation per target and zoom.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTimelapse(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.start, "start", "", "First month, YYYY-MM (default: twelve months ago)")
	cmd.Flags().StringVar(&f.end, "end", "", "Last month, YYYY-MM (default: last month)")
	cmd.Flags().IntVar(&f.durationMS, "duration", 0, "GIF frame duration in milliseconds (default from config)")
	cmd.Flags().StringVar(&f.planetAPIKey, "planet-api-key", "", "Planet API key (or set PLANET_API_KEY)")
	cmd.Flags().StringVar(&f.targetsDir, "targets-dir", "", "Directory of GeoJSON target files")
	cmd.Flags().StringVar(&f.predsCSVPath, "preds-csv-path", "", "CSV of point predictions")
	cmd.Flags().StringVar(&f.targetValue, "target-value", "", "Keep CSV rows whose prediction equals this value")
	cmd.Flags().StringVar(&f.predColumn, "pred-column", "", "Prediction column of the CSV (default from config)")
	cmd.Flags().IntSliceVar(&f.zooms, "zooms", nil, "Zoom levels, comma separated (default: imagery zoom)")
	cmd.Flags().BoolVar(&f.makeGIFs, "make-gifs", false, "Write one GIF per target and zoom")
	cmd.Flags().BoolVar(&f.saveImages, "save-images", false, "Write every frame as a PNG")
	cmd.Flags().StringVar(&f.outDir, "out-dir", "", "Output directory (default from config)")
	cmd.MarkFlagsMutuallyExclusive("targets-dir", "preds-csv-path")
	cmd.MarkFlagsOneRequired("targets-dir", "preds-csv-path")
	return cmd
}

func (a *app) runTimelapse(cmd *cobra.Command, f timelapseFlags) error {
	if !f.makeGIFs && !f.saveImages {
		return timelapse.ErrNoOutput
	}
	if f.targetValue != "" && f.predsCSVPath == "" {
		return fmt.Errorf("--target-value requires --preds-csv-path")
	}
	zooms := f.zooms
	if len(zooms) == 0 {
		zooms = []int{a.cfg.Imagery.Zoom}
	}
	for _, z := range zooms {
		if err := config.CheckZoom(z); err != nil {
			return fmt.Errorf("--zooms: %w", err)
		}
	}
	targets, err := a.loadTimelapseTargets(f)
	if err != nil {
		return err
	}
	start, end, err := dateRange(f.start, f.end, a.cfg.Imagery.Start, a.cfg.Imagery.End)
	if err != nil {
		return err
	}
	durationMS := a.cfg.Timelapse.DurationMS
	if f.durationMS > 0 {
		durationMS = f.durationMS
	}
	outDir := a.cfg.Timelapse.OutDir
	if f.outDir != "" {
		outDir = f.outDir
	}

	client, err := a.planetClient(f.planetAPIKey)
	if err != nil {
		return err
	}
	if err := client.CheckMonths(cmd.Context(), start, end); err != nil {
		return err
	}
	runner := &timelapse.Runner{
		Frames: &basemap.Fetcher{
			Source:   client,
			Padding:  a.cfg.Imagery.TilePadding,
			MaxTiles: a.cfg.Imagery.MaxFrameTiles,
			Workers:  a.cfg.GCS.Workers,
			Logger:   a.logger,
		},
		Logger: a.logger,
	}
	report, err := runner.Run(cmd.Context(), targets, timelapse.Options{
		Start:      start,
		End:        end,
		Zooms:      zooms,
		Duration:   time.Duration(durationMS) * time.Millisecond,
		MakeGIFs:   f.makeGIFs,
		SaveImages: f.saveImages,
		OutDir:     outDir,
		Workers:    a.cfg.Imagery.Workers,
	})
	if err != nil {
		return err
	}
	a.logger.Info("timelapse finished",
		zap.Int("targets", report.Targets),
		zap.Int("frames", report.Frames),
		zap.Int("gifs", report.GIFs),
		zap.Int("no_coverage", report.NoCoverage))
	fmt.Fprintf(cmd.OutOrStdout(), "%d frames, %d images, %d gifs in %s\n", report.Frames, report.Images, report.GIFs, outDir)
	return nil
}

func (a *app) loadTimelapseTargets(f timelapseFlags) ([]geo.Target, error) {
	if f.targetsDir != "" {
		return geo.LoadTargetsDir(f.targetsDir)
	}
	column := a.cfg.Timelapse.PredColumn
	if f.predColumn != "" {
		column = f.predColumn
	}
	return geo.LoadPredsCSV(f.predsCSVPath, column, f.targetValue)
}
