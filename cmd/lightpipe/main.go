// Command lightpipe acquires Planet basemap imagery for a set of targets,
// prepares tiled training samples from it and renders timelapses.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nucleus/lightpipe/internal/config"
	"github.com/nucleus/lightpipe/internal/logging"
)

// app holds state shared by every subcommand once the root has run.
type app struct {
	verbose    bool
	configPath string

	logger *zap.Logger
	cfg    *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "lightpipe",
		Short: "Satellite imagery acquisition, sample preparation and timelapses",
		Long: `lightpipe runs the steps of an imagery pipeline as independent commands:

  get-imagery      fetch monthly Planet basemap frames for each target into a bucket
  prepare-samples  download a sample manifest's rasters and tile them into parquet shards
  timelapse        render monthly frames of each target as PNG images and GIFs
  dl-dir           download a bucket directory`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			a.logger, err = logging.New(a.verbose)
			if err != nil {
				return err
			}
			a.cfg, err = config.Load(a.configPath)
			if err != nil {
				return err
			}
			return a.cfg.Validate()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file (or set LIGHTPIPE_CONFIG)")

	root.AddCommand(newGetImageryCmd(a))
	root.AddCommand(newPrepareSamplesCmd(a))
	root.AddCommand(newTimelapseCmd(a))
	root.AddCommand(newDlDirCmd(a))
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
