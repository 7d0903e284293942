package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nucleus/lightpipe/internal/connector/gcs"
)

type dlDirFlags struct {
	bucket      string
	remoteDir   string
	localDir    string
	credentials string
}

func newDlDirCmd(a *app) *cobra.Command {
	var f dlDirFlags
	cmd := &cobra.Command{
		Use:   "dl-dir",
		Short: "Download every object under a bucket directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, gcsCfg, err := a.openStore(cmd.Context(), f.credentials, f.bucket, "")
			if err != nil {
				return err
			}
			tr := &gcs.Transfer{Store: store, Bucket: gcsCfg.Bucket, Workers: a.cfg.GCS.Workers, Logger: a.logger}
			res, err := tr.DownloadDir(cmd.Context(), f.remoteDir, f.localDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "downloaded %d objects (%d bytes) to %s\n", res.Objects, res.Bytes, f.localDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&f.bucket, "bucket", "", "Source bucket (required)")
	cmd.Flags().StringVar(&f.remoteDir, "remote-dir", "", "Directory (key prefix) to download")
	cmd.Flags().StringVar(&f.localDir, "local-dir", ".", "Local destination directory")
	cmd.Flags().StringVar(&f.credentials, "gcs-credentials", "", "HMAC credentials file (or set GCS_HMAC_ACCESS_KEY/GCS_HMAC_SECRET)")
	_ = cmd.MarkFlagRequired("bucket")
	return cmd
}
