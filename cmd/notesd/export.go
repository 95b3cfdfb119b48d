package main

import (
	"fmt"

	"github.com/kuitang/tagnotes/internal/db"
	"github.com/kuitang/tagnotes/internal/export"
	"github.com/kuitang/tagnotes/internal/notes"
	"github.com/kuitang/tagnotes/internal/s3client"
	"github.com/spf13/cobra"
)

func newExportCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write a JSON snapshot of all notes to object storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.cfg
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.ValidateExport(); err != nil {
				return err
			}
			ctx := cmd.Context()

			store, err := db.Open(ctx, cfg.DBOptions())
			if err != nil {
				return err
			}
			defer store.Close()

			objects, err := s3client.New(ctx, s3client.Config{
				Endpoint:        cfg.AWSEndpointS3,
				Region:          cfg.AWSRegion,
				AccessKeyID:     cfg.AWSAccessKeyID,
				SecretAccessKey: cfg.AWSSecretAccessKey,
				BucketName:      cfg.ExportBucket,
				UsePathStyle:    cfg.AWSEndpointS3 != "",
			})
			if err != nil {
				return err
			}

			key, snap, err := export.New(notes.NewService(store), objects, cfg.ExportPrefix).Export(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d notes to s3://%s/%s\n", snap.Count, cfg.ExportBucket, key)
			return nil
		},
	}
}
