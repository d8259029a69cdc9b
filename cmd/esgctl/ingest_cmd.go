package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/esg/internal/application"
	"github.com/JonMunkholm/esg/internal/core"
)

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <archive.zip>",
		Short: "Ingest a ZIP archive and print the ingestion result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			app, err := application.New(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Upload.Timeout)
			defer cancel()

			result, err := app.Ingester.Ingest(ctx, f)
			if err != nil {
				if ie, ok := core.AsIngestionError(err); ok {
					return fmt.Errorf("%s: %s", ie.Code, ie.Message)
				}
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
}
