package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/esg/internal/admin"
	"github.com/JonMunkholm/esg/internal/cache"
	"github.com/JonMunkholm/esg/internal/database"
)

var errResetNotConfirmed = errors.New("refusing to reset without --yes")

func newResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every ingested record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errResetNotConfirmed
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := database.Connect(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := admin.ResetAll(ctx, pool); err != nil {
				return err
			}

			if cfg.Cache.Enabled() {
				rdb, err := cache.Connect(ctx, cfg.Cache.RedisURL)
				if err != nil {
					slog.Warn("company cache not cleared", "error", err)
				} else {
					defer rdb.Close()
					catalog := cache.NewCatalog(database.NewStore(pool), rdb, cfg.Cache.TTL)
					if err := catalog.Invalidate(ctx); err != nil {
						slog.Warn("company cache not cleared", "error", err)
					}
				}
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "reset %d tables\n", len(admin.DataTables))
			return err
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion of all ingested data")
	return cmd
}
