package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/esg/internal/config"
	"github.com/JonMunkholm/esg/internal/logging"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "esgctl",
		Short:        "ESG ingestion maintenance tools",
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newMigrateCmd(),
		newIngestCmd(),
		newPredictCmd(),
		newResetCmd(),
	)
	return cmd
}

// loadConfig reads .env and the environment, then points logging at stderr.
func loadConfig() (*config.Config, error) {
	_ = godotenv.Overload()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format))
	return cfg, nil
}
