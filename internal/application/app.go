// Package application wires configuration into the running service: the
// database store, the ingestion pipeline with its commit hooks, the read
// catalog and the scoring model. Both the server and the CLI build on it.
package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JonMunkholm/esg/internal/cache"
	"github.com/JonMunkholm/esg/internal/config"
	"github.com/JonMunkholm/esg/internal/core"
	"github.com/JonMunkholm/esg/internal/database"
	"github.com/JonMunkholm/esg/internal/events"
	"github.com/JonMunkholm/esg/internal/metrics"
	"github.com/JonMunkholm/esg/internal/retention"
	"github.com/JonMunkholm/esg/internal/scoring"
	"github.com/JonMunkholm/esg/internal/web"
)

// App holds the constructed collaborators.
type App struct {
	Config   *config.Config
	Pool     *pgxpool.Pool
	Store    *database.Store
	Ingester *core.Ingester
	Catalog  web.Catalog
	Scoring  *scoring.Provider

	closers []func()
}

// New connects to the database, applies migrations when enabled and builds
// the ingestion pipeline. Optional integrations that fail to start are
// logged and left out; only the database is required.
func New(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*App, error) {
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(cfg.Database.URL); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		slog.Info("database migrations applied")
	}

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:  cfg,
		Pool:    pool,
		Store:   database.NewStore(pool),
		Scoring: scoring.NewProvider(cfg.Model.Path),
	}
	app.closers = append(app.closers, pool.Close)
	app.Catalog = app.Store

	limiter := core.NewRunLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime)
	opts := []core.Option{
		core.WithTempDir(cfg.Upload.TempDir),
		core.WithLimiter(limiter),
		core.WithLimits(core.ExtractLimits{
			MaxEntries:        cfg.Upload.MaxArchiveEntries,
			MaxExtractedBytes: cfg.Upload.MaxExtractedBytes,
		}),
	}
	if reg != nil {
		opts = append(opts, core.WithRecorder(metrics.NewIngestion(reg)))
	}
	opts = append(opts, app.integrationHooks(ctx)...)

	app.Ingester = core.NewIngester(app.Store, opts...)

	if cfg.Model.Preload {
		// Failure is already logged; predictions retry the load.
		_, _ = app.Scoring.Model()
	}

	return app, nil
}

// integrationHooks starts the configured optional integrations.
// Retention runs first so the archive is copied before anything else reacts
// to the commit.
func (app *App) integrationHooks(ctx context.Context) []core.Option {
	cfg := app.Config
	var opts []core.Option

	if cfg.Storage.Enabled() {
		archiver, err := retention.NewArchiver(ctx, cfg.Storage.Bucket, cfg.Storage.Prefix, cfg.Storage.Region)
		if err != nil {
			slog.Warn("archive retention disabled", "error", err)
		} else {
			opts = append(opts, core.WithCommitHook(archiver.Hook()))
			slog.Info("archive retention enabled", "bucket", cfg.Storage.Bucket)
		}
	}

	if cfg.Cache.Enabled() {
		rdb, err := cache.Connect(ctx, cfg.Cache.RedisURL)
		if err != nil {
			slog.Warn("company cache disabled", "error", err)
		} else {
			catalog := cache.NewCatalog(app.Store, rdb, cfg.Cache.TTL)
			app.Catalog = catalog
			app.closers = append(app.closers, func() { rdb.Close() })
			opts = append(opts, core.WithCommitHook(catalog.Hook()))
			slog.Info("company cache enabled", "ttl", cfg.Cache.TTL)
		}
	}

	if cfg.Kafka.Enabled() {
		pub, err := events.NewPublisher(events.PublisherConfig{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			ClientID: cfg.Kafka.ClientID,
		})
		if err != nil {
			slog.Warn("ingestion events disabled", "error", err)
		} else {
			app.closers = append(app.closers, func() { pub.Close() })
			opts = append(opts, core.WithCommitHook(pub.Hook()))
			slog.Info("ingestion events enabled", "topic", cfg.Kafka.Topic)
		}
	}

	return opts
}

// Close releases resources in reverse order of creation.
func (app *App) Close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		app.closers[i]()
	}
}
