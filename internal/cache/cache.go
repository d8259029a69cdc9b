// Package cache keeps the latest-score company list in Redis.
//
// The list is the most requested read and only changes when an ingestion run
// commits company records, so it is cached until the next such commit or the
// TTL, whichever comes first.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/esg/internal/core"
	"github.com/JonMunkholm/esg/internal/logging"
)

// CompaniesKey holds the encoded company list.
const CompaniesKey = "esg:companies:latest"

var errMiss = errors.New("cache miss")

// Reader is the read API the cache sits in front of.
type Reader interface {
	ListLatestCompanies(ctx context.Context) ([]core.CompanyScore, error)
	GetCompany(ctx context.Context, id int64) (core.CompanyScore, error)
	ListNews(ctx context.Context) ([]core.NewsSentiment, error)
	LatestReport(ctx context.Context, company string) (core.CompanyReport, error)
}

type backend interface {
	get(ctx context.Context, key string) ([]byte, error)
	set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	del(ctx context.Context, key string) error
}

type redisBackend struct {
	rdb *redis.Client
}

func (b redisBackend) get(ctx context.Context, key string) ([]byte, error) {
	v, err := b.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errMiss
	}
	return v, err
}

func (b redisBackend) set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.rdb.Set(ctx, key, value, ttl).Err()
}

func (b redisBackend) del(ctx context.Context, key string) error {
	return b.rdb.Del(ctx, key).Err()
}

// Connect opens a Redis client from a redis:// URL and pings it.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// Catalog serves ListLatestCompanies from Redis and every other read from
// the wrapped Reader. Redis faults degrade to direct reads.
type Catalog struct {
	Reader
	store backend
	ttl   time.Duration
}

func NewCatalog(next Reader, rdb *redis.Client, ttl time.Duration) *Catalog {
	return &Catalog{Reader: next, store: redisBackend{rdb: rdb}, ttl: ttl}
}

func (c *Catalog) ListLatestCompanies(ctx context.Context) ([]core.CompanyScore, error) {
	logger := logging.FromContext(ctx)

	cached, err := c.store.get(ctx, CompaniesKey)
	if err == nil {
		var companies []core.CompanyScore
		if err := json.Unmarshal(cached, &companies); err == nil {
			return companies, nil
		}
		logger.Warn("discarding undecodable cache entry", "key", CompaniesKey)
	} else if !errors.Is(err, errMiss) {
		logger.Warn("company cache read failed", "error", err)
	}

	companies, err := c.Reader.ListLatestCompanies(ctx)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(companies); err == nil {
		if err := c.store.set(ctx, CompaniesKey, encoded, c.ttl); err != nil {
			logger.Warn("company cache write failed", "error", err)
		}
	}
	return companies, nil
}

// Invalidate drops the cached list.
func (c *Catalog) Invalidate(ctx context.Context) error {
	if err := c.store.del(ctx, CompaniesKey); err != nil {
		return fmt.Errorf("invalidate %s: %w", CompaniesKey, err)
	}
	return nil
}

// Hook invalidates the list after a commit that wrote company records.
func (c *Catalog) Hook() core.CommitHook {
	return func(ctx context.Context, run core.CommittedRun) {
		if run.Result.CompaniesInserted == 0 {
			return
		}
		if err := c.Invalidate(ctx); err != nil {
			slog.Warn("failed to invalidate company cache",
				"ingestion_id", run.Result.IngestionID,
				"error", err,
			)
		}
	}
}
