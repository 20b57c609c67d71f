// Package app assembles the sync pipeline from configuration for the
// service binaries and the operator CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"example.com/wellness/internal/cache"
	"example.com/wellness/internal/config"
	"example.com/wellness/internal/domain"
	"example.com/wellness/internal/events"
	"example.com/wellness/internal/oura"
	persistence "example.com/wellness/internal/persistence/postgres"
	"example.com/wellness/internal/syncer"
	"example.com/wellness/internal/watermark"
	"example.com/wellness/migrations"
)

// ConnectPostgres opens a pool and waits, with exponential backoff, until
// the database answers a ping or maxElapsed passes.
func ConnectPostgres(ctx context.Context, url string, maxElapsed time.Duration, logger *zap.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, pool.Ping(ctx)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(maxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("postgres not ready", zap.Error(err), zap.Duration("retry_in", next))
		}),
	)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return pool, nil
}

// NewWatermarkStore builds the configured watermark backend. The returned
// close function releases its resources.
func NewWatermarkStore(cfg config.Config) (watermark.Store, func() error, error) {
	switch cfg.WatermarkBackend {
	case config.WatermarkRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
		return watermark.NewRedisStore(client, cfg.RedisKey), client.Close, nil
	case config.WatermarkFile, "":
		return watermark.NewFileStore(cfg.WatermarkPath), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown watermark backend %q", cfg.WatermarkBackend)
	}
}

// Pipeline holds the wired components sharing one database pool.
type Pipeline struct {
	Pool         *pgxpool.Pool
	Repository   *persistence.Repository
	Cache        *cache.TrendCache
	Service      *domain.Service
	Orchestrator *syncer.Orchestrator

	closeWatermark func() error
}

// Options tune NewPipeline.
type Options struct {
	// Migrate applies embedded migrations before anything else touches the database.
	Migrate bool
}

// NewPipeline connects to Postgres and wires the fetcher, store, cache and
// orchestrator described by cfg.
func NewPipeline(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*Pipeline, error) {
	pool, err := ConnectPostgres(ctx, cfg.PostgresURL, cfg.DBConnectTimeout, logger)
	if err != nil {
		return nil, err
	}

	if opts.Migrate {
		applied, err := migrations.Up(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		if len(applied) > 0 {
			logger.Info("applied migrations", zap.Strings("versions", applied))
		}
	}

	repo := persistence.NewRepository(pool,
		persistence.WithTable(cfg.TrendsTable),
		persistence.WithTimeout(cfg.StoreTimeout),
		persistence.WithTopic(events.TypeSyncCompleted, cfg.KafkaTopic),
	)
	if cfg.TrendsTable != persistence.DefaultTable {
		if err := repo.EnsureTable(ctx, cfg.TrendsTable); err != nil {
			pool.Close()
			return nil, err
		}
	}

	store, closeStore, err := NewWatermarkStore(cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}

	trends := cache.NewTrendCache(repo, cfg.CacheSize, cfg.CacheTTL)
	client := oura.NewClient(oura.ClientConfig{
		BaseURL: cfg.OuraBaseURL,
		Token:   cfg.OuraToken,
		Timeout: cfg.OuraTimeout,
	}, oura.WithLogger(logger.Named("oura")))

	orchestrator := syncer.New(client, repo, syncer.Config{
		Endpoints:     cfg.OuraEndpoints,
		Table:         cfg.TrendsTable,
		WindowDays:    cfg.SyncWindowDays,
		FetchAttempts: uint(cfg.SyncFetchAttempts),
		RetryDelay:    cfg.SyncRetryDelay,
	},
		syncer.WithLogger(logger.Named("sync")),
		syncer.WithWatermarkStore(store),
		syncer.WithInvalidator(trends),
	)

	return &Pipeline{
		Pool:           pool,
		Repository:     repo,
		Cache:          trends,
		Service:        domain.NewService(trends),
		Orchestrator:   orchestrator,
		closeWatermark: closeStore,
	}, nil
}

// Close releases the pool and the watermark backend.
func (p *Pipeline) Close() error {
	var errs []error
	if p.closeWatermark != nil {
		errs = append(errs, p.closeWatermark())
	}
	p.Pool.Close()
	return errors.Join(errs...)
}
