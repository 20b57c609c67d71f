package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"example.com/wellness/internal/api"
	"example.com/wellness/internal/app"
	"example.com/wellness/internal/auth"
	"example.com/wellness/internal/config"
	"example.com/wellness/internal/logging"
	"example.com/wellness/internal/outbox"
	"example.com/wellness/internal/syncer"
	httptransport "example.com/wellness/internal/transport/http"
)

const dlqBatchSize = 50

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "wellness-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "wellness-api")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline, err := app.NewPipeline(ctx, cfg, logger, app.Options{Migrate: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			logger.Warn("close pipeline", zap.Error(err))
		}
	}()

	var wg sync.WaitGroup

	if cfg.OutboxEnabled {
		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()

		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher := outbox.NewDispatcher(pipeline.Pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
			outbox.WithLogger(logger.Named("outbox")))
		go dispatcher.Start(ctx)
		defer dispatcher.Wait()

		manager := outbox.NewDLQManager(pipeline.Pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay, logger.Named("dlq"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			replayDLQ(ctx, manager, cfg.DLQPollInterval, logger)
		}()
	}

	if cfg.SyncOnStartup {
		wg.Add(1)
		go func() {
			defer wg.Done()
			startupSync(ctx, pipeline.Orchestrator, logger)
		}()
	}

	authn := api.NoAuth
	if !cfg.AuthDisabled {
		authn = auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, auth.PublicPaths).Wrap
	} else {
		logger.Warn("authentication disabled")
	}

	handler := api.NewHandler(pipeline.Service, pipeline.Orchestrator, api.WithLogger(logger.Named("api")))
	server := httptransport.NewServer(httptransport.ServerConfig{Address: cfg.HTTPAddress}, handler.Routes(authn), logger)

	err = server.ListenAndServe(ctx)
	stop()
	wg.Wait()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func replayDLQ(ctx context.Context, manager *outbox.DLQManager, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			replayed, err := manager.RunOnce(ctx, dlqBatchSize)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("dlq replay", zap.Error(err))
			} else if replayed > 0 {
				logger.Info("dlq entries replayed", zap.Int("count", replayed))
			}
		}
	}
}

func startupSync(ctx context.Context, orchestrator *syncer.Orchestrator, logger *zap.Logger) {
	result, err := orchestrator.Run(ctx, syncer.Request{Trigger: syncer.TriggerStartup})
	if err != nil {
		failure := syncer.AsFailure(err)
		logger.Error("startup sync failed; serving previous generation",
			zap.String("stage", string(failure.Stage)),
			zap.String("cause", failure.Cause),
		)
		return
	}
	logger.Info("startup sync complete", zap.String("run_id", result.RunID), zap.Int("rows", result.Rows))
}
