// Package main wires together the fetch service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/ron9295/guardz-fetch-service/internal/api"
	rediscache "github.com/ron9295/guardz-fetch-service/internal/cache/redis"
	"github.com/ron9295/guardz-fetch-service/internal/clock/system"
	"github.com/ron9295/guardz-fetch-service/internal/config"
	collyfetcher "github.com/ron9295/guardz-fetch-service/internal/fetcher/colly"
	"github.com/ron9295/guardz-fetch-service/internal/id/uuid"
	"github.com/ron9295/guardz-fetch-service/internal/logging"
	"github.com/ron9295/guardz-fetch-service/internal/metrics"
	queuepubsub "github.com/ron9295/guardz-fetch-service/internal/queue/pubsub"
	"github.com/ron9295/guardz-fetch-service/internal/scan"
	"github.com/ron9295/guardz-fetch-service/internal/storage/gcs"
	"github.com/ron9295/guardz-fetch-service/internal/storage/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("service failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	pool, err := postgres.NewPool(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	defer pool.Close()

	requestStore, err := postgres.NewRequestStore(pool)
	if err != nil {
		return fmt.Errorf("init request store: %w", err)
	}
	resultStore, err := postgres.NewResultStore(pool)
	if err != nil {
		return fmt.Errorf("init result store: %w", err)
	}
	keyStore, err := postgres.NewKeyStore(pool)
	if err != nil {
		return fmt.Errorf("init key store: %w", err)
	}

	gcsClient, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("init gcs client: %w", err)
	}
	blobStore, err := gcs.New(gcsClient, gcs.Config{Bucket: cfg.Storage.GCSBucket})
	if err != nil {
		return fmt.Errorf("init blob store: %w", err)
	}

	cache, err := rediscache.New(ctx, rediscache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return fmt.Errorf("init redis cache: %w", err)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logger.Warn("close redis cache", zap.Error(err))
		}
	}()

	pubsubCfg := queuepubsub.Config{
		ProjectID:      cfg.PubSub.ProjectID,
		TopicID:        cfg.PubSub.TopicID,
		SubscriptionID: cfg.PubSub.SubscriptionID,
	}
	publisher, err := queuepubsub.NewPublisher(ctx, pubsubCfg)
	if err != nil {
		return fmt.Errorf("init publisher: %w", err)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("close publisher", zap.Error(err))
		}
	}()

	clock := system.New()
	idGen := uuid.New()

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
		MaxRedirects: cfg.Fetch.MaxRedirects,
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		ContentType:  cfg.Fetch.ContentType,
	}, blobStore, clock, logger.Named("fetcher"))

	orchestrator := scan.NewOrchestrator(
		requestStore,
		resultStore,
		publisher,
		idGen,
		clock,
		scan.OrchestratorConfig{ChunkSize: cfg.Scan.ChunkSize},
		logger.Named("orchestrator"),
	)
	progress := scan.NewProgress(requestStore, resultStore, logger.Named("progress"))
	worker := scan.NewWorker(fetcher, resultStore, progress, logger.Named("worker"))
	reader := scan.NewReader(
		requestStore,
		resultStore,
		blobStore,
		cache,
		scan.ReaderConfig{
			DefaultLimit: cfg.Scan.ResultPageLimit,
			MaxLimit:     cfg.Scan.ResultPageLimit,
			CacheTTL:     time.Duration(cfg.Scan.CacheTTLSeconds) * time.Second,
		},
		logger.Named("reader"),
	)

	consumer, err := queuepubsub.NewConsumer(
		ctx,
		pubsubCfg,
		cfg.Scan.Concurrency,
		worker.ProcessChunk,
		logger.Named("consumer"),
	)
	if err != nil {
		return fmt.Errorf("init consumer: %w", err)
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			logger.Warn("close consumer", zap.Error(err))
		}
	}()

	apiServer := api.NewServer(orchestrator, reader, keyStore, cfg, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	consumerErr := make(chan error, 1)
	go func() {
		logger.Info("chunk consumer started",
			zap.String("subscription", cfg.PubSub.SubscriptionID),
			zap.Int("concurrency", cfg.Scan.Concurrency),
		)
		consumerErr <- consumer.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := <-consumerErr; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer stopped with error", zap.Error(err))
	}
	return nil
}
