// Package main wires together the icon fetch service binary.
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

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/agentdir/iconfetch/internal/api"
	"github.com/agentdir/iconfetch/internal/assets"
	catalogmemory "github.com/agentdir/iconfetch/internal/catalog/memory"
	catalogpostgres "github.com/agentdir/iconfetch/internal/catalog/postgres"
	"github.com/agentdir/iconfetch/internal/clock/system"
	"github.com/agentdir/iconfetch/internal/config"
	"github.com/agentdir/iconfetch/internal/dispatcher"
	collyfetcher "github.com/agentdir/iconfetch/internal/fetcher/colly"
	"github.com/agentdir/iconfetch/internal/fetcher/headless"
	"github.com/agentdir/iconfetch/internal/hash/sha256"
	"github.com/agentdir/iconfetch/internal/id/uuid"
	"github.com/agentdir/iconfetch/internal/logging"
	"github.com/agentdir/iconfetch/internal/metrics"
	"github.com/agentdir/iconfetch/internal/pipeline"
	memorypublisher "github.com/agentdir/iconfetch/internal/publisher/memory"
	pubsubpublisher "github.com/agentdir/iconfetch/internal/publisher/pubsub"
	queueMemory "github.com/agentdir/iconfetch/internal/queue/memory"
	storagegcs "github.com/agentdir/iconfetch/internal/storage/gcs"
	storagelocal "github.com/agentdir/iconfetch/internal/storage/local"
	memoryStorage "github.com/agentdir/iconfetch/internal/storage/memory"
	"github.com/agentdir/iconfetch/internal/worker"
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

	blobs, err := buildBlobStore(ctx, cfg)
	if err != nil {
		logger.Fatal("blob store init failed", zap.Error(err))
	}

	catalog, closeCatalog, err := buildCatalogStore(ctx, cfg)
	if err != nil {
		logger.Fatal("catalog store init failed", zap.Error(err))
	}
	defer closeCatalog()

	publisher, closePublisher, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("publisher init failed", zap.Error(err))
	}
	defer closePublisher()

	var screenshotter assets.Screenshotter
	if cfg.Headless.Enabled {
		shot, err := headless.NewChromedp(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Pipeline.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			logger.Warn("headless screenshotter init failed", zap.Error(err))
		} else {
			defer shot.Close()
			screenshotter = shot
		}
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Pipeline.UserAgent,
		Timeout:   cfg.AttemptTimeout(),
	})

	pipe := pipeline.New(
		fetcher,
		screenshotter,
		blobs,
		catalog,
		publisher,
		sha256.New(),
		system.New(),
		pipeline.Config{
			MaxRounds:      cfg.Pipeline.MaxRounds,
			BackoffBase:    cfg.BackoffBase(),
			BackoffMax:     cfg.BackoffMax(),
			AttemptTimeout: cfg.AttemptTimeout(),
			Topic:          cfg.PubSub.TopicName,
		},
		logger.Named("pipeline"),
	)

	jobStore := memoryStorage.NewJobStore()
	queue := queueMemory.NewQueue(cfg.Pipeline.QueueDepth)

	var workers []*worker.Worker
	for i := 0; i < cfg.Pipeline.Concurrency; i++ {
		workers = append(workers, worker.New(
			queue,
			jobStore,
			pipe,
			worker.Config{JobTimeout: cfg.JobTimeout()},
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, workers)

	apiServer := api.NewServer(
		jobStore,
		dispatch,
		pipe,
		uuid.NewUUIDGenerator(),
		system.New(),
		cfg,
		logger.Named("api"),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", len(workers)))
		dispatch.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
	logger.Info("shutdown complete")
}

func buildBlobStore(ctx context.Context, cfg config.Config) (assets.BlobStore, error) {
	switch cfg.Storage.Backend {
	case config.StorageBackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		store, err := storagegcs.New(client, storagegcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store: %w", err)
		}
		return store, nil
	case config.StorageBackendLocal:
		store, err := storagelocal.New(storagelocal.Config{BaseDir: cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store: %w", err)
		}
		return store, nil
	default:
		return memoryStorage.NewBlobStore(), nil
	}
}

func buildCatalogStore(ctx context.Context, cfg config.Config) (assets.CatalogStore, func(), error) {
	if cfg.DB.DSN == "" {
		return catalogmemory.NewStore(), func() {}, nil
	}
	store, err := catalogpostgres.NewStore(ctx, catalogpostgres.StoreConfig{
		DSN:      cfg.DB.DSN,
		Table:    cfg.DB.Table,
		MaxConns: int32(cfg.DB.MaxConns),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("postgres catalog: %w", err)
	}
	return store, store.Close, nil
}

func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (assets.Publisher, func(), error) {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicName == "" {
		logger.Info("pubsub not configured, outcome events stay in memory")
		return memorypublisher.New(), func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	pub := pubsubpublisher.New(client)
	closer := func() {
		pub.Close()
		if err := client.Close(); err != nil {
			logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	return pub, closer, nil
}
