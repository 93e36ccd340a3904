package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	taskhandler "github.com/Martaccvlc/ImageResizingAPI/internal/api/handlers/task"
	"github.com/Martaccvlc/ImageResizingAPI/internal/api/router"
	"github.com/Martaccvlc/ImageResizingAPI/internal/api/server"
	"github.com/Martaccvlc/ImageResizingAPI/internal/cache"
	"github.com/Martaccvlc/ImageResizingAPI/internal/config"
	"github.com/Martaccvlc/ImageResizingAPI/internal/downloader"
	"github.com/Martaccvlc/ImageResizingAPI/internal/kafka/consumer"
	taskmsg "github.com/Martaccvlc/ImageResizingAPI/internal/kafka/handlers/task"
	"github.com/Martaccvlc/ImageResizingAPI/internal/kafka/producer"
	"github.com/Martaccvlc/ImageResizingAPI/internal/processor"
	imagerepo "github.com/Martaccvlc/ImageResizingAPI/internal/repository/image"
	taskrepo "github.com/Martaccvlc/ImageResizingAPI/internal/repository/task"
	tasksvc "github.com/Martaccvlc/ImageResizingAPI/internal/service/task"
	"github.com/Martaccvlc/ImageResizingAPI/internal/storage/file"
	"github.com/Martaccvlc/ImageResizingAPI/internal/worker"
)

func main() {
	// Context & signals: used for graceful shutdown on system interrupts.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize logger and load application configuration.
	zlog.Init()
	cfg := config.MustLoad("./config")

	// Connect to PostgreSQL (master and slaves).
	opts := &dbpg.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	// Collect slave DSNs for replica connections.
	slaveDSNs := make([]string, 0, len(cfg.Database.Slaves))

	for _, s := range cfg.Database.Slaves {
		slaveDSNs = append(slaveDSNs, s.DSN())
	}

	db, err := dbpg.New(cfg.Database.Master.DSN(), slaveDSNs, opts)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Retry strategy for Kafka and remote downloads.
	strategy := retry.Strategy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		Backoff:  cfg.Retry.Backoff,
	}

	// Managed input/output directories on the local filesystem.
	storage, err := file.NewStorage(cfg.Storage.InputDir, cfg.Storage.OutputDir)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to initialize storage")
	}

	// Redis cache for task views on the polling path.
	taskCache, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.TTL)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to redis")
	}

	// Initialize repositories, downloader, producer, pipeline, and service.
	tasks := taskrepo.NewRepository(db)
	images := imagerepo.NewRepository(db)
	dl := downloader.New(storage, strategy)
	p := producer.New(&cfg.Kafka, strategy)
	pipeline := processor.New(tasks, images, storage, taskCache, cfg.Processing.Resolutions, cfg.Processing.JPEGQuality)
	service := tasksvc.NewService(tasks, images, dl, p, taskCache)

	// Bounded pool for concurrent pipeline runs.
	pool := worker.NewPool(cfg.Worker.MaxWorkers)

	// Kafka message handler for created tasks.
	createdHandler := taskmsg.NewCreatedHandler(pipeline, pool, cfg.Processing.Timeout)

	// HTTP handler for task routes.
	handler := taskhandler.NewHandler(service)

	// Kafka consumer dispatching created-task events.
	c := consumer.New(&cfg.Kafka, strategy, createdHandler)

	// Start Kafka consumer in a separate goroutine.
	var wg sync.WaitGroup
	wg.Add(1)
	go c.Consume(ctx, &wg)

	// Start HTTP server in a separate goroutine.
	r := router.Setup(handler)
	s := server.New(cfg.Server.HTTPPort, r)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Block until context is canceled (SIGINT/SIGTERM).
	<-ctx.Done()
	zlog.Logger.Info().Msg("context done")

	// Wait for the Kafka consumer and in-flight pipeline runs to finish.
	wg.Wait()
	pool.Wait()

	// Graceful shutdown with timeout for HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}

	// Close master and slave databases.
	if err := db.Master.Close(); err != nil {
		zlog.Logger.Printf("failed to close master DB: %v", err)
	}
	for i, slave := range db.Slaves {
		if err := slave.Close(); err != nil {
			zlog.Logger.Printf("failed to close slave DB %d: %v", i, err)
		}
	}

	// Close Kafka producer and consumer clients and the cache.
	if err = p.Client.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close kafka producer client")
	}
	if err = c.Client.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close kafka consumer client")
	}
	if err = taskCache.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close redis client")
	}
}
