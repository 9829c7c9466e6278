package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/sameday-sync/cmd/mainconfig"
	"github.com/wolfman30/sameday-sync/internal/api/router"
	"github.com/wolfman30/sameday-sync/internal/app/bootstrap"
	"github.com/wolfman30/sameday-sync/internal/catalog"
	appconfig "github.com/wolfman30/sameday-sync/internal/config"
	"github.com/wolfman30/sameday-sync/internal/syncengine"
	"github.com/wolfman30/sameday-sync/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting sameday-sync API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	pool := bootstrap.ConnectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool != nil {
		defer pool.Close()
	}
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}
	email, emailProvider := bootstrap.BuildEmailSender(cfg, &awsCfg, logger)
	logger.Info("approval email transport selected", "provider", emailProvider)

	metricsHandler, registry := setupMetrics()
	rt, err := bootstrap.BuildSyncEngine(cfg, bootstrap.SyncDeps{
		Pool:       pool,
		Redis:      redisClient,
		AWS:        &awsCfg,
		Email:      email,
		Registerer: registry,
	}, logger)
	if err != nil {
		logger.Error("failed to build sync engine", "error", err)
		os.Exit(1)
	}

	enqueuer, jobs, worker := setupAsync(ctx, cfg, awsCfg, rt.Engine, logger)

	r := router.New(&router.Config{
		Logger:             logger,
		Catalog:            catalog.NewHandler(rt.Catalog, logger),
		Sync:               syncengine.NewHandler(rt.Engine, enqueuer, jobs, logger),
		MetricsHandler:     metricsHandler,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		SyncRateLimitRPS:   cfg.SyncRateLimitRPS,
		SyncRateLimitBurst: cfg.SyncRateLimitBurst,
		Ready:              readiness(pool),
	})

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// Synchronous sync runs can take a while on large calendars.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	cancel()
	if worker != nil {
		worker.Wait()
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func setupMetrics() (http.Handler, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), registry
}

// setupAsync wires ?async=true triggers. With USE_MEMORY_QUEUE the worker runs
// in-process; otherwise jobs go to SQS and cmd/sync-worker drains them.
func setupAsync(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, syncer syncengine.Syncer, logger *logging.Logger) (syncengine.Enqueuer, syncengine.JobReader, *syncengine.Worker) {
	if cfg.UseMemoryQueue {
		queue := syncengine.NewMemoryQueue(64)
		jobs := syncengine.NewMemoryJobStore()
		worker := syncengine.NewWorker(syncer, queue, jobs, logger, syncengine.WithWorkerCount(cfg.WorkerCount))
		worker.Start(ctx)
		logger.Info("async sync enabled", "queue", "memory")
		return syncengine.NewPublisher(queue, jobs, logger), jobs, worker
	}
	if cfg.SyncQueueURL == "" {
		logger.Warn("SYNC_QUEUE_URL not set, async sync disabled")
		return nil, nil, nil
	}
	queue := syncengine.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.SyncQueueURL)
	jobs := syncengine.NewJobStore(dynamodb.NewFromConfig(awsCfg), cfg.SyncJobsTable, logger)
	logger.Info("async sync enabled", "queue", "sqs", "jobs_table", cfg.SyncJobsTable)
	return syncengine.NewPublisher(queue, jobs, logger), jobs, nil
}

func readiness(pool *pgxpool.Pool) func(context.Context) error {
	if pool == nil {
		return nil
	}
	return pool.Ping
}
