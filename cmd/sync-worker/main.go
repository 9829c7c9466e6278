package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/sameday-sync/cmd/mainconfig"
	"github.com/wolfman30/sameday-sync/internal/app/bootstrap"
	appconfig "github.com/wolfman30/sameday-sync/internal/config"
	"github.com/wolfman30/sameday-sync/internal/syncengine"
	"github.com/wolfman30/sameday-sync/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsConfig, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	pool := bootstrap.ConnectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool == nil {
		logger.Error("sync worker requires DATABASE_URL")
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}
	email, _ := bootstrap.BuildEmailSender(cfg, &awsConfig, logger)

	registry := prometheus.NewRegistry()
	rt, err := bootstrap.BuildSyncEngine(cfg, bootstrap.SyncDeps{
		Pool:       pool,
		Redis:      redisClient,
		AWS:        &awsConfig,
		Email:      email,
		Registerer: registry,
	}, logger)
	if err != nil {
		logger.Error("failed to build sync engine", "error", err)
		os.Exit(1)
	}

	var worker *syncengine.Worker
	if cfg.SyncQueueURL != "" {
		queue := syncengine.NewSQSQueue(sqs.NewFromConfig(awsConfig), cfg.SyncQueueURL)
		jobStore := syncengine.NewJobStore(dynamodb.NewFromConfig(awsConfig), cfg.SyncJobsTable, logger)
		worker = syncengine.NewWorker(rt.Engine, queue, jobStore, logger, syncengine.WithWorkerCount(cfg.WorkerCount))
		worker.Start(ctx)
	} else {
		logger.Warn("SYNC_QUEUE_URL not set, running scheduled syncs only")
	}

	scheduler, err := syncengine.NewScheduler(rt.Catalog, rt.Engine, cfg.SyncSchedule, cfg.SyncScheduleConcurrency, logger)
	if err != nil {
		logger.Error("invalid SYNC_SCHEDULE", "schedule", cfg.SyncSchedule, "error", err)
		os.Exit(1)
	}
	scheduler.Start(ctx)

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	logger.Info("sync worker running", "schedule", cfg.SyncSchedule, "metrics_addr", metricsSrv.Addr)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down sync worker...")
	cancel()
	cronDone := scheduler.Stop()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()
	_ = metricsSrv.Shutdown(doneCtx)

	waitCh := make(chan struct{})
	go func() {
		if worker != nil {
			worker.Wait()
		}
		<-cronDone.Done()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("sync worker stopped")
	case <-doneCtx.Done():
		logger.Error("sync worker shutdown timed out", "error", doneCtx.Err())
	}
}
