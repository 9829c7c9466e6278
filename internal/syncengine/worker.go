package syncengine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/sameday-sync/pkg/logging"
)

// Syncer runs one sync pass.
type Syncer interface {
	TriggerSync(ctx context.Context, req Request) (*Result, error)
}

var _ Syncer = (*Engine)(nil)

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the SQS long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// Worker consumes sync jobs from the queue and runs them.
type Worker struct {
	syncer Syncer
	queue  queueClient
	jobs   JobUpdater
	logger *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

// NewWorker creates a queue consumer.
func NewWorker(syncer Syncer, queue queueClient, jobs JobUpdater, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if syncer == nil {
		panic("syncengine: syncer cannot be nil")
	}
	if queue == nil {
		panic("syncengine: queue cannot be nil")
	}
	if jobs == nil {
		panic("syncengine: job store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{syncer: syncer, queue: queue, jobs: jobs, logger: logger, cfg: cfg}
}

// Start launches the consumer goroutines. They exit when ctx is done.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until every consumer has exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("sync worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("sync worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive sync jobs", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg queueMessage) {
	payload, err := decodeSyncJob(msg.Body)
	if err != nil {
		w.logger.Error("failed to decode sync job", "error", err, "msg_id", msg.ID,
			"provider_id", msg.Attributes[attrProviderID], "platform", msg.Attributes[attrPlatform])
		w.deleteMessage(msg.ReceiptHandle)
		return
	}

	w.logger.Info("worker processing sync job",
		"job_id", payload.ID,
		"provider_id", payload.Request.ProviderID,
		"platform", payload.Request.Platform,
		"sync_type", payload.Request.SyncType,
	)

	result, err := w.syncer.TriggerSync(ctx, payload.Request)
	if err != nil {
		w.logger.Error("sync job failed", "error", err, "job_id", payload.ID)
		if payload.TrackStatus {
			if storeErr := w.jobs.MarkFailed(ctx, payload.ID, err.Error()); storeErr != nil {
				w.logger.Error("failed to update job status", "error", storeErr, "job_id", payload.ID)
			}
		}
	} else if payload.TrackStatus {
		if storeErr := w.jobs.MarkCompleted(ctx, payload.ID, result); storeErr != nil {
			w.logger.Error("failed to update job status", "error", storeErr, "job_id", payload.ID)
		}
	}

	// Adapter failures are terminal for the job; the next scheduled run retries.
	w.deleteMessage(msg.ReceiptHandle)
}

func (w *Worker) deleteMessage(receiptHandle string) {
	ctx, cancel := context.WithTimeout(context.Background(), deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.queue.Delete(ctx, receiptHandle); err != nil {
		w.logger.Error("failed to delete sync job message", "error", err)
	}
}
