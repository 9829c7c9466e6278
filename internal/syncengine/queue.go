package syncengine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/sameday-sync/internal/platform"
	"github.com/wolfman30/sameday-sync/pkg/logging"
)

// Message attribute keys carried next to the job body so queue tooling can
// filter without decoding it.
const (
	attrProviderID = "provider_id"
	attrPlatform   = "platform"
	attrSyncType   = "sync_type"
)

type queueClient interface {
	Send(ctx context.Context, job syncJob) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
	Attributes    map[string]string
}

// syncJob is one queued sync request for a (provider, platform) pair.
type syncJob struct {
	ID          string    `json:"id"`
	Request     Request   `json:"request"`
	TrackStatus bool      `json:"track_status"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// newSyncJob validates req, defaults its sync type and assigns a job id.
func newSyncJob(req Request, trackStatus bool) (syncJob, error) {
	job := syncJob{ID: uuid.NewString(), Request: req, TrackStatus: trackStatus, EnqueuedAt: time.Now().UTC()}
	if err := job.normalize(); err != nil {
		return syncJob{}, err
	}
	return job, nil
}

// decodeSyncJob parses a queue body and rejects jobs the worker cannot run.
func decodeSyncJob(body string) (syncJob, error) {
	var job syncJob
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return syncJob{}, fmt.Errorf("syncengine: decode sync job: %w", err)
	}
	if strings.TrimSpace(job.ID) == "" {
		return syncJob{}, fmt.Errorf("syncengine: sync job has no id")
	}
	if err := job.normalize(); err != nil {
		return syncJob{}, err
	}
	return job, nil
}

func (j *syncJob) normalize() error {
	j.Request.ProviderID = strings.TrimSpace(j.Request.ProviderID)
	j.Request.Platform = strings.ToLower(strings.TrimSpace(j.Request.Platform))
	if j.Request.ProviderID == "" || j.Request.Platform == "" {
		return fmt.Errorf("syncengine: sync job needs provider and platform")
	}
	syncType, err := platform.ParseSyncType(string(j.Request.SyncType))
	if err != nil {
		return fmt.Errorf("syncengine: sync job: %w", err)
	}
	j.Request.SyncType = syncType
	return nil
}

func (j syncJob) encode() (string, error) {
	body, err := json.Marshal(j)
	if err != nil {
		return "", fmt.Errorf("syncengine: failed to encode sync job: %w", err)
	}
	return string(body), nil
}

func (j syncJob) attributes() map[string]string {
	return map[string]string{
		attrProviderID: j.Request.ProviderID,
		attrPlatform:   j.Request.Platform,
		attrSyncType:   string(j.Request.SyncType),
	}
}

// Publisher enqueues sync runs for the worker and records them as pending jobs.
type Publisher struct {
	queue  queueClient
	jobs   JobRecorder
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue queueClient, jobs JobRecorder, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("syncengine: queue cannot be nil")
	}
	if jobs == nil {
		panic("syncengine: job store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, jobs: jobs, logger: logger}
}

// EnqueueSync records a pending job and publishes it. It returns the job id.
func (p *Publisher) EnqueueSync(ctx context.Context, req Request) (string, error) {
	job, err := newSyncJob(req, true)
	if err != nil {
		return "", err
	}
	if err := p.jobs.PutPending(ctx, &JobRecord{
		JobID:      job.ID,
		ProviderID: job.Request.ProviderID,
		Platform:   job.Request.Platform,
		SyncType:   string(job.Request.SyncType),
	}); err != nil {
		return "", err
	}
	if err := p.queue.Send(ctx, job); err != nil {
		if markErr := p.jobs.MarkFailed(ctx, job.ID, "enqueue failed"); markErr != nil {
			p.logger.Error("failed to update job status", "error", markErr, "job_id", job.ID)
		}
		return "", fmt.Errorf("syncengine: failed to enqueue job: %w", err)
	}
	p.logger.Debug("sync job enqueued", "job_id", job.ID, "provider_id", job.Request.ProviderID, "platform", job.Request.Platform)
	return job.ID, nil
}
