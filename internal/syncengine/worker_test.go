package syncengine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/wolfman30/sameday-sync/internal/platform"
)

type stubSyncer struct {
	mu       sync.Mutex
	requests []Request
	result   *Result
	err      error
	errFor   map[string]error
}

func (s *stubSyncer) TriggerSync(_ context.Context, req Request) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if err, ok := s.errFor[req.ProviderID]; ok {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &Result{}, nil
}

func (s *stubSyncer) calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func waitForStatus(t *testing.T, jobs *MemoryJobStore, jobID string, want JobStatus) *JobRecord {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := jobs.GetJob(context.Background(), jobID)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", jobID, want)
	return nil
}

func TestWorkerProcessesQueuedSync(t *testing.T) {
	queue := NewMemoryQueue(4)
	jobs := NewMemoryJobStore()
	syncer := &stubSyncer{result: &Result{SyncedCount: 5, SlotsCreated: 2}}
	publisher := NewPublisher(queue, jobs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker := NewWorker(syncer, queue, jobs, nil, WithWorkerCount(1), WithReceiveWaitSeconds(1))
	worker.Start(ctx)

	jobID, err := publisher.EnqueueSync(ctx, Request{ProviderID: "prov-1", Platform: "square", SyncType: platform.SyncIncremental})
	if err != nil {
		t.Fatalf("EnqueueSync: %v", err)
	}

	job := waitForStatus(t, jobs, jobID, JobStatusCompleted)
	if job.Result.SyncedCount != 5 {
		t.Fatalf("unexpected result %+v", job.Result)
	}
	calls := syncer.calls()
	if len(calls) != 1 || calls[0].SyncType != platform.SyncIncremental {
		t.Fatalf("unexpected calls %+v", calls)
	}

	cancel()
	worker.Wait()
}

func TestWorkerMarksFailedJobs(t *testing.T) {
	queue := NewMemoryQueue(4)
	jobs := NewMemoryJobStore()
	syncer := &stubSyncer{err: &AdapterFailure{Platform: "square", Err: errors.New("503")}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker := NewWorker(syncer, queue, jobs, nil, WithWorkerCount(1), WithReceiveWaitSeconds(1))
	worker.Start(ctx)

	jobID, err := NewPublisher(queue, jobs, nil).EnqueueSync(ctx, Request{ProviderID: "prov-1", Platform: "square"})
	if err != nil {
		t.Fatalf("EnqueueSync: %v", err)
	}
	job := waitForStatus(t, jobs, jobID, JobStatusFailed)
	if job.ErrorMessage == "" {
		t.Fatal("expected error message")
	}
	cancel()
	worker.Wait()
}

func TestWorkerDropsUndecodableMessages(t *testing.T) {
	queue := NewMemoryQueue(1)
	syncer := &stubSyncer{}
	worker := NewWorker(syncer, queue, NewMemoryJobStore(), nil)
	worker.handleMessage(context.Background(), queueMessage{ID: "m-1", Body: "{not json"})
	if len(syncer.calls()) != 0 {
		t.Fatal("expected no sync for undecodable message")
	}
}

type fakeSQS struct {
	sent      []string
	sentAttrs []map[string]sqstypes.MessageAttributeValue
	deleted   []string
	inbox     []sqstypes.Message
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.sent = append(f.sent, aws.ToString(in.MessageBody))
	f.sentAttrs = append(f.sentAttrs, in.MessageAttributes)
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	n := int(in.MaxNumberOfMessages)
	if n > len(f.inbox) {
		n = len(f.inbox)
	}
	out := f.inbox[:n]
	f.inbox = f.inbox[n:]
	return &sqs.ReceiveMessageOutput{Messages: out}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func TestSQSQueueRoundTrip(t *testing.T) {
	api := &fakeSQS{}
	queue := newSQSQueue(api, "https://sqs.local/queue/sync")
	ctx := context.Background()

	job, err := newSyncJob(Request{ProviderID: "prov-1", Platform: "Square"}, true)
	if err != nil {
		t.Fatalf("newSyncJob: %v", err)
	}
	if err := queue.Send(ctx, job); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := api.sentAttrs[0][attrPlatform]; aws.ToString(got.StringValue) != "square" || aws.ToString(got.DataType) != "String" {
		t.Fatalf("unexpected platform attribute %+v", got)
	}
	api.inbox = []sqstypes.Message{{
		MessageId:         aws.String("m-1"),
		Body:              aws.String(api.sent[0]),
		ReceiptHandle:     aws.String("rh-1"),
		MessageAttributes: api.sentAttrs[0],
	}}

	msgs, err := queue.Receive(ctx, 5, 0)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ReceiptHandle != "rh-1" {
		t.Fatalf("unexpected messages %+v", msgs)
	}
	if msgs[0].Attributes[attrProviderID] != "prov-1" || msgs[0].Attributes[attrSyncType] != "full" {
		t.Fatalf("unexpected attributes %+v", msgs[0].Attributes)
	}
	payload, err := decodeSyncJob(msgs[0].Body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.ID != job.ID || payload.Request.ProviderID != "prov-1" || payload.Request.SyncType != platform.SyncFull {
		t.Fatalf("unexpected payload %+v", payload)
	}

	if err := queue.Delete(ctx, "rh-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := queue.Delete(ctx, ""); err != nil {
		t.Fatalf("Delete empty: %v", err)
	}
	if len(api.deleted) != 1 {
		t.Fatalf("expected one delete, got %v", api.deleted)
	}
}

func TestNewSyncJobValidatesRequest(t *testing.T) {
	job, err := newSyncJob(Request{ProviderID: " prov-1 ", Platform: " Boulevard ", SyncType: "INCREMENTAL"}, false)
	if err != nil {
		t.Fatalf("newSyncJob: %v", err)
	}
	if job.ID == "" || job.EnqueuedAt.IsZero() {
		t.Fatalf("job id and time not assigned: %+v", job)
	}
	if job.Request.ProviderID != "prov-1" || job.Request.Platform != "boulevard" || job.Request.SyncType != platform.SyncIncremental {
		t.Fatalf("request not normalized: %+v", job.Request)
	}

	for _, req := range []Request{
		{Platform: "square"},
		{ProviderID: "prov-1"},
		{ProviderID: "prov-1", Platform: "square", SyncType: "weekly"},
	} {
		if _, err := newSyncJob(req, true); err == nil {
			t.Fatalf("expected rejection for %+v", req)
		}
	}
}

func TestDecodeSyncJobRejectsIncompleteBodies(t *testing.T) {
	for _, body := range []string{
		`{not json`,
		`{"request":{"provider_id":"prov-1","platform":"square"}}`,
		`{"id":"job-1","request":{"platform":"square"}}`,
		`{"id":"job-1","request":{"provider_id":"prov-1","platform":"square","sync_type":"hourly"}}`,
	} {
		if _, err := decodeSyncJob(body); err == nil {
			t.Fatalf("expected error decoding %s", body)
		}
	}
	job, err := decodeSyncJob(`{"id":"job-1","request":{"provider_id":"prov-1","platform":"square"}}`)
	if err != nil {
		t.Fatalf("decodeSyncJob: %v", err)
	}
	if job.Request.SyncType != platform.SyncFull {
		t.Fatalf("expected default full sync, got %q", job.Request.SyncType)
	}
}

func TestWorkerDropsJobsWithoutProvider(t *testing.T) {
	queue := NewMemoryQueue(1)
	syncer := &stubSyncer{}
	worker := NewWorker(syncer, queue, NewMemoryJobStore(), nil)
	worker.handleMessage(context.Background(), queueMessage{
		ID:         "m-2",
		Body:       `{"id":"job-1","request":{"platform":"square"},"track_status":true}`,
		Attributes: map[string]string{attrPlatform: "square"},
	})
	if len(syncer.calls()) != 0 {
		t.Fatal("expected no sync for a job without provider")
	}
}

func TestMemoryQueueReceiveTimesOut(t *testing.T) {
	queue := NewMemoryQueue(1)
	msgs, err := queue.Receive(context.Background(), 1, 1)
	if err != nil || msgs != nil {
		t.Fatalf("expected empty receive, got %v %v", msgs, err)
	}
}
