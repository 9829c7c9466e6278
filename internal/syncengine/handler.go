package syncengine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/sameday-sync/internal/platform"
	"github.com/wolfman30/sameday-sync/pkg/logging"
)

// Enqueuer publishes async sync requests.
type Enqueuer interface {
	EnqueueSync(ctx context.Context, req Request) (string, error)
}

// JobReader reads async job status.
type JobReader interface {
	GetJob(ctx context.Context, jobID string) (*JobRecord, error)
}

// Handler exposes TriggerSync and job status over HTTP.
type Handler struct {
	syncer   Syncer
	enqueuer Enqueuer
	jobs     JobReader
	logger   *logging.Logger
}

// NewHandler creates a sync handler. enqueuer and jobs may be nil, which
// disables async triggers and job lookups.
func NewHandler(syncer Syncer, enqueuer Enqueuer, jobs JobReader, logger *logging.Logger) *Handler {
	if syncer == nil {
		panic("syncengine: syncer cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{syncer: syncer, enqueuer: enqueuer, jobs: jobs, logger: logger}
}

// RegisterRoutes adds the sync routes to r. triggerMiddleware wraps only the
// trigger endpoint (rate limiting).
func (h *Handler) RegisterRoutes(r chi.Router, triggerMiddleware ...func(http.Handler) http.Handler) {
	r.With(triggerMiddleware...).Post("/providers/{providerID}/platforms/{platform}/sync", h.TriggerSync)
	r.Get("/sync/jobs/{jobID}", h.GetJob)
}

type triggerRequest struct {
	SyncType string `json:"sync_type"`
}

// TriggerSync runs or enqueues a sync pass.
// POST /providers/{providerID}/platforms/{platform}/sync
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	var body triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}
	syncType, err := platform.ParseSyncType(body.SyncType)
	if err != nil {
		http.Error(w, `{"error": "sync_type must be full or incremental"}`, http.StatusBadRequest)
		return
	}
	req := Request{
		ProviderID: chi.URLParam(r, "providerID"),
		Platform:   chi.URLParam(r, "platform"),
		SyncType:   syncType,
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		h.enqueue(w, r, req)
		return
	}

	result, err := h.syncer.TriggerSync(r.Context(), req)
	if err != nil {
		h.writeSyncError(w, req, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request, req Request) {
	if h.enqueuer == nil {
		http.Error(w, `{"error": "async sync not configured"}`, http.StatusServiceUnavailable)
		return
	}
	jobID, err := h.enqueuer.EnqueueSync(r.Context(), req)
	if err != nil {
		h.logger.Error("failed to enqueue sync", "provider_id", req.ProviderID, "platform", req.Platform, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (h *Handler) writeSyncError(w http.ResponseWriter, req Request, err error) {
	switch {
	case errors.Is(err, platform.ErrUnsupportedPlatform):
		http.Error(w, `{"error": "unsupported platform"}`, http.StatusBadRequest)
	case errors.Is(err, ErrUnknownProvider):
		http.Error(w, `{"error": "provider not found"}`, http.StatusNotFound)
	case errors.Is(err, ErrNoConnection):
		http.Error(w, `{"error": "no active platform connection"}`, http.StatusNotFound)
	case IsAdapterFailure(err):
		http.Error(w, `{"error": "sync failed"}`, http.StatusBadGateway)
	default:
		h.logger.Error("sync run failed", "provider_id", req.ProviderID, "platform", req.Platform, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
	}
}

// GetJob returns the status of an async sync job.
// GET /sync/jobs/{jobID}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		http.Error(w, `{"error": "job not found"}`, http.StatusNotFound)
		return
	}
	jobID := chi.URLParam(r, "jobID")
	job, err := h.jobs.GetJob(r.Context(), jobID)
	if errors.Is(err, ErrJobNotFound) {
		http.Error(w, `{"error": "job not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to load sync job", "job_id", jobID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
