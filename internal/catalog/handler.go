package catalog

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/sameday-sync/pkg/logging"
)

// Handler exposes the catalog to the booking UI and provider dashboard.
type Handler struct {
	repo   Repository
	logger *logging.Logger
	now    func() time.Time
}

// NewHandler creates a catalog HTTP handler.
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, logger: logger, now: time.Now}
}

// RegisterPublicRoutes adds the consumer-facing catalog routes to r.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/services", h.ListBookableServices)
	r.Get("/services/{serviceID}/slots", h.ListSlots)
	r.Post("/slots/{slotID}/book", h.BookSlot)
}

// RegisterAdminRoutes adds the approval toggles to r.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/services/{serviceID}/approve", h.ApproveService)
	r.Post("/services/{serviceID}/reject", h.RejectService)
}

// ListBookableServices returns services with is_available = true.
// GET /services?provider_id=
func (h *Handler) ListBookableServices(w http.ResponseWriter, r *http.Request) {
	providerID := strings.TrimSpace(r.URL.Query().Get("provider_id"))
	services, err := h.repo.ListBookableServices(r.Context(), providerID)
	if err != nil {
		h.logger.Error("failed to list bookable services", "provider_id", providerID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

// ListSlots returns open future slots for a bookable service.
// GET /services/{serviceID}/slots
func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request) {
	serviceID := chi.URLParam(r, "serviceID")
	svc, err := h.repo.GetService(r.Context(), serviceID)
	if errors.Is(err, ErrNotFound) || (err == nil && !svc.Available) {
		http.Error(w, `{"error": "service not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to load service", "service_id", serviceID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	slots, err := h.repo.ListAvailableSlots(r.Context(), serviceID, h.now().UTC())
	if err != nil {
		h.logger.Error("failed to list slots", "service_id", serviceID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

// BookSlot marks a slot as taken by a consumer.
// POST /slots/{slotID}/book
func (h *Handler) BookSlot(w http.ResponseWriter, r *http.Request) {
	slotID := chi.URLParam(r, "slotID")
	err := h.repo.BookSlot(r.Context(), slotID)
	if errors.Is(err, ErrSlotUnavailable) {
		http.Error(w, `{"error": "slot unavailable"}`, http.StatusConflict)
		return
	}
	if err != nil {
		h.logger.Error("failed to book slot", "slot_id", slotID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"slot_id": slotID, "booked": true})
}

// ApproveService makes a service visible to consumers.
// POST /admin/services/{serviceID}/approve
func (h *Handler) ApproveService(w http.ResponseWriter, r *http.Request) {
	h.setAvailability(w, r, true)
}

// RejectService hides a service from consumers.
// POST /admin/services/{serviceID}/reject
func (h *Handler) RejectService(w http.ResponseWriter, r *http.Request) {
	h.setAvailability(w, r, false)
}

func (h *Handler) setAvailability(w http.ResponseWriter, r *http.Request, available bool) {
	serviceID := chi.URLParam(r, "serviceID")
	if serviceID == "" {
		http.Error(w, `{"error": "service_id required"}`, http.StatusBadRequest)
		return
	}
	svc, err := h.repo.SetServiceAvailability(r.Context(), serviceID, available)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, `{"error": "service not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to update service availability", "service_id", serviceID, "available", available, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	h.logger.Info("service availability updated", "service_id", serviceID, "provider_id", svc.ProviderID, "available", available)
	h.writeJSON(w, http.StatusOK, svc)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
