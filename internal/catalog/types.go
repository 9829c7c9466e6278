// Package catalog holds the marketplace's bookable state: providers and their
// platform connections, services, time slots and categories.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/sameday-sync/internal/platform"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("catalog: not found")

// Provider is a business account selling openings on the marketplace.
type Provider struct {
	ID                      string    `json:"id"`
	Name                    string    `json:"name"`
	Email                   string    `json:"email"`
	DefaultDiscountPercent  float64   `json:"default_discount_percent"`
	RequiresServiceApproval bool      `json:"requires_service_approval"`
	CreatedAt               time.Time `json:"created_at"`
}

// Service is a catalog entry consumers can book.
type Service struct {
	ID              string  `json:"id"`
	ProviderID      string  `json:"provider_id"`
	CategoryID      *string `json:"category_id,omitempty"`
	Name            string  `json:"name"`
	Description     string  `json:"description,omitempty"`
	Price           float64 `json:"price"`
	OriginalPrice   float64 `json:"original_price"`
	DurationMinutes int     `json:"duration_minutes"`
	Available       bool    `json:"is_available"`
	// SyncSource is nil for provider-authored (watched) services.
	SyncSource        *string        `json:"sync_source,omitempty"`
	PlatformServiceID *string        `json:"platform_service_id,omitempty"`
	SyncMetadata      map[string]any `json:"sync_metadata,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Watched reports whether the service is a provider-authored placeholder.
func (s Service) Watched() bool {
	return s.SyncSource == nil
}

// TimeSlot is one bookable occurrence of a service.
type TimeSlot struct {
	ID        string    `json:"id"`
	ServiceID string    `json:"service_id"`
	SlotDate  time.Time `json:"slot_date"`
	StartAt   time.Time `json:"start_at"`
	EndAt     time.Time `json:"end_at"`
	Available bool      `json:"is_available"`
	// PlatformAppointmentID links a synced slot to its source appointment.
	PlatformAppointmentID *string        `json:"platform_appointment_id,omitempty"`
	SyncMetadata          map[string]any `json:"sync_metadata,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
}

// Category groups services for browsing.
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Icon      string    `json:"icon"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository is the full catalog persistence surface.
type Repository interface {
	GetProvider(ctx context.Context, providerID string) (*Provider, error)
	GetActiveConnection(ctx context.Context, providerID, platformName string) (*platform.Connection, error)
	ListActiveConnections(ctx context.Context) ([]platform.Connection, error)

	GetService(ctx context.Context, serviceID string) (*Service, error)
	FindSyncedService(ctx context.Context, providerID, syncSource, signature string) (*Service, error)
	FindWatchedService(ctx context.Context, providerID, name string) (*Service, error)
	// ConvertWatchedService stamps sync lineage onto a watched service. It
	// reports false when the service was already converted.
	ConvertWatchedService(ctx context.Context, serviceID, syncSource, signature string, metadata map[string]any) (bool, error)
	// CreateSyncedService inserts svc unless a service with the same lineage
	// exists, in which case svc is overwritten with the stored row and false is returned.
	CreateSyncedService(ctx context.Context, svc *Service) (bool, error)
	ListBookableServices(ctx context.Context, providerID string) ([]Service, error)
	SetServiceAvailability(ctx context.Context, serviceID string, available bool) (*Service, error)

	// InsertTimeSlot inserts slot unless one exists for (service, platform appointment id).
	InsertTimeSlot(ctx context.Context, slot *TimeSlot) (bool, error)
	// RetireSlots flags the synced slots of the given appointments unavailable.
	RetireSlots(ctx context.Context, providerID, syncSource string, platformAppointmentIDs []string) (int, error)
	ListAvailableSlots(ctx context.Context, serviceID string, from time.Time) ([]TimeSlot, error)
	BookSlot(ctx context.Context, slotID string) error

	// GetOrCreateCategory returns the category named name, creating it when absent.
	GetOrCreateCategory(ctx context.Context, name, icon string) (*Category, error)
}

func stringPtr(s string) *string {
	return &s
}
