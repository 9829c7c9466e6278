// Package appointments persists normalized platform appointments keyed by
// (provider, platform, platform appointment id).
package appointments

import (
	"context"
	"time"

	"github.com/wolfman30/sameday-sync/internal/platform"
)

// SyncedAppointment is one external booking as last seen on its platform.
type SyncedAppointment struct {
	ID                    string
	ProviderID            string
	Platform              string
	PlatformAppointmentID string
	ServiceName           string
	AppointmentAt         time.Time
	DurationMinutes       int
	Amount                *float64
	Available             bool
	Status                string
	CustomerNote          string
	Description           string
	PlatformData          map[string]any
	PlatformUpdatedAt     *time.Time
	SyncedAt              time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Store is the idempotent appointment table.
type Store interface {
	// Upsert inserts or overwrites every non-key field of each appointment and
	// returns how many appointments were written.
	Upsert(ctx context.Context, providerID, platformName string, appts []platform.RawAppointment) (int, error)
	// ListAvailable returns available appointments for the pair ordered by start.
	ListAvailable(ctx context.Context, providerID, platformName string) ([]SyncedAppointment, error)
	// ListUnavailable returns cancelled or otherwise unavailable appointments
	// starting inside window. Zero window bounds are open.
	ListUnavailable(ctx context.Context, providerID, platformName string, window platform.DateWindow) ([]SyncedAppointment, error)
}

// FromRaw maps an adapter result onto the stored shape.
func FromRaw(providerID, platformName string, raw platform.RawAppointment, now time.Time) SyncedAppointment {
	appt := SyncedAppointment{
		ProviderID:            providerID,
		Platform:              platformName,
		PlatformAppointmentID: raw.ID,
		ServiceName:           raw.ServiceName,
		AppointmentAt:         raw.StartAt.UTC(),
		DurationMinutes:       raw.DurationMinutes,
		Amount:                raw.Amount,
		Available:             raw.Available,
		Status:                raw.Status,
		CustomerNote:          raw.CustomerNote,
		Description:           raw.Description,
		PlatformData:          raw.Payload,
		SyncedAt:              now,
	}
	if !raw.UpdatedAt.IsZero() {
		updated := raw.UpdatedAt.UTC()
		appt.PlatformUpdatedAt = &updated
	}
	return appt
}

// EndAt is the appointment start plus its duration.
func (a SyncedAppointment) EndAt() time.Time {
	return a.AppointmentAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}
