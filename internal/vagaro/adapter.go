// Package vagaro turns the open slots of a Vagaro business into appointments.
// Vagaro exposes availability rather than an appointment export, so every
// returned appointment is an open slot.
package vagaro

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/sameday-sync/internal/platform"
	"github.com/wolfman30/sameday-sync/pkg/logging"
)

// Name is the registry key for this adapter.
const Name = "vagaro"

const (
	statusOpen = "OPEN"
	// maxWindowDays caps the per-day availability calls of one fetch.
	maxWindowDays = 31
)

// Options configures the Vagaro adapter.
type Options struct {
	// BaseURL of the Vagaro booking API. Empty leaves the platform registered
	// but reporting platform.ErrNotImplemented.
	BaseURL   string
	Transport platform.TransportOptions
}

// Adapter implements platform.Adapter for Vagaro.
type Adapter struct {
	baseURL   string
	transport *platform.Transport
	logger    *logging.Logger
}

var _ platform.Adapter = (*Adapter)(nil)

// NewAdapter creates a Vagaro adapter.
func NewAdapter(opts Options, logger *logging.Logger) *Adapter {
	if logger == nil {
		logger = logging.Default()
	}
	return &Adapter{
		baseURL:   strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		transport: platform.NewTransport(Name, opts.Transport, logger),
		logger:    logger,
	}
}

// Platform implements platform.Adapter.
func (a *Adapter) Platform() string { return Name }

// Fetch lists the business's active services and collects their open slots
// for each day of the window.
func (a *Adapter) Fetch(ctx context.Context, providerID string, conn platform.Connection, window platform.DateWindow) ([]platform.RawAppointment, error) {
	if a.baseURL == "" {
		a.logger.Info("vagaro: no api base url configured", "provider_id", providerID, "connection_id", conn.ID)
		return nil, platform.ErrNotImplemented
	}
	businessID := strings.TrimSpace(conn.MerchantID)
	if businessID == "" {
		return nil, fmt.Errorf("vagaro: connection %s has no business id", conn.ID)
	}

	services, err := a.GetServices(ctx, conn, businessID)
	if err != nil {
		return nil, err
	}

	days := windowDays(window)
	var out []platform.RawAppointment
	for _, svc := range services {
		if !svc.Active || strings.TrimSpace(svc.Name) == "" {
			continue
		}
		for _, day := range days {
			slots, err := a.GetAvailableSlots(ctx, conn, businessID, svc.ID, "", day)
			if err != nil {
				return nil, err
			}
			for _, slot := range slots {
				if !slot.Available || slot.Start.IsZero() || !window.Contains(slot.Start) {
					continue
				}
				out = append(out, normalize(svc, slot))
			}
		}
	}
	a.logger.Debug("vagaro: fetched open slots", "provider_id", providerID, "services", len(services), "slots", len(out))
	return out, nil
}

// windowDays returns the calendar dates the window touches, capped at
// maxWindowDays.
func windowDays(w platform.DateWindow) []time.Time {
	start := w.Start
	if start.IsZero() {
		start = time.Now()
	}
	end := w.End
	if end.IsZero() || end.Sub(start) > maxWindowDays*24*time.Hour {
		end = start.AddDate(0, 0, maxWindowDays)
	}
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	var days []time.Time
	for ; day.Before(end); day = day.AddDate(0, 0, 1) {
		days = append(days, day)
	}
	return days
}

func normalize(svc Service, slot TimeSlot) platform.RawAppointment {
	duration := svc.DurationMinutes
	if !slot.End.IsZero() && slot.End.After(slot.Start) {
		duration = int(slot.End.Sub(slot.Start) / time.Minute)
	}
	var amount *float64
	if svc.PriceCents > 0 {
		amount = platform.Float(float64(svc.PriceCents) / 100)
	}
	start := slot.Start.UTC()
	return platform.RawAppointment{
		ID:              fmt.Sprintf("%s:%s:%s", svc.ID, slot.ProviderID, start.Format(time.RFC3339)),
		ServiceName:     svc.Name,
		StartAt:         start,
		DurationMinutes: duration,
		Amount:          amount,
		Status:          statusOpen,
		Available:       true,
		Description:     svc.Description,
		Payload: map[string]any{
			"vagaro_service_id": svc.ID,
			"vagaro_staff_id":   slot.ProviderID,
		},
	}
}
