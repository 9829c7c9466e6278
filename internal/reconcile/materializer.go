package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/sameday-sync/internal/appointments"
	"github.com/wolfman30/sameday-sync/internal/catalog"
	"github.com/wolfman30/sameday-sync/pkg/logging"
)

// SlotStore is the subset of catalog.Repository the materializer writes through.
type SlotStore interface {
	InsertTimeSlot(ctx context.Context, slot *catalog.TimeSlot) (bool, error)
	RetireSlots(ctx context.Context, providerID, syncSource string, platformAppointmentIDs []string) (int, error)
}

// MaterializeResult counts what a materialization pass did.
type MaterializeResult struct {
	SlotsCreated  int
	SlotsExisting int
	SkippedPast   int
	Failed        int
}

// Materializer derives time slots from reconciled appointments. Existing
// slots are never rewritten.
type Materializer struct {
	store  SlotStore
	loc    *time.Location
	now    func() time.Time
	logger *logging.Logger
}

// NewMaterializer creates a Materializer that judges "today" in loc.
func NewMaterializer(store SlotStore, loc *time.Location, now func() time.Time, logger *logging.Logger) *Materializer {
	if store == nil {
		panic("reconcile: slot store required")
	}
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Materializer{store: store, loc: loc, now: now, logger: logger}
}

// Today is the current civil date in the operating timezone.
func (m *Materializer) Today() time.Time {
	return civilDate(m.now(), m.loc)
}

// Materialize inserts one slot per appointment of each outcome, skipping
// appointments dated before today.
func (m *Materializer) Materialize(ctx context.Context, platformName string, outcomes []Outcome) (MaterializeResult, error) {
	var res MaterializeResult
	today := m.Today()
	for _, out := range outcomes {
		for _, appt := range out.Appointments {
			if err := ctx.Err(); err != nil {
				return res, fmt.Errorf("reconcile: materialize: %w", err)
			}
			date := civilDate(appt.AppointmentAt, m.loc)
			if date.Before(today) {
				res.SkippedPast++
				continue
			}
			slot := m.slotFor(platformName, out.Service, appt, date)
			inserted, err := m.store.InsertTimeSlot(ctx, &slot)
			if err != nil {
				if ctx.Err() != nil {
					return res, fmt.Errorf("reconcile: materialize: %w", ctx.Err())
				}
				res.Failed++
				m.logger.Error("time slot insert failed",
					"service_id", out.Service.ID,
					"platform_appointment_id", appt.PlatformAppointmentID,
					"error", err)
				continue
			}
			if inserted {
				res.SlotsCreated++
			} else {
				res.SlotsExisting++
			}
		}
	}
	return res, nil
}

// Retire flags the slots of unavailable appointments unavailable.
func (m *Materializer) Retire(ctx context.Context, providerID, platformName string, unavailable []appointments.SyncedAppointment) (int, error) {
	if len(unavailable) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(unavailable))
	for _, a := range unavailable {
		ids = append(ids, a.PlatformAppointmentID)
	}
	n, err := m.store.RetireSlots(ctx, providerID, platformName, ids)
	if err != nil {
		return 0, fmt.Errorf("reconcile: retire slots: %w", err)
	}
	return n, nil
}

func (m *Materializer) slotFor(platformName string, svc catalog.Service, appt appointments.SyncedAppointment, date time.Time) catalog.TimeSlot {
	id := appt.PlatformAppointmentID
	return catalog.TimeSlot{
		ServiceID:             svc.ID,
		SlotDate:              time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC),
		StartAt:               appt.AppointmentAt,
		EndAt:                 appt.EndAt(),
		Available:             appt.Available,
		PlatformAppointmentID: &id,
		SyncMetadata: map[string]any{
			"platform":              platformName,
			"synced_appointment_id": appt.ID,
			"service_name":          appt.ServiceName,
			"materialized_at":       m.now().UTC().Format(time.RFC3339),
		},
	}
}

func civilDate(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
