package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/sameday-sync/internal/appointments"
	"github.com/wolfman30/sameday-sync/internal/approval"
	"github.com/wolfman30/sameday-sync/internal/catalog"
	"github.com/wolfman30/sameday-sync/internal/classifier"
	"github.com/wolfman30/sameday-sync/internal/notify"
	"github.com/wolfman30/sameday-sync/internal/platform"
)

type fixture struct {
	repo       *catalog.MemoryRepository
	stub       *notify.StubEmailSender
	reconciler *Reconciler
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	repo := catalog.NewMemoryRepository()
	stub := notify.NewStubEmailSender(nil)
	gate := approval.NewGate(notify.NewService(stub, nil), nil)
	cls := classifier.New(repo, nil, map[string]string{"square": "Beauty"}, nil)
	r := NewReconciler(repo, cls, gate, Options{PlatformFeePercent: 7, Concurrency: 2}, nil)
	return fixture{repo: repo, stub: stub, reconciler: r}
}

func provider(requiresApproval bool) catalog.Provider {
	return catalog.Provider{
		ID:                      "prov-1",
		Name:                    "Glow Studio",
		Email:                   "owner@glow.example",
		DefaultDiscountPercent:  27,
		RequiresServiceApproval: requiresApproval,
	}
}

func TestReconcileCreatesDiscountedService(t *testing.T) {
	f := newFixture(t)
	res, err := f.reconciler.Reconcile(context.Background(), provider(false), "square", []appointments.SyncedAppointment{
		appt("a", "Swedish Massage", 60, platform.Float(90)),
		appt("b", "Swedish Massage", 60, platform.Float(110)),
	})
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, 1, res.ServicesCreated)

	svc := res.Outcomes[0].Service
	assert.Equal(t, 100.0, svc.OriginalPrice)
	assert.Equal(t, 80.0, svc.Price)
	assert.True(t, svc.Available)
	require.NotNil(t, svc.PlatformServiceID)
	assert.Equal(t, "Swedish Massage::60m", *svc.PlatformServiceID)
	assert.Equal(t, 2, svc.SyncMetadata["source_appointment_count"])
	assert.Equal(t, 20.0, svc.SyncMetadata["discount_applied"])

	require.NotNil(t, svc.CategoryID)
	cats := f.repo.Categories()
	require.Len(t, cats, 1)
	assert.Equal(t, "Massage", cats[0].Name)
	assert.Empty(t, f.stub.Sent())
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appts := []appointments.SyncedAppointment{appt("a", "Facial", 30, platform.Float(80))}

	first, err := f.reconciler.Reconcile(ctx, provider(false), "square", appts)
	require.NoError(t, err)
	second, err := f.reconciler.Reconcile(ctx, provider(false), "square", appts)
	require.NoError(t, err)

	assert.Equal(t, 1, first.ServicesCreated)
	assert.Equal(t, 0, second.ServicesCreated)
	assert.Equal(t, 1, second.ServicesMatched)
	assert.Equal(t, first.Outcomes[0].Service.ID, second.Outcomes[0].Service.ID)
	assert.Len(t, f.repo.Services("prov-1"), 1)
}

func TestApprovalGating(t *testing.T) {
	cases := []struct {
		name          string
		requires      bool
		wantAvailable bool
		wantEmails    int
	}{
		{"approval required", true, false, 1},
		{"approval not required", false, true, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			res, err := f.reconciler.Reconcile(context.Background(), provider(tc.requires), "square", []appointments.SyncedAppointment{
				appt("a", "Brazilian Wax", 30, platform.Float(60)),
			})
			require.NoError(t, err)
			require.Len(t, res.Outcomes, 1)
			assert.Equal(t, tc.wantAvailable, res.Outcomes[0].Service.Available)
			assert.Len(t, f.stub.Sent(), tc.wantEmails)

			bookable, err := f.repo.ListBookableServices(context.Background(), "prov-1")
			require.NoError(t, err)
			if tc.wantAvailable {
				assert.Len(t, bookable, 1)
			} else {
				assert.Empty(t, bookable)
			}
		})
	}
}

type failingNotifier struct{}

func (failingNotifier) NotifyServicePendingApproval(context.Context, notify.PendingService) error {
	return errors.New("smtp down")
}

func TestNotificationFailureDoesNotFailReconcile(t *testing.T) {
	repo := catalog.NewMemoryRepository()
	r := NewReconciler(repo, classifier.New(repo, nil, nil, nil), approval.NewGate(failingNotifier{}, nil), Options{PlatformFeePercent: 7}, nil)

	res, err := r.Reconcile(context.Background(), provider(true), "square", []appointments.SyncedAppointment{
		appt("a", "Gel Manicure", 45, platform.Float(40)),
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.ServicesCreated)
	assert.False(t, res.Outcomes[0].Notified)
	assert.Len(t, repo.Services("prov-1"), 1)
}

func TestWatchedServiceConversionIsSingleShot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	categoryID := "cat-brows"
	watched := f.repo.PutService(catalog.Service{
		ProviderID:      "prov-1",
		CategoryID:      &categoryID,
		Name:            "Brow Lamination",
		Price:           55,
		OriginalPrice:   65,
		DurationMinutes: 50,
		Available:       true,
	})
	appts := []appointments.SyncedAppointment{
		appt("a", "Brow Lamination", 45, platform.Float(100)),
		appt("b", "Brow Lamination", 45, platform.Float(100)),
	}

	first, err := f.reconciler.Reconcile(ctx, provider(true), "square", appts)
	require.NoError(t, err)
	require.Len(t, first.Outcomes, 1)
	assert.Equal(t, ActionConverted, first.Outcomes[0].Action)
	assert.Equal(t, 1, first.ServicesConverted)
	assert.Equal(t, watched.ID, first.Outcomes[0].Service.ID)

	second, err := f.reconciler.Reconcile(ctx, provider(true), "square", appts)
	require.NoError(t, err)
	assert.Equal(t, 0, second.ServicesConverted)
	assert.Equal(t, ActionMatched, second.Outcomes[0].Action)
	assert.Equal(t, watched.ID, second.Outcomes[0].Service.ID)

	services := f.repo.Services("prov-1")
	require.Len(t, services, 1)
	stored := services[0]
	require.NotNil(t, stored.SyncSource)
	assert.Equal(t, "square", *stored.SyncSource)
	assert.Equal(t, "Brow Lamination::45m", *stored.PlatformServiceID)
	// Provider-authored fields survive conversion.
	assert.Equal(t, 55.0, stored.Price)
	assert.Equal(t, 50, stored.DurationMinutes)
	assert.Equal(t, &categoryID, stored.CategoryID)
	assert.True(t, stored.Available)
	assert.Equal(t, true, stored.SyncMetadata["converted_from_watched"])
	assert.Empty(t, f.stub.Sent())
}

func TestZeroPriceGroupIsValid(t *testing.T) {
	f := newFixture(t)
	res, err := f.reconciler.Reconcile(context.Background(), provider(false), "square", []appointments.SyncedAppointment{
		appt("a", "Consultation", 15, nil),
	})
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)
	svc := res.Outcomes[0].Service
	assert.Equal(t, 0.0, svc.Price)
	assert.Equal(t, 0.0, svc.OriginalPrice)

	cats := f.repo.Categories()
	require.Len(t, cats, 1)
	assert.Equal(t, "Beauty", cats[0].Name)
}

type brokenStore struct {
	*catalog.MemoryRepository
}

func (brokenStore) FindSyncedService(_ context.Context, _, _, signature string) (*catalog.Service, error) {
	if signature == "Facial::30m" {
		return nil, errors.New("connection reset")
	}
	return nil, catalog.ErrNotFound
}

func TestFailedGroupIsCountedNotReturned(t *testing.T) {
	repo := catalog.NewMemoryRepository()
	r := NewReconciler(brokenStore{repo}, classifier.New(repo, nil, nil, nil), nil, Options{}, nil)
	res, err := r.Reconcile(context.Background(), provider(false), "square", []appointments.SyncedAppointment{
		appt("a", "Facial", 30, platform.Float(80)),
		appt("b", "Swedish Massage", 60, platform.Float(100)),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.GroupsFailed)
	assert.Equal(t, 1, res.ServicesCreated)
}

func TestMaterializerSkipsPastAndNeverDuplicates(t *testing.T) {
	repo := catalog.NewMemoryRepository()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	// 01:30 UTC on Mar 3 is still Mar 2 in New York.
	now := time.Date(2026, 3, 3, 1, 30, 0, 0, time.UTC)
	m := NewMaterializer(repo, loc, func() time.Time { return now }, nil)

	svc := repo.PutService(catalog.Service{ProviderID: "prov-1", Name: "Facial", DurationMinutes: 30})
	yesterday := appt("past", "Facial", 30, nil)
	yesterday.AppointmentAt = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	laterToday := appt("today", "Facial", 30, nil)
	laterToday.AppointmentAt = time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC)
	tomorrow := appt("tomorrow", "Facial", 30, nil)
	tomorrow.AppointmentAt = time.Date(2026, 3, 3, 15, 0, 0, 0, time.UTC)

	outcomes := []Outcome{{Service: svc, Appointments: []appointments.SyncedAppointment{yesterday, laterToday, tomorrow}}}

	first, err := m.Materialize(context.Background(), "square", outcomes)
	require.NoError(t, err)
	assert.Equal(t, 2, first.SlotsCreated)
	assert.Equal(t, 1, first.SkippedPast)

	second, err := m.Materialize(context.Background(), "square", outcomes)
	require.NoError(t, err)
	assert.Equal(t, 0, second.SlotsCreated)
	assert.Equal(t, 2, second.SlotsExisting)

	slots := repo.Slots(svc.ID)
	require.Len(t, slots, 2)
	assert.Equal(t, "today", *slots[0].PlatformAppointmentID)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), slots[0].SlotDate)
	assert.Equal(t, laterToday.AppointmentAt.Add(30*time.Minute), slots[0].EndAt)
}

func TestMaterializerNeverOverwrites(t *testing.T) {
	repo := catalog.NewMemoryRepository()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	m := NewMaterializer(repo, time.UTC, func() time.Time { return now }, nil)
	svc := repo.PutService(catalog.Service{ProviderID: "prov-1", Name: "Facial", DurationMinutes: 30})

	original := appt("a", "Facial", 30, nil)
	original.AppointmentAt = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	_, err := m.Materialize(context.Background(), "square", []Outcome{{Service: svc, Appointments: []appointments.SyncedAppointment{original}}})
	require.NoError(t, err)

	moved := original
	moved.AppointmentAt = original.AppointmentAt.Add(2 * time.Hour)
	_, err = m.Materialize(context.Background(), "square", []Outcome{{Service: svc, Appointments: []appointments.SyncedAppointment{moved}}})
	require.NoError(t, err)

	slots := repo.Slots(svc.ID)
	require.Len(t, slots, 1)
	assert.Equal(t, original.AppointmentAt, slots[0].StartAt)
}

func TestRetireFlagsCancelledSlots(t *testing.T) {
	repo := catalog.NewMemoryRepository()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	m := NewMaterializer(repo, time.UTC, func() time.Time { return now }, nil)
	source := "square"
	sig := "Facial::30m"
	svc := repo.PutService(catalog.Service{ProviderID: "prov-1", Name: "Facial", DurationMinutes: 30, SyncSource: &source, PlatformServiceID: &sig})

	a := appt("a", "Facial", 30, nil)
	a.AppointmentAt = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	_, err := m.Materialize(context.Background(), "square", []Outcome{{Service: svc, Appointments: []appointments.SyncedAppointment{a}}})
	require.NoError(t, err)

	a.Available = false
	retired, err := m.Retire(context.Background(), "prov-1", "square", []appointments.SyncedAppointment{a})
	require.NoError(t, err)
	assert.Equal(t, 1, retired)

	slots := repo.Slots(svc.ID)
	require.Len(t, slots, 1)
	assert.False(t, slots[0].Available)

	none, err := m.Retire(context.Background(), "prov-1", "square", nil)
	require.NoError(t, err)
	assert.Zero(t, none)
}
