package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(repo Repository) http.Handler {
	h := NewHandler(repo, nil)
	r := chi.NewRouter()
	h.RegisterPublicRoutes(r)
	r.Route("/admin", h.RegisterAdminRoutes)
	return r
}

func TestListBookableServicesOnlyAvailable(t *testing.T) {
	repo := NewMemoryRepository()
	repo.PutService(Service{ProviderID: "prov-1", Name: "Facial", Available: true})
	repo.PutService(Service{ProviderID: "prov-1", Name: "Pending Peel", Available: false})
	repo.PutService(Service{ProviderID: "prov-2", Name: "Massage", Available: true})
	router := newTestRouter(repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/services?provider_id=prov-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Services []Service `json:"services"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Services, 1)
	assert.Equal(t, "Facial", body.Services[0].Name)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/services", nil))
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Len(t, body.Services, 2)
}

func TestApproveAndRejectService(t *testing.T) {
	repo := NewMemoryRepository()
	svc := repo.PutService(Service{ProviderID: "prov-1", Name: "Facial", Available: false})
	router := newTestRouter(repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/services/"+svc.ID+"/approve", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	got, _ := repo.GetService(context.Background(), svc.ID)
	assert.True(t, got.Available)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/services/"+svc.ID+"/reject", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	got, _ = repo.GetService(context.Background(), svc.ID)
	assert.False(t, got.Available)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/services/missing/approve", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSlotsAndBook(t *testing.T) {
	repo := NewMemoryRepository()
	svc := repo.PutService(Service{ProviderID: "prov-1", Name: "Facial", Available: true})
	start := time.Now().UTC().Add(3 * time.Hour)
	slot := &TimeSlot{ServiceID: svc.ID, StartAt: start, EndAt: start.Add(time.Hour), Available: true, PlatformAppointmentID: stringPtr("bk-1")}
	_, err := repo.InsertTimeSlot(context.Background(), slot)
	require.NoError(t, err)
	router := newTestRouter(repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/services/"+svc.ID+"/slots", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Slots []TimeSlot `json:"slots"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Slots, 1)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/slots/"+slot.ID+"/book", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/slots/"+slot.ID+"/book", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListSlotsHiddenService(t *testing.T) {
	repo := NewMemoryRepository()
	svc := repo.PutService(Service{ProviderID: "prov-1", Name: "Pending", Available: false})
	router := newTestRouter(repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/services/"+svc.ID+"/slots", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBookSlotOfPendingServiceIsRefused(t *testing.T) {
	repo := NewMemoryRepository()
	svc := repo.PutService(Service{ProviderID: "prov-1", Name: "Pending Peel", Available: false})
	start := time.Now().UTC().Add(3 * time.Hour)
	slot := &TimeSlot{ServiceID: svc.ID, StartAt: start, EndAt: start.Add(time.Hour), Available: true, PlatformAppointmentID: stringPtr("bk-9")}
	_, err := repo.InsertTimeSlot(context.Background(), slot)
	require.NoError(t, err)
	router := newTestRouter(repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/services/"+svc.ID+"/slots", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/slots/"+slot.ID+"/book", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.True(t, repo.Slots(svc.ID)[0].Available)
}
