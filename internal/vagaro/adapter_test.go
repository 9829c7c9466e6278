package vagaro

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wolfman30/sameday-sync/internal/platform"
	"github.com/wolfman30/sameday-sync/pkg/logging"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewAdapter(Options{BaseURL: ts.URL + "/", Transport: platform.TransportOptions{MaxRetries: -1}}, logging.Default())
}

var testConn = platform.Connection{ID: "conn-1", ProviderID: "prov-1", Platform: Name, AccessToken: "tok", MerchantID: "biz-1"}

func TestFetchWithoutBaseURLReportsNotImplemented(t *testing.T) {
	a := NewAdapter(Options{}, nil)
	if a.Platform() != "vagaro" {
		t.Fatalf("Platform() = %q", a.Platform())
	}
	got, err := a.Fetch(context.Background(), "prov-1", testConn, platform.DateWindow{})
	if !errors.Is(err, platform.ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented, got %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no appointments, got %d", len(got))
	}
}

func TestGetServices_DataEnvelope(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/api/v1/businesses/biz-1/services" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Fatalf("Authorization = %q", got)
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"svc-1","name":"Botox","active":true}]}`))
	})

	services, err := a.GetServices(context.Background(), testConn, "biz-1")
	if err != nil {
		t.Fatalf("GetServices() error = %v", err)
	}
	if len(services) != 1 || services[0].ID != "svc-1" {
		t.Fatalf("services = %+v", services)
	}
}

func TestFetchNormalizesOpenSlotsInsideWindow(t *testing.T) {
	var availabilityCalls atomic.Int32
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/businesses/biz-1/services":
			_, _ = w.Write([]byte(`{"services":[
				{"id":"svc-1","name":"Express Facial","durationMinutes":45,"priceCents":8500,"active":true},
				{"id":"svc-2","name":"Retired Wax","active":false}]}`))
		case "/api/v1/businesses/biz-1/availability":
			availabilityCalls.Add(1)
			if r.URL.Query().Get("serviceId") != "svc-1" {
				t.Fatalf("serviceId = %s", r.URL.Query().Get("serviceId"))
			}
			if r.URL.Query().Get("date") != "2026-02-21" {
				_, _ = w.Write([]byte(`{"slots":[]}`))
				return
			}
			_, _ = w.Write([]byte(`{"slots":[
				{"start":"2026-02-21T08:00:00Z","end":"2026-02-21T08:30:00Z","providerId":"st-1","available":true},
				{"start":"2026-02-21T10:00:00Z","end":"2026-02-21T10:30:00Z","providerId":"st-1","available":true},
				{"start":"2026-02-21T11:00:00Z","end":"2026-02-21T11:30:00Z","providerId":"st-2","available":false}]}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	window := platform.DateWindow{
		Start: time.Date(2026, 2, 21, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC),
	}
	got, err := a.Fetch(context.Background(), "prov-1", testConn, window)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if n := availabilityCalls.Load(); n != 2 {
		t.Fatalf("availability calls = %d, want 2 (one per window day)", n)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 open slot inside window, got %+v", got)
	}
	appt := got[0]
	if appt.ServiceName != "Express Facial" || appt.DurationMinutes != 30 || !appt.Available || appt.Status != statusOpen {
		t.Fatalf("unexpected appointment %+v", appt)
	}
	if appt.Amount == nil || *appt.Amount != 85 {
		t.Fatalf("amount = %v, want 85", appt.Amount)
	}
	if appt.ID != "svc-1:st-1:2026-02-21T10:00:00Z" {
		t.Fatalf("id = %s", appt.ID)
	}
}

func TestFetchSurfacesAPIError(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
	})

	_, err := a.Fetch(context.Background(), "prov-1", testConn, platform.DateWindow{})
	var apiErr *platform.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 APIError, got %v", err)
	}
}

func TestFetchRequiresBusinessID(t *testing.T) {
	a := NewAdapter(Options{BaseURL: "http://vagaro.invalid"}, nil)
	conn := testConn
	conn.MerchantID = " "
	if _, err := a.Fetch(context.Background(), "prov-1", conn, platform.DateWindow{}); err == nil {
		t.Fatal("expected error for missing business id")
	}
}

func TestWindowDaysCapsOpenEndedWindow(t *testing.T) {
	start := time.Date(2026, 2, 21, 15, 0, 0, 0, time.UTC)
	days := windowDays(platform.DateWindow{Start: start})
	if len(days) != maxWindowDays {
		t.Fatalf("len(days) = %d, want %d", len(days), maxWindowDays)
	}
	if !days[0].Equal(time.Date(2026, 2, 21, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("first day = %v", days[0])
	}
}
