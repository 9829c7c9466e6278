package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func TestRateLimiterRefills(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.Allow("prov-1") || !rl.Allow("prov-1") {
		t.Fatal("expected burst of 2")
	}
	if rl.Allow("prov-1") {
		t.Fatal("expected third call to be limited")
	}
	if !rl.Allow("prov-2") {
		t.Fatal("keys must not share buckets")
	}
	now = now.Add(time.Second)
	if !rl.Allow("prov-1") {
		t.Fatal("expected a token after one second")
	}

	rl.Evict(now.Add(time.Minute))
	if len(rl.buckets) != 0 {
		t.Fatalf("expected idle buckets evicted, got %d", len(rl.buckets))
	}
}

func TestRateLimitByProvider(t *testing.T) {
	r := chi.NewRouter()
	r.With(RateLimit(0.001, 1, ByURLParam("providerID"))).
		Post("/providers/{providerID}/sync", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

	call := func(provider string) int {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/providers/"+provider+"/sync", nil))
		return rec.Code
	}
	if code := call("prov-1"); code != http.StatusOK {
		t.Fatalf("first call: %d", code)
	}
	if code := call("prov-1"); code != http.StatusTooManyRequests {
		t.Fatalf("second call: %d", code)
	}
	if code := call("prov-2"); code != http.StatusOK {
		t.Fatalf("other provider: %d", code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	h := RateLimit(0, 1, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("call %d limited", i)
		}
	}
}
