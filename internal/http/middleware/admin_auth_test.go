package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func serveAdmin(t *testing.T, secret, header string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/admin/services/svc-1/approve", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	called := false
	AdminJWT(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, ok := AdminClaimsFromContext(r.Context()); !ok {
			t.Fatalf("expected admin claims in context")
		}
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)
	return rec, called
}

func signedAdminToken(t *testing.T, secret string, claims AdminClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func validClaims(role string) AdminClaims {
	return AdminClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "dashboard-user",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		},
	}
}

func TestAdminJWT(t *testing.T) {
	expired := validClaims("admin")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	noExpiry := validClaims("admin")
	noExpiry.ExpiresAt = nil

	cases := []struct {
		name   string
		secret string
		header string
		want   int
	}{
		{"auth disabled", "", "Bearer x", http.StatusUnauthorized},
		{"missing header", "secret", "", http.StatusUnauthorized},
		{"wrong secret", "secret", "Bearer " + signedAdminToken(t, "wrong", validClaims("admin")), http.StatusUnauthorized},
		{"expired", "secret", "Bearer " + signedAdminToken(t, "secret", expired), http.StatusUnauthorized},
		{"no expiry", "secret", "Bearer " + signedAdminToken(t, "secret", noExpiry), http.StatusUnauthorized},
		{"unknown role", "secret", "Bearer " + signedAdminToken(t, "secret", validClaims("consumer")), http.StatusForbidden},
		{"admin", "secret", "Bearer " + signedAdminToken(t, "secret", validClaims("admin")), http.StatusOK},
		{"provider", "secret", "Bearer " + signedAdminToken(t, "secret", validClaims("provider")), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, called := serveAdmin(t, tc.secret, tc.header)
			if rec.Code != tc.want {
				t.Fatalf("expected status %d, got %d", tc.want, rec.Code)
			}
			if called != (tc.want == http.StatusOK) {
				t.Fatalf("handler called = %v", called)
			}
		})
	}
}
