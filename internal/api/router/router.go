package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/sameday-sync/internal/catalog"
	httpmiddleware "github.com/wolfman30/sameday-sync/internal/http/middleware"
	"github.com/wolfman30/sameday-sync/internal/syncengine"
	"github.com/wolfman30/sameday-sync/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	Catalog        *catalog.Handler
	Sync           *syncengine.Handler
	MetricsHandler http.Handler

	AdminAuthSecret    string
	CORSAllowedOrigins []string
	SyncRateLimitRPS   float64
	SyncRateLimitBurst int

	// Ready is probed by /health when set (database ping).
	Ready func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.Ready))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Catalog != nil {
			cfg.Catalog.RegisterPublicRoutes(public)
		}
	})

	if cfg.Sync != nil {
		cfg.Sync.RegisterRoutes(r,
			httpmiddleware.RateLimit(cfg.SyncRateLimitRPS, cfg.SyncRateLimitBurst, httpmiddleware.ByURLParam("providerID")))
	}

	// Approval toggles need a dashboard token.
	if cfg.AdminAuthSecret != "" && cfg.Catalog != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			cfg.Catalog.RegisterAdminRoutes(admin)
		})
	}

	return r
}

func healthHandler(ready func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}
