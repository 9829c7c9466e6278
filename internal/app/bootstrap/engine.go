package bootstrap

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/sameday-sync/internal/appointments"
	"github.com/wolfman30/sameday-sync/internal/approval"
	"github.com/wolfman30/sameday-sync/internal/archive"
	"github.com/wolfman30/sameday-sync/internal/catalog"
	"github.com/wolfman30/sameday-sync/internal/classifier"
	appconfig "github.com/wolfman30/sameday-sync/internal/config"
	"github.com/wolfman30/sameday-sync/internal/notify"
	"github.com/wolfman30/sameday-sync/internal/observability/metrics"
	"github.com/wolfman30/sameday-sync/internal/platform"
	"github.com/wolfman30/sameday-sync/internal/reconcile"
	"github.com/wolfman30/sameday-sync/internal/syncengine"
	"github.com/wolfman30/sameday-sync/pkg/logging"
)

// SyncDeps are the optional backends for the sync engine. Nil fields fall
// back to in-memory stores or disable the feature.
type SyncDeps struct {
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	AWS        *aws.Config
	Email      notify.EmailSender
	Registerer prometheus.Registerer
	// Registry overrides the adapter registry built from config.
	Registry *platform.Registry
}

// SyncRuntime is everything built around one Engine.
type SyncRuntime struct {
	Engine   *syncengine.Engine
	Catalog  catalog.Repository
	Store    appointments.Store
	Registry *platform.Registry
	Metrics  *metrics.SyncMetrics
}

// BuildSyncEngine wires stores, classifier, approval gate, reconciler and
// materializer into a sync engine.
func BuildSyncEngine(cfg *appconfig.Config, deps SyncDeps, logger *logging.Logger) (*SyncRuntime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	var (
		repo  catalog.Repository
		store appointments.Store
	)
	if deps.Pool != nil {
		repo = catalog.NewPostgresRepository(deps.Pool)
		store = appointments.NewPostgresStore(deps.Pool)
	} else {
		logger.Warn("no database configured, using in-memory catalog")
		repo = catalog.NewMemoryRepository()
		store = appointments.NewMemoryStore()
	}

	registry := deps.Registry
	if registry == nil {
		registry = BuildRegistry(cfg, logger)
	}

	email := deps.Email
	if email == nil {
		email = notify.NewStubEmailSender(logger)
	}
	gate := approval.NewGate(notify.NewService(email, logger), logger)
	categories := classifier.New(repo, nil, cfg.DefaultCategoryTable(), logger)

	reconciler := reconcile.NewReconciler(repo, categories, gate, reconcile.Options{
		PlatformFeePercent: cfg.PlatformFeePercent,
		Concurrency:        cfg.SyncGroupConcurrency,
	}, logger)
	materializer := reconcile.NewMaterializer(repo, loc, nil, logger)

	var syncMetrics *metrics.SyncMetrics
	if deps.Registerer != nil {
		syncMetrics = metrics.NewSyncMetrics(deps.Registerer)
	}
	opts := []syncengine.EngineOption{
		syncengine.WithWindow(cfg.SyncWindowDays, cfg.SyncIncrementalOverlap),
		syncengine.WithLocation(loc),
		syncengine.WithMetrics(syncMetrics),
	}
	if deps.Redis != nil {
		opts = append(opts, syncengine.WithWatermarks(syncengine.NewWatermarkStore(deps.Redis)))
	}
	if cfg.ArchiveBucket != "" && deps.AWS != nil {
		opts = append(opts, syncengine.WithArchive(archive.NewStore(s3.NewFromConfig(*deps.AWS, func(o *s3.Options) {
			o.UsePathStyle = cfg.AWSEndpointOverride != ""
		}), cfg.ArchiveBucket, logger)))
		logger.Info("raw fetch archive enabled", "bucket", cfg.ArchiveBucket)
	}

	engine := syncengine.NewEngine(registry, repo, store, reconciler, materializer, logger, opts...)
	return &SyncRuntime{
		Engine:   engine,
		Catalog:  repo,
		Store:    store,
		Registry: registry,
		Metrics:  syncMetrics,
	}, nil
}
