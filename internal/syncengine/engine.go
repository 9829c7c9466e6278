// Package syncengine runs sync passes for (provider, platform) pairs: fetch
// through the platform adapter, upsert, reconcile services and materialize
// time slots. It also carries the async queue, job status and schedule that
// trigger those passes.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/sameday-sync/internal/appointments"
	"github.com/wolfman30/sameday-sync/internal/archive"
	"github.com/wolfman30/sameday-sync/internal/catalog"
	"github.com/wolfman30/sameday-sync/internal/observability/metrics"
	"github.com/wolfman30/sameday-sync/internal/platform"
	"github.com/wolfman30/sameday-sync/internal/reconcile"
	"github.com/wolfman30/sameday-sync/pkg/logging"
)

var syncTracer = otel.Tracer("sameday.internal.syncengine")

var (
	// ErrNoConnection is returned when the provider has no active connection to the platform.
	ErrNoConnection = errors.New("syncengine: no active platform connection")
	// ErrUnknownProvider is returned when the provider does not exist.
	ErrUnknownProvider = errors.New("syncengine: unknown provider")
)

// AdapterFailure wraps an adapter error that failed the run. Nothing was
// written for the run when it is returned.
type AdapterFailure struct {
	Platform string
	Err      error
}

func (e *AdapterFailure) Error() string {
	return fmt.Sprintf("syncengine: %s adapter: %v", e.Platform, e.Err)
}

func (e *AdapterFailure) Unwrap() error {
	return e.Err
}

// IsAdapterFailure reports whether err came from the platform adapter.
func IsAdapterFailure(err error) bool {
	var af *AdapterFailure
	return errors.As(err, &af)
}

// Request names the pair to sync.
type Request struct {
	ProviderID string            `json:"provider_id"`
	Platform   string            `json:"platform"`
	SyncType   platform.SyncType `json:"sync_type"`
}

// Result is what one sync run did.
type Result struct {
	RunID             string `json:"run_id" dynamodbav:"runId"`
	SyncedCount       int    `json:"synced_count" dynamodbav:"syncedCount"`
	ServicesCreated   int    `json:"services_created" dynamodbav:"servicesCreated"`
	ServicesConverted int    `json:"services_converted" dynamodbav:"servicesConverted"`
	SlotsCreated      int    `json:"slots_created" dynamodbav:"slotsCreated"`
	SlotsRetired      int    `json:"slots_retired" dynamodbav:"slotsRetired"`
	GroupsFailed      int    `json:"groups_failed,omitempty" dynamodbav:"groupsFailed,omitempty"`
	NotImplemented    bool   `json:"not_implemented" dynamodbav:"notImplemented"`
}

// CatalogReader is the catalog lookup surface the engine needs.
type CatalogReader interface {
	GetProvider(ctx context.Context, providerID string) (*catalog.Provider, error)
	GetActiveConnection(ctx context.Context, providerID, platformName string) (*platform.Connection, error)
}

// Watermarks stores the last successful fetch time per pair.
type Watermarks interface {
	Get(ctx context.Context, providerID, platformName string) (time.Time, bool, error)
	Set(ctx context.Context, providerID, platformName string, at time.Time) error
}

// Archiver keeps a copy of raw fetches.
type Archiver interface {
	ArchiveFetch(ctx context.Context, record *archive.FetchRecord) (string, error)
}

const (
	defaultWindowDays = 14
	defaultOverlap    = 2 * time.Minute
)

type engineConfig struct {
	watermarks Watermarks
	archive    Archiver
	metrics    *metrics.SyncMetrics
	windowDays int
	overlap    time.Duration
	loc        *time.Location
	now        func() time.Time
}

// EngineOption customizes an Engine.
type EngineOption func(*engineConfig)

// WithWatermarks enables incremental syncs.
func WithWatermarks(w Watermarks) EngineOption {
	return func(cfg *engineConfig) {
		cfg.watermarks = w
	}
}

// WithArchive archives every successful fetch.
func WithArchive(a Archiver) EngineOption {
	return func(cfg *engineConfig) {
		cfg.archive = a
	}
}

// WithMetrics records run outcomes.
func WithMetrics(m *metrics.SyncMetrics) EngineOption {
	return func(cfg *engineConfig) {
		cfg.metrics = m
	}
}

// WithWindow sets the fetch horizon and the incremental overlap.
func WithWindow(days int, overlap time.Duration) EngineOption {
	return func(cfg *engineConfig) {
		if days > 0 {
			cfg.windowDays = days
		}
		if overlap >= 0 {
			cfg.overlap = overlap
		}
	}
}

// WithLocation sets the operating timezone the window is computed in.
func WithLocation(loc *time.Location) EngineOption {
	return func(cfg *engineConfig) {
		if loc != nil {
			cfg.loc = loc
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) EngineOption {
	return func(cfg *engineConfig) {
		if now != nil {
			cfg.now = now
		}
	}
}

// Engine runs sync passes. It is safe for concurrent use across pairs.
type Engine struct {
	registry     *platform.Registry
	catalog      CatalogReader
	store        appointments.Store
	reconciler   *reconcile.Reconciler
	materializer *reconcile.Materializer
	logger       *logging.Logger
	cfg          engineConfig
}

// NewEngine wires an Engine.
func NewEngine(registry *platform.Registry, catalogReader CatalogReader, store appointments.Store, reconciler *reconcile.Reconciler, materializer *reconcile.Materializer, logger *logging.Logger, opts ...EngineOption) *Engine {
	if registry == nil {
		panic("syncengine: registry cannot be nil")
	}
	if catalogReader == nil {
		panic("syncengine: catalog cannot be nil")
	}
	if store == nil {
		panic("syncengine: appointment store cannot be nil")
	}
	if reconciler == nil || materializer == nil {
		panic("syncengine: reconciler and materializer required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := engineConfig{
		windowDays: defaultWindowDays,
		overlap:    defaultOverlap,
		loc:        time.UTC,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine{
		registry:     registry,
		catalog:      catalogReader,
		store:        store,
		reconciler:   reconciler,
		materializer: materializer,
		logger:       logger,
		cfg:          cfg,
	}
}

// TriggerSync runs one sync pass. Only adapter failures (*AdapterFailure),
// lookup errors and store outages are returned; failed reconcile groups and
// slot inserts show up as smaller counts.
func (e *Engine) TriggerSync(ctx context.Context, req Request) (*Result, error) {
	if req.SyncType == "" {
		req.SyncType = platform.SyncFull
	}
	adapter, err := e.registry.Lookup(req.Platform)
	if err != nil {
		return nil, err
	}
	platformName := adapter.Platform()
	result := &Result{RunID: uuid.NewString()}
	started := e.cfg.now()

	ctx, span := syncTracer.Start(ctx, "syncengine.trigger_sync")
	defer span.End()
	span.SetAttributes(
		attribute.String("sameday.run_id", result.RunID),
		attribute.String("sameday.provider_id", req.ProviderID),
		attribute.String("sameday.platform", platformName),
		attribute.String("sameday.sync_type", string(req.SyncType)),
	)
	logger := e.logger.With("run_id", result.RunID, "provider_id", req.ProviderID, "platform", platformName, "sync_type", req.SyncType)

	status := metrics.StatusFailed
	defer func() {
		e.cfg.metrics.ObserveRun(platformName, string(req.SyncType), status, e.cfg.now().Sub(started).Seconds())
	}()

	provider, conn, err := e.lookup(ctx, req.ProviderID, platformName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		return nil, err
	}

	window := e.window(ctx, req, platformName, logger)
	fetchedAt := e.cfg.now()
	raws, err := adapter.Fetch(ctx, req.ProviderID, *conn, window)
	if errors.Is(err, platform.ErrNotImplemented) {
		status = metrics.StatusNotImplemented
		result.NotImplemented = true
		logger.Info("platform sync not yet implemented")
		return result, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "adapter failed")
		logger.Error("adapter fetch failed", "error", err)
		return nil, &AdapterFailure{Platform: platformName, Err: err}
	}
	logger.Info("adapter fetch complete", "count", len(raws))

	e.archiveFetch(ctx, result.RunID, req, platformName, window, fetchedAt, raws, logger)

	synced, err := e.store.Upsert(ctx, req.ProviderID, platformName, raws)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("syncengine: upsert: %w", err)
	}
	result.SyncedCount = synced
	e.cfg.metrics.AddItems(platformName, "appointments", synced)

	if err := e.reconcileAndMaterialize(ctx, *provider, platformName, window, result, logger); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if e.cfg.watermarks != nil {
		if err := e.cfg.watermarks.Set(ctx, req.ProviderID, platformName, fetchedAt); err != nil {
			logger.Warn("failed to advance sync watermark", "error", err)
		}
	}

	status = metrics.StatusSucceeded
	span.SetAttributes(
		attribute.Int("sameday.synced_count", result.SyncedCount),
		attribute.Int("sameday.services_created", result.ServicesCreated),
		attribute.Int("sameday.slots_created", result.SlotsCreated),
	)
	logger.Info("sync run complete",
		"synced_count", result.SyncedCount,
		"services_created", result.ServicesCreated,
		"services_converted", result.ServicesConverted,
		"slots_created", result.SlotsCreated,
		"slots_retired", result.SlotsRetired,
		"groups_failed", result.GroupsFailed,
	)
	return result, nil
}

func (e *Engine) lookup(ctx context.Context, providerID, platformName string) (*catalog.Provider, *platform.Connection, error) {
	provider, err := e.catalog.GetProvider(ctx, providerID)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("syncengine: load provider: %w", err)
	}
	conn, err := e.catalog.GetActiveConnection(ctx, providerID, platformName)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: %s/%s", ErrNoConnection, providerID, platformName)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("syncengine: load connection: %w", err)
	}
	return provider, conn, nil
}

// window is [today, today+windowDays) in the operating timezone; incremental
// runs with a watermark also set UpdatedSince.
func (e *Engine) window(ctx context.Context, req Request, platformName string, logger *logging.Logger) platform.DateWindow {
	local := e.cfg.now().In(e.cfg.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, e.cfg.loc)
	window := platform.DateWindow{Start: start, End: start.AddDate(0, 0, e.cfg.windowDays)}

	if req.SyncType != platform.SyncIncremental || e.cfg.watermarks == nil {
		return window
	}
	mark, ok, err := e.cfg.watermarks.Get(ctx, req.ProviderID, platformName)
	if err != nil {
		logger.Warn("failed to read sync watermark, running full window", "error", err)
		return window
	}
	if !ok {
		logger.Info("no sync watermark yet, running full window")
		return window
	}
	since := mark.Add(-e.cfg.overlap)
	window.UpdatedSince = &since
	return window
}

func (e *Engine) archiveFetch(ctx context.Context, runID string, req Request, platformName string, window platform.DateWindow, fetchedAt time.Time, raws []platform.RawAppointment, logger *logging.Logger) {
	if e.cfg.archive == nil {
		return
	}
	_, err := e.cfg.archive.ArchiveFetch(ctx, &archive.FetchRecord{
		RunID:        runID,
		ProviderID:   req.ProviderID,
		Platform:     platformName,
		SyncType:     string(req.SyncType),
		WindowStart:  window.Start,
		WindowEnd:    window.End,
		UpdatedSince: window.UpdatedSince,
		FetchedAt:    fetchedAt.UTC(),
		Appointments: raws,
	})
	if err != nil {
		logger.Warn("failed to archive fetch", "error", err)
	}
}

func (e *Engine) reconcileAndMaterialize(ctx context.Context, provider catalog.Provider, platformName string, window platform.DateWindow, result *Result, logger *logging.Logger) error {
	available, err := e.store.ListAvailable(ctx, provider.ID, platformName)
	if err != nil {
		return fmt.Errorf("syncengine: list available appointments: %w", err)
	}
	reconciled, err := e.reconciler.Reconcile(ctx, provider, platformName, available)
	if err != nil {
		return fmt.Errorf("syncengine: %w", err)
	}
	result.ServicesCreated = reconciled.ServicesCreated
	result.ServicesConverted = reconciled.ServicesConverted
	result.GroupsFailed = reconciled.GroupsFailed
	e.cfg.metrics.AddItems(platformName, "services_created", reconciled.ServicesCreated)
	e.cfg.metrics.AddItems(platformName, "services_converted", reconciled.ServicesConverted)

	materialized, err := e.materializer.Materialize(ctx, platformName, reconciled.Outcomes)
	result.SlotsCreated = materialized.SlotsCreated
	e.cfg.metrics.AddItems(platformName, "slots_created", materialized.SlotsCreated)
	if err != nil {
		return fmt.Errorf("syncengine: %w", err)
	}
	if materialized.Failed > 0 {
		logger.Warn("some time slots failed to materialize", "failed", materialized.Failed)
	}

	// Only cancellations inside this run's fetch window can still hold open
	// slots; older ones were retired by the run that saw them.
	unavailable, err := e.store.ListUnavailable(ctx, provider.ID, platformName, platform.DateWindow{Start: window.Start, End: window.End})
	if err != nil {
		return fmt.Errorf("syncengine: list unavailable appointments: %w", err)
	}
	retired, err := e.materializer.Retire(ctx, provider.ID, platformName, unavailable)
	if err != nil {
		return fmt.Errorf("syncengine: %w", err)
	}
	result.SlotsRetired = retired
	e.cfg.metrics.AddItems(platformName, "slots_retired", retired)
	return nil
}
