// Package reconcile turns synced appointments into catalog services and time
// slots for a provider.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/sameday-sync/internal/appointments"
	"github.com/wolfman30/sameday-sync/internal/approval"
	"github.com/wolfman30/sameday-sync/internal/catalog"
	"github.com/wolfman30/sameday-sync/pkg/logging"
)

var reconcileTracer = otel.Tracer("sameday.internal.reconcile")

const defaultConcurrency = 4

// ServiceStore is the subset of catalog.Repository the reconciler writes through.
type ServiceStore interface {
	FindSyncedService(ctx context.Context, providerID, syncSource, signature string) (*catalog.Service, error)
	FindWatchedService(ctx context.Context, providerID, name string) (*catalog.Service, error)
	ConvertWatchedService(ctx context.Context, serviceID, syncSource, signature string, metadata map[string]any) (bool, error)
	CreateSyncedService(ctx context.Context, svc *catalog.Service) (bool, error)
}

// CategoryResolver picks the category for a new service.
type CategoryResolver interface {
	Resolve(ctx context.Context, platformName, serviceName string) (*catalog.Category, error)
}

// ApprovalGate is told about every service the reconciler creates.
type ApprovalGate interface {
	ServiceCreated(ctx context.Context, provider catalog.Provider, svc catalog.Service, platformName string) bool
}

// Action records how a group was matched to a service.
type Action string

const (
	ActionMatched   Action = "matched"
	ActionConverted Action = "converted"
	ActionCreated   Action = "created"
)

// Outcome is the service a group resolved to.
type Outcome struct {
	Signature    Signature
	Service      catalog.Service
	Action       Action
	Notified     bool
	Appointments []appointments.SyncedAppointment
}

// Result summarizes one reconciliation pass.
type Result struct {
	Outcomes          []Outcome
	ServicesCreated   int
	ServicesConverted int
	ServicesMatched   int
	GroupsFailed      int
}

// Options configures a Reconciler.
type Options struct {
	PlatformFeePercent float64
	Concurrency        int
	Now                func() time.Time
}

// Reconciler matches signature groups to services, converting watched
// services and creating new ones as needed.
type Reconciler struct {
	store       ServiceStore
	categories  CategoryResolver
	gate        ApprovalGate
	feePercent  float64
	concurrency int
	now         func() time.Time
	logger      *logging.Logger
}

// NewReconciler creates a Reconciler. A nil gate skips approval notifications.
func NewReconciler(store ServiceStore, categories CategoryResolver, gate ApprovalGate, opts Options, logger *logging.Logger) *Reconciler {
	if store == nil {
		panic("reconcile: service store required")
	}
	if categories == nil {
		panic("reconcile: category resolver required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Reconciler{
		store:       store,
		categories:  categories,
		gate:        gate,
		feePercent:  opts.PlatformFeePercent,
		concurrency: opts.Concurrency,
		now:         opts.Now,
		logger:      logger,
	}
}

// Reconcile resolves every signature group of appts to exactly one service.
// A group that fails is logged and left out of the result; only context
// cancellation aborts the pass.
func (r *Reconciler) Reconcile(ctx context.Context, provider catalog.Provider, platformName string, appts []appointments.SyncedAppointment) (Result, error) {
	ctx, span := reconcileTracer.Start(ctx, "reconcile.services", trace.WithAttributes(
		attribute.String("sameday.provider_id", provider.ID),
		attribute.String("sameday.platform", platformName),
		attribute.Int("sameday.appointments", len(appts)),
	))
	defer span.End()

	groups := GroupBySignature(appts)
	outcomes := make([]*Outcome, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, group := range groups {
		g.Go(func() error {
			out, err := r.reconcileGroup(gctx, provider, platformName, group)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.logger.Error("reconcile group failed",
					"provider_id", provider.ID,
					"platform", platformName,
					"signature", group.Signature.Key(),
					"error", err)
				return nil
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("reconcile: %w", err)
	}

	var res Result
	for _, out := range outcomes {
		if out == nil {
			res.GroupsFailed++
			continue
		}
		switch out.Action {
		case ActionCreated:
			res.ServicesCreated++
		case ActionConverted:
			res.ServicesConverted++
		default:
			res.ServicesMatched++
		}
		res.Outcomes = append(res.Outcomes, *out)
	}
	span.SetAttributes(
		attribute.Int("sameday.services_created", res.ServicesCreated),
		attribute.Int("sameday.services_converted", res.ServicesConverted),
		attribute.Int("sameday.groups_failed", res.GroupsFailed),
	)
	return res, nil
}

func (r *Reconciler) reconcileGroup(ctx context.Context, provider catalog.Provider, platformName string, group Group) (*Outcome, error) {
	sig := group.Signature.Key()
	out := &Outcome{Signature: group.Signature, Appointments: group.Appointments}

	existing, err := r.store.FindSyncedService(ctx, provider.ID, platformName, sig)
	switch {
	case err == nil:
		out.Service, out.Action = *existing, ActionMatched
		return out, nil
	case !errors.Is(err, catalog.ErrNotFound):
		return nil, fmt.Errorf("find synced service: %w", err)
	}

	watched, err := r.store.FindWatchedService(ctx, provider.ID, group.Signature.Name)
	switch {
	case err == nil:
		converted, err := r.store.ConvertWatchedService(ctx, watched.ID, platformName, sig, r.conversionMetadata(platformName, group))
		if err != nil {
			return nil, fmt.Errorf("convert watched service %s: %w", watched.ID, err)
		}
		if converted {
			svc := *watched
			svc.SyncSource = &platformName
			svc.PlatformServiceID = &sig
			out.Service, out.Action = svc, ActionConverted
			r.logger.Info("watched service converted",
				"provider_id", provider.ID,
				"service_id", svc.ID,
				"signature", sig)
			return out, nil
		}
		// Another sync claimed the lineage first.
		existing, err := r.store.FindSyncedService(ctx, provider.ID, platformName, sig)
		if err == nil {
			out.Service, out.Action = *existing, ActionMatched
			return out, nil
		}
		if !errors.Is(err, catalog.ErrNotFound) {
			return nil, fmt.Errorf("find synced service: %w", err)
		}
	case !errors.Is(err, catalog.ErrNotFound):
		return nil, fmt.Errorf("find watched service: %w", err)
	}

	return r.createService(ctx, provider, platformName, group, out)
}

func (r *Reconciler) createService(ctx context.Context, provider catalog.Provider, platformName string, group Group, out *Outcome) (*Outcome, error) {
	sig := group.Signature.Key()
	category, err := r.categories.Resolve(ctx, platformName, group.Signature.Name)
	if err != nil {
		return nil, fmt.Errorf("resolve category: %w", err)
	}

	original := group.RepresentativePrice()
	svc := catalog.Service{
		ProviderID:        provider.ID,
		Name:              group.Signature.Name,
		Description:       group.Description(),
		Price:             ApplyDiscount(original, provider.DefaultDiscountPercent, r.feePercent),
		OriginalPrice:     original,
		DurationMinutes:   group.Signature.DurationMinutes,
		Available:         approval.InitialVisibility(provider),
		SyncSource:        &platformName,
		PlatformServiceID: &sig,
		SyncMetadata: map[string]any{
			"platform":                  platformName,
			"signature":                 sig,
			"source_appointment_count":  len(group.Appointments),
			"provider_discount_percent": provider.DefaultDiscountPercent,
			"platform_fee_percent":      r.feePercent,
			"discount_applied":          EffectiveDiscount(provider.DefaultDiscountPercent, r.feePercent),
			"created_by_sync_at":        r.now().UTC().Format(time.RFC3339),
		},
	}
	if category != nil {
		svc.CategoryID = &category.ID
	}

	created, err := r.store.CreateSyncedService(ctx, &svc)
	if err != nil {
		return nil, fmt.Errorf("create synced service: %w", err)
	}
	out.Service = svc
	if !created {
		out.Action = ActionMatched
		return out, nil
	}
	out.Action = ActionCreated
	r.logger.Info("synced service created",
		"provider_id", provider.ID,
		"service_id", svc.ID,
		"signature", sig,
		"price", svc.Price,
		"available", svc.Available)
	if r.gate != nil {
		out.Notified = r.gate.ServiceCreated(ctx, provider, svc, platformName)
	}
	return out, nil
}

func (r *Reconciler) conversionMetadata(platformName string, group Group) map[string]any {
	return map[string]any{
		"platform":                 platformName,
		"signature":                group.Signature.Key(),
		"source_appointment_count": len(group.Appointments),
		"converted_from_watched":   true,
		"converted_at":             r.now().UTC().Format(time.RFC3339),
	}
}
