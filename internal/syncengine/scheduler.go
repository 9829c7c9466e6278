package syncengine

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/sameday-sync/internal/platform"
	"github.com/wolfman30/sameday-sync/pkg/logging"
)

// ConnectionLister lists every active platform connection.
type ConnectionLister interface {
	ListActiveConnections(ctx context.Context) ([]platform.Connection, error)
}

// SweepSummary counts the outcome of one scheduled sweep.
type SweepSummary struct {
	Attempted      int
	Succeeded      int
	Failed         int
	NotImplemented int
}

// Scheduler runs incremental syncs for every active connection on a cron spec.
type Scheduler struct {
	connections ConnectionLister
	syncer      Syncer
	concurrency int
	cron        *cron.Cron
	logger      *logging.Logger

	mu      sync.Mutex
	baseCtx context.Context
}

// NewScheduler validates spec and registers the sweep. Overlapping sweeps are skipped.
func NewScheduler(connections ConnectionLister, syncer Syncer, spec string, concurrency int, logger *logging.Logger) (*Scheduler, error) {
	if connections == nil || syncer == nil {
		return nil, fmt.Errorf("syncengine: scheduler requires connections and syncer")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	s := &Scheduler{
		connections: connections,
		syncer:      syncer,
		concurrency: concurrency,
		logger:      logger,
		baseCtx:     context.Background(),
	}
	cl := cronLogger{logger: logger}
	s.cron = cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("syncengine: invalid sync schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins firing sweeps; they run under ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()
	s.cron.Start()
	s.logger.Info("sync scheduler started", "concurrency", s.concurrency)
}

// Stop halts the schedule and returns a context that is done when the
// running sweep, if any, finishes.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("scheduled sync sweep failed", "error", err)
	}
}

// RunOnce syncs every active connection incrementally with bounded
// concurrency. Per-pair failures are logged and counted.
func (s *Scheduler) RunOnce(ctx context.Context) (SweepSummary, error) {
	conns, err := s.connections.ListActiveConnections(ctx)
	if err != nil {
		return SweepSummary{}, fmt.Errorf("syncengine: list connections: %w", err)
	}

	var (
		mu      sync.Mutex
		summary SweepSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, conn := range conns {
		g.Go(func() error {
			res, err := s.syncer.TriggerSync(gctx, Request{
				ProviderID: conn.ProviderID,
				Platform:   conn.Platform,
				SyncType:   platform.SyncIncremental,
			})
			mu.Lock()
			defer mu.Unlock()
			summary.Attempted++
			switch {
			case err != nil:
				summary.Failed++
				s.logger.Warn("scheduled sync failed", "provider_id", conn.ProviderID, "platform", conn.Platform, "error", err)
			case res != nil && res.NotImplemented:
				summary.NotImplemented++
			default:
				summary.Succeeded++
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("scheduled sync sweep complete",
		"attempted", summary.Attempted,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"not_implemented", summary.NotImplemented)
	return summary, ctx.Err()
}

type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
