package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/resource-pipeline/internal/logging"
	"github.com/jonathan/resource-pipeline/internal/types"
)

// SchedulerOptions configures periodic refreshes.
type SchedulerOptions struct {
	Interval    time.Duration
	StaleAfter  time.Duration
	BatchSize   int
	Parallelism int
	AutoApply   bool
}

// Scheduler refreshes stale resources on a fixed interval.
type Scheduler struct {
	orch   *Orchestrator
	opts   SchedulerOptions
	logger *zap.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(orch *Orchestrator, opts SchedulerOptions, logger *zap.Logger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 7 * 24 * time.Hour
	}
	return &Scheduler{orch: orch, opts: opts, logger: logging.OrNop(logger)}
}

// Start runs a tick immediately and then every Interval until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("scheduled refresh failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce refreshes the currently stale resources. It returns nil when
// nothing is stale.
func (s *Scheduler) RunOnce(ctx context.Context) (*BatchResult, error) {
	slugs, err := s.orch.StaleSlugs(ctx, s.opts.StaleAfter, s.opts.BatchSize)
	if err != nil {
		return nil, err
	}
	if len(slugs) == 0 {
		s.logger.Debug("no stale resources")
		return nil, nil
	}
	s.logger.Info("starting scheduled refresh", zap.Int("resources", len(slugs)))
	return s.orch.RunBatch(ctx, BatchOptions{
		Slugs:       slugs,
		Trigger:     types.TriggerScheduled,
		Parallelism: s.opts.Parallelism,
		AutoApply:   s.opts.AutoApply,
	})
}
