package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/resource-pipeline/internal/db"
	"github.com/jonathan/resource-pipeline/internal/types"
)

// DefaultParallelism bounds concurrent jobs in a batch.
const DefaultParallelism = 4

// BatchOptions configures RunBatch.
type BatchOptions struct {
	Slugs       []string
	Trigger     types.TriggerKind
	Actor       *string
	Parallelism int
	AutoApply   bool
}

// JobResult is the outcome for one slug in a batch.
type JobResult struct {
	Slug    string          `json:"slug"`
	JobID   uuid.UUID       `json:"job_id"`
	Status  types.JobStatus `json:"status,omitempty"`
	Skipped bool            `json:"skipped,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// BatchResult lists per-slug outcomes in input order.
type BatchResult struct {
	Results  []JobResult   `json:"results"`
	Duration time.Duration `json:"duration"`
}

// Count returns how many jobs finished in status.
func (b *BatchResult) Count(status types.JobStatus) int {
	n := 0
	for _, r := range b.Results {
		if r.Status == status {
			n++
		}
	}
	return n
}

// Skipped returns how many slugs were never started.
func (b *BatchResult) Skipped() int {
	n := 0
	for _, r := range b.Results {
		if r.Skipped {
			n++
		}
	}
	return n
}

// RunBatch runs one job per slug with bounded parallelism. Cancelling ctx
// stops new jobs from starting; jobs already running finish their stages.
// When ctx was cancelled the partial result is returned with ctx.Err().
func (o *Orchestrator) RunBatch(ctx context.Context, opts BatchOptions) (*BatchResult, error) {
	if len(opts.Slugs) == 0 {
		return nil, errors.New("batch requires at least one slug")
	}
	if opts.Trigger == "" {
		opts.Trigger = types.TriggerScheduled
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	policy := types.PolicyReview
	if opts.AutoApply {
		policy = types.PolicyAutomatic
	}

	start := time.Now()
	results := make([]JobResult, len(opts.Slugs))
	for i, slug := range opts.Slugs {
		results[i] = JobResult{Slug: slug, Skipped: true}
	}

	// Jobs run on a context that ignores batch cancellation so an in-flight
	// stage always persists its outcome.
	detached := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(opts.Parallelism)
	for i, slug := range opts.Slugs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			results[i] = o.runOne(detached, slug, opts.Trigger, opts.Actor, policy)
			return nil
		})
	}
	_ = g.Wait()

	batch := &BatchResult{Results: results, Duration: time.Since(start)}
	o.logger.Info("batch finished",
		zap.Int("jobs", len(results)),
		zap.Int("ready_for_review", batch.Count(types.StatusReadyForReview)),
		zap.Int("applied", batch.Count(types.StatusApplied)),
		zap.Int("failed", batch.Count(types.StatusFailed)),
		zap.Int("skipped", batch.Skipped()),
		zap.Duration("elapsed", batch.Duration))
	return batch, ctx.Err()
}

func (o *Orchestrator) runOne(ctx context.Context, slug string, trigger types.TriggerKind, actor *string, policy types.ApplyPolicy) JobResult {
	result := JobResult{Slug: slug}
	job, err := o.CreateJob(ctx, slug, trigger, actor, policy)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.JobID = job.ID
	result.Status = job.Status

	final, err := o.Run(ctx, job.ID)
	if err != nil {
		result.Error = fmt.Sprintf("run failed: %v", err)
		return result
	}
	result.Status = final.Status
	if final.Status == types.StatusFailed {
		result.Error = final.ErrorMessage
	}
	return result
}

// StaleSlugs returns the slugs of resources never verified or last verified
// before now minus staleAfter, oldest first.
func (o *Orchestrator) StaleSlugs(ctx context.Context, staleAfter time.Duration, limit int) ([]string, error) {
	cutoff := time.Now().UTC().Add(-staleAfter)
	resources, err := o.store.ListResources(ctx, db.ResourceFilter{StaleBefore: &cutoff, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to list stale resources: %w", err)
	}
	slugs := make([]string, 0, len(resources))
	for _, r := range resources {
		slugs = append(slugs, r.Slug)
	}
	return slugs, nil
}
