// Package pipeline drives update jobs through collection, analysis, diffing
// and screenshot capture, then either pauses for review or applies directly.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/resource-pipeline/internal/analyzer"
	"github.com/jonathan/resource-pipeline/internal/apply"
	"github.com/jonathan/resource-pipeline/internal/collector"
	"github.com/jonathan/resource-pipeline/internal/db"
	"github.com/jonathan/resource-pipeline/internal/diff"
	"github.com/jonathan/resource-pipeline/internal/fetch"
	"github.com/jonathan/resource-pipeline/internal/logging"
	"github.com/jonathan/resource-pipeline/internal/types"
)

// DefaultMinContentChars is the collected-text size below which an analysis
// failure is tolerated and the job continues with metric changes only.
const DefaultMinContentChars = 200

// SystemActor is recorded on automatic changelog entries without a human trigger.
const SystemActor = "system"

var (
	// ErrResourceNotFound is returned when no resource has the requested slug.
	ErrResourceNotFound = errors.New("resource not found")
	// ErrJobNotFound is returned for an unknown job id.
	ErrJobNotFound = errors.New("job not found")
	// ErrActiveJob is returned when the resource already has a non-terminal job.
	ErrActiveJob = db.ErrActiveJob
)

// NotRunnableError is returned when Run is called on a job that is not pending.
type NotRunnableError struct {
	JobID  uuid.UUID
	Status types.JobStatus
}

func (e *NotRunnableError) Error() string {
	return fmt.Sprintf("job %s is %s, only pending jobs can run", e.JobID, e.Status)
}

// ProgressEvent reports a stage transition.
type ProgressEvent struct {
	JobID   uuid.UUID       `json:"job_id"`
	Slug    string          `json:"slug"`
	Status  types.JobStatus `json:"status"`
	Message string          `json:"message,omitempty"`
}

// ProgressCallback is called after every persisted transition.
type ProgressCallback func(event ProgressEvent)

// Collector gathers source material for a resource.
type Collector interface {
	Collect(ctx context.Context, target collector.Target) (*collector.Collection, error)
}

// Analyzer turns collected text into a structured proposal.
type Analyzer interface {
	Analyze(ctx context.Context, in analyzer.Input) (*types.Analysis, error)
}

// Options configures an Orchestrator.
type Options struct {
	// Threshold is the confidence content changes must exceed to be applied unattended.
	Threshold       float64
	MinContentChars int
	OnProgress      ProgressCallback
}

// Orchestrator owns the job state machine.
type Orchestrator struct {
	store     db.Store
	collector Collector
	analyzer  Analyzer
	engine    *diff.Engine
	capturer  fetch.Capturer
	applier   *apply.Applier
	opts      Options
	logger    *zap.Logger
}

// New creates an Orchestrator. capturer may be nil, in which case the
// screenshot stage is skipped.
func New(store db.Store, coll Collector, an Analyzer, engine *diff.Engine, capturer fetch.Capturer, applier *apply.Applier, opts Options, logger *zap.Logger) *Orchestrator {
	if engine == nil {
		engine = diff.NewEngine()
	}
	if opts.Threshold <= 0 {
		opts.Threshold = engine.Threshold
	}
	if opts.MinContentChars <= 0 {
		opts.MinContentChars = DefaultMinContentChars
	}
	if applier == nil {
		applier = apply.New(store, logger)
	}
	return &Orchestrator{
		store:     store,
		collector: coll,
		analyzer:  an,
		engine:    engine,
		capturer:  capturer,
		applier:   applier,
		opts:      opts,
		logger:    logging.OrNop(logger),
	}
}

// CreateJob creates a pending job for the resource identified by slug.
func (o *Orchestrator) CreateJob(ctx context.Context, slug string, trigger types.TriggerKind, actor *string, policy types.ApplyPolicy) (*types.UpdateJob, error) {
	if !trigger.Valid() {
		return nil, fmt.Errorf("invalid trigger %q", trigger)
	}
	if policy == "" {
		policy = types.PolicyReview
	}
	resource, err := o.store.GetResourceBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, slug)
		}
		return nil, fmt.Errorf("failed to load resource %s: %w", slug, err)
	}

	job := types.NewUpdateJob(resource, trigger, actor, policy)
	if err := o.store.CreateJob(ctx, job); err != nil {
		if errors.Is(err, db.ErrActiveJob) {
			return nil, fmt.Errorf("%w: %s", ErrActiveJob, slug)
		}
		return nil, fmt.Errorf("failed to create job for %s: %w", slug, err)
	}

	o.logger.Info("job created",
		zap.String("job_id", job.ID.String()),
		zap.String("slug", slug),
		zap.String("trigger", string(trigger)),
		zap.String("policy", string(policy)))
	return job, nil
}

// GetJob returns a job by id.
func (o *Orchestrator) GetJob(ctx context.Context, id uuid.UUID) (*types.UpdateJob, error) {
	job, err := o.store.GetJob(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	return job, err
}

// ListJobs returns jobs matching filter, newest first.
func (o *Orchestrator) ListJobs(ctx context.Context, filter db.JobFilter) ([]types.UpdateJob, error) {
	return o.store.ListJobs(ctx, filter)
}

// Run executes a pending job's stages in order. Stage failures are recorded
// on the job, which is returned in its final state; the returned error is
// only set when the job could not be loaded or persisted.
func (o *Orchestrator) Run(ctx context.Context, jobID uuid.UUID) (*types.UpdateJob, error) {
	if o.collector == nil || o.analyzer == nil {
		return nil, errors.New("orchestrator has no collector or analyzer configured")
	}
	job, err := o.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != types.StatusPending {
		return nil, &NotRunnableError{JobID: job.ID, Status: job.Status}
	}
	resource, err := o.store.GetResource(ctx, job.ResourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load resource %s: %w", job.ResourceSlug, err)
	}

	log := o.logger.With(zap.String("job_id", job.ID.String()), zap.String("slug", job.ResourceSlug))
	start := time.Now()

	if err := o.advance(ctx, job, types.StatusScraping, ""); err != nil {
		return nil, err
	}

	// Stage 1: collect.
	collection, err := o.collector.Collect(ctx, collector.TargetFor(resource))
	if err != nil {
		return o.fail(ctx, job, fmt.Sprintf("collection interrupted: %v", err))
	}
	job.Sources = collection.Sources
	job.SourceErrors = collection.Errors
	job.CollectedText = collection.Text
	facts := collection.Facts
	job.Facts = &facts
	if collection.AllFailed() {
		return o.fail(ctx, job, "all sources failed: "+joinSourceErrors(collection.Errors))
	}
	if len(collection.Errors) > 0 {
		log.Warn("partial collection", zap.Int("source_errors", len(collection.Errors)))
	}
	if err := o.advance(ctx, job, types.StatusAnalyzing, fmt.Sprintf("collected %d sources", len(collection.Sources))); err != nil {
		return nil, err
	}

	// Stage 2: analyze and diff.
	analysis, err := o.analyzer.Analyze(ctx, analyzer.Input{Resource: resource, Text: collection.Text})
	if err != nil {
		if len(strings.TrimSpace(collection.Text)) >= o.opts.MinContentChars {
			return o.fail(ctx, job, fmt.Sprintf("analysis failed: %v", err))
		}
		log.Warn("analysis failed on trivial content, continuing with metrics only", zap.Error(err))
		job.AnalysisSummary = fmt.Sprintf("analysis skipped: %v", err)
		analysis = nil
	}
	if analysis != nil {
		confidence := analysis.Confidence
		job.AnalysisConfidence = &confidence
		job.AnalysisSummary = analysis.Summary
		job.AnalysisModel = analysis.Model
	}
	job.ProposedChanges = o.engine.Compute(resource, analysis, job.Facts)

	// Stage 3: screenshots, when configured.
	if o.capturer != nil && resource.URL != "" {
		if err := o.advance(ctx, job, types.StatusScreenshots, fmt.Sprintf("%d changes proposed", len(job.ProposedChanges))); err != nil {
			return nil, err
		}
		o.captureScreenshots(ctx, job, resource)
	}

	if job.Policy == types.PolicyAutomatic {
		return o.autoApply(ctx, job, log, start)
	}

	if err := o.advance(ctx, job, types.StatusReadyForReview, fmt.Sprintf("%d changes awaiting review", len(job.ProposedChanges))); err != nil {
		return nil, err
	}
	log.Info("job ready for review",
		zap.Int("changes", len(job.ProposedChanges)),
		zap.Duration("elapsed", time.Since(start)))
	return job, nil
}

func (o *Orchestrator) captureScreenshots(ctx context.Context, job *types.UpdateJob, resource *types.Resource) {
	path, err := o.capturer.Capture(ctx, resource.Slug, resource.URL)
	if err != nil {
		o.logger.Warn("screenshot failed", zap.String("slug", resource.Slug), zap.Error(err))
		job.ScreenshotErrors = append(job.ScreenshotErrors, types.CaptureError{
			URL:        resource.URL,
			Message:    err.Error(),
			OccurredAt: time.Now().UTC(),
		})
		return
	}
	job.NewScreenshots = append(job.NewScreenshots, path)
}

// autoApply commits the changes the automatic policy allows and leaves the rest unapplied.
func (o *Orchestrator) autoApply(ctx context.Context, job *types.UpdateJob, log *zap.Logger, start time.Time) (*types.UpdateJob, error) {
	allowed, held := diff.Partition(job.ProposedChanges, diff.PolicyFor(job.Policy, o.opts.Threshold))
	actor := SystemActor
	if job.TriggeredBy != nil {
		actor = *job.TriggeredBy
	}
	if _, err := o.applier.Apply(ctx, apply.Request{
		Job:     job,
		Changes: allowed,
		Source:  types.SourceAutomatic,
		Actor:   actor,
		Notes:   "automatic refresh",
	}); err != nil {
		if errors.Is(err, db.ErrConflict) {
			return nil, err
		}
		return o.fail(ctx, job, fmt.Sprintf("automatic apply failed: %v", err))
	}
	o.notify(job, fmt.Sprintf("%d changes applied automatically", len(allowed)))
	log.Info("job applied automatically",
		zap.Int("applied", len(allowed)),
		zap.Int("held", len(held)),
		zap.Duration("elapsed", time.Since(start)))
	return job, nil
}

// advance transitions job and persists it together with the outputs gathered so far.
// The save outlives ctx so a cancelled run never leaves the stored status behind.
func (o *Orchestrator) advance(ctx context.Context, job *types.UpdateJob, next types.JobStatus, message string) error {
	expected := job.Status
	if err := job.Transition(next); err != nil {
		return err
	}
	if err := o.store.SaveJob(context.WithoutCancel(ctx), job, expected); err != nil {
		return fmt.Errorf("failed to persist job %s at %s: %w", job.ID, next, err)
	}
	o.notify(job, message)
	return nil
}

// fail moves job to failed, keeping its partial outputs. The save ignores
// cancellation of ctx, which is often the reason the job is failing.
func (o *Orchestrator) fail(ctx context.Context, job *types.UpdateJob, message string) (*types.UpdateJob, error) {
	expected := job.Status
	if err := job.Fail(message); err != nil {
		return nil, err
	}
	if err := o.store.SaveJob(context.WithoutCancel(ctx), job, expected); err != nil {
		return nil, fmt.Errorf("failed to persist failed job %s: %w", job.ID, err)
	}
	o.logger.Warn("job failed",
		zap.String("job_id", job.ID.String()),
		zap.String("slug", job.ResourceSlug),
		zap.String("reason", message))
	o.notify(job, message)
	return job, nil
}

// inFlight are the statuses a job passes through while a run owns it.
var inFlight = []types.JobStatus{
	types.StatusPending, types.StatusScraping, types.StatusAnalyzing,
	types.StatusScreenshots, types.StatusApproved,
}

// Abandon fails an in-flight job whose run is gone, freeing its resource for
// a new job. Jobs awaiting review are closed with a rejection instead.
func (o *Orchestrator) Abandon(ctx context.Context, id uuid.UUID, reason string) (*types.UpdateJob, error) {
	job, err := o.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(inFlight, job.Status) {
		return nil, &types.TransitionError{From: job.Status, To: types.StatusFailed}
	}
	if strings.TrimSpace(reason) == "" {
		reason = "abandoned by operator"
	}
	return o.fail(ctx, job, reason)
}

// FailStale abandons in-flight jobs that have not been updated for olderThan.
// Jobs that move on concurrently are left alone. It returns the number failed.
func (o *Orchestrator) FailStale(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	jobs, err := o.store.ListJobs(ctx, db.JobFilter{Statuses: inFlight})
	if err != nil {
		return 0, fmt.Errorf("failed to list in-flight jobs: %w", err)
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	failed := 0
	for i := range jobs {
		job := &jobs[i]
		if !job.UpdatedAt.Before(cutoff) {
			continue
		}
		reason := fmt.Sprintf("abandoned: no progress in %s since %s", olderThan, job.Status)
		if _, err := o.fail(ctx, job, reason); err != nil {
			if errors.Is(err, db.ErrConflict) {
				continue
			}
			return failed, err
		}
		failed++
	}
	if failed > 0 {
		o.logger.Info("stale jobs failed", zap.Int("count", failed), zap.Duration("older_than", olderThan))
	}
	return failed, nil
}

func (o *Orchestrator) notify(job *types.UpdateJob, message string) {
	if o.opts.OnProgress == nil {
		return
	}
	o.opts.OnProgress(ProgressEvent{
		JobID:   job.ID,
		Slug:    job.ResourceSlug,
		Status:  job.Status,
		Message: message,
	})
}

func joinSourceErrors(errs []types.SourceError) string {
	if len(errs) == 0 {
		return "no sources configured"
	}
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Source+": "+e.Message)
	}
	return strings.Join(parts, "; ")
}
