// Package apply commits proposed changes to a resource. Reviewer approvals
// and unattended runs share this path so both produce the same audit trail.
package apply

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/jonathan/resource-pipeline/internal/db"
	"github.com/jonathan/resource-pipeline/internal/logging"
	"github.com/jonathan/resource-pipeline/internal/types"
)

// Request is one apply operation.
type Request struct {
	Job *types.UpdateJob
	// Changes is the subset of the job's proposals to commit; may be empty.
	Changes []types.ProposedChange
	Source  types.ChangeSource
	Actor   string
	Notes   string
}

// Result describes what was committed.
type Result struct {
	Job      *types.UpdateJob
	Resource *types.Resource
	// Entry is nil when no field changed.
	Entry *types.ChangelogEntry
}

// Applier writes field patches, the changelog entry and the job's final
// status in a single store transaction.
type Applier struct {
	store  db.Store
	logger *zap.Logger
	now    func() time.Time
}

// New creates an Applier.
func New(store db.Store, logger *zap.Logger) *Applier {
	return &Applier{
		store:  store,
		logger: logging.OrNop(logger),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Apply commits req. The job moves through approved to applied. On any error
// nothing is written and req.Job is left unchanged.
func (a *Applier) Apply(ctx context.Context, req Request) (*Result, error) {
	if req.Job == nil {
		return nil, errors.New("apply: job is required")
	}
	job := *req.Job
	expected := job.Status

	resource, err := a.store.GetResource(ctx, job.ResourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load resource %s: %w", job.ResourceSlug, err)
	}

	if job.Status != types.StatusApproved {
		if err := job.Transition(types.StatusApproved); err != nil {
			return nil, err
		}
	}

	applied := make([]types.AppliedChange, 0, len(req.Changes))
	for _, change := range req.Changes {
		oldValue, err := resource.FieldValue(change.Field)
		if err != nil {
			return nil, err
		}
		if err := resource.SetField(change.Field, change.NewValue); err != nil {
			return nil, err
		}
		applied = append(applied, types.AppliedChange{
			Field:    change.Field,
			OldValue: oldValue,
			NewValue: change.NewValue,
		})
	}

	now := a.now()
	resource.RefreshContentHash()
	resource.LastVerifiedAt = &now
	if len(job.NewScreenshots) > 0 {
		resource.Screenshots = slices.Clone(job.NewScreenshots)
	}

	var entry *types.ChangelogEntry
	if len(applied) > 0 {
		entry = &types.ChangelogEntry{
			ID:         uuid.New(),
			ResourceID: resource.ID,
			JobID:      job.ID,
			Changes:    applied,
			Summary:    Summarize(req.Changes, req.Notes),
			Source:     req.Source,
			Actor:      req.Actor,
			CreatedAt:  now,
		}
	}

	job.AppliedFields = lo.Map(req.Changes, func(c types.ProposedChange, _ int) string { return c.Field })
	if err := job.Transition(types.StatusApplied); err != nil {
		return nil, err
	}

	if err := a.store.ApplyChanges(ctx, db.ApplyInput{
		Job:      &job,
		Expected: expected,
		Resource: resource,
		Entry:    entry,
	}); err != nil {
		return nil, fmt.Errorf("failed to apply job %s: %w", job.ID, err)
	}

	a.logger.Info("changes applied",
		zap.String("job_id", job.ID.String()),
		zap.String("slug", resource.Slug),
		zap.String("source", string(req.Source)),
		zap.Strings("fields", job.AppliedFields))

	*req.Job = job
	return &Result{Job: &job, Resource: resource, Entry: entry}, nil
}

// Summarize builds the changelog summary from the applied changes and optional notes.
func Summarize(changes []types.ProposedChange, notes string) string {
	labels := lo.Map(changes, func(c types.ProposedChange, _ int) string {
		if c.Label != "" {
			return c.Label
		}
		return c.Field
	})
	summary := "Updated " + strings.Join(labels, ", ")
	if notes = strings.TrimSpace(notes); notes != "" {
		summary += ": " + notes
	}
	return summary
}
