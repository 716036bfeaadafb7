// Package review implements the human gate: approving a subset of a job's
// proposals or rejecting the job outright.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/resource-pipeline/internal/apply"
	"github.com/jonathan/resource-pipeline/internal/auth"
	"github.com/jonathan/resource-pipeline/internal/db"
	"github.com/jonathan/resource-pipeline/internal/logging"
	"github.com/jonathan/resource-pipeline/internal/types"
)

// Service approves and rejects jobs awaiting review.
type Service struct {
	store   db.Store
	applier *apply.Applier
	authz   auth.Authorizer
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a review Service. A nil authorizer defaults to
// auth.RoleAuthorizer.
func NewService(store db.Store, applier *apply.Applier, authz auth.Authorizer, logger *zap.Logger) *Service {
	if authz == nil {
		authz = auth.RoleAuthorizer{}
	}
	return &Service{
		store:   store,
		applier: applier,
		authz:   authz,
		logger:  logging.OrNop(logger),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Approve applies the selected fields of a job in ready_for_review. Every
// field must have a proposal. An empty selection is only accepted when the
// job proposed nothing, which records the resource as verified.
func (s *Service) Approve(ctx context.Context, caller types.Caller, jobID uuid.UUID, fields []string, notes string) (*types.UpdateJob, error) {
	if err := s.authorize(ctx, caller); err != nil {
		return nil, err
	}
	job, err := s.reviewable(ctx, jobID)
	if err != nil {
		return nil, err
	}

	selected := make([]types.ProposedChange, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, field := range fields {
		if seen[field] {
			continue
		}
		seen[field] = true
		change, ok := job.ProposedChange(field)
		if !ok {
			return nil, &FieldNotProposedError{Field: field}
		}
		selected = append(selected, change)
	}
	if len(selected) == 0 && len(job.ProposedChanges) > 0 {
		return nil, ErrNoFieldsSelected
	}

	now := s.now()
	actor := caller.ID
	job.ReviewedBy = &actor
	job.ReviewedAt = &now
	job.ReviewNotes = strings.TrimSpace(notes)

	result, err := s.applier.Apply(ctx, apply.Request{
		Job:     job,
		Changes: selected,
		Source:  types.SourceReviewed,
		Actor:   caller.ID,
		Notes:   notes,
	})
	if err != nil {
		return nil, s.storeError(ctx, jobID, err)
	}

	s.logger.Info("job approved",
		zap.String("job_id", jobID.String()),
		zap.String("reviewer", caller.ID),
		zap.Int("applied", len(selected)))
	return result.Job, nil
}

// Reject closes a job in ready_for_review without applying anything.
func (s *Service) Reject(ctx context.Context, caller types.Caller, jobID uuid.UUID, notes string) (*types.UpdateJob, error) {
	if err := s.authorize(ctx, caller); err != nil {
		return nil, err
	}
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, ErrMissingReason
	}
	job, err := s.reviewable(ctx, jobID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	actor := caller.ID
	job.ReviewedBy = &actor
	job.ReviewedAt = &now
	job.ReviewNotes = notes
	if err := job.Transition(types.StatusRejected); err != nil {
		return nil, err
	}
	if err := s.store.SaveJob(ctx, job, types.StatusReadyForReview); err != nil {
		return nil, s.storeError(ctx, jobID, err)
	}

	s.logger.Info("job rejected",
		zap.String("job_id", jobID.String()),
		zap.String("reviewer", caller.ID))
	return job, nil
}

func (s *Service) authorize(ctx context.Context, caller types.Caller) error {
	if err := s.authz.Authorize(ctx, caller, auth.CapReview); err != nil {
		return fmt.Errorf("%w: %w", ErrForbidden, err)
	}
	return nil
}

// reviewable loads a job that is awaiting review.
func (s *Service) reviewable(ctx context.Context, jobID uuid.UUID) (*types.UpdateJob, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	if job.Status != types.StatusReadyForReview {
		return nil, &NotReviewableError{JobID: job.ID, Status: job.Status}
	}
	return job, nil
}

// storeError maps a lost race to NotReviewableError with the status that won.
func (s *Service) storeError(ctx context.Context, jobID uuid.UUID, err error) error {
	if !errors.Is(err, db.ErrConflict) {
		return err
	}
	status := types.JobStatus("unknown")
	if current, getErr := s.store.GetJob(context.WithoutCancel(ctx), jobID); getErr == nil {
		status = current.Status
	}
	return &NotReviewableError{JobID: jobID, Status: status}
}
