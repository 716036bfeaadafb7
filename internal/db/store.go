package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/resource-pipeline/internal/types"
)

var (
	// ErrNotFound is returned when a resource, job or entry does not exist.
	ErrNotFound = errors.New("not found")
	// ErrActiveJob is returned when a resource already has a non-terminal job.
	ErrActiveJob = errors.New("resource already has an active job")
	// ErrConflict is returned when a job changed status since it was read.
	ErrConflict = errors.New("job was modified concurrently")
)

// ResourceFilter narrows ListResources.
type ResourceFilter struct {
	// StaleBefore keeps resources never verified or last verified before this time.
	StaleBefore *time.Time
	Slugs       []string
	Limit       int
}

// JobFilter narrows ListJobs.
type JobFilter struct {
	ResourceID *uuid.UUID
	Statuses   []types.JobStatus
	Limit      int
}

// ApplyInput is everything committed atomically when changes are applied.
type ApplyInput struct {
	// Job has already been transitioned; Expected is its stored status before that.
	Job      *types.UpdateJob
	Expected types.JobStatus
	// Resource is the patched resource.
	Resource *types.Resource
	// Entry is nil when nothing was applied.
	Entry *types.ChangelogEntry
}

// Store persists resources, jobs and the changelog.
type Store interface {
	UpsertResource(ctx context.Context, r *types.Resource) error
	GetResource(ctx context.Context, id uuid.UUID) (*types.Resource, error)
	GetResourceBySlug(ctx context.Context, slug string) (*types.Resource, error)
	ListResources(ctx context.Context, filter ResourceFilter) ([]types.Resource, error)

	// CreateJob inserts a pending job. It fails with ErrActiveJob when the
	// resource already has a non-terminal job.
	CreateJob(ctx context.Context, job *types.UpdateJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*types.UpdateJob, error)
	// SaveJob writes job if its stored status still equals expected,
	// otherwise it returns ErrConflict.
	SaveJob(ctx context.Context, job *types.UpdateJob, expected types.JobStatus) error
	ListJobs(ctx context.Context, filter JobFilter) ([]types.UpdateJob, error)

	// ApplyChanges writes the resource, the changelog entry and the job in one transaction.
	ApplyChanges(ctx context.Context, in ApplyInput) error
	ListChangelog(ctx context.Context, resourceID uuid.UUID, limit int) ([]types.ChangelogEntry, error)
}
