package db

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/resource-pipeline/internal/types"
)

// MemoryStore is an in-memory Store. It enforces the same active-job and
// status-guard rules as the PostgreSQL store.
type MemoryStore struct {
	mu        sync.RWMutex
	resources map[uuid.UUID]*types.Resource
	slugs     map[string]uuid.UUID
	jobs      map[uuid.UUID]*types.UpdateJob
	changelog []types.ChangelogEntry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		resources: make(map[uuid.UUID]*types.Resource),
		slugs:     make(map[string]uuid.UUID),
		jobs:      make(map[uuid.UUID]*types.UpdateJob),
	}
}

// UpsertResource implements Store.
func (m *MemoryStore) UpsertResource(ctx context.Context, r *types.Resource) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertLocked(r)
	return nil
}

func (m *MemoryStore) upsertLocked(r *types.Resource) {
	now := time.Now().UTC()
	if existing, ok := m.slugs[r.Slug]; ok {
		r.ID = existing
		r.CreatedAt = m.resources[existing].CreatedAt
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	r.RefreshContentHash()
	m.resources[r.ID] = cloneResource(r)
	m.slugs[r.Slug] = r.ID
}

// GetResource implements Store.
func (m *MemoryStore) GetResource(ctx context.Context, id uuid.UUID) (*types.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.resources[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneResource(r), nil
}

// GetResourceBySlug implements Store.
func (m *MemoryStore) GetResourceBySlug(ctx context.Context, slug string) (*types.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.slugs[slug]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneResource(m.resources[id]), nil
}

// ListResources implements Store.
func (m *MemoryStore) ListResources(ctx context.Context, filter ResourceFilter) ([]types.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.Resource
	for _, r := range m.resources {
		if filter.StaleBefore != nil && r.LastVerifiedAt != nil && !r.LastVerifiedAt.Before(*filter.StaleBefore) {
			continue
		}
		if len(filter.Slugs) > 0 && !slices.Contains(filter.Slugs, r.Slug) {
			continue
		}
		out = append(out, *cloneResource(r))
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastVerifiedAt, out[j].LastVerifiedAt
		switch {
		case a == nil && b != nil:
			return true
		case a != nil && b == nil:
			return false
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		}
		return out[i].Slug < out[j].Slug
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// CreateJob implements Store.
func (m *MemoryStore) CreateJob(ctx context.Context, job *types.UpdateJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.resources[job.ResourceID]; !ok {
		return ErrNotFound
	}
	for _, existing := range m.jobs {
		if existing.ResourceID == job.ResourceID && !existing.Status.Terminal() {
			return ErrActiveJob
		}
	}
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

// GetJob implements Store.
func (m *MemoryStore) GetJob(ctx context.Context, id uuid.UUID) (*types.UpdateJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(job), nil
}

// SaveJob implements Store.
func (m *MemoryStore) SaveJob(ctx context.Context, job *types.UpdateJob, expected types.JobStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveJobLocked(job, expected)
}

func (m *MemoryStore) saveJobLocked(job *types.UpdateJob, expected types.JobStatus) error {
	stored, ok := m.jobs[job.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Status != expected {
		return ErrConflict
	}
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

// ListJobs implements Store.
func (m *MemoryStore) ListJobs(ctx context.Context, filter JobFilter) ([]types.UpdateJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.UpdateJob
	for _, job := range m.jobs {
		if filter.ResourceID != nil && job.ResourceID != *filter.ResourceID {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, job.Status) {
			continue
		}
		out = append(out, *cloneJob(job))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// ApplyChanges implements Store. All writes happen under one lock, so
// readers never observe a partial apply.
func (m *MemoryStore) ApplyChanges(ctx context.Context, in ApplyInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.jobs[in.Job.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Status != in.Expected {
		return ErrConflict
	}
	if in.Resource != nil {
		m.upsertLocked(in.Resource)
	}
	if in.Entry != nil {
		entry := *in.Entry
		entry.Changes = slices.Clone(in.Entry.Changes)
		m.changelog = append(m.changelog, entry)
	}
	return m.saveJobLocked(in.Job, in.Expected)
}

// ListChangelog implements Store.
func (m *MemoryStore) ListChangelog(ctx context.Context, resourceID uuid.UUID, limit int) ([]types.ChangelogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.ChangelogEntry
	for i := len(m.changelog) - 1; i >= 0; i-- {
		e := m.changelog[i]
		if e.ResourceID != resourceID {
			continue
		}
		e.Changes = slices.Clone(e.Changes)
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func cloneResource(r *types.Resource) *types.Resource {
	c := *r
	c.Features = slices.Clone(r.Features)
	c.Tags = slices.Clone(r.Tags)
	c.Screenshots = slices.Clone(r.Screenshots)
	c.Facts.Topics = slices.Clone(r.Facts.Topics)
	if r.Repository != nil {
		repo := *r.Repository
		c.Repository = &repo
	}
	return &c
}

func cloneJob(j *types.UpdateJob) *types.UpdateJob {
	c := *j
	c.Sources = slices.Clone(j.Sources)
	c.SourceErrors = slices.Clone(j.SourceErrors)
	c.ProposedChanges = slices.Clone(j.ProposedChanges)
	if c.ProposedChanges == nil {
		c.ProposedChanges = []types.ProposedChange{}
	}
	c.OldScreenshots = slices.Clone(j.OldScreenshots)
	c.NewScreenshots = slices.Clone(j.NewScreenshots)
	c.ScreenshotErrors = slices.Clone(j.ScreenshotErrors)
	c.AppliedFields = slices.Clone(j.AppliedFields)
	if j.Facts != nil {
		facts := *j.Facts
		facts.Topics = slices.Clone(j.Facts.Topics)
		c.Facts = &facts
	}
	return &c
}
