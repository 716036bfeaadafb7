package apply

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resource-pipeline/internal/db"
	"github.com/jonathan/resource-pipeline/internal/types"
)

func intPtr(n int) *int { return &n }

func setup(t *testing.T, status types.JobStatus) (*db.MemoryStore, *types.Resource, *types.UpdateJob) {
	t.Helper()
	ctx := context.Background()
	store := db.NewMemoryStore()

	r := &types.Resource{
		Slug:        "widget",
		Title:       "Widget",
		URL:         "https://widget.dev",
		Description: "Terminal charts.",
		Facts:       types.Facts{Stars: intPtr(120)},
	}
	require.NoError(t, store.UpsertResource(ctx, r))

	job := types.NewUpdateJob(r, types.TriggerManual, nil, types.PolicyReview)
	job.Status = status
	job.ProposedChanges = []types.ProposedChange{
		{Field: types.FieldStars, Label: "GitHub stars", Kind: types.KindMetric, OldValue: 120, NewValue: 150, Confidence: 1},
		{Field: types.FieldDescription, Label: "Description", Kind: types.KindContent, OldValue: "Terminal charts.", NewValue: "Live dashboards in the terminal.", Confidence: 0.85},
	}
	require.NoError(t, store.CreateJob(ctx, job))
	return store, r, job
}

func TestApply_SubsetWritesExactlySubset(t *testing.T) {
	store, r, job := setup(t, types.StatusReadyForReview)
	ctx := context.Background()

	result, err := New(store, nil).Apply(ctx, Request{
		Job:     job,
		Changes: job.ProposedChanges[:1],
		Source:  types.SourceReviewed,
		Actor:   "mod-1",
	})
	require.NoError(t, err)

	got, err := store.GetResource(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Facts.Stars)
	assert.Equal(t, 150, *got.Facts.Stars)
	assert.Equal(t, "Terminal charts.", got.Description, "unselected field untouched")
	assert.Equal(t, r.ContentHash, got.ContentHash, "hash unchanged when description unchanged")
	assert.NotNil(t, got.LastVerifiedAt)

	entries, err := store.ListChangelog(ctx, r.ID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Len(t, entries[0].Changes, 1)
	assert.Equal(t, types.FieldStars, entries[0].Changes[0].Field)
	assert.Equal(t, 120, entries[0].Changes[0].OldValue)
	assert.Equal(t, types.SourceReviewed, entries[0].Source)
	assert.Equal(t, "mod-1", entries[0].Actor)

	assert.Equal(t, types.StatusApplied, result.Job.Status)
	assert.Equal(t, []string{types.FieldStars}, result.Job.AppliedFields)
	assert.Equal(t, types.StatusApplied, job.Status, "caller's job updated on success")
}

func TestApply_DescriptionRecomputesHash(t *testing.T) {
	store, r, job := setup(t, types.StatusReadyForReview)
	ctx := context.Background()

	_, err := New(store, nil).Apply(ctx, Request{
		Job:     job,
		Changes: job.ProposedChanges[1:],
		Source:  types.SourceReviewed,
		Actor:   "mod-1",
	})
	require.NoError(t, err)

	got, err := store.GetResource(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Live dashboards in the terminal.", got.Description)
	assert.NotEqual(t, r.ContentHash, got.ContentHash)
	assert.Equal(t, types.ComputeContentHash(got.Description, got.Overview), got.ContentHash)
}

func TestApply_NoChangesWritesNoChangelog(t *testing.T) {
	store, r, job := setup(t, types.StatusReadyForReview)
	ctx := context.Background()

	result, err := New(store, nil).Apply(ctx, Request{Job: job, Source: types.SourceReviewed, Actor: "mod-1"})
	require.NoError(t, err)
	assert.Nil(t, result.Entry)

	entries, err := store.ListChangelog(ctx, r.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)

	got, err := store.GetResource(ctx, r.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastVerifiedAt)
}

func TestApply_AutomaticFromAnalyzing(t *testing.T) {
	store, _, job := setup(t, types.StatusAnalyzing)
	ctx := context.Background()

	result, err := New(store, nil).Apply(ctx, Request{
		Job:     job,
		Changes: job.ProposedChanges,
		Source:  types.SourceAutomatic,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Entry)
	assert.Equal(t, types.SourceAutomatic, result.Entry.Source)
	assert.Len(t, result.Entry.Changes, 2)

	stored, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusApplied, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
}

func TestApply_InvalidStateLeavesEverythingUntouched(t *testing.T) {
	store, r, job := setup(t, types.StatusScraping)
	ctx := context.Background()

	_, err := New(store, nil).Apply(ctx, Request{Job: job, Changes: job.ProposedChanges, Source: types.SourceReviewed})
	require.Error(t, err)

	var transitionErr *types.TransitionError
	assert.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, types.StatusScraping, job.Status)

	got, err := store.GetResource(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 120, *got.Facts.Stars)
}

func TestApply_ConcurrentModification(t *testing.T) {
	store, _, job := setup(t, types.StatusReadyForReview)
	ctx := context.Background()

	stale := *job
	_, err := New(store, nil).Apply(ctx, Request{Job: job, Source: types.SourceReviewed})
	require.NoError(t, err)

	_, err = New(store, nil).Apply(ctx, Request{Job: &stale, Changes: stale.ProposedChanges, Source: types.SourceReviewed})
	require.Error(t, err)
	assert.ErrorIs(t, err, db.ErrConflict)
}

func TestApply_ReplacesScreenshots(t *testing.T) {
	store, r, job := setup(t, types.StatusReadyForReview)
	ctx := context.Background()
	job.NewScreenshots = []string{"widget/new.jpg"}

	_, err := New(store, nil).Apply(ctx, Request{Job: job, Source: types.SourceReviewed})
	require.NoError(t, err)

	got, err := store.GetResource(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"widget/new.jpg"}, got.Screenshots)
}

func TestSummarize(t *testing.T) {
	changes := []types.ProposedChange{
		{Field: types.FieldStars, Label: "GitHub stars"},
		{Field: types.FieldTags},
	}
	assert.Equal(t, "Updated GitHub stars, tags", Summarize(changes, ""))
	assert.Equal(t, "Updated GitHub stars, tags: looks right", Summarize(changes, " looks right "))
}
