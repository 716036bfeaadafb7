package types

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUpdateJob(t *testing.T) {
	resource := &Resource{ID: uuid.New(), Slug: "chi", Screenshots: []string{"old.png"}}
	actor := "mod-1"

	job := NewUpdateJob(resource, TriggerManual, &actor, PolicyReview)

	assert.NotEqual(t, uuid.Nil, job.ID)
	assert.Equal(t, resource.ID, job.ResourceID)
	assert.Equal(t, "chi", job.ResourceSlug)
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, []string{"old.png"}, job.OldScreenshots)
	assert.NotNil(t, job.ProposedChanges)
	assert.Nil(t, job.StartedAt)
}

func TestUpdateJob_Transition(t *testing.T) {
	job := NewUpdateJob(&Resource{ID: uuid.New()}, TriggerScheduled, nil, PolicyReview)

	require.NoError(t, job.Transition(StatusScraping))
	require.NotNil(t, job.StartedAt)
	assert.Nil(t, job.CompletedAt)

	err := job.Transition(StatusApplied)
	require.Error(t, err)
	assert.Equal(t, StatusScraping, job.Status, "failed transition leaves status unchanged")

	require.NoError(t, job.Fail("no sources"))
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, "no sources", job.ErrorMessage)
	assert.NotNil(t, job.CompletedAt)

	assert.Error(t, job.Fail("again"), "terminal jobs cannot fail twice")
}

func TestUpdateJob_ProposedChangeLookup(t *testing.T) {
	job := &UpdateJob{ProposedChanges: []ProposedChange{
		{Field: FieldStars, NewValue: 150},
		{Field: FieldDescription, NewValue: "new"},
	}}

	c, ok := job.ProposedChange(FieldDescription)
	require.True(t, ok)
	assert.Equal(t, "new", c.NewValue)

	_, ok = job.ProposedChange(FieldOverview)
	assert.False(t, ok)

	assert.Equal(t, []string{FieldStars, FieldDescription}, job.ProposedFields())
}
