package server

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jonathan/resource-pipeline/internal/pipeline"
	"github.com/jonathan/resource-pipeline/internal/types"
)

func TestProgressHub(t *testing.T) {
	hub := NewProgressHub()
	jobID := uuid.New()

	events, unsubscribe := hub.Subscribe(jobID)
	hub.Publish(pipeline.ProgressEvent{JobID: uuid.New(), Status: types.StatusScraping})
	hub.Publish(pipeline.ProgressEvent{JobID: jobID, Status: types.StatusAnalyzing})

	got := <-events
	assert.Equal(t, types.StatusAnalyzing, got.Status)
	assert.Empty(t, events)

	unsubscribe()
	unsubscribe()
	_, open := <-events
	assert.False(t, open)

	hub.Publish(pipeline.ProgressEvent{JobID: jobID, Status: types.StatusFailed})
}
