package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition_HappyPath(t *testing.T) {
	path := []JobStatus{
		StatusPending, StatusScraping, StatusAnalyzing, StatusScreenshots,
		StatusReadyForReview, StatusApproved, StatusApplied,
	}
	for i := 0; i < len(path)-1; i++ {
		assert.True(t, CanTransition(path[i], path[i+1]), "%s -> %s", path[i], path[i+1])
	}
}

func TestCanTransition_Rejected(t *testing.T) {
	assert.True(t, CanTransition(StatusReadyForReview, StatusRejected))
	assert.False(t, CanTransition(StatusScraping, StatusRejected))
	assert.False(t, CanTransition(StatusPending, StatusReadyForReview))
}

func TestTerminalStatesHaveNoTransitions(t *testing.T) {
	for _, from := range TerminalStatuses() {
		assert.True(t, from.Terminal())
		for _, to := range AllStatuses() {
			err := ValidateTransition(from, to)
			require.Error(t, err, "%s -> %s", from, to)

			var tErr *TransitionError
			require.ErrorAs(t, err, &tErr)
			assert.Contains(t, err.Error(), "terminal")
		}
	}
}

func TestEveryNonTerminalStateCanFailExceptReview(t *testing.T) {
	for _, s := range AllStatuses() {
		if s.Terminal() || s == StatusReadyForReview {
			continue
		}
		assert.True(t, CanTransition(s, StatusFailed), "%s should be able to fail", s)
	}
	assert.False(t, CanTransition(StatusReadyForReview, StatusFailed))
}

func TestJobStatus_Valid(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.False(t, JobStatus("bogus").Valid())
}
