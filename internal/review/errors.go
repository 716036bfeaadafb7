package review

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/resource-pipeline/internal/types"
)

var (
	// ErrForbidden is returned when the caller may not review jobs.
	ErrForbidden = errors.New("caller is not allowed to review jobs")
	// ErrJobNotFound is returned for an unknown job id.
	ErrJobNotFound = errors.New("job not found")
	// ErrMissingReason is returned when a rejection has no notes.
	ErrMissingReason = errors.New("rejection requires notes")
	// ErrNoFieldsSelected is returned when an approval selects nothing while proposals exist.
	ErrNoFieldsSelected = errors.New("at least one proposed field must be selected")
)

// NotReviewableError indicates the job is not awaiting review.
type NotReviewableError struct {
	JobID  uuid.UUID
	Status types.JobStatus
}

func (e *NotReviewableError) Error() string {
	return fmt.Sprintf("job %s is %s, not %s", e.JobID, e.Status, types.StatusReadyForReview)
}

// FieldNotProposedError indicates an approval named a field without a proposal.
type FieldNotProposedError struct {
	Field string
}

func (e *FieldNotProposedError) Error() string {
	return fmt.Sprintf("field %q was not proposed", e.Field)
}
