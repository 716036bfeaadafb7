package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/resource-pipeline/internal/auth"
	"github.com/jonathan/resource-pipeline/internal/db"
	"github.com/jonathan/resource-pipeline/internal/pipeline"
	"github.com/jonathan/resource-pipeline/internal/review"
	"github.com/jonathan/resource-pipeline/internal/types"
)

// ErrValidation indicates request validation failure.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrUnauthenticated indicates the request carried no caller.
type ErrUnauthenticated struct{}

func (e *ErrUnauthenticated) Error() string {
	return "authentication required"
}

// HTTPStatus returns the HTTP status code for an error.
func HTTPStatus(err error) int {
	var (
		validation      *ErrValidation
		unauthenticated *ErrUnauthenticated
		fieldErrs       validator.ValidationErrors
		notProposed     *review.FieldNotProposedError
		notReviewable   *review.NotReviewableError
		notRunnable     *pipeline.NotRunnableError
		transition      *types.TransitionError
	)

	switch {
	case errors.As(err, &validation),
		errors.As(err, &fieldErrs),
		errors.As(err, &notProposed),
		errors.Is(err, review.ErrMissingReason),
		errors.Is(err, review.ErrNoFieldsSelected):
		return http.StatusBadRequest
	case errors.As(err, &unauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden), errors.Is(err, review.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, review.ErrJobNotFound),
		errors.Is(err, pipeline.ErrJobNotFound),
		errors.Is(err, pipeline.ErrResourceNotFound),
		errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &notReviewable),
		errors.As(err, &notRunnable),
		errors.As(err, &transition),
		errors.Is(err, db.ErrActiveJob),
		errors.Is(err, db.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
