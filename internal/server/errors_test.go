package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jonathan/resource-pipeline/internal/auth"
	"github.com/jonathan/resource-pipeline/internal/db"
	"github.com/jonathan/resource-pipeline/internal/pipeline"
	"github.com/jonathan/resource-pipeline/internal/review"
	"github.com/jonathan/resource-pipeline/internal/types"
)

func TestErrValidation(t *testing.T) {
	err := &ErrValidation{Field: "limit", Message: "must be a positive integer"}
	assert.Equal(t, "validation error: limit - must be a positive integer", err.Error())
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"field not proposed", &review.FieldNotProposedError{Field: "overview"}, http.StatusBadRequest},
		{"missing reason", review.ErrMissingReason, http.StatusBadRequest},
		{"no fields", review.ErrNoFieldsSelected, http.StatusBadRequest},
		{"unauthenticated", &ErrUnauthenticated{}, http.StatusUnauthorized},
		{"forbidden", fmt.Errorf("%w: viewer", auth.ErrForbidden), http.StatusForbidden},
		{"review forbidden", review.ErrForbidden, http.StatusForbidden},
		{"job not found", review.ErrJobNotFound, http.StatusNotFound},
		{"resource not found", fmt.Errorf("%w: x", pipeline.ErrResourceNotFound), http.StatusNotFound},
		{"store not found", db.ErrNotFound, http.StatusNotFound},
		{"not reviewable", &review.NotReviewableError{JobID: uuid.New(), Status: types.StatusApplied}, http.StatusConflict},
		{"not runnable", &pipeline.NotRunnableError{JobID: uuid.New(), Status: types.StatusFailed}, http.StatusConflict},
		{"transition", &types.TransitionError{From: types.StatusApplied, To: types.StatusFailed}, http.StatusConflict},
		{"active job", fmt.Errorf("%w: widget", pipeline.ErrActiveJob), http.StatusConflict},
		{"conflict", db.ErrConflict, http.StatusConflict},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}
