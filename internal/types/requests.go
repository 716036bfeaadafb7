package types

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Caller identifies whoever invokes an operation. Authentication happens
// upstream; Role is trusted as resolved.
type Caller struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// CreateJobRequest asks for a refresh of one resource.
type CreateJobRequest struct {
	Trigger   TriggerKind `json:"trigger" validate:"omitempty,oneof=scheduled manual"`
	Run       bool        `json:"run,omitempty"`
	AutoApply bool        `json:"auto_apply,omitempty"`
}

// ApproveRequest selects the proposed fields to commit.
type ApproveRequest struct {
	Fields []string `json:"fields" validate:"unique,dive,required"`
	Notes  string   `json:"notes,omitempty" validate:"max=4000"`
}

// RejectRequest closes a job without applying anything. Notes are mandatory.
type RejectRequest struct {
	Notes string `json:"notes" validate:"required,max=4000"`
}

// Validate validates the CreateJobRequest using the validator.
func (r *CreateJobRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the ApproveRequest using the validator.
func (r *ApproveRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the RejectRequest using the validator.
func (r *RejectRequest) Validate() error {
	return validate.Struct(r)
}
