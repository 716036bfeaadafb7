// Package auth decides whether a caller holds a capability. Identity is
// resolved upstream; only the role is consulted here.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonathan/resource-pipeline/internal/types"
)

// Roles in ascending order of privilege.
const (
	RoleViewer    = "viewer"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// Capability is an action a caller may perform.
type Capability string

// Capabilities.
const (
	CapViewJobs   Capability = "jobs:view"
	CapTriggerJob Capability = "jobs:trigger"
	CapReview     Capability = "jobs:review"
	CapMintTokens Capability = "tokens:mint"
)

// ErrForbidden is returned when the caller lacks a capability.
var ErrForbidden = errors.New("forbidden")

// Authorizer checks capabilities.
type Authorizer interface {
	Authorize(ctx context.Context, caller types.Caller, capability Capability) error
}

var roleRank = map[string]int{
	RoleViewer:    1,
	RoleModerator: 2,
	RoleAdmin:     3,
}

var required = map[Capability]string{
	CapViewJobs:   RoleViewer,
	CapTriggerJob: RoleModerator,
	CapReview:     RoleModerator,
	CapMintTokens: RoleAdmin,
}

// ValidRole reports whether role is known.
func ValidRole(role string) bool {
	_, ok := roleRank[role]
	return ok
}

// RoleAuthorizer grants a capability when the caller's role is at least the
// capability's minimum role.
type RoleAuthorizer struct{}

// Authorize implements Authorizer.
func (RoleAuthorizer) Authorize(_ context.Context, caller types.Caller, capability Capability) error {
	minRole, ok := required[capability]
	if !ok {
		return fmt.Errorf("%w: unknown capability %s", ErrForbidden, capability)
	}
	if caller.ID == "" {
		return fmt.Errorf("%w: anonymous caller", ErrForbidden)
	}
	if roleRank[caller.Role] < roleRank[minRole] {
		return fmt.Errorf("%w: role %q cannot %s", ErrForbidden, caller.Role, capability)
	}
	return nil
}

// AllowAll grants everything. Used by the CLI, which runs with operator rights.
type AllowAll struct{}

// Authorize implements Authorizer.
func (AllowAll) Authorize(context.Context, types.Caller, Capability) error { return nil }
