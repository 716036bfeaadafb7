// Package types provides the domain types shared by the resource update pipeline.
//
//nolint:revive // types is a standard Go package name pattern
package types

import "fmt"

// JobStatus is the lifecycle state of an UpdateJob.
type JobStatus string

// Job lifecycle states.
const (
	StatusPending        JobStatus = "pending"
	StatusScraping       JobStatus = "scraping"
	StatusAnalyzing      JobStatus = "analyzing"
	StatusScreenshots    JobStatus = "screenshots"
	StatusReadyForReview JobStatus = "ready_for_review"
	StatusApproved       JobStatus = "approved"
	StatusRejected       JobStatus = "rejected"
	StatusApplied        JobStatus = "applied"
	StatusFailed         JobStatus = "failed"
)

// transitions is the adjacency list of the job state machine.
// analyzing and screenshots may move straight to approved for unattended runs.
var transitions = map[JobStatus][]JobStatus{
	StatusPending:        {StatusScraping, StatusFailed},
	StatusScraping:       {StatusAnalyzing, StatusFailed},
	StatusAnalyzing:      {StatusScreenshots, StatusReadyForReview, StatusApproved, StatusFailed},
	StatusScreenshots:    {StatusReadyForReview, StatusApproved, StatusFailed},
	StatusReadyForReview: {StatusApproved, StatusRejected},
	StatusApproved:       {StatusApplied, StatusFailed},
	StatusRejected:       {},
	StatusApplied:        {},
	StatusFailed:         {},
}

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []JobStatus {
	return []JobStatus{
		StatusPending, StatusScraping, StatusAnalyzing, StatusScreenshots,
		StatusReadyForReview, StatusApproved, StatusRejected, StatusApplied, StatusFailed,
	}
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no further transitions are permitted from s.
func (s JobStatus) Terminal() bool {
	return s == StatusApplied || s == StatusRejected || s == StatusFailed
}

// TerminalStatuses lists the states a job can finish in.
func TerminalStatuses() []JobStatus {
	return []JobStatus{StatusApplied, StatusRejected, StatusFailed}
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to JobStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionError is returned when a move is not in the adjacency list.
type TransitionError struct {
	From JobStatus
	To   JobStatus
}

func (e *TransitionError) Error() string {
	if e.From.Terminal() {
		return fmt.Sprintf("invalid transition %s -> %s: %s is terminal", e.From, e.To, e.From)
	}
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

// ValidateTransition returns a *TransitionError if from -> to is not allowed.
func ValidateTransition(from, to JobStatus) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}
