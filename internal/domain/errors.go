package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInputInvalid signals a malformed query or filter set.
	ErrInputInvalid = errors.New("invalid input")
	// ErrCollaboratorTimeout signals that a dependency exceeded its deadline.
	ErrCollaboratorTimeout = errors.New("collaborator timeout")
	// ErrCollaboratorUnavailable signals an unreachable dependency.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	// ErrRateLimited signals an exhausted external quota.
	ErrRateLimited = errors.New("rate limited")
	// ErrGeneratorError signals a reasoning provider failure.
	ErrGeneratorError = errors.New("generator provider error")
	// ErrAllExpertsFailed signals that every expert diagnosis pass failed.
	ErrAllExpertsFailed = errors.New("all experts failed")
	// ErrAllSourcesFailed signals that every required search source failed.
	ErrAllSourcesFailed = errors.New("all sources failed")
	// ErrNodeNotFound signals a missing knowledge graph node.
	ErrNodeNotFound = errors.New("graph node not found")
)

// ExpertFailureError wraps ErrAllExpertsFailed with the number of attempted passes.
type ExpertFailureError struct {
	Attempted int
}

func (e *ExpertFailureError) Error() string {
	return fmt.Sprintf("%s: %d passes attempted", ErrAllExpertsFailed.Error(), e.Attempted)
}

func (e *ExpertFailureError) Unwrap() error { return ErrAllExpertsFailed }

// NewExpertFailure creates an all-experts-failed error.
func NewExpertFailure(attempted int) error {
	return &ExpertFailureError{Attempted: attempted}
}
