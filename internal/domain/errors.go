package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	ErrInvalidState         = errors.New("invalid state")
	ErrInvalidInput         = errors.New("invalid input")

	// ErrConflict marks a write collision that is safe to retry from scratch.
	ErrConflict = errors.New("write conflict")

	// ErrIntegrity means persisted data already violates an invariant. Never retried.
	ErrIntegrity = errors.New("integrity fault")

	ErrRetriesExhausted = errors.New("write conflict retries exhausted")
)
