package store

import "errors"

// Sentinel errors for state-store operations, used instead of (nil, nil)
// returns so callers can branch on errors.Is.
var (
	// ErrNotFound is returned when no deposit matches the requested key.
	ErrNotFound = errors.New("deposit not found")

	// ErrFinalized is returned when a status update is attempted against a
	// row that has already reached the absorbing finalized state.
	ErrFinalized = errors.New("deposit already finalized")

	// ErrInvalidTransition is returned for any status change the lifecycle
	// state machine does not allow.
	ErrInvalidTransition = errors.New("invalid deposit status transition")
)
