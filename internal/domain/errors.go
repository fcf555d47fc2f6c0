// internal/domain/errors.go
package domain

import "errors"

var (
	// ErrNoEligibleWorkers is returned when the active inspector pool is empty.
	// No assignment is possible and the triggering event must be rejected.
	ErrNoEligibleWorkers = errors.New("no active inspectors are available for assignment")

	// ErrBackendUnavailable wraps every data-access failure.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrInconsistentRotationState marks a cursor outside any valid range.
	// The assignor clamps such a cursor instead of failing.
	ErrInconsistentRotationState = errors.New("inconsistent rotation state")

	ErrComplaintNotFound = errors.New("complaint not found")
	ErrComplaintExists   = errors.New("complaint already exists")
	ErrInspectorNotFound = errors.New("inspector not found")
)
