// internal/domain/rotation.go
package domain

import (
	"context"
	"time"
)

// RotationState is the index within the pool of the last inspector assigned.
type RotationState int

// NoPriorAssignment is the cursor value before the first assignment.
const NoPriorAssignment RotationState = -1

// RotationStore persists the rotation cursor shared by all assignments.
type RotationStore interface {
	// Load returns the stored cursor. found is false when nothing has been stored yet.
	Load(ctx context.Context) (state RotationState, found bool, err error)
	Store(ctx context.Context, state RotationState) error
	// Commit records inspectorID on the complaint and moves the cursor to next
	// as one atomic write. When it fails neither change is visible.
	Commit(ctx context.Context, complaintID, inspectorID string, assignedAt time.Time, next RotationState) error
}
