// Package rotation selects the next inspector for a complaint by round-robin.
//
// Functions here are pure: fetching the pool, reading and writing the
// cursor and recording the assignment are left to the caller.
package rotation

import (
	"inspector-rotation/internal/domain"
)

// Normalize clamps a cursor that lies below NoPriorAssignment. The second
// return value is domain.ErrInconsistentRotationState when clamping happened.
// Cursors at or beyond the pool size are left alone; AssignNext wraps them.
func Normalize(state domain.RotationState) (domain.RotationState, error) {
	if state < domain.NoPriorAssignment {
		return domain.NoPriorAssignment, domain.ErrInconsistentRotationState
	}
	return state, nil
}

// AssignNext picks pool[(state+1) mod len(pool)] and returns it with the new cursor.
// The pool must already be filtered to active inspectors and is not modified.
func AssignNext(pool []*domain.Inspector, state domain.RotationState) (*domain.Inspector, domain.RotationState, error) {
	if len(pool) == 0 {
		return nil, state, domain.ErrNoEligibleWorkers
	}
	state, _ = Normalize(state)

	// Reduce before adding so a cursor near math.MaxInt cannot overflow.
	n := len(pool)
	next := domain.RotationState((int(state)%n + 1) % n)
	return pool[next], next, nil
}

// RecoverLastIndex derives a cursor when none was persisted. It finds the
// inspector of the most recent assigned complaint in history (newest first)
// and returns that inspector's index in the current pool, or
// NoPriorAssignment when there is no such complaint or the inspector has
// left the pool.
func RecoverLastIndex(history []*domain.Complaint, pool []*domain.Inspector) domain.RotationState {
	for _, c := range history {
		if !c.Assigned() {
			continue
		}
		for i, inspector := range pool {
			if inspector.ID == c.InspectorID {
				return domain.RotationState(i)
			}
		}
		return domain.NoPriorAssignment
	}
	return domain.NoPriorAssignment
}

// Peek reports who AssignNext would pick without the caller committing to it.
func Peek(pool []*domain.Inspector, state domain.RotationState) *domain.Inspector {
	inspector, _, err := AssignNext(pool, state)
	if err != nil {
		return nil
	}
	return inspector
}
