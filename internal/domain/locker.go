// internal/domain/locker.go
package domain

import (
	"context"
	"errors"
)

// RotationLockName is the lock guarding the read-compute-write of the rotation cursor.
const RotationLockName = "rotation"

// ErrLockNotAcquired is returned when a lock could not be obtained before
// the caller's deadline.
var ErrLockNotAcquired = errors.New("lock not acquired")

// Lock represents an acquired exclusive lock.
type Lock interface {
	// Unlock releases the lock.
	Unlock(ctx context.Context) error
}

// Locker hands out exclusive locks by name.
type Locker interface {
	// Lock blocks until the named lock is held or ctx is done, in which
	// case it returns ErrLockNotAcquired.
	Lock(ctx context.Context, name string) (Lock, error)
}
