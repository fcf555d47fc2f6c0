// internal/infra/memory/locker.go
package memory

import (
	"context"
	"sync"

	"inspector-rotation/internal/domain"
)

// Locker is a process-local domain.Locker. Each name maps to a one-slot
// channel so acquisition can be abandoned when the context is done.
type Locker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocker creates a process-local locker.
func NewLocker() *Locker {
	return &Locker{slots: make(map[string]chan struct{})}
}

func (l *Locker) slot(name string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[name]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[name] = ch
	}
	return ch
}

// Lock blocks until the named lock is free or ctx is done.
func (l *Locker) Lock(ctx context.Context, name string) (domain.Lock, error) {
	ch := l.slot(name)
	select {
	case ch <- struct{}{}:
		return &localLock{ch: ch}, nil
	case <-ctx.Done():
		return nil, domain.ErrLockNotAcquired
	}
}

type localLock struct {
	once sync.Once
	ch   chan struct{}
}

func (l *localLock) Unlock(context.Context) error {
	l.once.Do(func() { <-l.ch })
	return nil
}
