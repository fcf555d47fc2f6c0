package domain

import "context"

// LeaderElectionManager decides which node runs the background assignment triggers.
type LeaderElectionManager interface {
	// Campaign blocks until this node leads. The returned channel closes when leadership is lost.
	Campaign(ctx context.Context) (<-chan struct{}, error)
	Resign(ctx context.Context) error
	IsLeader() bool
}

// Sweeper periodically assigns complaints that were left unassigned.
type Sweeper interface {
	Start(ctx context.Context) error
	Stop()
}
