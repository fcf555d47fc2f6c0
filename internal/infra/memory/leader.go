package memory

import (
	"context"
	"sync"

	"inspector-rotation/internal/domain"
)

// soloLeader is the leader election for single-process backends: the only
// node always wins, and keeps leadership until it resigns.
type soloLeader struct {
	mu     sync.Mutex
	leader bool
	lost   chan struct{}
}

// NewLeaderElection returns a domain.LeaderElectionManager for a single node.
func NewLeaderElection() domain.LeaderElectionManager {
	return &soloLeader{}
}

func (l *soloLeader) Campaign(ctx context.Context) (<-chan struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.leader = true
	l.lost = make(chan struct{})
	return l.lost, nil
}

func (l *soloLeader) Resign(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.leader {
		l.leader = false
		close(l.lost)
	}
	return nil
}

func (l *soloLeader) IsLeader() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.leader
}
