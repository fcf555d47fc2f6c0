package usecase

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"inspector-rotation/internal/infra/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingSweeper struct {
	started atomic.Int32
	stopped atomic.Int32
}

func (s *blockingSweeper) Start(ctx context.Context) error {
	s.started.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func (s *blockingSweeper) Stop() { s.stopped.Add(1) }

type blockingWatcher struct {
	watching atomic.Bool
}

func (w *blockingWatcher) Watch(ctx context.Context) {
	w.watching.Store(true)
	<-ctx.Done()
	w.watching.Store(false)
}

func TestTriggerService_RunsTriggersWhileLeading(t *testing.T) {
	leader := memory.NewLeaderElection()
	sweeper := &blockingSweeper{}
	watcher := &blockingWatcher{}
	svc := NewTriggerService(leader, sweeper, watcher, "node-1", discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()

	require.Eventually(t, func() bool {
		return sweeper.started.Load() == 1 && watcher.watching.Load()
	}, time.Second, 10*time.Millisecond)
	assert.True(t, leader.IsLeader())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("trigger service did not stop")
	}
	assert.False(t, leader.IsLeader())
	assert.False(t, watcher.watching.Load())
	assert.Equal(t, int32(1), sweeper.stopped.Load())
}

func TestTriggerService_WithoutWatcher(t *testing.T) {
	sweeper := &blockingSweeper{}
	svc := NewTriggerService(memory.NewLeaderElection(), sweeper, nil, "node-1", discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()

	require.Eventually(t, func() bool { return sweeper.started.Load() == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	<-done
}
