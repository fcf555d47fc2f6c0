package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"inspector-rotation/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingAssigner struct {
	calls atomic.Int32
	err   error
}

func (a *countingAssigner) AssignPending(context.Context) (int, error) {
	a.calls.Add(1)
	return 1, a.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewCronSweeper_RejectsBadSchedule(t *testing.T) {
	_, err := NewCronSweeper("every now and then", &countingAssigner{}, discardLogger())
	assert.Error(t, err)
}

func TestCronSweeper_SweepSurvivesErrors(t *testing.T) {
	for _, err := range []error{nil, domain.ErrNoEligibleWorkers, fmt.Errorf("%w: boom", domain.ErrBackendUnavailable)} {
		assigner := &countingAssigner{err: err}
		s, nerr := NewCronSweeper("@every 1h", assigner, discardLogger())
		require.NoError(t, nerr)

		s.(*cronSweeper).sweep()
		assert.Equal(t, int32(1), assigner.calls.Load())
	}
}

func TestCronSweeper_RunsUntilCancelled(t *testing.T) {
	assigner := &countingAssigner{}
	s, err := NewCronSweeper("* * * * * *", assigner, discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool { return assigner.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestParser_AcceptsSecondsField(t *testing.T) {
	_, err := Parser.Parse("*/30 * * * * *")
	assert.NoError(t, err)
	_, err = Parser.Parse("* * *")
	assert.Error(t, err)
}
