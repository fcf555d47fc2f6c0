package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"inspector-rotation/internal/domain"
	"inspector-rotation/internal/metrics"
)

// Watcher reacts to complaints created outside the HTTP intake.
type Watcher interface {
	Watch(ctx context.Context)
}

// TriggerService runs the background assignment triggers (the complaint
// watcher and the unassigned sweep) on whichever node holds leadership.
type TriggerService struct {
	leaderManager domain.LeaderElectionManager
	sweeper       domain.Sweeper
	watcher       Watcher // nil when the backend cannot be watched
	nodeID        string
	retryDelay    time.Duration
	logger        *slog.Logger
}

// NewTriggerService creates a new TriggerService. watcher may be nil.
func NewTriggerService(leaderManager domain.LeaderElectionManager, sweeper domain.Sweeper, watcher Watcher, nodeID string, logger *slog.Logger) *TriggerService {
	return &TriggerService{
		leaderManager: leaderManager,
		sweeper:       sweeper,
		watcher:       watcher,
		nodeID:        nodeID,
		retryDelay:    5 * time.Second,
		logger:        logger.With("component", "trigger-service", "node_id", nodeID),
	}
}

// Start campaigns for leadership until ctx is done, running the triggers
// for as long as each term lasts.
func (s *TriggerService) Start(ctx context.Context) error {
	s.logger.Info("trigger service starting")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("trigger service shutting down")
			return ctx.Err()
		default:
		}

		s.logger.Info("campaigning for leadership")
		lost, err := s.leaderManager.Campaign(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("leadership campaign failed, retrying", "error", err, "retry_in", s.retryDelay)
			select {
			case <-time.After(s.retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		s.logger.Info("became leader, starting assignment triggers")
		metrics.IsLeader.WithLabelValues(s.nodeID).Set(1)
		s.lead(ctx, lost)
		metrics.IsLeader.WithLabelValues(s.nodeID).Set(0)
	}
}

// lead runs the triggers until leadership is lost or ctx is done.
func (s *TriggerService) lead(ctx context.Context, lost <-chan struct{}) {
	termCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup

	if s.watcher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.watcher.Watch(termCtx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.sweeper.Start(termCtx); err != nil && termCtx.Err() == nil {
			s.logger.Error("sweeper stopped", "error", err)
		}
	}()

	select {
	case <-lost:
		s.logger.Warn("leadership lost, stopping assignment triggers")
	case <-ctx.Done():
		if err := s.leaderManager.Resign(context.Background()); err != nil {
			s.logger.Warn("failed to resign leadership", "error", err)
		}
	}
	cancel()
	s.sweeper.Stop()
	wg.Wait()
}
