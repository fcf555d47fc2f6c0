// internal/scheduler/cron_sweeper.go
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"inspector-rotation/internal/domain"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Parser accepts six-field cron expressions (with seconds), matching the sweeper's schedule format.
var Parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// PendingAssigner assigns every complaint that has no inspector yet.
type PendingAssigner interface {
	AssignPending(ctx context.Context) (int, error)
}

// cronSweeper triggers a sweep of unassigned complaints on a cron schedule.
type cronSweeper struct {
	cron     *cron.Cron
	assigner PendingAssigner
	logger   *slog.Logger
	tracer   trace.Tracer

	mu     sync.Mutex
	runCtx context.Context
}

// NewCronSweeper creates a sweeper that runs on the given schedule.
func NewCronSweeper(schedule string, assigner PendingAssigner, logger *slog.Logger) (domain.Sweeper, error) {
	s := &cronSweeper{
		cron:     cron.New(cron.WithParser(Parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		assigner: assigner,
		logger:   logger.With("component", "cron-sweeper"),
		tracer:   otel.Tracer("inspector-rotation-scheduler"),
		runCtx:   context.Background(),
	}
	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return nil, err
	}
	s.logger.Info("sweep scheduled", "schedule", schedule)
	return s, nil
}

func (s *cronSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	s.logger.Info("cron sweeper started")
	s.cron.Start()
	<-ctx.Done()
	s.Stop()
	s.logger.Info("cron sweeper stopped")
	return ctx.Err()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *cronSweeper) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}

// sweep is called by the cron library.
func (s *cronSweeper) sweep() {
	s.mu.Lock()
	parent := s.runCtx
	s.mu.Unlock()

	ctx, span := s.tracer.Start(parent, "scheduler.Sweep")
	defer span.End()

	assigned, err := s.assigner.AssignPending(ctx)
	span.SetAttributes(attribute.Int("sweep.assigned", assigned))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sweep failed")
		if errors.Is(err, domain.ErrNoEligibleWorkers) {
			s.logger.Warn("sweep stopped, no active inspectors", "assigned", assigned)
			return
		}
		s.logger.Error("sweep failed", "assigned", assigned, "error", err)
		return
	}
	if assigned > 0 {
		s.logger.Info("sweep assigned pending complaints", "assigned", assigned)
	}
}
