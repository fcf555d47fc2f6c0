package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"inspector-rotation/internal/domain"
	"inspector-rotation/internal/metrics"
	"inspector-rotation/internal/rotation"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// AssignmentService performs the lock, read, select, commit cycle around the round-robin assignor.
// The complaint's inspector and the advanced cursor are written together.
type AssignmentService struct {
	inspectors   domain.InspectorRepository
	complaints   domain.ComplaintRepository
	cursor       domain.RotationStore
	locker       domain.Locker
	lockTimeout  time.Duration
	historyLimit int
	now          func() time.Time
	logger       *slog.Logger
	tracer       trace.Tracer
}

// NewAssignmentService creates a new AssignmentService instance.
func NewAssignmentService(
	inspectors domain.InspectorRepository,
	complaints domain.ComplaintRepository,
	cursor domain.RotationStore,
	locker domain.Locker,
	lockTimeout time.Duration,
	historyLimit int,
	logger *slog.Logger,
) *AssignmentService {
	if historyLimit <= 0 {
		historyLimit = 1
	}
	return &AssignmentService{
		inspectors:   inspectors,
		complaints:   complaints,
		cursor:       cursor,
		locker:       locker,
		lockTimeout:  lockTimeout,
		historyLimit: historyLimit,
		now:          time.Now,
		logger:       logger.With("component", "assignment-service"),
		tracer:       otel.Tracer("inspector-rotation-usecase"),
	}
}

// Assign gives the complaint to the next inspector in rotation. A complaint
// that already has an inspector is returned unchanged and the cursor is not
// advanced, so concurrent triggers for the same complaint are harmless.
func (s *AssignmentService) Assign(ctx context.Context, complaintID string) (_ *domain.Complaint, err error) {
	ctx, span := s.tracer.Start(ctx, "service.Assign")
	defer span.End()
	span.SetAttributes(attribute.String("complaint.id", complaintID))

	logger := s.logger.With("complaint_id", complaintID)
	defer func() {
		if err == nil {
			return
		}
		status := "failed"
		if errors.Is(err, domain.ErrNoEligibleWorkers) {
			status = "no_inspectors"
		}
		metrics.AssignmentsTotal.WithLabelValues(status).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "assignment failed")
		logger.Error("assignment failed", "error", err)
	}()

	lock, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if uerr := lock.Unlock(context.Background()); uerr != nil {
			logger.Warn("failed to release rotation lock", "error", uerr)
		}
	}()

	complaint, err := s.complaints.Get(ctx, complaintID)
	if err != nil {
		return nil, err
	}
	if complaint.Assigned() {
		logger.Info("complaint already assigned", "inspector_id", complaint.InspectorID)
		metrics.AssignmentsTotal.WithLabelValues("already_assigned").Inc()
		return complaint, nil
	}

	pool, err := s.inspectors.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("rotation.pool_size", len(pool)))
	metrics.RotationPoolSize.Set(float64(len(pool)))
	if len(pool) == 0 {
		return nil, fmt.Errorf("complaint %s: %w", complaintID, domain.ErrNoEligibleWorkers)
	}

	last, err := s.lastIndex(ctx, pool, logger)
	if err != nil {
		return nil, err
	}

	inspector, next, err := rotation.AssignNext(pool, last)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("rotation.previous", int(last)),
		attribute.Int("rotation.next", int(next)),
		attribute.String("inspector.id", inspector.ID),
	)

	assignedAt := s.now().UTC()
	if err := s.cursor.Commit(ctx, complaintID, inspector.ID, assignedAt, next); err != nil {
		return nil, err
	}

	complaint.InspectorID = inspector.ID
	complaint.AssignedAt = assignedAt

	metrics.AssignmentsTotal.WithLabelValues("assigned").Inc()
	metrics.InspectorAssignmentsTotal.WithLabelValues(inspector.ID).Inc()
	metrics.RotationCursor.Set(float64(next))
	logger.Info("complaint assigned", "inspector_id", inspector.ID, "rotation_index", int(next), "pool_size", len(pool))
	return complaint, nil
}

func (s *AssignmentService) acquire(ctx context.Context) (domain.Lock, error) {
	lockCtx := ctx
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}
	lock, err := s.locker.Lock(lockCtx, domain.RotationLockName)
	if err != nil {
		return nil, fmt.Errorf("%w: acquiring rotation lock: %w", domain.ErrBackendUnavailable, err)
	}
	return lock, nil
}

// lastIndex reads the persisted cursor, falling back to the assignment history
// only when nothing has been persisted yet.
func (s *AssignmentService) lastIndex(ctx context.Context, pool []*domain.Inspector, logger *slog.Logger) (domain.RotationState, error) {
	state, found, err := s.cursor.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !found {
		history, err := s.complaints.ListRecent(ctx, s.historyLimit)
		if err != nil {
			return 0, err
		}
		state = rotation.RecoverLastIndex(history, pool)
		logger.Info("rotation cursor not persisted, recovered from history", "rotation_index", int(state))
		return state, nil
	}

	clamped, err := rotation.Normalize(state)
	if errors.Is(err, domain.ErrInconsistentRotationState) {
		logger.Warn("stored rotation cursor out of range, restarting rotation", "stored", int(state))
	}
	return clamped, nil
}

// Preview reports the persisted cursor, the current pool and who would be
// picked next. It neither locks nor writes.
func (s *AssignmentService) Preview(ctx context.Context) (*RotationPreview, error) {
	ctx, span := s.tracer.Start(ctx, "service.Preview")
	defer span.End()

	pool, err := s.inspectors.ListActive(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list active inspectors")
		return nil, err
	}
	state, found, err := s.cursor.Load(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load rotation cursor")
		return nil, err
	}
	if !found {
		history, err := s.complaints.ListRecent(ctx, s.historyLimit)
		if err != nil {
			return nil, err
		}
		state = rotation.RecoverLastIndex(history, pool)
	}
	state, _ = rotation.Normalize(state)

	return &RotationPreview{
		Cursor:    state,
		Persisted: found,
		Pool:      pool,
		Next:      rotation.Peek(pool, state),
	}, nil
}

// RotationPreview is a read-only snapshot of the rotation.
type RotationPreview struct {
	Cursor    domain.RotationState `json:"cursor"`
	Persisted bool                 `json:"persisted"`
	Pool      []*domain.Inspector  `json:"pool"`
	Next      *domain.Inspector    `json:"next,omitempty"`
}
