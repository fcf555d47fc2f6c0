package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"inspector-rotation/internal/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ComplaintService handles complaint intake and lookups.
type ComplaintService struct {
	repo     domain.ComplaintRepository
	assigner *AssignmentService
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewComplaintService creates a new ComplaintService instance.
func NewComplaintService(repo domain.ComplaintRepository, assigner *AssignmentService, logger *slog.Logger) *ComplaintService {
	return &ComplaintService{
		repo:     repo,
		assigner: assigner,
		logger:   logger.With("component", "complaint-service"),
		tracer:   otel.Tracer("inspector-rotation-usecase"),
	}
}

// Submit records a new complaint and assigns it in the same request. If the
// assignment fails the complaint is removed again and the assignment error
// is returned, so a rejected complaint leaves no trace.
func (s *ComplaintService) Submit(ctx context.Context, subject, description string) (*domain.Complaint, error) {
	ctx, span := s.tracer.Start(ctx, "service.Submit")
	defer span.End()

	complaint := &domain.Complaint{
		ID:          uuid.NewString(),
		Subject:     subject,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := complaint.Validate(); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("complaint.id", complaint.ID))

	if err := s.repo.Create(ctx, complaint); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create complaint")
		return nil, err
	}

	assigned, err := s.assigner.Assign(ctx, complaint.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "complaint rejected")
		if derr := s.repo.Delete(context.WithoutCancel(ctx), complaint.ID); derr != nil {
			s.logger.Error("failed to roll back rejected complaint", "complaint_id", complaint.ID, "error", derr)
			return nil, fmt.Errorf("%w (rollback failed: %v)", err, derr)
		}
		s.logger.Warn("complaint rejected", "complaint_id", complaint.ID, "error", err)
		return nil, err
	}
	return assigned, nil
}

// Assign retriggers assignment for an existing complaint.
func (s *ComplaintService) Assign(ctx context.Context, id string) (*domain.Complaint, error) {
	return s.assigner.Assign(ctx, id)
}

// Get returns a single complaint.
func (s *ComplaintService) Get(ctx context.Context, id string) (*domain.Complaint, error) {
	ctx, span := s.tracer.Start(ctx, "service.GetComplaint")
	defer span.End()
	span.SetAttributes(attribute.String("complaint.id", id))

	complaint, err := s.repo.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get complaint from repository")
	}
	return complaint, err
}

// ListRecent lists complaints, newest first.
func (s *ComplaintService) ListRecent(ctx context.Context, limit int) ([]*domain.Complaint, error) {
	ctx, span := s.tracer.Start(ctx, "service.ListComplaints")
	defer span.End()
	span.SetAttributes(attribute.Int("limit", limit))

	complaints, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list complaints from repository")
	}
	return complaints, err
}

// AssignPending assigns every unassigned complaint, oldest first. It stops at
// the first failure since later complaints would fail the same way, and
// returns how many were assigned before that.
func (s *ComplaintService) AssignPending(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "service.AssignPending")
	defer span.End()

	pending, err := s.repo.ListUnassigned(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list unassigned complaints")
		return 0, err
	}
	span.SetAttributes(attribute.Int("pending", len(pending)))

	assigned := 0
	for _, c := range pending {
		if _, err := s.assigner.Assign(ctx, c.ID); err != nil {
			return assigned, err
		}
		assigned++
	}
	return assigned, nil
}
