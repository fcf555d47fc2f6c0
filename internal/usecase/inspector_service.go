package usecase

import (
	"context"
	"log/slog"
	"time"

	"inspector-rotation/internal/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InspectorService manages the inspector roster.
type InspectorService struct {
	repo   domain.InspectorRepository
	logger *slog.Logger
	tracer trace.Tracer
}

// NewInspectorService creates a new InspectorService instance.
func NewInspectorService(repo domain.InspectorRepository, logger *slog.Logger) *InspectorService {
	return &InspectorService{
		repo:   repo,
		logger: logger.With("component", "inspector-service"),
		tracer: otel.Tracer("inspector-rotation-usecase"),
	}
}

// Register adds an active inspector.
func (s *InspectorService) Register(ctx context.Context, name, email string) (*domain.Inspector, error) {
	ctx, span := s.tracer.Start(ctx, "service.RegisterInspector")
	defer span.End()

	now := time.Now().UTC()
	inspector := &domain.Inspector{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := inspector.Validate(); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("inspector.id", inspector.ID))

	if err := s.repo.Save(ctx, inspector); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save inspector to repository")
		return nil, err
	}
	s.logger.Info("inspector registered", "inspector_id", inspector.ID, "name", name)
	return inspector, nil
}

// SetActive moves an inspector in or out of the rotation pool. The rotation
// cursor is left untouched; the next assignment wraps over the new pool size.
func (s *InspectorService) SetActive(ctx context.Context, id string, active bool) (*domain.Inspector, error) {
	ctx, span := s.tracer.Start(ctx, "service.SetInspectorActive")
	defer span.End()
	span.SetAttributes(attribute.String("inspector.id", id), attribute.Bool("inspector.active", active))

	inspector, err := s.repo.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get inspector from repository")
		return nil, err
	}
	if inspector.Active == active {
		return inspector, nil
	}

	inspector.Active = active
	inspector.UpdatedAt = time.Now().UTC()
	if err := s.repo.Save(ctx, inspector); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save inspector to repository")
		return nil, err
	}
	s.logger.Info("inspector availability changed", "inspector_id", id, "active", active)
	return inspector, nil
}

// Get returns a single inspector.
func (s *InspectorService) Get(ctx context.Context, id string) (*domain.Inspector, error) {
	ctx, span := s.tracer.Start(ctx, "service.GetInspector")
	defer span.End()
	span.SetAttributes(attribute.String("inspector.id", id))

	inspector, err := s.repo.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get inspector from repository")
	}
	return inspector, err
}

// List returns all inspectors, active or not.
func (s *InspectorService) List(ctx context.Context) ([]*domain.Inspector, error) {
	ctx, span := s.tracer.Start(ctx, "service.ListInspectors")
	defer span.End()

	inspectors, err := s.repo.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list inspectors from repository")
	}
	return inspectors, err
}
