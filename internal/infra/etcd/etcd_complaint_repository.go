// internal/infra/etcd/etcd_complaint_repository.go
package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"time"

	"inspector-rotation/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	ComplaintDir = KeyPrefix + "complaints/"
)

type etcdComplaintRepository struct {
	client *clientv3.Client
	logger *slog.Logger
	tracer trace.Tracer
}

// NewEtcdComplaintRepository creates a new repository for complaints backed by etcd.
// Complaints live under /assign/complaints/{id}; the key's create revision is
// the creation order used for history queries.
func NewEtcdComplaintRepository(client *clientv3.Client, logger *slog.Logger) domain.ComplaintRepository {
	return &etcdComplaintRepository{
		client: client,
		logger: logger,
		tracer: otel.Tracer("inspector-rotation-etcd-complaint-repo"),
	}
}

func complaintKey(id string) string {
	return path.Join(ComplaintDir, id)
}

// Create stores a new complaint, failing if the key already exists.
func (r *etcdComplaintRepository) Create(ctx context.Context, complaint *domain.Complaint) error {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.CreateComplaint")
	defer span.End()

	data, err := json.Marshal(complaint)
	if err != nil {
		return fmt.Errorf("failed to marshal complaint %s to JSON: %w", complaint.ID, err)
	}

	key := complaintKey(complaint.ID)
	span.SetAttributes(attribute.String("complaint.id", complaint.ID), attribute.String("etcd.key", key))

	resp, err := r.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, string(data))).
		Commit()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put complaint to etcd")
		return unavailable("failed to save complaint %s to etcd: %w", complaint.ID, err)
	}
	if !resp.Succeeded {
		return fmt.Errorf("%w: %s", domain.ErrComplaintExists, complaint.ID)
	}
	return nil
}

// Get retrieves a single complaint.
func (r *etcdComplaintRepository) Get(ctx context.Context, id string) (*domain.Complaint, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.GetComplaint")
	defer span.End()
	span.SetAttributes(attribute.String("complaint.id", id))

	complaint, _, err := r.get(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get complaint from etcd")
	}
	return complaint, err
}

// get also returns the key's mod revision for guarded updates.
func (r *etcdComplaintRepository) get(ctx context.Context, id string) (*domain.Complaint, int64, error) {
	resp, err := r.client.Get(ctx, complaintKey(id))
	if err != nil {
		return nil, 0, unavailable("failed to get complaint %s from etcd: %w", id, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, 0, domain.ErrComplaintNotFound
	}

	var complaint domain.Complaint
	if err := json.Unmarshal(resp.Kvs[0].Value, &complaint); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal complaint %s from JSON: %w", id, err)
	}
	return &complaint, resp.Kvs[0].ModRevision, nil
}

// Delete removes a complaint.
func (r *etcdComplaintRepository) Delete(ctx context.Context, id string) error {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.DeleteComplaint")
	defer span.End()
	span.SetAttributes(attribute.String("complaint.id", id))

	if _, err := r.client.Delete(ctx, complaintKey(id)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete complaint from etcd")
		return unavailable("failed to delete complaint %s from etcd: %w", id, err)
	}
	return nil
}

// ListRecent returns at most limit complaints, newest first.
func (r *etcdComplaintRepository) ListRecent(ctx context.Context, limit int) ([]*domain.Complaint, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.ListRecentComplaints")
	defer span.End()
	span.SetAttributes(attribute.Int("limit", limit))

	opts := []clientv3.OpOption{
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByCreateRevision, clientv3.SortDescend),
	}
	if limit > 0 {
		opts = append(opts, clientv3.WithLimit(int64(limit)))
	}
	return r.list(ctx, span, opts, false)
}

// ListUnassigned returns complaints without an inspector, oldest first.
func (r *etcdComplaintRepository) ListUnassigned(ctx context.Context) ([]*domain.Complaint, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.ListUnassignedComplaints")
	defer span.End()

	return r.list(ctx, span, []clientv3.OpOption{
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByCreateRevision, clientv3.SortAscend),
	}, true)
}

func (r *etcdComplaintRepository) list(ctx context.Context, span trace.Span, opts []clientv3.OpOption, unassignedOnly bool) ([]*domain.Complaint, error) {
	resp, err := r.client.Get(ctx, ComplaintDir, opts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list complaints from etcd")
		return nil, unavailable("failed to list complaints from etcd: %w", err)
	}

	complaints := make([]*domain.Complaint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var complaint domain.Complaint
		if err := json.Unmarshal(kv.Value, &complaint); err != nil {
			r.logger.Warn("failed to unmarshal complaint from etcd", "key", string(kv.Key), "error", err)
			continue
		}
		if unassignedOnly && complaint.Assigned() {
			continue
		}
		complaints = append(complaints, &complaint)
	}
	span.SetAttributes(attribute.Int("records_returned", len(complaints)))
	return complaints, nil
}

// SetInspector writes the assignment onto the complaint. The write is
// guarded on the revision that was read so a concurrent edit is not lost.
func (r *etcdComplaintRepository) SetInspector(ctx context.Context, complaintID, inspectorID string, assignedAt time.Time) error {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.SetComplaintInspector")
	defer span.End()
	span.SetAttributes(
		attribute.String("complaint.id", complaintID),
		attribute.String("inspector.id", inspectorID),
	)

	complaint, rev, err := r.get(ctx, complaintID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read complaint before assignment")
		return err
	}
	complaint.InspectorID = inspectorID
	complaint.AssignedAt = assignedAt

	data, err := json.Marshal(complaint)
	if err != nil {
		return fmt.Errorf("failed to marshal complaint %s to JSON: %w", complaintID, err)
	}

	key := complaintKey(complaintID)
	resp, err := r.client.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(key), "=", rev)).
		Then(clientv3.OpPut(key, string(data))).
		Commit()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put complaint assignment to etcd")
		return unavailable("failed to assign complaint %s in etcd: %w", complaintID, err)
	}
	if !resp.Succeeded {
		err := unavailable("complaint %s changed while being assigned", complaintID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "complaint modified concurrently")
		return err
	}
	return nil
}
