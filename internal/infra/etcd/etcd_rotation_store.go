// internal/infra/etcd/etcd_rotation_store.go
package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"inspector-rotation/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// RotationCursorKey holds the rotation cursor as a decimal integer.
	RotationCursorKey = KeyPrefix + "rotation/cursor"
)

// etcdRotationStore keeps the cursor in a single key. Store and Commit only succeed if
// the key still has the mod revision seen by the last Load, so a writer that
// slipped past the rotation lock cannot overwrite a newer cursor.
type etcdRotationStore struct {
	client *clientv3.Client
	logger *slog.Logger
	tracer trace.Tracer

	mu      sync.Mutex
	lastRev int64 // 0 when the key did not exist at the last Load
}

// NewEtcdRotationStore creates a rotation cursor store backed by etcd.
func NewEtcdRotationStore(client *clientv3.Client, logger *slog.Logger) domain.RotationStore {
	return &etcdRotationStore{
		client: client,
		logger: logger.With("component", "rotation-store"),
		tracer: otel.Tracer("inspector-rotation-etcd-rotation-store"),
	}
}

func (s *etcdRotationStore) Load(ctx context.Context) (domain.RotationState, bool, error) {
	ctx, span := s.tracer.Start(ctx, "repo.etcd.LoadRotation")
	defer span.End()

	resp, err := s.client.Get(ctx, RotationCursorKey)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get rotation cursor from etcd")
		return domain.NoPriorAssignment, false, unavailable("failed to load rotation cursor: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(resp.Kvs) == 0 {
		s.lastRev = 0
		return domain.NoPriorAssignment, false, nil
	}
	kv := resp.Kvs[0]
	s.lastRev = kv.ModRevision

	value, err := strconv.Atoi(string(kv.Value))
	if err != nil {
		// A garbled cursor is treated like a missing one so the rotation can
		// recover from history instead of halting every assignment.
		s.logger.Warn("rotation cursor is not an integer, ignoring it", "value", string(kv.Value), "error", err)
		return domain.NoPriorAssignment, false, nil
	}
	span.SetAttributes(attribute.Int("rotation.cursor", value))
	return domain.RotationState(value), true, nil
}

func (s *etcdRotationStore) Store(ctx context.Context, state domain.RotationState) error {
	ctx, span := s.tracer.Start(ctx, "repo.etcd.StoreRotation")
	defer span.End()
	span.SetAttributes(attribute.Int("rotation.cursor", int(state)))

	s.mu.Lock()
	defer s.mu.Unlock()

	resp, err := s.client.Txn(ctx).
		If(s.cursorUnchanged()).
		Then(clientv3.OpPut(RotationCursorKey, strconv.Itoa(int(state)))).
		Commit()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put rotation cursor to etcd")
		return unavailable("failed to store rotation cursor: %w", err)
	}
	if !resp.Succeeded {
		err := unavailable("rotation cursor was modified concurrently: %w", domain.ErrInconsistentRotationState)
		span.RecordError(err)
		span.SetStatus(codes.Error, "rotation cursor revision mismatch")
		return err
	}
	s.lastRev = resp.Header.Revision
	return nil
}

// cursorUnchanged compares the cursor key against the revision seen by the
// last Load. Callers hold s.mu.
func (s *etcdRotationStore) cursorUnchanged() clientv3.Cmp {
	if s.lastRev == 0 {
		return clientv3.Compare(clientv3.CreateRevision(RotationCursorKey), "=", 0)
	}
	return clientv3.Compare(clientv3.ModRevision(RotationCursorKey), "=", s.lastRev)
}

// Commit puts the assigned complaint and the new cursor in one transaction,
// guarded on the complaint's current revision and the cursor's revision at
// the last Load.
func (s *etcdRotationStore) Commit(ctx context.Context, complaintID, inspectorID string, assignedAt time.Time, next domain.RotationState) error {
	ctx, span := s.tracer.Start(ctx, "repo.etcd.CommitAssignment")
	defer span.End()
	span.SetAttributes(
		attribute.String("complaint.id", complaintID),
		attribute.String("inspector.id", inspectorID),
		attribute.Int("rotation.cursor", int(next)),
	)

	key := complaintKey(complaintID)
	getResp, err := s.client.Get(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read complaint before assignment")
		return unavailable("failed to get complaint %s from etcd: %w", complaintID, err)
	}
	if len(getResp.Kvs) == 0 {
		return domain.ErrComplaintNotFound
	}

	var complaint domain.Complaint
	if err := json.Unmarshal(getResp.Kvs[0].Value, &complaint); err != nil {
		return fmt.Errorf("failed to unmarshal complaint %s from JSON: %w", complaintID, err)
	}
	complaint.InspectorID = inspectorID
	complaint.AssignedAt = assignedAt
	data, err := json.Marshal(&complaint)
	if err != nil {
		return fmt.Errorf("failed to marshal complaint %s to JSON: %w", complaintID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	resp, err := s.client.Txn(ctx).
		If(
			clientv3.Compare(clientv3.ModRevision(key), "=", getResp.Kvs[0].ModRevision),
			s.cursorUnchanged(),
		).
		Then(
			clientv3.OpPut(key, string(data)),
			clientv3.OpPut(RotationCursorKey, strconv.Itoa(int(next))),
		).
		Commit()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to commit assignment to etcd")
		return unavailable("failed to commit assignment of complaint %s: %w", complaintID, err)
	}
	if !resp.Succeeded {
		err := unavailable("complaint %s or rotation cursor changed during assignment: %w", complaintID, domain.ErrInconsistentRotationState)
		span.RecordError(err)
		span.SetStatus(codes.Error, "assignment revision mismatch")
		return err
	}
	s.lastRev = resp.Header.Revision
	return nil
}
