// internal/infra/etcd/etcd_inspector_repository.go
package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"

	"inspector-rotation/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	InspectorDir = KeyPrefix + "inspectors/"
)

type etcdInspectorRepository struct {
	client *clientv3.Client
	logger *slog.Logger
	tracer trace.Tracer
}

// NewEtcdInspectorRepository creates a new repository for inspectors backed by etcd.
func NewEtcdInspectorRepository(client *clientv3.Client, logger *slog.Logger) domain.InspectorRepository {
	return &etcdInspectorRepository{
		client: client,
		logger: logger,
		tracer: otel.Tracer("inspector-rotation-etcd-inspector-repo"),
	}
}

// Save persists the inspector under /assign/inspectors/{id}.
func (r *etcdInspectorRepository) Save(ctx context.Context, inspector *domain.Inspector) error {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.SaveInspector")
	defer span.End()

	data, err := json.Marshal(inspector)
	if err != nil {
		return fmt.Errorf("failed to marshal inspector to JSON: %w", err)
	}

	key := path.Join(InspectorDir, inspector.ID)
	span.SetAttributes(
		attribute.String("inspector.id", inspector.ID),
		attribute.String("etcd.key", key),
	)

	if _, err := r.client.Put(ctx, key, string(data)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put inspector to etcd")
		return unavailable("failed to save inspector %s to etcd: %w", inspector.ID, err)
	}
	return nil
}

// Get retrieves an inspector from etcd.
func (r *etcdInspectorRepository) Get(ctx context.Context, id string) (*domain.Inspector, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.GetInspector")
	defer span.End()
	span.SetAttributes(attribute.String("inspector.id", id))

	resp, err := r.client.Get(ctx, path.Join(InspectorDir, id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get inspector from etcd")
		return nil, unavailable("failed to get inspector %s from etcd: %w", id, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, domain.ErrInspectorNotFound
	}

	var inspector domain.Inspector
	if err := json.Unmarshal(resp.Kvs[0].Value, &inspector); err != nil {
		return nil, fmt.Errorf("failed to unmarshal inspector %s from JSON: %w", id, err)
	}
	return &inspector, nil
}

func (r *etcdInspectorRepository) List(ctx context.Context) ([]*domain.Inspector, error) {
	return r.list(ctx, "repo.etcd.ListInspectors", false)
}

func (r *etcdInspectorRepository) ListActive(ctx context.Context) ([]*domain.Inspector, error) {
	return r.list(ctx, "repo.etcd.ListActiveInspectors", true)
}

// list reads the whole prefix. etcd returns keys in ascending byte order,
// which gives the pool its stable order by ID.
func (r *etcdInspectorRepository) list(ctx context.Context, spanName string, activeOnly bool) ([]*domain.Inspector, error) {
	ctx, span := r.tracer.Start(ctx, spanName)
	defer span.End()

	resp, err := r.client.Get(ctx, InspectorDir,
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list inspectors from etcd")
		return nil, unavailable("failed to list inspectors from etcd: %w", err)
	}
	span.SetAttributes(attribute.Int("etcd.kv_count", len(resp.Kvs)))

	inspectors := make([]*domain.Inspector, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var inspector domain.Inspector
		if err := json.Unmarshal(kv.Value, &inspector); err != nil {
			r.logger.Warn("failed to unmarshal inspector from etcd", "key", string(kv.Key), "error", err)
			continue
		}
		if activeOnly && !inspector.Active {
			continue
		}
		inspectors = append(inspectors, &inspector)
	}
	return inspectors, nil
}
