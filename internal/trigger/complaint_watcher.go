// Package trigger assigns complaints that an external system writes straight into etcd.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"inspector-rotation/internal/domain"
	"inspector-rotation/internal/infra/etcd"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ComplaintAssigner assigns a single complaint by ID.
type ComplaintAssigner interface {
	Assign(ctx context.Context, complaintID string) (*domain.Complaint, error)
}

// ComplaintWatcher watches the complaint prefix and assigns each complaint
// that appears without an inspector.
type ComplaintWatcher struct {
	client     *clientv3.Client
	assigner   ComplaintAssigner
	retryDelay time.Duration
	logger     *slog.Logger
	tracer     trace.Tracer

	// openWatch follows the complaint prefix from rev on.
	openWatch func(ctx context.Context, rev int64) clientv3.WatchChan
}

// NewComplaintWatcher creates a new watcher.
func NewComplaintWatcher(client *clientv3.Client, assigner ComplaintAssigner, logger *slog.Logger) *ComplaintWatcher {
	w := &ComplaintWatcher{
		client:     client,
		assigner:   assigner,
		retryDelay: 2 * time.Second,
		logger:     logger.With("component", "complaint-watcher"),
		tracer:     otel.Tracer("inspector-rotation-trigger"),
	}
	w.openWatch = w.watchFrom
	return w
}

// Watch assigns complaints already waiting, then follows creation events
// until ctx is done. A watch that etcd closes (compaction, cancellation)
// is re-established with a fresh catch-up read. This is a blocking call
// and should be run in a goroutine.
func (w *ComplaintWatcher) Watch(ctx context.Context) {
	w.logger.Info("starting to watch for complaints")
	for {
		w.follow(ctx)
		if ctx.Err() != nil {
			break
		}
		w.logger.Warn("complaint watch ended, re-establishing", "retry_in", w.retryDelay)
		select {
		case <-ctx.Done():
		case <-time.After(w.retryDelay):
		}
	}
	w.logger.Info("stopped watching for complaints")
}

// follow runs one catch-up read and one watch, returning when the watch channel closes.
func (w *ComplaintWatcher) follow(ctx context.Context) {
	// 1. Catch up on complaints created while nobody was watching.
	rev, err := w.loadExisting(ctx)
	if err != nil {
		w.logger.Error("failed to load existing complaints", "error", err)
		return
	}

	// 2. Follow new complaints from the revision after the catch-up read.
	for watchResp := range w.openWatch(ctx, rev+1) {
		if err := watchResp.Err(); err != nil {
			w.logger.Error("complaint watch failed", "error", err, "compact_revision", watchResp.CompactRevision)
			continue
		}
		for _, event := range watchResp.Events {
			w.handleEvent(ctx, event)
		}
	}
}

func (w *ComplaintWatcher) watchFrom(ctx context.Context, rev int64) clientv3.WatchChan {
	return w.client.Watch(ctx, etcd.ComplaintDir,
		clientv3.WithPrefix(),
		clientv3.WithFilterDelete(),
		clientv3.WithRev(rev),
	)
}

func (w *ComplaintWatcher) loadExisting(ctx context.Context) (int64, error) {
	getCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := w.client.Get(getCtx, etcd.ComplaintDir,
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByCreateRevision, clientv3.SortAscend),
	)
	if err != nil {
		return 0, err
	}
	for _, kv := range resp.Kvs {
		w.handleKV(ctx, kv)
	}
	return resp.Header.Revision, nil
}

// handleEvent reacts only to key creation; the assignment's own write is an
// update and must not trigger another round.
func (w *ComplaintWatcher) handleEvent(ctx context.Context, event *clientv3.Event) {
	if event.Type != clientv3.EventTypePut || !event.IsCreate() {
		return
	}
	w.handleKV(ctx, event.Kv)
}

func (w *ComplaintWatcher) handleKV(ctx context.Context, kv *mvccpb.KeyValue) {
	var complaint domain.Complaint
	if err := json.Unmarshal(kv.Value, &complaint); err != nil {
		w.logger.Warn("ignoring malformed complaint", "key", string(kv.Key), "error", err)
		return
	}
	if complaint.ID == "" || complaint.Assigned() {
		return
	}

	ctx, span := w.tracer.Start(ctx, "trigger.ComplaintCreated",
		trace.WithAttributes(attribute.String("complaint.id", complaint.ID)))
	defer span.End()

	assigned, err := w.assigner.Assign(ctx, complaint.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assignment failed")
		if errors.Is(err, domain.ErrNoEligibleWorkers) {
			w.logger.Warn("complaint left unassigned, no active inspectors", "complaint_id", complaint.ID)
			return
		}
		w.logger.Error("failed to assign watched complaint", "complaint_id", complaint.ID, "error", err)
		return
	}
	w.logger.Info("watched complaint assigned", "complaint_id", complaint.ID, "inspector_id", assigned.InspectorID)
}
