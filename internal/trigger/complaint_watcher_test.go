package trigger

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"inspector-rotation/internal/domain"
	"inspector-rotation/internal/infra/etcd"
	"inspector-rotation/internal/infra/etcd/etcdtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

type recordingAssigner struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (a *recordingAssigner) Assign(_ context.Context, id string) (*domain.Complaint, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ids = append(a.ids, id)
	if a.err != nil {
		return nil, a.err
	}
	return &domain.Complaint{ID: id, InspectorID: "insp-1"}, nil
}

func (a *recordingAssigner) saw(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Contains(a.ids, id)
}

func newWatcher(a ComplaintAssigner) *ComplaintWatcher {
	return NewComplaintWatcher(nil, a, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func kv(t *testing.T, c domain.Complaint, createRev, modRev int64) *mvccpb.KeyValue {
	t.Helper()
	data, err := json.Marshal(c)
	require.NoError(t, err)
	return &mvccpb.KeyValue{
		Key:            []byte("/assign/complaints/" + c.ID),
		Value:          data,
		CreateRevision: createRev,
		ModRevision:    modRev,
	}
}

func TestHandleEvent_AssignsNewUnassignedComplaint(t *testing.T) {
	a := &recordingAssigner{}
	w := newWatcher(a)

	w.handleEvent(context.Background(), &clientv3.Event{
		Type: clientv3.EventTypePut,
		Kv:   kv(t, domain.Complaint{ID: "c1", Subject: "s", CreatedAt: time.Now()}, 10, 10),
	})

	assert.Equal(t, []string{"c1"}, a.ids)
}

func TestHandleEvent_IgnoresUpdatesAndDeletes(t *testing.T) {
	a := &recordingAssigner{}
	w := newWatcher(a)
	ctx := context.Background()

	// The assignment's own write.
	w.handleEvent(ctx, &clientv3.Event{
		Type: clientv3.EventTypePut,
		Kv:   kv(t, domain.Complaint{ID: "c1", InspectorID: "insp-1"}, 10, 11),
	})
	w.handleEvent(ctx, &clientv3.Event{
		Type: clientv3.EventTypeDelete,
		Kv:   &mvccpb.KeyValue{Key: []byte("/assign/complaints/c2"), ModRevision: 12},
	})

	assert.Empty(t, a.ids)
}

func TestHandleKV_SkipsAssignedAndMalformed(t *testing.T) {
	a := &recordingAssigner{}
	w := newWatcher(a)
	ctx := context.Background()

	w.handleKV(ctx, kv(t, domain.Complaint{ID: "c1", InspectorID: "insp-9"}, 5, 5))
	w.handleKV(ctx, &mvccpb.KeyValue{Key: []byte("/assign/complaints/bad"), Value: []byte("{not json")})
	w.handleKV(ctx, kv(t, domain.Complaint{}, 6, 6))

	assert.Empty(t, a.ids)
}

func TestHandleKV_AssignmentFailureIsContained(t *testing.T) {
	a := &recordingAssigner{err: domain.ErrNoEligibleWorkers}
	w := newWatcher(a)

	assert.NotPanics(t, func() {
		w.handleKV(context.Background(), kv(t, domain.Complaint{ID: "c1", Subject: "s"}, 7, 7))
	})
	assert.Equal(t, []string{"c1"}, a.ids)
}

func putComplaint(ctx context.Context, client *clientv3.Client, id string) error {
	data, err := json.Marshal(domain.Complaint{ID: id, Subject: "Flooded underpass", CreatedAt: time.Now()})
	if err != nil {
		return err
	}
	_, err = client.Put(ctx, etcd.ComplaintDir+id, string(data))
	return err
}

func TestWatch_ReestablishesClosedWatch(t *testing.T) {
	client := etcdtest.NewClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, putComplaint(ctx, client, "c-before"))

	a := &recordingAssigner{}
	w := NewComplaintWatcher(client, a, slog.New(slog.NewTextHandler(io.Discard, nil)))
	w.retryDelay = 10 * time.Millisecond

	var opened atomic.Int32
	watchFrom := w.openWatch
	w.openWatch = func(ctx context.Context, rev int64) clientv3.WatchChan {
		if opened.Add(1) > 1 {
			return watchFrom(ctx, rev)
		}
		// The first watch dies at once, as after a compaction, and a
		// complaint lands while nobody is watching.
		if err := putComplaint(ctx, client, "c-gap"); err != nil {
			t.Errorf("put c-gap: %v", err)
		}
		ch := make(chan clientv3.WatchResponse)
		close(ch)
		return ch
	}

	done := make(chan struct{})
	go func() {
		w.Watch(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return a.saw("c-before") && a.saw("c-gap") }, 10*time.Second, 20*time.Millisecond)
	assert.Eventually(t, func() bool { return opened.Load() >= 2 }, 10*time.Second, 20*time.Millisecond)

	require.NoError(t, putComplaint(ctx, client, "c-live"))
	assert.Eventually(t, func() bool { return a.saw("c-live") }, 10*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
}
