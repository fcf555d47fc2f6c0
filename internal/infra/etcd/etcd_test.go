package etcd

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"inspector-rotation/internal/domain"
	"inspector-rotation/internal/infra/etcd/etcdtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRotationStore_CreateAndRevisionGuard(t *testing.T) {
	client := etcdtest.NewClient(t)
	ctx := context.Background()
	store := NewEtcdRotationStore(client, discardLogger())

	state, found, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, domain.NoPriorAssignment, state)

	require.NoError(t, store.Store(ctx, 0))
	state, found, err = store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, domain.RotationState(0), state)

	// Someone writes the cursor behind this store's back.
	_, err = client.Put(ctx, RotationCursorKey, "5")
	require.NoError(t, err)

	err = store.Store(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
	assert.ErrorIs(t, err, domain.ErrInconsistentRotationState)

	state, _, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.RotationState(5), state)
	require.NoError(t, store.Store(ctx, 6))
}

func TestRotationStore_ConcurrentFirstWrite(t *testing.T) {
	client := etcdtest.NewClient(t)
	ctx := context.Background()
	first := NewEtcdRotationStore(client, discardLogger())
	second := NewEtcdRotationStore(client, discardLogger())

	_, _, err := first.Load(ctx)
	require.NoError(t, err)
	_, _, err = second.Load(ctx)
	require.NoError(t, err)

	require.NoError(t, first.Store(ctx, 0))
	assert.ErrorIs(t, second.Store(ctx, 0), domain.ErrBackendUnavailable)
}

func TestRotationStore_GarbledCursorIsTreatedAsMissing(t *testing.T) {
	client := etcdtest.NewClient(t)
	ctx := context.Background()
	store := NewEtcdRotationStore(client, discardLogger())

	_, err := client.Put(ctx, RotationCursorKey, "not-a-number")
	require.NoError(t, err)

	state, found, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, domain.NoPriorAssignment, state)

	require.NoError(t, store.Store(ctx, 2))
	state, found, err = store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, domain.RotationState(2), state)
}

func TestRotationStore_CommitIsAtomic(t *testing.T) {
	client := etcdtest.NewClient(t)
	ctx := context.Background()
	complaints := NewEtcdComplaintRepository(client, discardLogger())
	store := NewEtcdRotationStore(client, discardLogger())
	now := time.Now().UTC()

	for _, id := range []string{"c1", "c2"} {
		require.NoError(t, complaints.Create(ctx, &domain.Complaint{ID: id, Subject: "Noise", CreatedAt: now}))
	}

	_, _, err := store.Load(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Commit(ctx, "c1", "insp-a", now, 0))

	got, err := complaints.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "insp-a", got.InspectorID)
	state, found, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, domain.RotationState(0), state)

	// A cursor written after the Load makes the whole commit fail.
	_, err = client.Put(ctx, RotationCursorKey, "3")
	require.NoError(t, err)
	err = store.Commit(ctx, "c2", "insp-b", now, 1)
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)

	got, err = complaints.Get(ctx, "c2")
	require.NoError(t, err)
	assert.False(t, got.Assigned())

	assert.ErrorIs(t, store.Commit(ctx, "missing", "insp-b", now, 1), domain.ErrComplaintNotFound)
}

func TestLocker_SecondLockTimesOut(t *testing.T) {
	client := etcdtest.NewClient(t)
	ctx := context.Background()
	locker := NewEtcdLocker(client)

	held, err := locker.Lock(ctx, domain.RotationLockName)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(waitCtx, domain.RotationLockName)
	assert.ErrorIs(t, err, domain.ErrLockNotAcquired)

	require.NoError(t, held.Unlock(ctx))

	again, err := locker.Lock(ctx, domain.RotationLockName)
	require.NoError(t, err)
	require.NoError(t, again.Unlock(ctx))
}

func TestComplaintRepository(t *testing.T) {
	client := etcdtest.NewClient(t)
	ctx := context.Background()
	repo := NewEtcdComplaintRepository(client, discardLogger())
	now := time.Now().UTC()

	for _, id := range []string{"c1", "c2", "c3"} {
		require.NoError(t, repo.Create(ctx, &domain.Complaint{ID: id, Subject: "Pothole", CreatedAt: now}))
	}
	assert.ErrorIs(t, repo.Create(ctx, &domain.Complaint{ID: "c1", Subject: "again", CreatedAt: now}), domain.ErrComplaintExists)

	require.NoError(t, repo.SetInspector(ctx, "c2", "insp-a", now))
	assert.ErrorIs(t, repo.SetInspector(ctx, "missing", "insp-a", now), domain.ErrComplaintNotFound)

	recent, err := repo.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c3", recent[0].ID)
	assert.Equal(t, "c2", recent[1].ID)
	assert.Equal(t, "insp-a", recent[1].InspectorID)

	unassigned, err := repo.ListUnassigned(ctx)
	require.NoError(t, err)
	require.Len(t, unassigned, 2)
	assert.Equal(t, "c1", unassigned[0].ID)
	assert.Equal(t, "c3", unassigned[1].ID)

	require.NoError(t, repo.Delete(ctx, "c1"))
	_, err = repo.Get(ctx, "c1")
	assert.ErrorIs(t, err, domain.ErrComplaintNotFound)
}

func TestInspectorRepository_ListActiveOrderedByID(t *testing.T) {
	client := etcdtest.NewClient(t)
	ctx := context.Background()
	repo := NewEtcdInspectorRepository(client, discardLogger())

	for _, insp := range []*domain.Inspector{
		{ID: "c", Name: "Carol", Active: true},
		{ID: "a", Name: "Alice", Active: true},
		{ID: "b", Name: "Bob", Active: false},
	} {
		require.NoError(t, repo.Save(ctx, insp))
	}

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "a", active[0].ID)
	assert.Equal(t, "c", active[1].ID)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = repo.Get(ctx, "zzz")
	assert.ErrorIs(t, err, domain.ErrInspectorNotFound)
}

func TestLeaderElection_CampaignAndResign(t *testing.T) {
	client := etcdtest.NewClient(t)
	ctx := context.Background()
	manager := NewEtcdLeaderElectionManager(client, "node-1", 5*time.Second, discardLogger())

	lost, err := manager.Campaign(ctx)
	require.NoError(t, err)
	assert.True(t, manager.IsLeader())

	require.NoError(t, manager.Resign(ctx))
	assert.False(t, manager.IsLeader())
	select {
	case <-lost:
	case <-time.After(5 * time.Second):
		t.Fatal("leadership channel not closed after resign")
	}
}

func TestNodeRegistry(t *testing.T) {
	client := etcdtest.NewClient(t)
	ctx := context.Background()
	registry := NewNodeRegistry(client, discardLogger())

	require.NoError(t, registry.Register(ctx, "node-b", ":8080", 5))
	nodes, err := registry.Nodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"node-b"}, nodes)

	require.NoError(t, registry.Deregister(ctx))
	nodes, err = registry.Nodes(ctx)
	require.NoError(t, err)
	assert.Empty(t, nodes)
	assert.NoError(t, registry.Deregister(ctx))
}
