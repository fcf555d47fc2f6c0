package sqlite

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"inspector-rotation/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewStore_CreatesFileAndDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "assign.db")

	store, err := NewStore(dbPath, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestInspectors(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).Inspectors()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, repo.Save(ctx, &domain.Inspector{ID: "b", Name: "Bob", Active: true, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, repo.Save(ctx, &domain.Inspector{ID: "a", Name: "Alice", Email: "a@x.org", Active: true, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, repo.Save(ctx, &domain.Inspector{ID: "c", Name: "Carol", Active: false, CreatedAt: now, UpdatedAt: now}))

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "a", active[0].ID)
	assert.Equal(t, "b", active[1].ID)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	got, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)
	assert.Equal(t, "a@x.org", got.Email)
	assert.True(t, got.Active)
	assert.True(t, now.Equal(got.CreatedAt))

	got.Active = false
	require.NoError(t, repo.Save(ctx, got))
	active, err = repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "b", active[0].ID)

	_, err = repo.Get(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrInspectorNotFound)
}

func TestComplaints(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).Complaints()
	now := time.Now().UTC()

	for _, id := range []string{"c1", "c2", "c3"} {
		require.NoError(t, repo.Create(ctx, &domain.Complaint{ID: id, Subject: "subject " + id, CreatedAt: now}))
	}
	err := repo.Create(ctx, &domain.Complaint{ID: "c2", Subject: "dup", CreatedAt: now})
	assert.ErrorIs(t, err, domain.ErrComplaintExists)

	require.NoError(t, repo.SetInspector(ctx, "c1", "insp-a", now))
	assert.ErrorIs(t, repo.SetInspector(ctx, "missing", "insp-a", now), domain.ErrComplaintNotFound)

	recent, err := repo.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c3", recent[0].ID)
	assert.Equal(t, "c2", recent[1].ID)

	all, err := repo.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	unassigned, err := repo.ListUnassigned(ctx)
	require.NoError(t, err)
	require.Len(t, unassigned, 2)
	assert.Equal(t, "c2", unassigned[0].ID)
	assert.Equal(t, "c3", unassigned[1].ID)

	c1, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "insp-a", c1.InspectorID)
	assert.False(t, c1.AssignedAt.IsZero())

	require.NoError(t, repo.Delete(ctx, "c1"))
	_, err = repo.Get(ctx, "c1")
	assert.ErrorIs(t, err, domain.ErrComplaintNotFound)
}

func TestRotation(t *testing.T) {
	ctx := context.Background()
	rot := newTestStore(t).Rotation()

	state, found, err := rot.Load(ctx)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, domain.NoPriorAssignment, state)

	require.NoError(t, rot.Store(ctx, 0))
	require.NoError(t, rot.Store(ctx, 2))

	state, found, err = rot.Load(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, domain.RotationState(2), state)
}

func TestRotation_CommitAssignsAndAdvances(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Now().UTC()
	require.NoError(t, store.Complaints().Create(ctx, &domain.Complaint{ID: "c1", Subject: "Noise", CreatedAt: now}))

	require.NoError(t, store.Rotation().Commit(ctx, "c1", "insp-b", now, 1))
	got, err := store.Complaints().Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "insp-b", got.InspectorID)
	state, found, err := store.Rotation().Load(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, domain.RotationState(1), state)

	err = store.Rotation().Commit(ctx, "missing", "insp-c", now, 2)
	assert.ErrorIs(t, err, domain.ErrComplaintNotFound)
	state, _, err = store.Rotation().Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.RotationState(1), state, "cursor must not move when the complaint is missing")
}

func TestClosedStoreReportsBackendUnavailable(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Close())

	_, err := store.Inspectors().ListActive(context.Background())
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)

	_, _, err = store.Rotation().Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
}
