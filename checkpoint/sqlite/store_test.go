package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/pipeline/checkpoint"
)

// openTestStore opens a store backed by a fresh database file.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testCheckpoint(id, stage string) *checkpoint.Checkpoint {
	now := time.Date(2026, 1, 15, 9, 0, 0, 123456789, time.UTC)
	return &checkpoint.Checkpoint{
		ID:        id,
		Name:      "extract entities",
		Stage:     stage,
		Status:    checkpoint.StatusPending,
		Data:      map[string]interface{}{"documents": "42"},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ---------------------------------------------------------------------------
// TestStore_CreateGet
// ---------------------------------------------------------------------------

func TestStore_CreateGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)

	cp := testCheckpoint("c1", "extraction")
	require.NoError(t, store.Create(ctx, cp))

	got, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, cp.ID, got.ID)
	assert.Equal(t, cp.Name, got.Name)
	assert.Equal(t, checkpoint.StatusPending, got.Status)
	assert.Equal(t, cp.Data, got.Data)
	// Timestamps survive with nanosecond precision.
	assert.True(t, cp.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, cp.UpdatedAt.Equal(got.UpdatedAt))

	err = store.Create(ctx, testCheckpoint("c1", "extraction"))
	assert.ErrorIs(t, err, checkpoint.ErrDuplicateID)

	_, err = store.Get(ctx, "ghost")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
}

// ---------------------------------------------------------------------------
// TestStore_Update
// ---------------------------------------------------------------------------

func TestStore_Update(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("commits mutation and transition record", func(t *testing.T) {
		t.Parallel()
		store := openTestStore(t)

		cp := testCheckpoint("c1", "extraction")
		require.NoError(t, store.Create(ctx, cp))

		later := cp.CreatedAt.Add(time.Minute)
		updated, err := store.Update(ctx, "c1", func(cp *checkpoint.Checkpoint) (*checkpoint.TransitionRecord, error) {
			rec := &checkpoint.TransitionRecord{
				From:      cp.Status,
				To:        checkpoint.StatusInProgress,
				Timestamp: later,
				Actor:     "worker-1",
			}
			cp.Status = checkpoint.StatusInProgress
			cp.UpdatedAt = later
			return rec, nil
		})
		require.NoError(t, err)
		assert.Equal(t, checkpoint.StatusInProgress, updated.Status)

		got, err := store.Get(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, checkpoint.StatusInProgress, got.Status)
		assert.True(t, later.Equal(got.UpdatedAt))

		history, err := store.History(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, checkpoint.StatusPending, history[0].From)
		assert.Equal(t, checkpoint.StatusInProgress, history[0].To)
		assert.Equal(t, "worker-1", history[0].Actor)
		assert.True(t, later.Equal(history[0].Timestamp))
	})

	t.Run("rejected update leaves no trace", func(t *testing.T) {
		t.Parallel()
		store := openTestStore(t)

		require.NoError(t, store.Create(ctx, testCheckpoint("c1", "extraction")))

		_, err := store.Update(ctx, "c1", func(cp *checkpoint.Checkpoint) (*checkpoint.TransitionRecord, error) {
			cp.Status = checkpoint.StatusApproved
			return nil, checkpoint.NewInvalidTransitionError("c1", cp.Status, checkpoint.StatusApproved)
		})
		assert.ErrorIs(t, err, checkpoint.ErrInvalidTransition)

		got, err := store.Get(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, checkpoint.StatusPending, got.Status)

		history, err := store.History(ctx, "c1")
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("unknown id fails with not found", func(t *testing.T) {
		t.Parallel()
		store := openTestStore(t)

		_, err := store.Update(ctx, "ghost", func(cp *checkpoint.Checkpoint) (*checkpoint.TransitionRecord, error) {
			return nil, nil
		})
		assert.ErrorIs(t, err, checkpoint.ErrNotFound)
	})
}

// ---------------------------------------------------------------------------
// TestStore_Listing
// ---------------------------------------------------------------------------

func TestStore_Listing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)

	for _, id := range []string{"b", "a", "c"} {
		cp := testCheckpoint(id, "extraction")
		require.NoError(t, store.Create(ctx, cp))
	}
	require.NoError(t, store.Create(ctx, testCheckpoint("other", "validation")))

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	// Creation order, not lexical order.
	assert.Equal(t, "b", all[0].ID)
	assert.Equal(t, "a", all[1].ID)
	assert.Equal(t, "c", all[2].ID)

	staged, err := store.ListStage(ctx, "extraction")
	require.NoError(t, err)
	require.Len(t, staged, 3)
	assert.Equal(t, "b", staged[0].ID)

	empty, err := store.ListStage(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

// ---------------------------------------------------------------------------
// TestStore_History_NotFound
// ---------------------------------------------------------------------------

func TestStore_History_NotFound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)

	_, err := store.History(ctx, "ghost")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
}

// ---------------------------------------------------------------------------
// TestStore_ManagerIntegration
// ---------------------------------------------------------------------------

// TestStore_ManagerIntegration drives the full state machine through the
// sqlite store via a Manager, including snapshot restore into a second store.
func TestStore_ManagerIntegration(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := openTestStore(t)
	m := checkpoint.NewManager(store)

	_, err := m.Create(ctx, "c1", "entity extraction", "extraction", map[string]interface{}{"documents": "42"})
	require.NoError(t, err)
	_, err = m.Start(ctx, "c1")
	require.NoError(t, err)
	_, err = m.SubmitForReview(ctx, "c1")
	require.NoError(t, err)
	cp, err := m.Approve(ctx, "c1", "alice", "looks good")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusApproved, cp.Status)

	complete, err := m.IsStageComplete(ctx, "extraction")
	require.NoError(t, err)
	assert.True(t, complete)

	snap, err := m.Snapshot(ctx)
	require.NoError(t, err)

	restoredStore := openTestStore(t)
	restored, err := checkpoint.Restore(ctx, snap, restoredStore)
	require.NoError(t, err)

	got, err := restored.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusApproved, got.Status)
	assert.Equal(t, "alice", got.Reviewer)

	history, err := restored.History(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, history, 3)
}
