package checkpoint

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// TestSnapshotRestore_RoundTrip
// ---------------------------------------------------------------------------

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m, clock := newTestManager(t)

	_, err := m.Create(ctx, "c1", "entity extraction", "extraction", map[string]interface{}{"documents": "42"})
	require.NoError(t, err)
	clock.Tick(time.Minute)
	_, err = m.Start(ctx, "c1")
	require.NoError(t, err)
	clock.Tick(time.Minute)
	_, err = m.SubmitForReview(ctx, "c1")
	require.NoError(t, err)
	clock.Tick(time.Minute)
	_, err = m.Approve(ctx, "c1", "alice", "good")
	require.NoError(t, err)

	mustAdvance(t, m, "c2", "validation", StatusInProgress)

	snap, err := m.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Version)
	require.Len(t, snap.Checkpoints, 2)

	// Round-trip through JSON the way an integrating system would persist it.
	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	var decoded Snapshot
	require.NoError(t, json.Unmarshal(raw, &decoded))

	restored, err := Restore(ctx, &decoded, NewMemoryStore(), WithClock(clock))
	require.NoError(t, err)

	cp, err := restored.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, cp.Status)
	assert.Equal(t, "alice", cp.Reviewer)
	assert.Equal(t, "good", cp.Feedback)
	assert.Equal(t, map[string]interface{}{"documents": "42"}, cp.Data)

	history, err := restored.History(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, StatusAwaitingReview, history[2].From)
	assert.Equal(t, StatusApproved, history[2].To)

	// Timestamps survive the round trip with full precision.
	original, err := m.History(ctx, "c1")
	require.NoError(t, err)
	for i := range original {
		assert.True(t, original[i].Timestamp.Equal(history[i].Timestamp))
	}

	// The restored manager enforces the same transition rules.
	_, err = restored.Start(ctx, "c1")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = restored.SubmitForReview(ctx, "c2")
	require.NoError(t, err)
}

// ---------------------------------------------------------------------------
// TestRestore_Validation
// ---------------------------------------------------------------------------

func TestRestore_Validation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("nil snapshot is rejected", func(t *testing.T) {
		t.Parallel()
		_, err := Restore(ctx, nil, NewMemoryStore())
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("unsupported version is rejected", func(t *testing.T) {
		t.Parallel()
		_, err := Restore(ctx, &Snapshot{Version: 99}, NewMemoryStore())
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("unknown status is rejected", func(t *testing.T) {
		t.Parallel()
		snap := &Snapshot{
			Version: 1,
			Checkpoints: []SnapshotCheckpoint{
				{ID: "c1", Stage: "extraction", Status: Status("cancelled")},
			},
		}
		_, err := Restore(ctx, snap, NewMemoryStore())
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("duplicate checkpoint in snapshot is rejected", func(t *testing.T) {
		t.Parallel()
		snap := &Snapshot{
			Version: 1,
			Checkpoints: []SnapshotCheckpoint{
				{ID: "c1", Stage: "extraction", Status: StatusPending},
				{ID: "c1", Stage: "extraction", Status: StatusPending},
			},
		}
		_, err := Restore(ctx, snap, NewMemoryStore())
		assert.ErrorIs(t, err, ErrDuplicateID)
	})
}

// ---------------------------------------------------------------------------
// TestSnapshot_EmptyManager
// ---------------------------------------------------------------------------

func TestSnapshot_EmptyManager(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m, _ := newTestManager(t)
	snap, err := m.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Checkpoints)

	restored, err := Restore(ctx, snap, NewMemoryStore())
	require.NoError(t, err)

	all, err := restored.StageCheckpoints(ctx, "extraction")
	require.NoError(t, err)
	assert.Empty(t, all)
}
