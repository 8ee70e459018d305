package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/pipeline/checkpoint"
)

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []*Event
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, ev *Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func testSubject(status checkpoint.Status) *checkpoint.Checkpoint {
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	return &checkpoint.Checkpoint{
		ID:        "c1",
		Name:      "entity extraction",
		Stage:     "extraction",
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ---------------------------------------------------------------------------
// TestRecorder_OnCreated
// ---------------------------------------------------------------------------

func TestRecorder_OnCreated(t *testing.T) {
	t.Parallel()

	pub := &capturePublisher{}
	rec := NewRecorder(pub, zerolog.Nop())

	rec.OnCreated(context.Background(), testSubject(checkpoint.StatusPending))

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, TypeCheckpointCreated, ev.Type)
	assert.Equal(t, "c1", ev.CheckpointID)
	assert.Equal(t, "extraction", ev.Stage)
	assert.Equal(t, checkpoint.StatusPending, ev.Status)
	assert.Empty(t, ev.PreviousStatus)

	_, err := uuid.Parse(ev.ID)
	assert.NoError(t, err, "event ID must be a UUID")
}

// ---------------------------------------------------------------------------
// TestRecorder_OnTransition
// ---------------------------------------------------------------------------

func TestRecorder_OnTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		to       checkpoint.Status
		wantType string
	}{
		{name: "started", to: checkpoint.StatusInProgress, wantType: TypeCheckpointStarted},
		{name: "awaiting review", to: checkpoint.StatusAwaitingReview, wantType: TypeCheckpointAwaitingReview},
		{name: "approved", to: checkpoint.StatusApproved, wantType: TypeCheckpointApproved},
		{name: "rejected", to: checkpoint.StatusRejected, wantType: TypeCheckpointRejected},
		{name: "skipped", to: checkpoint.StatusSkipped, wantType: TypeCheckpointSkipped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pub := &capturePublisher{}
			rec := NewRecorder(pub, zerolog.Nop())

			rec.OnTransition(context.Background(), testSubject(tt.to), checkpoint.TransitionRecord{
				From:      checkpoint.StatusInProgress,
				To:        tt.to,
				Timestamp: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
				Actor:     "alice",
				Reason:    "because",
			})

			require.Len(t, pub.events, 1)
			ev := pub.events[0]
			assert.Equal(t, tt.wantType, ev.Type)
			assert.Equal(t, checkpoint.StatusInProgress, ev.PreviousStatus)
			assert.Equal(t, "alice", ev.Actor)
			assert.Equal(t, "because", ev.Reason)
			assert.Equal(t, time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC), ev.OccurredAt)
		})
	}
}

func TestRecorder_OnTransition_ResetToPendingIsSkipped(t *testing.T) {
	t.Parallel()

	pub := &capturePublisher{}
	rec := NewRecorder(pub, zerolog.Nop())

	rec.OnTransition(context.Background(), testSubject(checkpoint.StatusPending), checkpoint.TransitionRecord{
		From: checkpoint.StatusRejected,
		To:   checkpoint.StatusPending,
	})

	assert.Empty(t, pub.events)
}

func TestRecorder_PublishFailureDoesNotPanic(t *testing.T) {
	t.Parallel()

	pub := &capturePublisher{err: errors.New("broker unavailable")}
	rec := NewRecorder(pub, zerolog.Nop())

	assert.NotPanics(t, func() {
		rec.OnCreated(context.Background(), testSubject(checkpoint.StatusPending))
	})
}

// ---------------------------------------------------------------------------
// TestNewEvent_Validation
// ---------------------------------------------------------------------------

func TestNewEvent_Validation(t *testing.T) {
	t.Parallel()

	t.Run("missing stage fails validation", func(t *testing.T) {
		t.Parallel()
		cp := testSubject(checkpoint.StatusPending)
		cp.Stage = ""
		_, err := NewEvent(TypeCheckpointCreated, cp, nil)
		assert.Error(t, err)
	})

	t.Run("transition metadata is carried over", func(t *testing.T) {
		t.Parallel()
		at := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
		ev, err := NewEvent(TypeCheckpointApproved, testSubject(checkpoint.StatusApproved), &checkpoint.TransitionRecord{
			From:      checkpoint.StatusAwaitingReview,
			To:        checkpoint.StatusApproved,
			Timestamp: at,
			Actor:     "alice",
		})
		require.NoError(t, err)
		assert.Equal(t, at, ev.OccurredAt)
		assert.Equal(t, checkpoint.StatusAwaitingReview, ev.PreviousStatus)
	})
}

// ---------------------------------------------------------------------------
// TestTypeForStatus
// ---------------------------------------------------------------------------

func TestTypeForStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, TypeCheckpointStarted, TypeForStatus(checkpoint.StatusInProgress))
	assert.Equal(t, TypeCheckpointApproved, TypeForStatus(checkpoint.StatusApproved))
	assert.Equal(t, "", TypeForStatus(checkpoint.StatusPending))
}

// ---------------------------------------------------------------------------
// TestNopPublisher
// ---------------------------------------------------------------------------

func TestNopPublisher(t *testing.T) {
	t.Parallel()

	var pub NopPublisher
	assert.NoError(t, pub.Publish(context.Background(), &Event{}))
	assert.NoError(t, pub.Close())
}
