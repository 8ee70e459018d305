// Package events publishes checkpoint lifecycle events so downstream
// consumers (dashboards, audit sinks, resume automation) can follow the
// pipeline without polling the checkpoint store. The Recorder adapts the
// checkpoint listener interface onto a Publisher; the Kafka publisher is the
// production transport and NopPublisher serves embedded or test use.
package events

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/helixir/pipeline/checkpoint"
)

// Checkpoint lifecycle event types.
const (
	// TypeCheckpointCreated is emitted when a checkpoint is registered.
	TypeCheckpointCreated = "checkpoint.created"
	// TypeCheckpointStarted is emitted on transition to in_progress.
	TypeCheckpointStarted = "checkpoint.started"
	// TypeCheckpointAwaitingReview is emitted on transition to awaiting_review.
	TypeCheckpointAwaitingReview = "checkpoint.awaiting_review"
	// TypeCheckpointApproved is emitted on transition to approved.
	TypeCheckpointApproved = "checkpoint.approved"
	// TypeCheckpointRejected is emitted on transition to rejected.
	TypeCheckpointRejected = "checkpoint.rejected"
	// TypeCheckpointSkipped is emitted on transition to skipped.
	TypeCheckpointSkipped = "checkpoint.skipped"
)

// validate checks Event fields before publishing.
var validate = validator.New()

// Event is a checkpoint lifecycle event ready for publishing.
type Event struct {
	// ID uniquely identifies the event.
	ID string `json:"id" validate:"required,uuid4"`
	// Type is the lifecycle event type (e.g., "checkpoint.approved").
	Type string `json:"type" validate:"required"`
	// CheckpointID is the ID of the checkpoint the event concerns.
	CheckpointID string `json:"checkpoint_id" validate:"required"`
	// Stage is the pipeline stage of the checkpoint.
	Stage string `json:"stage" validate:"required"`
	// Status is the checkpoint status after the event.
	Status checkpoint.Status `json:"status" validate:"required"`
	// PreviousStatus is the status before the event; empty for created events.
	PreviousStatus checkpoint.Status `json:"previous_status,omitempty"`
	// Actor is who performed the action, if known.
	Actor string `json:"actor,omitempty"`
	// Reason is the operator-supplied reason, if any.
	Reason string `json:"reason,omitempty"`
	// OccurredAt is when the underlying change happened.
	OccurredAt time.Time `json:"occurred_at" validate:"required"`
}

// NewEvent builds an Event with a fresh UUID and validates it.
func NewEvent(eventType string, cp *checkpoint.Checkpoint, rec *checkpoint.TransitionRecord) (*Event, error) {
	ev := &Event{
		ID:           uuid.New().String(),
		Type:         eventType,
		CheckpointID: cp.ID,
		Stage:        cp.Stage,
		Status:       cp.Status,
		OccurredAt:   cp.UpdatedAt,
	}

	if rec != nil {
		ev.PreviousStatus = rec.From
		ev.Actor = rec.Actor
		ev.Reason = rec.Reason
		ev.OccurredAt = rec.Timestamp
	}

	if err := validate.Struct(ev); err != nil {
		return nil, fmt.Errorf("invalid event: %w", err)
	}

	return ev, nil
}

// TypeForStatus maps a checkpoint status to its lifecycle event type.
// Returns an empty string for statuses that do not produce events (pending
// is only reachable via creation or reset, which emit their own types).
func TypeForStatus(status checkpoint.Status) string {
	switch status {
	case checkpoint.StatusInProgress:
		return TypeCheckpointStarted
	case checkpoint.StatusAwaitingReview:
		return TypeCheckpointAwaitingReview
	case checkpoint.StatusApproved:
		return TypeCheckpointApproved
	case checkpoint.StatusRejected:
		return TypeCheckpointRejected
	case checkpoint.StatusSkipped:
		return TypeCheckpointSkipped
	default:
		return ""
	}
}
