package events

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/helixir/pipeline/checkpoint"
)

// Recorder adapts checkpoint lifecycle notifications onto a Publisher.
// It implements checkpoint.Listener; register it on a Manager via
// checkpoint.WithListener. Publish failures are logged but never propagate
// into checkpoint operations: event delivery is best-effort and must not
// block or fail a transition that has already committed.
type Recorder struct {
	publisher Publisher
	logger    zerolog.Logger
}

var _ checkpoint.Listener = (*Recorder)(nil)

// NewRecorder creates a Recorder that publishes through the given publisher.
func NewRecorder(publisher Publisher, logger zerolog.Logger) *Recorder {
	return &Recorder{
		publisher: publisher,
		logger:    logger.With().Str("component", "event_recorder").Logger(),
	}
}

// OnCreated publishes a checkpoint.created event.
func (r *Recorder) OnCreated(ctx context.Context, cp *checkpoint.Checkpoint) {
	r.emit(ctx, TypeCheckpointCreated, cp, nil)
}

// OnTransition publishes the lifecycle event matching the new status.
// Transitions without a mapped event type (a rejected checkpoint reset to
// pending) are skipped.
func (r *Recorder) OnTransition(ctx context.Context, cp *checkpoint.Checkpoint, rec checkpoint.TransitionRecord) {
	eventType := TypeForStatus(rec.To)
	if eventType == "" {
		r.logger.Debug().
			Str("checkpoint_id", cp.ID).
			Str("to_status", string(rec.To)).
			Msg("no event type for transition, skipping")
		return
	}
	r.emit(ctx, eventType, cp, &rec)
}

// emit builds and publishes one event, logging failures.
func (r *Recorder) emit(ctx context.Context, eventType string, cp *checkpoint.Checkpoint, rec *checkpoint.TransitionRecord) {
	ev, err := NewEvent(eventType, cp, rec)
	if err != nil {
		r.logger.Error().Err(err).
			Str("event_type", eventType).
			Str("checkpoint_id", cp.ID).
			Msg("failed to build event")
		return
	}

	if err := r.publisher.Publish(ctx, ev); err != nil {
		r.logger.Error().Err(err).
			Str("event_id", ev.ID).
			Str("event_type", ev.Type).
			Str("checkpoint_id", cp.ID).
			Msg("failed to publish event")
	}
}
