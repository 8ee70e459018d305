package checkpoint

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/helixir/pipeline/observability"
)

// Listener receives notifications about checkpoint lifecycle changes.
// Implementations must not block; delivery mechanics (Kafka, webhooks, ...)
// are the listener's concern. The events package provides a Recorder that
// adapts a Listener to an events.Publisher.
type Listener interface {
	// OnCreated is invoked after a checkpoint is created.
	OnCreated(ctx context.Context, cp *Checkpoint)
	// OnTransition is invoked after a successful status transition.
	OnTransition(ctx context.Context, cp *Checkpoint, rec TransitionRecord)
}

// Manager is the facade over a checkpoint Store. It validates transitions
// against the state-machine table, stamps timestamps through the injected
// clock, and records one audit entry per successful transition.
//
// The Manager performs no locking of its own; per-ID atomicity is the Store's
// contract.
type Manager struct {
	store    Store
	clock    Clock
	logger   zerolog.Logger
	metrics  *observability.Metrics
	listener Listener
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock injects a clock, letting tests control now() deterministically.
func WithClock(clock Clock) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithLogger sets the structured logger used for transition logging.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithMetrics enables Prometheus instrumentation of checkpoint operations.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithListener registers a lifecycle listener.
func WithListener(listener Listener) Option {
	return func(m *Manager) { m.listener = listener }
}

// NewManager creates a Manager over the given store.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		clock:  SystemClock(),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create registers a new checkpoint in status pending. It fails with a
// DuplicateIDError when the ID is already registered; an existing checkpoint
// is never silently overwritten, as that would corrupt the audit trail.
func (m *Manager) Create(ctx context.Context, id, name, stage string, data map[string]interface{}) (*Checkpoint, error) {
	if id == "" {
		return nil, NewValidationError("id", "checkpoint ID is required")
	}
	if stage == "" {
		return nil, NewValidationError("stage", "stage is required")
	}

	now := m.clock.Now()
	cp := &Checkpoint{
		ID:        id,
		Name:      name,
		Stage:     stage,
		Status:    StatusPending,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := m.store.Create(ctx, cp); err != nil {
		return nil, err
	}

	m.logger.Info().
		Str("checkpoint_id", id).
		Str("stage", stage).
		Msg("checkpoint created")

	if m.metrics != nil {
		m.metrics.CheckpointsCreated.Inc()
	}
	if m.listener != nil {
		m.listener.OnCreated(ctx, cp.Clone())
	}

	return cp, nil
}

// Get returns the checkpoint with the given ID.
func (m *Manager) Get(ctx context.Context, id string) (*Checkpoint, error) {
	return m.store.Get(ctx, id)
}

// Transition moves a checkpoint to a new status. The target status is checked
// against the transition table; an illegal edge fails with an
// InvalidTransitionError and leaves the checkpoint untouched. On success
// exactly one transition record is appended atomically with the status
// mutation, UpdatedAt advances, and Reviewer/Feedback are set when provided.
func (m *Manager) Transition(ctx context.Context, id string, to Status, opts TransitionOptions) (*Checkpoint, error) {
	if !to.IsValid() {
		return nil, NewValidationError("status", "unknown status: "+string(to))
	}

	var rec TransitionRecord
	updated, err := m.store.Update(ctx, id, func(cp *Checkpoint) (*TransitionRecord, error) {
		if !CanTransition(cp.Status, to) {
			return nil, NewInvalidTransitionError(id, cp.Status, to)
		}

		rec = TransitionRecord{
			From:      cp.Status,
			To:        to,
			Timestamp: m.clock.Now(),
			Actor:     opts.Actor,
			Reason:    opts.Reason,
		}

		cp.Status = to
		cp.UpdatedAt = rec.Timestamp
		if opts.Actor != "" {
			cp.Reviewer = opts.Actor
		}
		if opts.Feedback != "" {
			cp.Feedback = opts.Feedback
		}
		return &rec, nil
	})
	if err != nil {
		// The counter tracks rejected edges only; not-found and validation
		// failures would inflate it.
		if m.metrics != nil && errors.Is(err, ErrInvalidTransition) {
			m.metrics.InvalidTransitions.Inc()
		}
		m.logger.Warn().
			Err(err).
			Str("checkpoint_id", id).
			Str("to_status", string(to)).
			Msg("checkpoint transition rejected")
		return nil, err
	}

	m.logger.Info().
		Str("checkpoint_id", id).
		Str("stage", updated.Stage).
		Str("from_status", string(rec.From)).
		Str("to_status", string(rec.To)).
		Str("actor", rec.Actor).
		Msg("checkpoint transitioned")

	if m.metrics != nil {
		m.metrics.Transitions.WithLabelValues(string(rec.To)).Inc()
	}
	if m.listener != nil {
		m.listener.OnTransition(ctx, updated.Clone(), rec)
	}

	return updated, nil
}

// Start moves a checkpoint to in_progress.
func (m *Manager) Start(ctx context.Context, id string) (*Checkpoint, error) {
	return m.Transition(ctx, id, StatusInProgress, TransitionOptions{})
}

// SubmitForReview moves a checkpoint to awaiting_review.
func (m *Manager) SubmitForReview(ctx context.Context, id string) (*Checkpoint, error) {
	return m.Transition(ctx, id, StatusAwaitingReview, TransitionOptions{})
}

// Approve moves a checkpoint to approved, recording the reviewer.
func (m *Manager) Approve(ctx context.Context, id, reviewer, feedback string) (*Checkpoint, error) {
	return m.Transition(ctx, id, StatusApproved, TransitionOptions{
		Actor:    reviewer,
		Feedback: feedback,
	})
}

// Reject moves a checkpoint to rejected, recording the reviewer and using the
// feedback as the transition reason.
func (m *Manager) Reject(ctx context.Context, id, reviewer, feedback string) (*Checkpoint, error) {
	return m.Transition(ctx, id, StatusRejected, TransitionOptions{
		Actor:    reviewer,
		Reason:   feedback,
		Feedback: feedback,
	})
}

// Skip moves a checkpoint to skipped with the given reason.
func (m *Manager) Skip(ctx context.Context, id, reason string) (*Checkpoint, error) {
	return m.Transition(ctx, id, StatusSkipped, TransitionOptions{
		Reason: reason,
	})
}

// History returns the ordered transition records of a checkpoint. An unknown
// ID fails with a NotFoundError, consistent with Get and Transition.
func (m *Manager) History(ctx context.Context, id string) ([]TransitionRecord, error) {
	return m.store.History(ctx, id)
}

// StageCheckpoints returns the checkpoints of a stage in creation order.
func (m *Manager) StageCheckpoints(ctx context.Context, stage string) ([]*Checkpoint, error) {
	return m.store.ListStage(ctx, stage)
}

// IsStageComplete reports whether a stage may advance: the stage must have at
// least one checkpoint and every checkpoint in it must be approved or skipped.
// A stage with zero checkpoints is not complete.
func (m *Manager) IsStageComplete(ctx context.Context, stage string) (bool, error) {
	checkpoints, err := m.store.ListStage(ctx, stage)
	if err != nil {
		return false, err
	}
	if len(checkpoints) == 0 {
		return false, nil
	}
	for _, cp := range checkpoints {
		if !cp.Status.IsTerminal() {
			return false, nil
		}
	}
	if m.metrics != nil {
		m.metrics.StagesCompleted.Inc()
	}
	return true, nil
}
