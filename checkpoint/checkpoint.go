// Package checkpoint implements the quality-gate state machine that governs
// stage advancement in Helixir processing pipelines. Each checkpoint is a
// reviewable unit of work within a named stage; a stage may only advance once
// every one of its checkpoints has been approved or skipped.
package checkpoint

import (
	"time"
)

// Status represents the lifecycle states of a checkpoint.
// These values must match the database enum checkpoint_status.
type Status string

const (
	StatusPending        Status = "pending"
	StatusInProgress     Status = "in_progress"
	StatusAwaitingReview Status = "awaiting_review"
	StatusApproved       Status = "approved"
	StatusRejected       Status = "rejected"
	StatusSkipped        Status = "skipped"
)

// IsTerminal returns true if the status represents a final state that will not change.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusSkipped:
		return true
	default:
		return false
	}
}

// IsValid returns true if the status is a member of the enumerated set.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusAwaitingReview,
		StatusApproved, StatusRejected, StatusSkipped:
		return true
	default:
		return false
	}
}

// validTransitions defines the allowed status transitions for checkpoints.
// This is a package-level variable to avoid re-allocating on every call.
var validTransitions = map[Status][]Status{
	StatusPending: {
		StatusInProgress,
		StatusSkipped,
	},
	StatusInProgress: {
		StatusAwaitingReview,
		StatusRejected,
		StatusSkipped,
	},
	StatusAwaitingReview: {
		StatusApproved,
		StatusRejected,
	},
	StatusApproved: {},
	StatusRejected: {
		StatusInProgress,
		StatusPending,
	},
	StatusSkipped: {},
}

// CanTransition returns true if a checkpoint in status from may move to status to.
func CanTransition(from, to Status) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the set of statuses a checkpoint in status from
// may move to. The returned slice must not be mutated.
func AllowedTransitions(from Status) []Status {
	return validTransitions[from]
}

// Checkpoint is a reviewable unit of pipeline progress within a named stage.
type Checkpoint struct {
	// ID is the caller-assigned unique identifier.
	ID string
	// Name is a human-readable checkpoint name.
	Name string
	// Stage is the grouping key tying this checkpoint to a pipeline stage.
	Stage string
	// Status is the current lifecycle state.
	Status Status
	// Data is an opaque payload attached at creation (intermediate work
	// product, review artifacts, etc.).
	Data map[string]interface{}
	// Reviewer is the actor that performed the most recent review transition.
	Reviewer string
	// Feedback is the feedback attached by the most recent review transition.
	Feedback string
	// CreatedAt is when the checkpoint was created.
	CreatedAt time.Time
	// UpdatedAt advances monotonically with every transition.
	UpdatedAt time.Time
}

// Clone returns a deep copy of the checkpoint. The store and manager hand out
// clones so callers can never mutate stored state directly.
func (c *Checkpoint) Clone() *Checkpoint {
	clone := *c
	if c.Data != nil {
		clone.Data = make(map[string]interface{}, len(c.Data))
		for k, v := range c.Data {
			clone.Data[k] = v
		}
	}
	return &clone
}

// TransitionRecord is an append-only audit entry describing one successful
// status transition. Records are strictly ordered per checkpoint ID.
type TransitionRecord struct {
	// From is the status before the transition.
	From Status
	// To is the status after the transition.
	To Status
	// Timestamp is when the transition was applied.
	Timestamp time.Time
	// Actor is who triggered the transition (optional).
	Actor string
	// Reason is why the transition happened (optional).
	Reason string
}

// TransitionOptions carries the optional metadata for a transition.
type TransitionOptions struct {
	// Actor identifies who is driving the transition. Review transitions
	// record it as the checkpoint's Reviewer.
	Actor string
	// Reason is recorded on the transition's audit entry.
	Reason string
	// Feedback is stored on the checkpoint itself.
	Feedback string
}

// Clock abstracts time so tests can control now() deterministically.
type Clock interface {
	Now() time.Time
}

// systemClock is the default wall-clock implementation.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns a Clock backed by time.Now in UTC.
func SystemClock() Clock { return systemClock{} }
