package checkpoint

import (
	"context"
	"fmt"
	"time"
)

// Snapshot is the portable serialization of a manager's full state: every
// checkpoint plus its complete transition history, with timestamps carried as
// first-class time values (RFC 3339 with nanoseconds on the wire). The
// integrating system decides the storage medium; a snapshot survives a
// save/load cycle through any JSON-capable channel.
type Snapshot struct {
	// Version identifies the snapshot format for forward compatibility.
	Version int `json:"version"`
	// TakenAt is when the snapshot was taken.
	TakenAt time.Time `json:"taken_at"`
	// Checkpoints holds every checkpoint with its history, in creation order.
	Checkpoints []SnapshotCheckpoint `json:"checkpoints"`
}

// SnapshotCheckpoint is one checkpoint entry in a Snapshot.
type SnapshotCheckpoint struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Stage     string                 `json:"stage"`
	Status    Status                 `json:"status"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Reviewer  string                 `json:"reviewer,omitempty"`
	Feedback  string                 `json:"feedback,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
	History   []SnapshotTransition   `json:"history"`
}

// SnapshotTransition is one transition record entry in a Snapshot.
type SnapshotTransition struct {
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// snapshotVersion is the current snapshot format version.
const snapshotVersion = 1

// Snapshot captures the manager's full state.
func (m *Manager) Snapshot(ctx context.Context) (*Snapshot, error) {
	checkpoints, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	snap := &Snapshot{
		Version:     snapshotVersion,
		TakenAt:     m.clock.Now(),
		Checkpoints: make([]SnapshotCheckpoint, 0, len(checkpoints)),
	}

	for _, cp := range checkpoints {
		history, err := m.store.History(ctx, cp.ID)
		if err != nil {
			return nil, fmt.Errorf("history for checkpoint %s: %w", cp.ID, err)
		}

		entry := SnapshotCheckpoint{
			ID:        cp.ID,
			Name:      cp.Name,
			Stage:     cp.Stage,
			Status:    cp.Status,
			Data:      cp.Data,
			Reviewer:  cp.Reviewer,
			Feedback:  cp.Feedback,
			CreatedAt: cp.CreatedAt,
			UpdatedAt: cp.UpdatedAt,
			History:   make([]SnapshotTransition, 0, len(history)),
		}
		for _, rec := range history {
			entry.History = append(entry.History, SnapshotTransition{
				From:      rec.From,
				To:        rec.To,
				Timestamp: rec.Timestamp,
				Actor:     rec.Actor,
				Reason:    rec.Reason,
			})
		}
		snap.Checkpoints = append(snap.Checkpoints, entry)
	}

	return snap, nil
}

// Restore reconstructs a fresh Manager from a snapshot, loading every
// checkpoint and its history into the given empty store. The store must
// support direct loading; MemoryStore does.
func Restore(ctx context.Context, snap *Snapshot, store Store, opts ...Option) (*Manager, error) {
	if snap == nil {
		return nil, NewValidationError("snapshot", "snapshot is required")
	}
	if snap.Version != snapshotVersion {
		return nil, NewValidationError("version", fmt.Sprintf("unsupported snapshot version %d", snap.Version))
	}

	loader, ok := store.(Loader)
	if !ok {
		return nil, NewValidationError("store", "store does not support snapshot loading")
	}

	for _, entry := range snap.Checkpoints {
		if !entry.Status.IsValid() {
			return nil, NewValidationError("status", fmt.Sprintf("checkpoint %s has unknown status %q", entry.ID, entry.Status))
		}

		cp := &Checkpoint{
			ID:        entry.ID,
			Name:      entry.Name,
			Stage:     entry.Stage,
			Status:    entry.Status,
			Data:      entry.Data,
			Reviewer:  entry.Reviewer,
			Feedback:  entry.Feedback,
			CreatedAt: entry.CreatedAt,
			UpdatedAt: entry.UpdatedAt,
		}

		history := make([]TransitionRecord, 0, len(entry.History))
		for _, rec := range entry.History {
			history = append(history, TransitionRecord{
				From:      rec.From,
				To:        rec.To,
				Timestamp: rec.Timestamp,
				Actor:     rec.Actor,
				Reason:    rec.Reason,
			})
		}

		if err := loader.Load(ctx, cp, history); err != nil {
			return nil, fmt.Errorf("load checkpoint %s: %w", entry.ID, err)
		}
	}

	return NewManager(store, opts...), nil
}

// Loader is implemented by stores that can load a checkpoint with a
// pre-existing history, bypassing transition validation. Used by Restore.
type Loader interface {
	Load(ctx context.Context, cp *Checkpoint, history []TransitionRecord) error
}
