package checkpoint

import (
	"context"
)

// UpdateFunc mutates a checkpoint during a store Update. It receives the
// current entity, applies the status change in place, and returns the
// transition record to append. Returning an error aborts the update without
// mutating stored state or recording anything.
type UpdateFunc func(cp *Checkpoint) (*TransitionRecord, error)

// Store is the persistence abstraction behind the Manager. Implementations
// must make per-ID operations atomic: Update performs a read-modify-write
// under per-ID exclusive access and appends the returned transition record
// atomically with the status mutation. Listing is creation-ordered.
//
// Implementations: MemoryStore (this package), postgres.Store, redis.Store,
// and sqlite.Store.
type Store interface {
	// Create inserts a new checkpoint. It fails with a DuplicateIDError if
	// the ID is already registered.
	Create(ctx context.Context, cp *Checkpoint) error

	// Get returns the checkpoint with the given ID, or a NotFoundError.
	Get(ctx context.Context, id string) (*Checkpoint, error)

	// Update applies fn to the checkpoint with the given ID under per-ID
	// exclusive access and appends the returned transition record. It
	// returns the updated checkpoint, a NotFoundError for an unknown ID,
	// or the error returned by fn (with stored state untouched).
	Update(ctx context.Context, id string, fn UpdateFunc) (*Checkpoint, error)

	// List returns all checkpoints in creation order.
	List(ctx context.Context) ([]*Checkpoint, error)

	// ListStage returns the checkpoints of a stage in creation order.
	ListStage(ctx context.Context, stage string) ([]*Checkpoint, error)

	// History returns the ordered transition records of a checkpoint, or a
	// NotFoundError for an unknown ID.
	History(ctx context.Context, id string) ([]TransitionRecord, error)
}
