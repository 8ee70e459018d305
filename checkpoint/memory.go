package checkpoint

import (
	"context"
	"sync"
)

// Compile-time interface verification.
var (
	_ Store  = (*MemoryStore)(nil)
	_ Loader = (*MemoryStore)(nil)
)

// MemoryStore is an in-memory Store implementation guarded by a mutex.
// All operations on a given checkpoint ID are serialized through the lock,
// so concurrent transitions on the same ID cannot interleave. Listing is
// creation-ordered.
type MemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[string]*Checkpoint
	histories   map[string][]TransitionRecord
	order       []string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		checkpoints: make(map[string]*Checkpoint),
		histories:   make(map[string][]TransitionRecord),
	}
}

// Create inserts a new checkpoint. It fails with a DuplicateIDError if the
// ID is already registered.
func (s *MemoryStore) Create(ctx context.Context, cp *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.checkpoints[cp.ID]; exists {
		return NewDuplicateIDError(cp.ID)
	}

	s.checkpoints[cp.ID] = cp.Clone()
	s.histories[cp.ID] = nil
	s.order = append(s.order, cp.ID)
	return nil
}

// Get returns a copy of the checkpoint with the given ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[id]
	if !ok {
		return nil, NewNotFoundError(id)
	}
	return cp.Clone(), nil
}

// Update applies fn to the stored checkpoint under the store lock and appends
// the returned transition record. fn operates on a copy; stored state is only
// replaced after fn succeeds, so a rejected transition leaves no trace.
func (s *MemoryStore) Update(ctx context.Context, id string, fn UpdateFunc) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.checkpoints[id]
	if !ok {
		return nil, NewNotFoundError(id)
	}

	updated := current.Clone()
	record, err := fn(updated)
	if err != nil {
		return nil, err
	}

	s.checkpoints[id] = updated
	if record != nil {
		s.histories[id] = append(s.histories[id], *record)
	}
	return updated.Clone(), nil
}

// List returns all checkpoints in creation order.
func (s *MemoryStore) List(ctx context.Context) ([]*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Checkpoint, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.checkpoints[id].Clone())
	}
	return result, nil
}

// ListStage returns the checkpoints of a stage in creation order.
func (s *MemoryStore) ListStage(ctx context.Context, stage string) ([]*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Checkpoint
	for _, id := range s.order {
		if cp := s.checkpoints[id]; cp.Stage == stage {
			result = append(result, cp.Clone())
		}
	}
	return result, nil
}

// Load inserts a checkpoint with a pre-existing history, bypassing transition
// validation. Used by Restore to rebuild a store from a snapshot.
func (s *MemoryStore) Load(ctx context.Context, cp *Checkpoint, history []TransitionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.checkpoints[cp.ID]; exists {
		return NewDuplicateIDError(cp.ID)
	}

	s.checkpoints[cp.ID] = cp.Clone()
	records := make([]TransitionRecord, len(history))
	copy(records, history)
	s.histories[cp.ID] = records
	s.order = append(s.order, cp.ID)
	return nil
}

// History returns the ordered transition records of a checkpoint.
func (s *MemoryStore) History(ctx context.Context, id string) ([]TransitionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.checkpoints[id]; !ok {
		return nil, NewNotFoundError(id)
	}

	history := s.histories[id]
	result := make([]TransitionRecord, len(history))
	copy(result, history)
	return result, nil
}
