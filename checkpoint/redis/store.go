// Package redis provides a Redis-backed checkpoint store. Entities are
// JSON-marshaled values, histories are per-checkpoint lists, and per-ID
// atomicity is enforced with WATCH/MULTI optimistic transactions.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/helixir/pipeline/checkpoint"
)

// watchRetries is the number of optimistic-transaction retries after a
// concurrent writer invalidates a WATCHed key.
const watchRetries = 8

// Compile-time interface verification.
var (
	_ checkpoint.Store  = (*Store)(nil)
	_ checkpoint.Loader = (*Store)(nil)
)

// Store is a Redis implementation of checkpoint.Store.
type Store struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewStore creates a new Redis checkpoint store. keyPrefix namespaces all
// keys written by the store.
func NewStore(client redis.UniversalClient, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = "pipeline"
	}
	return &Store{client: client, keyPrefix: keyPrefix}
}

// entity is the wire form of a checkpoint. Timestamps serialize as RFC 3339
// with nanoseconds through encoding/json's time.Time handling.
type entity struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Stage     string                 `json:"stage"`
	Status    checkpoint.Status      `json:"status"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Reviewer  string                 `json:"reviewer,omitempty"`
	Feedback  string                 `json:"feedback,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// transition is the wire form of a transition record.
type transition struct {
	From      checkpoint.Status `json:"from"`
	To        checkpoint.Status `json:"to"`
	Timestamp time.Time         `json:"timestamp"`
	Actor     string            `json:"actor,omitempty"`
	Reason    string            `json:"reason,omitempty"`
}

// Create inserts a new checkpoint. The entity key is written with SETNX so a
// duplicate ID is rejected atomically. A failed order-list write deletes the
// entity again: a checkpoint must never exist for Get but stay invisible to
// List and stage-completion checks.
func (s *Store) Create(ctx context.Context, cp *checkpoint.Checkpoint) error {
	payload, err := marshalEntity(cp)
	if err != nil {
		return err
	}

	key := s.checkpointKey(cp.ID)
	ok, err := s.client.SetNX(ctx, key, payload, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to create checkpoint: %w", err)
	}
	if !ok {
		return checkpoint.NewDuplicateIDError(cp.ID)
	}

	if err := s.client.RPush(ctx, s.orderKey(), cp.ID).Err(); err != nil {
		if delErr := s.client.Del(ctx, key).Err(); delErr != nil {
			return fmt.Errorf("failed to record checkpoint order: %w (entity rollback failed: %v)", err, delErr)
		}
		return fmt.Errorf("failed to record checkpoint order: %w", err)
	}
	return nil
}

// Get retrieves a checkpoint by ID.
func (s *Store) Get(ctx context.Context, id string) (*checkpoint.Checkpoint, error) {
	payload, err := s.client.Get(ctx, s.checkpointKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, checkpoint.NewNotFoundError(id)
		}
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return unmarshalEntity(payload)
}

// Update applies fn under a WATCH on the entity key: if a concurrent writer
// touches the checkpoint between read and write, the transaction fails and is
// retried from a fresh read.
func (s *Store) Update(ctx context.Context, id string, fn checkpoint.UpdateFunc) (*checkpoint.Checkpoint, error) {
	key := s.checkpointKey(id)
	var updated *checkpoint.Checkpoint

	txn := func(tx *redis.Tx) error {
		payload, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return checkpoint.NewNotFoundError(id)
			}
			return fmt.Errorf("failed to read checkpoint: %w", err)
		}

		cp, err := unmarshalEntity(payload)
		if err != nil {
			return err
		}

		record, err := fn(cp)
		if err != nil {
			return err
		}

		newPayload, err := marshalEntity(cp)
		if err != nil {
			return err
		}

		var recordPayload []byte
		if record != nil {
			recordPayload, err = json.Marshal(transition{
				From:      record.From,
				To:        record.To,
				Timestamp: record.Timestamp,
				Actor:     record.Actor,
				Reason:    record.Reason,
			})
			if err != nil {
				return fmt.Errorf("failed to marshal transition: %w", err)
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newPayload, 0)
			if recordPayload != nil {
				pipe.RPush(ctx, s.historyKey(id), recordPayload)
			}
			return nil
		})
		if err != nil {
			return err
		}

		updated = cp
		return nil
	}

	for attempt := 0; attempt <= watchRetries; attempt++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("checkpoint %s: too many concurrent updates", id)
}

// List returns all checkpoints in creation order.
func (s *Store) List(ctx context.Context) ([]*checkpoint.Checkpoint, error) {
	ids, err := s.client.LRange(ctx, s.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoint order: %w", err)
	}

	result := make([]*checkpoint.Checkpoint, 0, len(ids))
	for _, id := range ids {
		cp, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		result = append(result, cp)
	}
	return result, nil
}

// ListStage returns the checkpoints of a stage in creation order.
func (s *Store) ListStage(ctx context.Context, stage string) ([]*checkpoint.Checkpoint, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	var result []*checkpoint.Checkpoint
	for _, cp := range all {
		if cp.Stage == stage {
			result = append(result, cp)
		}
	}
	return result, nil
}

// History returns the ordered transition records of a checkpoint.
func (s *Store) History(ctx context.Context, id string) ([]checkpoint.TransitionRecord, error) {
	exists, err := s.client.Exists(ctx, s.checkpointKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check checkpoint existence: %w", err)
	}
	if exists == 0 {
		return nil, checkpoint.NewNotFoundError(id)
	}

	payloads, err := s.client.LRange(ctx, s.historyKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	records := make([]checkpoint.TransitionRecord, 0, len(payloads))
	for _, payload := range payloads {
		var t transition
		if err := json.Unmarshal([]byte(payload), &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transition: %w", err)
		}
		records = append(records, checkpoint.TransitionRecord{
			From:      t.From,
			To:        t.To,
			Timestamp: t.Timestamp,
			Actor:     t.Actor,
			Reason:    t.Reason,
		})
	}
	return records, nil
}

// Load inserts a checkpoint with a pre-existing history. Used by
// checkpoint.Restore to rebuild the store from a snapshot.
func (s *Store) Load(ctx context.Context, cp *checkpoint.Checkpoint, history []checkpoint.TransitionRecord) error {
	if err := s.Create(ctx, cp); err != nil {
		return err
	}

	if len(history) == 0 {
		return nil
	}

	payloads := make([]interface{}, 0, len(history))
	for _, rec := range history {
		payload, err := json.Marshal(transition{
			From:      rec.From,
			To:        rec.To,
			Timestamp: rec.Timestamp,
			Actor:     rec.Actor,
			Reason:    rec.Reason,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal transition: %w", err)
		}
		payloads = append(payloads, payload)
	}

	if err := s.client.RPush(ctx, s.historyKey(cp.ID), payloads...).Err(); err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	return nil
}

func (s *Store) checkpointKey(id string) string {
	return fmt.Sprintf("%s:checkpoint:%s", s.keyPrefix, id)
}

func (s *Store) historyKey(id string) string {
	return fmt.Sprintf("%s:history:%s", s.keyPrefix, id)
}

func (s *Store) orderKey() string {
	return fmt.Sprintf("%s:order", s.keyPrefix)
}

// marshalEntity serializes a checkpoint to its JSON wire form.
func marshalEntity(cp *checkpoint.Checkpoint) ([]byte, error) {
	payload, err := json.Marshal(entity{
		ID:        cp.ID,
		Name:      cp.Name,
		Stage:     cp.Stage,
		Status:    cp.Status,
		Data:      cp.Data,
		Reviewer:  cp.Reviewer,
		Feedback:  cp.Feedback,
		CreatedAt: cp.CreatedAt,
		UpdatedAt: cp.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	return payload, nil
}

// unmarshalEntity deserializes a checkpoint from its JSON wire form.
func unmarshalEntity(payload []byte) (*checkpoint.Checkpoint, error) {
	var e entity
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &checkpoint.Checkpoint{
		ID:        e.ID,
		Name:      e.Name,
		Stage:     e.Stage,
		Status:    e.Status,
		Data:      e.Data,
		Reviewer:  e.Reviewer,
		Feedback:  e.Feedback,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}, nil
}
