// Package postgres provides a PostgreSQL-backed checkpoint store. Per-ID
// atomicity is enforced with SELECT ... FOR UPDATE inside a transaction, so
// concurrent transitions on the same checkpoint serialize at the row lock.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/helixir/pipeline/checkpoint"
)

// pgUniqueViolation is the PostgreSQL error code for unique_violation.
const pgUniqueViolation = "23505"

// Querier is the database handle the store operates on. Both *pgxpool.Pool
// and pgxmock pools satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Compile-time interface verification.
var (
	_ checkpoint.Store  = (*Store)(nil)
	_ checkpoint.Loader = (*Store)(nil)
)

// Store is a PostgreSQL implementation of checkpoint.Store.
type Store struct {
	db Querier
}

// NewStore creates a new PostgreSQL checkpoint store.
func NewStore(db Querier) *Store {
	return &Store{db: db}
}

// Create inserts a new checkpoint row.
func (s *Store) Create(ctx context.Context, cp *checkpoint.Checkpoint) error {
	dataJSON, err := marshalData(cp.Data)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO pipeline_checkpoints (
			id, name, stage, status, data, reviewer, feedback, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = s.db.Exec(ctx, query,
		cp.ID, cp.Name, cp.Stage, string(cp.Status), dataJSON,
		nullString(cp.Reviewer), nullString(cp.Feedback), cp.CreatedAt, cp.UpdatedAt,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return checkpoint.NewDuplicateIDError(cp.ID)
		}
		return fmt.Errorf("failed to create checkpoint: %w", err)
	}

	return nil
}

// Get retrieves a checkpoint by ID.
func (s *Store) Get(ctx context.Context, id string) (*checkpoint.Checkpoint, error) {
	row := s.db.QueryRow(ctx, selectCheckpointQuery+` WHERE id = $1`, id)
	cp, err := scanCheckpoint(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, checkpoint.NewNotFoundError(id)
		}
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return cp, nil
}

// Update applies fn to the checkpoint row under a SELECT ... FOR UPDATE lock
// and appends the returned transition record in the same transaction.
func (s *Store) Update(ctx context.Context, id string, fn checkpoint.UpdateFunc) (*checkpoint.Checkpoint, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback is a no-op after a successful commit.
		_ = tx.Rollback(ctx)
	}()

	row := tx.QueryRow(ctx, selectCheckpointQuery+` WHERE id = $1 FOR UPDATE`, id)
	cp, err := scanCheckpoint(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, checkpoint.NewNotFoundError(id)
		}
		return nil, fmt.Errorf("failed to lock checkpoint: %w", err)
	}

	record, err := fn(cp)
	if err != nil {
		return nil, err
	}

	dataJSON, err := marshalData(cp.Data)
	if err != nil {
		return nil, err
	}

	updateQuery := `
		UPDATE pipeline_checkpoints
		SET status = $2, data = $3, reviewer = $4, feedback = $5, updated_at = $6
		WHERE id = $1`

	if _, err := tx.Exec(ctx, updateQuery,
		cp.ID, string(cp.Status), dataJSON,
		nullString(cp.Reviewer), nullString(cp.Feedback), cp.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to update checkpoint: %w", err)
	}

	if record != nil {
		if err := insertTransition(ctx, tx, id, record); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return cp, nil
}

// List returns all checkpoints in creation order.
func (s *Store) List(ctx context.Context) ([]*checkpoint.Checkpoint, error) {
	rows, err := s.db.Query(ctx, selectCheckpointQuery+` ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	return scanCheckpoints(rows)
}

// ListStage returns the checkpoints of a stage in creation order.
func (s *Store) ListStage(ctx context.Context, stage string) ([]*checkpoint.Checkpoint, error) {
	rows, err := s.db.Query(ctx, selectCheckpointQuery+` WHERE stage = $1 ORDER BY position`, stage)
	if err != nil {
		return nil, fmt.Errorf("failed to list stage checkpoints: %w", err)
	}
	defer rows.Close()

	return scanCheckpoints(rows)
}

// History returns the ordered transition records of a checkpoint.
func (s *Store) History(ctx context.Context, id string) ([]checkpoint.TransitionRecord, error) {
	// Verify the checkpoint exists so an unknown ID is a not-found error,
	// not an empty history.
	var exists bool
	if err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM pipeline_checkpoints WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check checkpoint existence: %w", err)
	}
	if !exists {
		return nil, checkpoint.NewNotFoundError(id)
	}

	query := `
		SELECT from_status, to_status, occurred_at, actor, reason
		FROM pipeline_checkpoint_transitions
		WHERE checkpoint_id = $1
		ORDER BY id`

	rows, err := s.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []checkpoint.TransitionRecord
	for rows.Next() {
		var rec checkpoint.TransitionRecord
		var from, to string
		var actor, reason *string
		if err := rows.Scan(&from, &to, &rec.Timestamp, &actor, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		rec.From = checkpoint.Status(from)
		rec.To = checkpoint.Status(to)
		if actor != nil {
			rec.Actor = *actor
		}
		if reason != nil {
			rec.Reason = *reason
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transitions: %w", err)
	}

	return records, nil
}

// Load inserts a checkpoint with a pre-existing history. Used by
// checkpoint.Restore to rebuild the store from a snapshot.
func (s *Store) Load(ctx context.Context, cp *checkpoint.Checkpoint, history []checkpoint.TransitionRecord) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	dataJSON, err := marshalData(cp.Data)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO pipeline_checkpoints (
			id, name, stage, status, data, reviewer, feedback, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	if _, err := tx.Exec(ctx, query,
		cp.ID, cp.Name, cp.Stage, string(cp.Status), dataJSON,
		nullString(cp.Reviewer), nullString(cp.Feedback), cp.CreatedAt, cp.UpdatedAt,
	); err != nil {
		if isPgUniqueViolation(err) {
			return checkpoint.NewDuplicateIDError(cp.ID)
		}
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	for i := range history {
		if err := insertTransition(ctx, tx, cp.ID, &history[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// selectCheckpointQuery is the shared column list for checkpoint scans.
const selectCheckpointQuery = `
	SELECT id, name, stage, status, data, reviewer, feedback, created_at, updated_at
	FROM pipeline_checkpoints`

// insertTransition appends one transition record inside the given transaction.
func insertTransition(ctx context.Context, tx pgx.Tx, checkpointID string, rec *checkpoint.TransitionRecord) error {
	query := `
		INSERT INTO pipeline_checkpoint_transitions (
			checkpoint_id, from_status, to_status, occurred_at, actor, reason
		) VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := tx.Exec(ctx, query,
		checkpointID, string(rec.From), string(rec.To), rec.Timestamp,
		nullString(rec.Actor), nullString(rec.Reason),
	); err != nil {
		return fmt.Errorf("failed to insert transition: %w", err)
	}
	return nil
}

// scanCheckpoint scans a single checkpoint row.
func scanCheckpoint(row pgx.Row) (*checkpoint.Checkpoint, error) {
	var cp checkpoint.Checkpoint
	var status string
	var dataJSON []byte
	var reviewer, feedback *string

	if err := row.Scan(
		&cp.ID, &cp.Name, &cp.Stage, &status, &dataJSON,
		&reviewer, &feedback, &cp.CreatedAt, &cp.UpdatedAt,
	); err != nil {
		return nil, err
	}

	cp.Status = checkpoint.Status(status)
	if reviewer != nil {
		cp.Reviewer = *reviewer
	}
	if feedback != nil {
		cp.Feedback = *feedback
	}
	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &cp.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal checkpoint data: %w", err)
		}
	}

	return &cp, nil
}

// scanCheckpoints scans a result set of checkpoint rows.
func scanCheckpoints(rows pgx.Rows) ([]*checkpoint.Checkpoint, error) {
	var result []*checkpoint.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		result = append(result, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate checkpoints: %w", err)
	}
	return result, nil
}

// marshalData serializes the opaque data payload to JSONB, or nil when empty.
func marshalData(data map[string]interface{}) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkpoint data: %w", err)
	}
	return b, nil
}

// nullString converts an empty string to a NULL-able pointer.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// isPgUniqueViolation reports whether err is a unique constraint violation.
func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
