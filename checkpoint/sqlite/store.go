// Package sqlite provides a SQLite-backed checkpoint store for file-based
// persistence without an external database server. The schema is embedded and
// applied through golang-migrate's iofs source; the modernc.org/sqlite driver
// keeps the store cgo-free. SQLite allows a single writer at a time, so
// updates run inside immediate transactions serialized by a store mutex.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/helixir/pipeline/checkpoint"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout is the timestamp storage format: RFC 3339 with nanoseconds keeps
// timestamps first-class across a save/load cycle.
const timeLayout = time.RFC3339Nano

// Compile-time interface verification.
var (
	_ checkpoint.Store  = (*Store)(nil)
	_ checkpoint.Loader = (*Store)(nil)
)

// Store is a SQLite implementation of checkpoint.Store.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (or creates) the SQLite database at path and applies pending
// schema migrations. Use ":memory:" for an in-memory database.
func Open(path string) (*Store, error) {
	dsn := path
	if path == ":memory:" {
		// A shared cache keeps the in-memory database alive across the
		// pool's connections.
		dsn = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// The modernc driver serializes access per connection; a single
	// connection avoids SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// applyMigrations applies the embedded schema migrations.
func applyMigrations(db *sql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Create inserts a new checkpoint row.
func (s *Store) Create(ctx context.Context, cp *checkpoint.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dataJSON, err := marshalData(cp.Data)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO pipeline_checkpoints (
			id, name, stage, status, data, reviewer, feedback, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		cp.ID, cp.Name, cp.Stage, string(cp.Status), dataJSON,
		nullString(cp.Reviewer), nullString(cp.Feedback),
		cp.CreatedAt.Format(timeLayout), cp.UpdatedAt.Format(timeLayout),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return checkpoint.NewDuplicateIDError(cp.ID)
		}
		return fmt.Errorf("failed to create checkpoint: %w", err)
	}
	return nil
}

// Get retrieves a checkpoint by ID.
func (s *Store) Get(ctx context.Context, id string) (*checkpoint.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, selectCheckpointQuery+` WHERE id = ?`, id)
	cp, err := scanCheckpoint(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, checkpoint.NewNotFoundError(id)
		}
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return cp, nil
}

// Update applies fn inside a transaction; the store mutex serializes writers.
func (s *Store) Update(ctx context.Context, id string, fn checkpoint.UpdateFunc) (*checkpoint.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, selectCheckpointQuery+` WHERE id = ?`, id)
	cp, err := scanCheckpoint(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, checkpoint.NewNotFoundError(id)
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
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
		SET status = ?, data = ?, reviewer = ?, feedback = ?, updated_at = ?
		WHERE id = ?`

	if _, err := tx.ExecContext(ctx, updateQuery,
		string(cp.Status), dataJSON, nullString(cp.Reviewer), nullString(cp.Feedback),
		cp.UpdatedAt.Format(timeLayout), cp.ID,
	); err != nil {
		return nil, fmt.Errorf("failed to update checkpoint: %w", err)
	}

	if record != nil {
		if err := insertTransition(ctx, tx, id, record); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return cp, nil
}

// List returns all checkpoints in creation order.
func (s *Store) List(ctx context.Context) ([]*checkpoint.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, selectCheckpointQuery+` ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	return scanCheckpoints(rows)
}

// ListStage returns the checkpoints of a stage in creation order.
func (s *Store) ListStage(ctx context.Context, stage string) ([]*checkpoint.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, selectCheckpointQuery+` WHERE stage = ? ORDER BY rowid`, stage)
	if err != nil {
		return nil, fmt.Errorf("failed to list stage checkpoints: %w", err)
	}
	defer rows.Close()

	return scanCheckpoints(rows)
}

// History returns the ordered transition records of a checkpoint.
func (s *Store) History(ctx context.Context, id string) ([]checkpoint.TransitionRecord, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM pipeline_checkpoints WHERE id = ?`, id,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check checkpoint existence: %w", err)
	}
	if exists == 0 {
		return nil, checkpoint.NewNotFoundError(id)
	}

	query := `
		SELECT from_status, to_status, occurred_at, actor, reason
		FROM pipeline_checkpoint_transitions
		WHERE checkpoint_id = ?
		ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []checkpoint.TransitionRecord
	for rows.Next() {
		var rec checkpoint.TransitionRecord
		var from, to, occurredAt string
		var actor, reason sql.NullString
		if err := rows.Scan(&from, &to, &occurredAt, &actor, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		rec.From = checkpoint.Status(from)
		rec.To = checkpoint.Status(to)
		rec.Timestamp, err = time.Parse(timeLayout, occurredAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse transition timestamp: %w", err)
		}
		rec.Actor = actor.String
		rec.Reason = reason.String
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
	if err := s.Create(ctx, cp); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i := range history {
		if err := insertTransition(ctx, tx, cp.ID, &history[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// selectCheckpointQuery is the shared column list for checkpoint scans.
const selectCheckpointQuery = `
	SELECT id, name, stage, status, data, reviewer, feedback, created_at, updated_at
	FROM pipeline_checkpoints`

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// insertTransition appends one transition record inside the given transaction.
func insertTransition(ctx context.Context, tx *sql.Tx, checkpointID string, rec *checkpoint.TransitionRecord) error {
	query := `
		INSERT INTO pipeline_checkpoint_transitions (
			checkpoint_id, from_status, to_status, occurred_at, actor, reason
		) VALUES (?, ?, ?, ?, ?, ?)`

	if _, err := tx.ExecContext(ctx, query,
		checkpointID, string(rec.From), string(rec.To),
		rec.Timestamp.Format(timeLayout), nullString(rec.Actor), nullString(rec.Reason),
	); err != nil {
		return fmt.Errorf("failed to insert transition: %w", err)
	}
	return nil
}

// scanCheckpoint scans a single checkpoint row.
func scanCheckpoint(row scanner) (*checkpoint.Checkpoint, error) {
	var cp checkpoint.Checkpoint
	var status, createdAt, updatedAt string
	var dataJSON, reviewer, feedback sql.NullString

	if err := row.Scan(
		&cp.ID, &cp.Name, &cp.Stage, &status, &dataJSON,
		&reviewer, &feedback, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	cp.Status = checkpoint.Status(status)
	cp.Reviewer = reviewer.String
	cp.Feedback = feedback.String

	var err error
	cp.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	cp.UpdatedAt, err = time.Parse(timeLayout, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	if dataJSON.Valid && dataJSON.String != "" {
		if err := json.Unmarshal([]byte(dataJSON.String), &cp.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal checkpoint data: %w", err)
		}
	}

	return &cp, nil
}

// scanCheckpoints scans a result set of checkpoint rows.
func scanCheckpoints(rows *sql.Rows) ([]*checkpoint.Checkpoint, error) {
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

// marshalData serializes the opaque data payload, or NULL when empty.
func marshalData(data map[string]interface{}) (interface{}, error) {
	if data == nil {
		return nil, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkpoint data: %w", err)
	}
	return string(b), nil
}

// nullString converts an empty string to a NULL-able value.
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// isUniqueViolation reports whether err is a primary-key constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
