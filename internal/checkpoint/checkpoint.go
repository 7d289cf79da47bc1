// Package checkpoint provides a SQLite-backed checkpoint store for graph
// runs. Each run identifier owns a single row holding the latest state
// snapshot, updated after every node completion, so runs are resumable and
// independently addressable across process restarts.
package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/paperflow/paperflow-go/internal/graph"
)

// ErrNotFound is returned by Load when no checkpoint exists for the run.
var ErrNotFound = errors.New("checkpoint: run not found")

// RunInfo summarizes a checkpointed run for listings.
type RunInfo struct {
	// RunID is the run identifier.
	RunID string
	// Node is the last completed node.
	Node string
	// Step is the number of completed node executions.
	Step int
	// UpdatedAt is when the checkpoint was last written.
	UpdatedAt time.Time
}

// Store persists and retrieves run checkpoints. It satisfies graph.Saver so
// it can be plugged into a compiled graph directly. Implementations must be
// safe for concurrent use across distinct run identifiers; concurrent writers
// to the same run identifier are a caller error.
type Store interface {
	graph.Saver
	// Load returns the latest checkpoint for the run, or ErrNotFound.
	Load(ctx context.Context, runID string) (*graph.Checkpoint, error)
	// List returns known runs ordered most-recently-updated first.
	List(ctx context.Context) ([]RunInfo, error)
	// Delete removes the checkpoint for the run. Deleting an unknown run is
	// not an error.
	Delete(ctx context.Context, runID string) error
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a Store backed by a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// DefaultDBPath returns the default checkpoint database path,
// ~/.paperflow/checkpoints.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("checkpoint: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".paperflow")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("checkpoint: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "checkpoints.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open %s: %w", path, err)
	}
	// A single connection enforces the single-writer-per-key discipline and
	// avoids SQLITE_BUSY under concurrent runs.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS checkpoints (
    run_id      TEXT    PRIMARY KEY,
    node        TEXT    NOT NULL,
    step        INTEGER NOT NULL,
    state       TEXT    NOT NULL,  -- JSON snapshot of the full merged state
    updated_at  INTEGER NOT NULL   -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_updated
    ON checkpoints (updated_at DESC);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("checkpoint: migrate: %w", err)
	}
	return nil
}

// Save upserts the checkpoint row for its run identifier. The previous
// snapshot for the run is replaced; history of intermediate steps is not kept.
func (s *SQLiteStore) Save(ctx context.Context, ck *graph.Checkpoint) error {
	payload, err := json.Marshal(ck.State)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal state for run %s: %w", ck.RunID, err)
	}
	const q = `
INSERT INTO checkpoints (run_id, node, step, state, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET
    node = excluded.node,
    step = excluded.step,
    state = excluded.state,
    updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, q, ck.RunID, ck.Node, ck.Step, string(payload), ck.UpdatedAt.Unix()); err != nil {
		return fmt.Errorf("checkpoint: save run %s: %w", ck.RunID, err)
	}
	return nil
}

// Load returns the latest checkpoint for the run. Typed values in the state
// come back in their JSON-decoded shape (maps, []any, float64); graph nodes
// read state through the typed State accessors, which accept both.
func (s *SQLiteStore) Load(ctx context.Context, runID string) (*graph.Checkpoint, error) {
	const q = `SELECT node, step, state, updated_at FROM checkpoints WHERE run_id = ?`
	row := s.db.QueryRowContext(ctx, q, runID)

	var (
		node    string
		step    int
		payload string
		ts      int64
	)
	if err := row.Scan(&node, &step, &payload, &ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("checkpoint: load run %s: %w", runID, err)
	}

	var state graph.State
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return nil, fmt.Errorf("checkpoint: decode state for run %s: %w", runID, err)
	}

	return &graph.Checkpoint{
		RunID:     runID,
		Node:      node,
		Step:      step,
		State:     state,
		UpdatedAt: time.Unix(ts, 0),
	}, nil
}

// List returns known runs ordered most-recently-updated first.
func (s *SQLiteStore) List(ctx context.Context) ([]RunInfo, error) {
	const q = `SELECT run_id, node, step, updated_at FROM checkpoints ORDER BY updated_at DESC, run_id ASC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: list: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var r RunInfo
		var ts int64
		if err := rows.Scan(&r.RunID, &r.Node, &r.Step, &ts); err != nil {
			return nil, fmt.Errorf("checkpoint: list scan: %w", err)
		}
		r.UpdatedAt = time.Unix(ts, 0)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("checkpoint: list rows: %w", err)
	}
	return runs, nil
}

// Delete removes the checkpoint for the run.
func (s *SQLiteStore) Delete(ctx context.Context, runID string) error {
	const q = `DELETE FROM checkpoints WHERE run_id = ?`
	if _, err := s.db.ExecContext(ctx, q, runID); err != nil {
		return fmt.Errorf("checkpoint: delete run %s: %w", runID, err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("checkpoint: close: %w", err)
	}
	return nil
}
