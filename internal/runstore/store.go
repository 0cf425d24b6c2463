// Package runstore keeps a history of attack runs in SQLite.
package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/RowanDark/cipherlab/internal/redact"
)

// ErrNotFound is returned when no run has the requested ID.
var ErrNotFound = errors.New("run not found")

// Status is the terminal state of a run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Run is one recorded attack.
type Run struct {
	ID         string    `json:"id"`
	Attack     string    `json:"attack"`
	OracleID   string    `json:"oracle_id,omitempty"`
	Oracle     string    `json:"oracle,omitempty"`
	Status     Status    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Queries    int       `json:"queries"`
	BlockSize  int       `json:"block_size,omitempty"`
	Error      string    `json:"error,omitempty"`
	// Details holds attack-specific results. Key material is redacted
	// before it is stored.
	Details map[string]any `json:"details,omitempty"`
}

// Duration is how long the run took.
func (r Run) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Filter narrows List.
type Filter struct {
	Attack string
	Status Status
	Limit  int
}

// Store is a SQLite-backed run history. It is safe for concurrent use.
type Store struct {
	db         *sql.DB
	insertStmt *sql.Stmt
}

// Open creates or opens the database at path, creating parent directories.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	// SQLite has a single writer; concurrent Saves queue on the pool.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	stmt, err := db.Prepare(`
		INSERT INTO runs (
			id, attack, oracle_id, oracle, status, started_at, finished_at,
			queries, block_size, error, details
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare statement: %w", err)
	}
	s.insertStmt = stmt
	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		attack TEXT NOT NULL,
		oracle_id TEXT,
		oracle TEXT,
		status TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		queries INTEGER NOT NULL DEFAULT 0,
		block_size INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		details TEXT -- JSON
	);

	CREATE INDEX IF NOT EXISTS idx_runs_attack ON runs(attack);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// Save inserts run, assigning an ID when it has none. IDs are ULIDs, so
// lexical order is creation order.
func (s *Store) Save(ctx context.Context, run *Run) error {
	if run == nil {
		return errors.New("run cannot be nil")
	}
	if run.Attack == "" {
		return errors.New("run attack cannot be empty")
	}
	if run.ID == "" {
		run.ID = ulid.Make().String()
	}
	if run.Status == "" {
		run.Status = StatusSucceeded
	}
	var details []byte
	if len(run.Details) > 0 {
		var err error
		details, err = json.Marshal(redact.Map(run.Details))
		if err != nil {
			return fmt.Errorf("marshal details: %w", err)
		}
	}
	_, err := s.insertStmt.ExecContext(ctx,
		run.ID, run.Attack, run.OracleID, run.Oracle, string(run.Status),
		run.StartedAt.UTC(), run.FinishedAt.UTC(),
		run.Queries, run.BlockSize, run.Error, string(details),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Get returns the run with id.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, selectRuns+` WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return run, err
}

// List returns runs newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Run, error) {
	query := selectRuns + ` WHERE (? = '' OR attack = ?) AND (? = '' OR status = ?) ORDER BY id DESC`
	args := []any{f.Attack, f.Attack, string(f.Status), string(f.Status)}
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Close releases the database.
func (s *Store) Close() error {
	if s.insertStmt != nil {
		_ = s.insertStmt.Close()
	}
	return s.db.Close()
}

const selectRuns = `
	SELECT id, attack, oracle_id, oracle, status, started_at, finished_at,
		queries, block_size, error, details
	FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run      Run
		status   string
		oracleID sql.NullString
		oracle   sql.NullString
		errText  sql.NullString
		details  sql.NullString
	)
	err := sc.Scan(&run.ID, &run.Attack, &oracleID, &oracle, &status,
		&run.StartedAt, &run.FinishedAt, &run.Queries, &run.BlockSize, &errText, &details)
	if err != nil {
		return Run{}, err
	}
	run.Status = Status(status)
	run.OracleID = oracleID.String
	run.Oracle = oracle.String
	run.Error = errText.String
	if details.String != "" {
		if err := json.Unmarshal([]byte(details.String), &run.Details); err != nil {
			return Run{}, fmt.Errorf("decode details for %s: %w", run.ID, err)
		}
	}
	return run, nil
}
