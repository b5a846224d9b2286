package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id        TEXT PRIMARY KEY,
	status        TEXT NOT NULL,
	halt_reason   TEXT,
	created_at    TEXT NOT NULL,
	completed_at  TEXT
);

CREATE TABLE IF NOT EXISTS plan_steps (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL,
	step_number  INTEGER NOT NULL,
	category     TEXT NOT NULL,
	tool_id      TEXT NOT NULL,
	recipe_json  TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	UNIQUE(run_id, step_number),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS plan_provenance (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL,
	transition   INTEGER NOT NULL,
	decision     TEXT NOT NULL,
	detail_json  TEXT,
	reason       TEXT,
	created_at   TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
CREATE INDEX IF NOT EXISTS idx_provenance_run ON plan_provenance(run_id);
`

// #endregion schema

// #region types

// RunRecord is one flow-generation run.
type RunRecord struct {
	RunID       string
	Status      string
	HaltReason  string
	CreatedAt   time.Time
	CompletedAt time.Time
}

// StepRecord is one persisted plan step.
type StepRecord struct {
	RunID      string
	StepNumber int
	Category   string
	ToolID     string
	RecipeJSON string
	CreatedAt  time.Time
}

// #endregion types

// #region store-struct

// Store persists runs, plan steps, and the provenance log in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion close

// #region db-accessor

// DB returns the underlying *sql.DB for use by other packages
// (kgraph, logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion db-accessor

// #region runs

// CreateRun inserts a new run in the running state.
func (s *Store) CreateRun(runID string) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, status, created_at) VALUES (?, 'running', ?)`,
		runID, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// CompleteRun records the terminal status of a run. haltReason may be empty.
func (s *Store) CompleteRun(runID, status, haltReason string) error {
	_, err := s.db.Exec(
		`UPDATE runs SET status = ?, halt_reason = ?, completed_at = ? WHERE run_id = ?`,
		status, nullIfEmpty(haltReason), time.Now().UTC().Format(time.RFC3339), runID,
	)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT run_id, status, COALESCE(halt_reason, ''), created_at, COALESCE(completed_at, '')
		 FROM runs ORDER BY created_at DESC, run_id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var createdAt, completedAt string
		if err := rows.Scan(&r.RunID, &r.Status, &r.HaltReason, &createdAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		if completedAt != "" {
			r.CompletedAt, _ = time.Parse(time.RFC3339, completedAt)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// #endregion runs

// #region steps

// AppendStep persists one plan step for a run.
func (s *Store) AppendStep(rec StepRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO plan_steps (run_id, step_number, category, tool_id, recipe_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.StepNumber, rec.Category, rec.ToolID, rec.RecipeJSON,
		rec.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("append step: %w", err)
	}
	return nil
}

// GetSteps returns a run's steps in step order.
func (s *Store) GetSteps(runID string) ([]StepRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, step_number, category, tool_id, recipe_json, created_at
		 FROM plan_steps WHERE run_id = ? ORDER BY step_number`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get steps: %w", err)
	}
	defer rows.Close()

	var steps []StepRecord
	for rows.Next() {
		var rec StepRecord
		var createdAt string
		if err := rows.Scan(&rec.RunID, &rec.StepNumber, &rec.Category, &rec.ToolID, &rec.RecipeJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		steps = append(steps, rec)
	}
	return steps, rows.Err()
}

// #endregion steps

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
