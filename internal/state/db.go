// Package state provides SQLite-based persistence for crewd: teams, agents,
// tasks, checkpoints, the cost ledger, failure analyses, and audit events.
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Sentinel errors returned by store operations.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNoCheckpoint indicates a task has no checkpoint to resume from.
	ErrNoCheckpoint = errors.New("no checkpoint")
	// ErrInvalidTransition indicates a status transition violates the state machine.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConflict indicates a compare-and-swap update lost to a concurrent writer.
	ErrConflict = errors.New("concurrent modification")
	// ErrBudgetExhausted indicates a cost append would exceed the team budget ceiling.
	ErrBudgetExhausted = errors.New("budget exhausted")
	// ErrStepGap indicates a checkpoint step number is not last+1.
	ErrStepGap = errors.New("checkpoint step gap")
)

// DB wraps an SQLite database connection with crewd operations.
type DB struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// DefaultDBPath returns the path to the crew database.
func DefaultDBPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "crew", "crew.db")
}

// Open opens an SQLite database at the given path, creating parent
// directories if needed. WAL mode is enabled for concurrent reads.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &DB{conn: conn, path: path}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

// Path returns the path to the database file.
func (db *DB) Path() string {
	return db.path
}

// Migrate applies all pending schema migrations.
func (db *DB) Migrate() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Teams},
		{2, migrationV2Agents},
		{3, migrationV3Tasks},
		{4, migrationV4Checkpoints},
		{5, migrationV5Ledger},
		{6, migrationV6Failures},
		{7, migrationV7Events},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Migration SQL statements
const migrationV1Teams = `
CREATE TABLE IF NOT EXISTS teams (
	id TEXT PRIMARY KEY,
	goal TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'forming',
	manager_id TEXT,
	budget_ceiling REAL NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_teams_status ON teams(status);
`

const migrationV2Agents = `
CREATE TABLE IF NOT EXISTS agents (
	id TEXT PRIMARY KEY,
	team_id TEXT NOT NULL,
	role TEXT NOT NULL,
	specialization TEXT,
	skills TEXT,
	permitted_tools TEXT,
	capacity INTEGER NOT NULL DEFAULT 1,
	active_tasks INTEGER NOT NULL DEFAULT 0,
	active INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_agents_team_id ON agents(team_id);
`

const migrationV3Tasks = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	team_id TEXT NOT NULL,
	parent_id TEXT,
	title TEXT NOT NULL,
	description TEXT,
	acceptance_criteria TEXT,
	required_skills TEXT,
	required_tags TEXT,
	assigned_to TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	revision_count INTEGER NOT NULL DEFAULT 0,
	quality_score REAL NOT NULL DEFAULT 0,
	acceptance_threshold REAL NOT NULL DEFAULT 0,
	output TEXT,
	abort_reason TEXT,
	sunk_cost REAL NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_tasks_team_id ON tasks(team_id);
CREATE INDEX IF NOT EXISTS idx_tasks_parent_id ON tasks(parent_id);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);

CREATE TABLE IF NOT EXISTS revisions (
	task_id TEXT NOT NULL,
	revision INTEGER NOT NULL,
	quality_before REAL NOT NULL,
	quality_after REAL NOT NULL,
	cost REAL NOT NULL,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (task_id, revision)
);
`

const migrationV4Checkpoints = `
CREATE TABLE IF NOT EXISTS checkpoints (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	step INTEGER NOT NULL,
	snapshot BLOB,
	cumulative_cost REAL NOT NULL DEFAULT 0,
	invalidated INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	UNIQUE (task_id, step)
);

CREATE INDEX IF NOT EXISTS idx_checkpoints_task_id ON checkpoints(task_id);
`

const migrationV5Ledger = `
CREATE TABLE IF NOT EXISTS tool_executions (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	tool_id TEXT NOT NULL,
	input TEXT,
	output TEXT,
	error TEXT,
	cost_units REAL NOT NULL DEFAULT 0,
	tokens INTEGER NOT NULL DEFAULT 0,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	cache_hit INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tool_executions_task_id ON tool_executions(task_id);
CREATE INDEX IF NOT EXISTS idx_tool_executions_tool_id ON tool_executions(tool_id);

CREATE TABLE IF NOT EXISTS cost_entries (
	id TEXT PRIMARY KEY,
	team_id TEXT NOT NULL,
	task_id TEXT,
	amount REAL NOT NULL,
	description TEXT,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cost_entries_team_id ON cost_entries(team_id);
CREATE INDEX IF NOT EXISTS idx_cost_entries_task_id ON cost_entries(task_id);
`

const migrationV6Failures = `
CREATE TABLE IF NOT EXISTS failure_analyses (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	category TEXT NOT NULL,
	root_cause TEXT,
	confidence REAL NOT NULL DEFAULT 0,
	recommended_action TEXT NOT NULL,
	priority TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_failure_analyses_task_id ON failure_analyses(task_id);
`

const migrationV7Events = `
CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	team_id TEXT,
	task_id TEXT,
	agent_id TEXT,
	payload TEXT,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_task_id ON events(task_id);
CREATE INDEX IF NOT EXISTS idx_events_team_id ON events(team_id);
`

// Exec executes a query that doesn't return rows.
func (db *DB) Exec(query string, args ...any) (sql.Result, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Exec(query, args...)
}

// Query executes a query that returns rows.
func (db *DB) Query(query string, args ...any) (*sql.Rows, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.conn.Query(query, args...)
}

// QueryRow executes a query that returns at most one row.
func (db *DB) QueryRow(query string, args ...any) *sql.Row {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.conn.QueryRow(query, args...)
}

// Transaction runs the given function within a transaction.
func (db *DB) Transaction(fn func(tx *sql.Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// formatTime formats a time.Time for SQLite storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a time string from SQLite.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Parse(time.RFC3339, s)
	}
	return t, nil
}

// parseNullableTime parses a nullable time string from SQLite.
func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil
	}
	return &t
}
