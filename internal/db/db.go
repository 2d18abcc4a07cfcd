package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps a *sql.DB holding per-workspace key/value state.
type DB struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS workspace_state (
  workspace TEXT NOT NULL,
  key TEXT NOT NULL,
  value TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  PRIMARY KEY (workspace, key)
);
`

// Open opens (or creates) the SQLite database at the given path.
func Open(path string) (*DB, error) {
	sqldb, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer keeps last-write-wins semantics simple.
	sqldb.SetMaxOpenConns(1)
	if _, err := sqldb.Exec(schema); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &DB{db: sqldb}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// State returns the key/value view for one workspace.
func (d *DB) State(workspace string) *State {
	return &State{db: d.db, workspace: workspace}
}

// State is a JSON key/value store scoped to a single workspace.
type State struct {
	db        *sql.DB
	workspace string
}

// Get decodes the value stored under key into dst. It reports false, with dst
// untouched, when the key has never been written.
func (s *State) Get(key string, dst any) (bool, error) {
	var raw string
	err := s.db.QueryRow(
		`SELECT value FROM workspace_state WHERE workspace = ? AND key = ?`,
		s.workspace, key,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// Update stores value under key. A nil value removes the key.
func (s *State) Update(key string, value any) error {
	if value == nil {
		_, err := s.db.Exec(
			`DELETE FROM workspace_state WHERE workspace = ? AND key = ?`,
			s.workspace, key,
		)
		if err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO workspace_state (workspace, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(workspace, key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		s.workspace, key, string(data), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("update %s: %w", key, err)
	}
	return nil
}
