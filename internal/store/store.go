// Package store is the SQLite persistence layer: tool artifacts, policy
// rules, approvals, and run records with their ordered event logs.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// Store wraps one SQLite handle shared by every repository.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database and migrates the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrency between the control plane and the
	// expiry sweeper.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().Str("path", path).Msg("Store opened")
	return s, nil
}

// initSchema creates database tables.
func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tool_artifacts (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			source_id TEXT NOT NULL,
			source_hash TEXT NOT NULL,
			tool_count INTEGER NOT NULL,
			manifest_json BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			UNIQUE (workspace_id, source_id)
		);

		CREATE TABLE IF NOT EXISTS policy_rules (
			id TEXT PRIMARY KEY,
			scope_type TEXT NOT NULL,
			target_account_id TEXT NOT NULL DEFAULT '',
			client_id TEXT NOT NULL DEFAULT '',
			resource_pattern TEXT NOT NULL,
			match_type TEXT NOT NULL,
			effect TEXT NOT NULL,
			approval_mode TEXT NOT NULL DEFAULT 'auto',
			argument_conditions TEXT NOT NULL DEFAULT '[]',
			priority INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_rules_account ON policy_rules(target_account_id);

		CREATE TABLE IF NOT EXISTS approvals (
			id TEXT PRIMARY KEY,
			call_id TEXT NOT NULL UNIQUE,
			run_id TEXT NOT NULL DEFAULT '',
			workspace_id TEXT NOT NULL DEFAULT '',
			account_id TEXT NOT NULL DEFAULT '',
			tool_path TEXT NOT NULL,
			arguments TEXT NOT NULL DEFAULT '{}',
			status TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			resolved_by TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL,
			resolved_at INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_approvals_status ON approvals(status, expires_at);

		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			code TEXT NOT NULL,
			runtime_id TEXT NOT NULL,
			status TEXT NOT NULL,
			timeout_ms INTEGER NOT NULL DEFAULT 0,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS run_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
