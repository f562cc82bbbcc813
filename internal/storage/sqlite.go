package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS assignment_decisions (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	bug_id TEXT NOT NULL,
	escalated BOOLEAN NOT NULL,
	primary_assignee TEXT,
	escalation_reason TEXT NOT NULL DEFAULT '',
	prior_decision_id TEXT NOT NULL DEFAULT '',
	payload TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS file_ownership (
	repo_id TEXT NOT NULL,
	file_path TEXT NOT NULL,
	payload TEXT NOT NULL,
	last_updated DATETIME NOT NULL,
	halted BOOLEAN NOT NULL DEFAULT 0,
	PRIMARY KEY (repo_id, file_path)
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	repo_id TEXT NOT NULL,
	event_key TEXT NOT NULL,
	commit_sha TEXT NOT NULL DEFAULT '',
	file_path TEXT NOT NULL DEFAULT '',
	error_code TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	payload TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE (repo_id, event_key)
);

CREATE TABLE IF NOT EXISTS engineer_availability (
	author_id TEXT PRIMARY KEY,
	open_count INTEGER NOT NULL DEFAULT 0 CHECK (open_count >= 0),
	capacity INTEGER NOT NULL CHECK (capacity >= 0),
	away BOOLEAN NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_bug ON assignment_decisions(bug_id);
CREATE INDEX IF NOT EXISTS idx_dlq_repo ON dead_letter_queue(repo_id);
`

// NewSQLiteStore creates a new SQLite storage (for local/development)
func NewSQLiteStore(path string, logger *logrus.Logger) (Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sqlx.Connect("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("connect to sqlite: %w", err)
	}

	// WAL mode for concurrent readers during ingestion
	db.Exec("PRAGMA journal_mode = WAL")

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return newSQLStore(db, logger), nil
}
