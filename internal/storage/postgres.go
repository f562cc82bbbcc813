package storage

import (
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS assignment_decisions (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	bug_id TEXT NOT NULL,
	escalated BOOLEAN NOT NULL,
	primary_assignee TEXT,
	escalation_reason TEXT NOT NULL DEFAULT '',
	prior_decision_id TEXT NOT NULL DEFAULT '',
	payload TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS file_ownership (
	repo_id TEXT NOT NULL,
	file_path TEXT NOT NULL,
	payload TEXT NOT NULL,
	last_updated TIMESTAMPTZ NOT NULL,
	halted BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (repo_id, file_path)
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id BIGSERIAL PRIMARY KEY,
	repo_id TEXT NOT NULL,
	event_key TEXT NOT NULL,
	commit_sha TEXT NOT NULL DEFAULT '',
	file_path TEXT NOT NULL DEFAULT '',
	error_code TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	payload TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (repo_id, event_key)
);

CREATE TABLE IF NOT EXISTS engineer_availability (
	author_id TEXT PRIMARY KEY,
	open_count INTEGER NOT NULL DEFAULT 0 CHECK (open_count >= 0),
	capacity INTEGER NOT NULL CHECK (capacity >= 0),
	away BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_bug ON assignment_decisions(bug_id);
CREATE INDEX IF NOT EXISTS idx_dlq_repo ON dead_letter_queue(repo_id);
`

// NewPostgresStore creates a new PostgreSQL storage
func NewPostgresStore(dsn string, logger *logrus.Logger) (Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn missing")
	}
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return newSQLStore(db, logger), nil
}
