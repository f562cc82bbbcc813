// Package dlq records change events ingestion refused so they can be
// reviewed instead of silently dropped.
package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rohankatakam/bugrouter/internal/errors"
	"github.com/rohankatakam/bugrouter/internal/models"
)

// Entry represents a dead letter queue entry
type Entry struct {
	ID           int64              `db:"id"`
	RepoID       string             `db:"repo_id"`
	EventKey     string             `db:"event_key"`
	CommitSHA    string             `db:"commit_sha"`
	FilePath     string             `db:"file_path"`
	ErrorCode    string             `db:"error_code"`
	ErrorMessage string             `db:"error_message"`
	RetryCount   int                `db:"retry_count"`
	Payload      string             `db:"payload"`
	CreatedAt    time.Time          `db:"created_at"`
	UpdatedAt    time.Time          `db:"updated_at"`
	Event        models.ChangeEvent `db:"-"`
}

// Stats contains DLQ statistics
type Stats struct {
	RepoID       string `db:"-"`
	TotalEntries int    `db:"total"`
	Malformed    int    `db:"malformed"`
	Halted       int    `db:"halted"`
	Redeliveries int    `db:"redeliveries"`
}

// Queue manages refused change events. The table is created by the storage
// schema.
type Queue struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewQueue creates a new DLQ manager
func NewQueue(db *sqlx.DB) *Queue {
	return &Queue{
		db:     db,
		logger: slog.Default().With("component", "dlq"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// EventKey identifies an event inside a repository
func EventKey(ev models.ChangeEvent) string {
	return ev.CommitID + ":" + ev.FilePath
}

// Enqueue records a refused event.
// If the event already exists, increments retry_count
func (q *Queue) Enqueue(ctx context.Context, repoID string, ev models.ChangeEvent, cause error) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	now := q.now()

	_, err = q.db.ExecContext(ctx, q.db.Rebind(`
		INSERT INTO dead_letter_queue
			(repo_id, event_key, commit_sha, file_path, error_code, error_message, retry_count, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
		ON CONFLICT (repo_id, event_key) DO UPDATE
		SET retry_count = dead_letter_queue.retry_count + 1,
		    error_code = excluded.error_code,
		    error_message = excluded.error_message,
		    payload = excluded.payload,
		    updated_at = excluded.updated_at
	`), repoID, EventKey(ev), ev.CommitID, ev.FilePath, errors.GetCode(cause), msg, string(payload), now, now)
	if err != nil {
		return errors.DatabaseError(err, "failed to enqueue event to DLQ")
	}

	q.logger.Warn("event enqueued to DLQ",
		"repo_id", repoID,
		"commit", shortSHA(ev.CommitID),
		"file", ev.FilePath,
		"severity", errors.GetSeverity(cause).String(),
		"error", msg,
	)
	return nil
}

// RecentFailures returns the N most recently refused events for review
func (q *Queue) RecentFailures(ctx context.Context, repoID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []Entry
	err := q.db.SelectContext(ctx, &entries, q.db.Rebind(`
		SELECT id, repo_id, event_key, commit_sha, file_path, error_code, error_message,
		       retry_count, payload, created_at, updated_at
		FROM dead_letter_queue
		WHERE repo_id = ?
		ORDER BY updated_at DESC, id DESC
		LIMIT ?
	`), repoID, limit)
	if err != nil {
		return nil, errors.DatabaseError(err, "failed to query recent failures")
	}

	for i := range entries {
		if err := json.Unmarshal([]byte(entries[i].Payload), &entries[i].Event); err != nil {
			q.logger.Warn("failed to unmarshal event", "entry_id", entries[i].ID, "error", err)
		}
	}
	return entries, nil
}

// MarkResolved removes an event from the DLQ
func (q *Queue) MarkResolved(ctx context.Context, repoID, eventKey string) (bool, error) {
	result, err := q.db.ExecContext(ctx, q.db.Rebind(`
		DELETE FROM dead_letter_queue
		WHERE repo_id = ? AND event_key = ?
	`), repoID, eventKey)
	if err != nil {
		return false, errors.DatabaseError(err, "failed to delete DLQ entry")
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		q.logger.Info("event resolved and removed from DLQ",
			"repo_id", repoID,
			"event_key", eventKey,
		)
	}
	return rows > 0, nil
}

// GetStats returns DLQ statistics for a repository
func (q *Queue) GetStats(ctx context.Context, repoID string) (*Stats, error) {
	var stats Stats
	err := q.db.GetContext(ctx, &stats, q.db.Rebind(`
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN error_code = ? THEN 1 ELSE 0 END), 0) AS malformed,
			COALESCE(SUM(CASE WHEN error_code = ? THEN 1 ELSE 0 END), 0) AS halted,
			COALESCE(SUM(retry_count), 0) AS redeliveries
		FROM dead_letter_queue
		WHERE repo_id = ?
	`), errors.CodeMalformedEvent, errors.CodeInconsistentOwnershipState, repoID)
	if err != nil {
		return nil, errors.DatabaseError(err, "failed to get DLQ stats")
	}

	stats.RepoID = repoID
	return &stats, nil
}

// PurgeOld removes DLQ entries older than the specified duration
func (q *Queue) PurgeOld(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := q.now().Add(-olderThan)

	result, err := q.db.ExecContext(ctx, q.db.Rebind(`
		DELETE FROM dead_letter_queue
		WHERE created_at < ?
	`), cutoff)
	if err != nil {
		return 0, errors.DatabaseError(err, "failed to purge old DLQ entries")
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		q.logger.Info("purged old DLQ entries",
			"count", rows,
			"older_than", olderThan,
		)
	}
	return int(rows), nil
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
