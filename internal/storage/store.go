package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/bugrouter/internal/errors"
	"github.com/rohankatakam/bugrouter/internal/models"
)

// sqlStore implements Store over sqlx. Queries are written with ? and
// rebound for the active driver.
type sqlStore struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

func newSQLStore(db *sqlx.DB, logger *logrus.Logger) *sqlStore {
	if logger == nil {
		logger = logrus.New()
	}
	return &sqlStore{db: db, logger: logger}
}

type decisionRow struct {
	ID      string `db:"id"`
	Payload string `db:"payload"`
}

type ownershipRow struct {
	FilePath string `db:"file_path"`
	Payload  string `db:"payload"`
}

// SaveDecision appends a decision. Saving the same ID twice is an error.
func (s *sqlStore) SaveDecision(ctx context.Context, d *models.AssignmentDecision) error {
	if d == nil || d.ID == "" {
		return fmt.Errorf("decision id missing")
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode decision %s: %w", d.ID, err)
	}

	var assignee sql.NullString
	if d.PrimaryAssignee != nil {
		assignee = sql.NullString{String: *d.PrimaryAssignee, Valid: true}
	}
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := s.db.Rebind(`
		INSERT INTO assignment_decisions
			(id, bug_id, escalated, primary_assignee, escalation_reason, prior_decision_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query,
		d.ID, d.BugID, d.Escalated, assignee, d.EscalationReason, d.PriorDecisionID, string(payload), createdAt,
	); err != nil {
		return errors.DatabaseErrorf(err, "save decision %s", d.ID)
	}

	s.logger.WithFields(logrus.Fields{
		"decision_id": d.ID,
		"bug_id":      d.BugID,
		"escalated":   d.Escalated,
	}).Debug("decision saved")
	return nil
}

// GetDecision returns the decision with the given id or ErrNotFound
func (s *sqlStore) GetDecision(ctx context.Context, id string) (*models.AssignmentDecision, error) {
	var row decisionRow
	query := s.db.Rebind(`SELECT id, payload FROM assignment_decisions WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.DatabaseErrorf(err, "get decision %s", id)
	}
	return decodeDecision(row)
}

// LatestDecision returns the most recently saved decision for a bug
func (s *sqlStore) LatestDecision(ctx context.Context, bugID string) (*models.AssignmentDecision, error) {
	var row decisionRow
	query := s.db.Rebind(`
		SELECT id, payload FROM assignment_decisions
		WHERE bug_id = ?
		ORDER BY seq DESC
		LIMIT 1`)
	if err := s.db.GetContext(ctx, &row, query, bugID); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.DatabaseErrorf(err, "latest decision for %s", bugID)
	}
	return decodeDecision(row)
}

// ListDecisions returns every decision for a bug, oldest first
func (s *sqlStore) ListDecisions(ctx context.Context, bugID string) ([]*models.AssignmentDecision, error) {
	var rows []decisionRow
	query := s.db.Rebind(`
		SELECT id, payload FROM assignment_decisions
		WHERE bug_id = ?
		ORDER BY seq ASC`)
	if err := s.db.SelectContext(ctx, &rows, query, bugID); err != nil {
		return nil, errors.DatabaseErrorf(err, "list decisions for %s", bugID)
	}

	decisions := make([]*models.AssignmentDecision, 0, len(rows))
	for _, row := range rows {
		d, err := decodeDecision(row)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}

func decodeDecision(row decisionRow) (*models.AssignmentDecision, error) {
	var d models.AssignmentDecision
	if err := json.Unmarshal([]byte(row.Payload), &d); err != nil {
		return nil, fmt.Errorf("decode decision %s: %w", row.ID, err)
	}
	return &d, nil
}

// SaveOwnership upserts the given records in a single transaction.
// Records for files not in the slice are left untouched.
func (s *sqlStore) SaveOwnership(ctx context.Context, repoID string, records []models.FileOwnershipRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.DatabaseError(err, "begin transaction")
	}
	defer tx.Rollback()

	query := tx.Rebind(`
		INSERT INTO file_ownership (repo_id, file_path, payload, last_updated, halted)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (repo_id, file_path) DO UPDATE SET
			payload = excluded.payload,
			last_updated = excluded.last_updated,
			halted = excluded.halted`)
	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return errors.DatabaseError(err, "prepare ownership upsert")
	}
	defer stmt.Close()

	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode ownership for %s: %w", rec.FilePath, err)
		}
		if _, err := stmt.ExecContext(ctx, repoID, rec.FilePath, string(payload), rec.LastUpdated, rec.Halted); err != nil {
			return errors.DatabaseErrorf(err, "save ownership for %s", rec.FilePath)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.DatabaseError(err, "commit ownership snapshot")
	}

	s.logger.WithFields(logrus.Fields{
		"repo_id": repoID,
		"files":   len(records),
	}).Info("ownership snapshot saved")
	return nil
}

// LoadOwnership returns every stored record for the repository, sorted by path
func (s *sqlStore) LoadOwnership(ctx context.Context, repoID string) ([]models.FileOwnershipRecord, error) {
	var rows []ownershipRow
	query := s.db.Rebind(`
		SELECT file_path, payload FROM file_ownership
		WHERE repo_id = ?
		ORDER BY file_path ASC`)
	if err := s.db.SelectContext(ctx, &rows, query, repoID); err != nil {
		return nil, errors.DatabaseErrorf(err, "load ownership for %s", repoID)
	}

	records := make([]models.FileOwnershipRecord, 0, len(rows))
	for _, row := range rows {
		var rec models.FileOwnershipRecord
		if err := json.Unmarshal([]byte(row.Payload), &rec); err != nil {
			return nil, fmt.Errorf("decode ownership for %s: %w", row.FilePath, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// DB returns the underlying connection
func (s *sqlStore) DB() *sqlx.DB {
	return s.db
}

// Close closes the database connection
func (s *sqlStore) Close() error {
	return s.db.Close()
}
