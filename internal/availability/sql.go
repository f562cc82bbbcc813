package availability

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rohankatakam/bugrouter/internal/config"
	"github.com/rohankatakam/bugrouter/internal/errors"
	"github.com/rohankatakam/bugrouter/internal/models"
)

// SQLTracker keeps availability in the engineer_availability table of the
// routing store, so every command sharing the database sees one workload.
// Reserve is a single guarded UPDATE and needs no transaction.
type SQLTracker struct {
	db              *sqlx.DB
	defaultCapacity int
	now             func() time.Time
	logger          *slog.Logger
}

type availabilityRow struct {
	Open     int  `db:"open_count"`
	Capacity int  `db:"capacity"`
	Away     bool `db:"away"`
}

// NewSQLTracker tracks availability in db. The schema is created by the
// storage package.
func NewSQLTracker(db *sqlx.DB, defaultCapacity int) *SQLTracker {
	if defaultCapacity <= 0 {
		defaultCapacity = 5
	}
	return &SQLTracker{
		db:              db,
		defaultCapacity: defaultCapacity,
		now:             func() time.Time { return time.Now().UTC() },
		logger:          slog.Default().With("component", "availability_sql"),
	}
}

// ensure creates the author's row with default settings if it is missing
func (s *SQLTracker) ensure(ctx context.Context, authorID string, capacity int, away bool) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO engineer_availability (author_id, open_count, capacity, away, updated_at)
		VALUES (?, 0, ?, ?, ?)
		ON CONFLICT (author_id) DO NOTHING`),
		authorID, capacity, away, s.now())
	return err
}

// StatusOf implements Tracker
func (s *SQLTracker) StatusOf(ctx context.Context, authorID string) (models.Availability, error) {
	var row availabilityRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT open_count, capacity, away FROM engineer_availability
		WHERE author_id = ?`), authorID)
	switch {
	case stderrors.Is(err, sql.ErrNoRows):
		row = availabilityRow{Capacity: s.defaultCapacity}
	case err != nil:
		return models.Availability{}, errors.AvailabilityUnavailable(err, "status lookup failed for "+authorID)
	}

	return models.Availability{
		AuthorID:            authorID,
		OpenAssignmentCount: row.Open,
		MaxCapacity:         row.Capacity,
		Status:              models.DeriveStatus(row.Away, row.Open, row.Capacity),
	}, nil
}

// Reserve implements Tracker
func (s *SQLTracker) Reserve(ctx context.Context, authorID string) error {
	if err := s.ensure(ctx, authorID, s.defaultCapacity, false); err != nil {
		return errors.AvailabilityUnavailable(err, "reserve failed for "+authorID)
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE engineer_availability
		SET open_count = open_count + 1, updated_at = ?
		WHERE author_id = ? AND away = ? AND open_count < capacity`),
		s.now(), authorID, false)
	if err != nil {
		return errors.AvailabilityUnavailable(err, "reserve failed for "+authorID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.AvailabilityUnavailable(err, "reserve failed for "+authorID)
	}
	if n == 1 {
		s.logger.Debug("reserved", "author", authorID)
		return nil
	}

	st, err := s.StatusOf(ctx, authorID)
	if err != nil {
		return err
	}
	if st.Status == models.StatusAway {
		return errors.Overloadedf("%s is away", authorID)
	}
	return errors.Overloadedf("%s is at capacity", authorID)
}

// Release implements Tracker
func (s *SQLTracker) Release(ctx context.Context, authorID string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE engineer_availability
		SET open_count = open_count - 1, updated_at = ?
		WHERE author_id = ? AND open_count > 0`),
		s.now(), authorID)
	if err != nil {
		return errors.AvailabilityUnavailable(err, "release failed for "+authorID)
	}
	s.logger.Debug("released", "author", authorID)
	return nil
}

// SetAway implements Admin
func (s *SQLTracker) SetAway(ctx context.Context, authorID string, away bool) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO engineer_availability (author_id, open_count, capacity, away, updated_at)
		VALUES (?, 0, ?, ?, ?)
		ON CONFLICT (author_id) DO UPDATE SET
			away = excluded.away,
			updated_at = excluded.updated_at`),
		authorID, s.defaultCapacity, away, s.now())
	if err != nil {
		return errors.AvailabilityUnavailable(err, "set away failed for "+authorID)
	}
	return nil
}

// SetCapacity implements Admin
func (s *SQLTracker) SetCapacity(ctx context.Context, authorID string, capacity int) error {
	if capacity < 0 {
		return errors.ValidationErrorf("capacity for %s must be non-negative, got %d", authorID, capacity)
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO engineer_availability (author_id, open_count, capacity, away, updated_at)
		VALUES (?, 0, ?, ?, ?)
		ON CONFLICT (author_id) DO UPDATE SET
			capacity = excluded.capacity,
			updated_at = excluded.updated_at`),
		authorID, capacity, false, s.now())
	if err != nil {
		return errors.AvailabilityUnavailable(err, "set capacity failed for "+authorID)
	}
	return nil
}

// SeedMissing records configured engineers that have no row yet. Engineers
// already stored keep their settings, so changes made with SetAway and
// SetCapacity survive the next command.
func (s *SQLTracker) SeedMissing(ctx context.Context, engineers []config.EngineerConfig) error {
	for _, e := range engineers {
		capacity := e.Capacity
		if capacity <= 0 {
			capacity = s.defaultCapacity
		}
		if err := s.ensure(ctx, e.ID, capacity, e.Away); err != nil {
			return errors.AvailabilityUnavailable(err, "seed failed for "+e.ID)
		}
	}
	return nil
}
