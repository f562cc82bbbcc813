package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/bugrouter/internal/config"
	"github.com/rohankatakam/bugrouter/internal/models"
)

// Common errors
var (
	ErrNotFound = errors.New("not found")
)

// Store persists assignment decisions and ownership snapshots
type Store interface {
	// Decision operations. Decisions are append-only.
	SaveDecision(ctx context.Context, d *models.AssignmentDecision) error
	GetDecision(ctx context.Context, id string) (*models.AssignmentDecision, error)
	// LatestDecision returns nil, nil when the bug has no decision yet
	LatestDecision(ctx context.Context, bugID string) (*models.AssignmentDecision, error)
	ListDecisions(ctx context.Context, bugID string) ([]*models.AssignmentDecision, error)

	// Ownership snapshot operations
	SaveOwnership(ctx context.Context, repoID string, records []models.FileOwnershipRecord) error
	LoadOwnership(ctx context.Context, repoID string) ([]models.FileOwnershipRecord, error)

	// DB exposes the connection for the dead letter queue
	DB() *sqlx.DB

	// Close connection
	Close() error
}

// Open connects to the store selected by cfg.Type
func Open(cfg config.StorageConfig, logger *logrus.Logger) (Store, error) {
	switch cfg.Type {
	case "postgres":
		return NewPostgresStore(cfg.PostgresDSN, logger)
	case "sqlite", "":
		return NewSQLiteStore(cfg.LocalPath, logger)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
