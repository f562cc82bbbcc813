// Package availability tracks each engineer's open workload and away
// status. Reserve is the only path that raises a workload and is atomic per
// author: the open count never exceeds capacity, however many callers race.
package availability

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/rohankatakam/bugrouter/internal/config"
	"github.com/rohankatakam/bugrouter/internal/errors"
	"github.com/rohankatakam/bugrouter/internal/models"
)

// Tracker is the availability service the resolver talks to
type Tracker interface {
	// StatusOf returns the author's current availability. Unknown authors
	// are active with no open work and the default capacity.
	StatusOf(ctx context.Context, authorID string) (models.Availability, error)
	// Reserve claims one unit of capacity, failing with Overloaded when the
	// author is away or at capacity.
	Reserve(ctx context.Context, authorID string) error
	// Release returns one unit of capacity. Releasing with no open work is a no-op.
	Release(ctx context.Context, authorID string) error
}

// Admin changes engineer settings
type Admin interface {
	SetAway(ctx context.Context, authorID string, away bool) error
	SetCapacity(ctx context.Context, authorID string, capacity int) error
}

// Service is a Tracker that can also be administered
type Service interface {
	Tracker
	Admin
}

// Seed applies configured engineers to a tracker
func Seed(ctx context.Context, svc Admin, engineers []config.EngineerConfig) error {
	for _, e := range engineers {
		if e.Capacity > 0 {
			if err := svc.SetCapacity(ctx, e.ID, e.Capacity); err != nil {
				return err
			}
		}
		if e.Away {
			if err := svc.SetAway(ctx, e.ID, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// New builds the tracker selected by cfg.Backend and seeds it. The storage
// backend keeps workload in db; the others ignore it.
func New(ctx context.Context, cfg config.AvailabilityConfig, db *sqlx.DB) (Service, error) {
	switch cfg.Backend {
	case "", "storage":
		if db == nil {
			return nil, errors.ConfigErrorf("storage availability backend needs a database")
		}
		st := NewSQLTracker(db, cfg.MaxCapacityDefault)
		if err := st.SeedMissing(ctx, cfg.Engineers); err != nil {
			return nil, err
		}
		return st, nil
	case "redis":
		rt, err := NewRedisTracker(ctx, RedisOptions{
			Addr:            cfg.RedisAddr,
			Password:        cfg.RedisPassword,
			DefaultCapacity: cfg.MaxCapacityDefault,
		})
		if err != nil {
			return nil, err
		}
		if err := Seed(ctx, rt, cfg.Engineers); err != nil {
			rt.Close()
			return nil, err
		}
		return rt, nil
	case "memory":
		mt := NewMemoryTracker(cfg.MaxCapacityDefault)
		if err := Seed(ctx, mt, cfg.Engineers); err != nil {
			return nil, err
		}
		return mt, nil
	default:
		return nil, errors.ConfigErrorf("unknown availability backend %q", cfg.Backend)
	}
}
