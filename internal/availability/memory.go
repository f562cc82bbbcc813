package availability

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/rohankatakam/bugrouter/internal/errors"
	"github.com/rohankatakam/bugrouter/internal/models"
)

type engineer struct {
	mu       sync.Mutex
	open     int
	capacity int
	away     bool
}

// MemoryTracker keeps availability in process. Each author has a mutex;
// the author map is only locked to look up or insert.
type MemoryTracker struct {
	mu              sync.RWMutex
	engineers       map[string]*engineer
	defaultCapacity int
	logger          *slog.Logger
}

// NewMemoryTracker creates a tracker where unknown authors get defaultCapacity
func NewMemoryTracker(defaultCapacity int) *MemoryTracker {
	if defaultCapacity <= 0 {
		defaultCapacity = 5
	}
	return &MemoryTracker{
		engineers:       make(map[string]*engineer),
		defaultCapacity: defaultCapacity,
		logger:          slog.Default().With("component", "availability"),
	}
}

func (m *MemoryTracker) get(authorID string) *engineer {
	m.mu.RLock()
	e, ok := m.engineers[authorID]
	m.mu.RUnlock()
	if ok {
		return e
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok = m.engineers[authorID]; ok {
		return e
	}
	e = &engineer{capacity: m.defaultCapacity}
	m.engineers[authorID] = e
	return e
}

// StatusOf implements Tracker
func (m *MemoryTracker) StatusOf(ctx context.Context, authorID string) (models.Availability, error) {
	if err := ctx.Err(); err != nil {
		return models.Availability{}, errors.AvailabilityUnavailable(err, "status lookup abandoned")
	}
	e := m.get(authorID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return models.Availability{
		AuthorID:            authorID,
		OpenAssignmentCount: e.open,
		MaxCapacity:         e.capacity,
		Status:              models.DeriveStatus(e.away, e.open, e.capacity),
	}, nil
}

// Reserve implements Tracker
func (m *MemoryTracker) Reserve(ctx context.Context, authorID string) error {
	if err := ctx.Err(); err != nil {
		return errors.AvailabilityUnavailable(err, "reservation abandoned")
	}
	e := m.get(authorID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.away {
		return errors.Overloadedf("%s is away", authorID)
	}
	if e.open >= e.capacity {
		return errors.Overloadedf("%s has %d of %d open assignments", authorID, e.open, e.capacity)
	}
	e.open++
	m.logger.Debug("reserved", "author", authorID, "open", e.open, "capacity", e.capacity)
	return nil
}

// Release implements Tracker
func (m *MemoryTracker) Release(ctx context.Context, authorID string) error {
	e := m.get(authorID)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.open > 0 {
		e.open--
	}
	m.logger.Debug("released", "author", authorID, "open", e.open)
	return nil
}

// SetAway implements Admin
func (m *MemoryTracker) SetAway(ctx context.Context, authorID string, away bool) error {
	e := m.get(authorID)
	e.mu.Lock()
	e.away = away
	e.mu.Unlock()
	return nil
}

// SetCapacity implements Admin. Lowering capacity below the open count
// leaves existing work in place; the author reads as overloaded until
// enough is released.
func (m *MemoryTracker) SetCapacity(ctx context.Context, authorID string, capacity int) error {
	if capacity < 0 {
		return errors.ValidationErrorf("capacity for %s must be non-negative, got %d", authorID, capacity)
	}
	e := m.get(authorID)
	e.mu.Lock()
	e.capacity = capacity
	e.mu.Unlock()
	return nil
}

// Authors lists every author the tracker has seen, sorted
func (m *MemoryTracker) Authors() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.engineers))
	for id := range m.engineers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
