package graph

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"
)

// TimeoutMonitor logs graph operations that fail or come close to their
// operation timeout, and keeps per-operation totals
type TimeoutMonitor struct {
	logger       *slog.Logger
	warningRatio float64 // warn when an operation uses this share of its timeout

	mu    sync.Mutex
	stats map[string]*TimeoutStats
}

// TimeoutStats summarizes executions of one operation
type TimeoutStats struct {
	Operation       string
	TotalExecutions int
	TimeoutCount    int
	MaxDuration     time.Duration
}

// NewTimeoutMonitor creates a monitor warning at 80% of the timeout
func NewTimeoutMonitor(logger *slog.Logger) *TimeoutMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &TimeoutMonitor{
		logger:       logger.With("component", "timeout_monitor"),
		warningRatio: 0.8,
		stats:        make(map[string]*TimeoutStats),
	}
}

// Observe runs fn under the operation's timeout and records how it went
func (tm *TimeoutMonitor) Observe(ctx context.Context, operation string, fn func(context.Context) error) error {
	timeout := GetConfigForOperation(operation).Timeout
	ctx, cancel := withOperationTimeout(ctx, operation)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)
	timedOut := stderrors.Is(ctx.Err(), context.DeadlineExceeded)
	tm.record(operation, duration, timedOut)

	switch {
	case err != nil && timedOut:
		tm.logger.Error("graph operation timed out",
			"operation", operation,
			"duration_seconds", duration.Seconds(),
			"timeout_seconds", timeout.Seconds())
	case err != nil:
		tm.logger.Warn("graph operation failed",
			"operation", operation,
			"duration_seconds", duration.Seconds(),
			"error", err)
	case timeout > 0 && duration >= time.Duration(float64(timeout)*tm.warningRatio):
		tm.logger.Warn("graph operation approaching timeout",
			"operation", operation,
			"duration_seconds", duration.Seconds(),
			"timeout_seconds", timeout.Seconds(),
			"percent_used", duration.Seconds()/timeout.Seconds()*100)
	default:
		tm.logger.Debug("graph operation completed",
			"operation", operation,
			"duration_seconds", duration.Seconds())
	}
	return err
}

func (tm *TimeoutMonitor) record(operation string, duration time.Duration, timedOut bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	s := tm.stats[operation]
	if s == nil {
		s = &TimeoutStats{Operation: operation}
		tm.stats[operation] = s
	}
	s.TotalExecutions++
	if timedOut {
		s.TimeoutCount++
	}
	if duration > s.MaxDuration {
		s.MaxDuration = duration
	}
}

// Stats returns a copy of the totals for an operation
func (tm *TimeoutMonitor) Stats(operation string) (TimeoutStats, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	s, ok := tm.stats[operation]
	if !ok {
		return TimeoutStats{}, false
	}
	return *s, true
}
