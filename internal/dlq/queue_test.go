package dlq

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/bugrouter/internal/errors"
	"github.com/rohankatakam/bugrouter/internal/models"
	"github.com/rohankatakam/bugrouter/internal/storage"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	s, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "dlq.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewQueue(s.DB())
}

func event(commit, path string) models.ChangeEvent {
	return models.ChangeEvent{
		FilePath:  path,
		AuthorID:  "alice",
		Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		CommitID:  commit,
	}
}

func TestEnqueueAndList(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	base := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	q.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	bad := event("c1", "a.go")
	bad.LinesAdded = -3
	require.NoError(t, q.Enqueue(ctx, "acme/widgets", bad, errors.MalformedEventf("negative line count")))
	require.NoError(t, q.Enqueue(ctx, "acme/widgets", event("c2", "b.go"), errors.InconsistentStatef("halted")))
	require.NoError(t, q.Enqueue(ctx, "acme/other", event("c3", "c.go"), fmt.Errorf("boom")))

	entries, err := q.RecentFailures(ctx, "acme/widgets", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c2:b.go", entries[0].EventKey)
	assert.Equal(t, errors.CodeInconsistentOwnershipState, entries[0].ErrorCode)
	assert.Equal(t, "c1", entries[1].CommitSHA)
	assert.Equal(t, -3, entries[1].Event.LinesAdded)
	assert.Equal(t, errors.CodeMalformedEvent, entries[1].ErrorCode)

	stats, err := q.GetStats(ctx, "acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalEntries)
	assert.Equal(t, 1, stats.Malformed)
	assert.Equal(t, 1, stats.Halted)
	assert.Equal(t, 0, stats.Redeliveries)
}

func TestEnqueueRedeliveryIncrementsRetryCount(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	ev := event("c1", "a.go")
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(ctx, "r", ev, errors.MalformedEventf("empty author")))
	}

	entries, err := q.RecentFailures(ctx, "r", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].RetryCount)

	stats, err := q.GetStats(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalEntries)
	assert.Equal(t, 2, stats.Redeliveries)
}

func TestMarkResolved(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	ev := event("c1", "a.go")
	require.NoError(t, q.Enqueue(ctx, "r", ev, errors.MalformedEventf("bad")))

	removed, err := q.MarkResolved(ctx, "r", EventKey(ev))
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = q.MarkResolved(ctx, "r", EventKey(ev))
	require.NoError(t, err)
	assert.False(t, removed)

	stats, err := q.GetStats(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalEntries)
}

func TestPurgeOld(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	q.now = func() time.Time { return now.AddDate(0, 0, -30) }
	require.NoError(t, q.Enqueue(ctx, "r", event("old", "a.go"), errors.MalformedEventf("bad")))
	q.now = func() time.Time { return now.AddDate(0, 0, -1) }
	require.NoError(t, q.Enqueue(ctx, "r", event("new", "a.go"), errors.MalformedEventf("bad")))

	q.now = func() time.Time { return now }
	n, err := q.PurgeOld(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entries, err := q.RecentFailures(ctx, "r", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].CommitSHA)
}

func TestClosedDatabaseIsFatal(t *testing.T) {
	s, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "dlq.db"), nil)
	require.NoError(t, err)
	q := NewQueue(s.DB())
	require.NoError(t, s.Close())

	err = q.Enqueue(context.Background(), "acme/widgets", event("c1", "a.go"), errors.MalformedEventf("bad"))
	require.Error(t, err)
	assert.ErrorIs(t, err, &errors.Error{Type: errors.ErrorTypeDatabase})
	assert.True(t, errors.IsFatal(err))
}
