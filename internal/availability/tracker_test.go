package availability

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/bugrouter/internal/config"
	"github.com/rohankatakam/bugrouter/internal/errors"
	"github.com/rohankatakam/bugrouter/internal/models"
	"github.com/rohankatakam/bugrouter/internal/storage"
)

// exerciseTracker runs the behavior every Service must share
func exerciseTracker(t *testing.T, svc Service) {
	ctx := context.Background()

	t.Run("unknown author is active with default capacity", func(t *testing.T) {
		st, err := svc.StatusOf(ctx, "newcomer")
		require.NoError(t, err)
		assert.Equal(t, models.StatusActive, st.Status)
		assert.Equal(t, 0, st.OpenAssignmentCount)
		assert.Equal(t, 3, st.MaxCapacity)
	})

	t.Run("reserve until overloaded", func(t *testing.T) {
		require.NoError(t, svc.SetCapacity(ctx, "dana", 2))
		require.NoError(t, svc.Reserve(ctx, "dana"))
		require.NoError(t, svc.Reserve(ctx, "dana"))

		err := svc.Reserve(ctx, "dana")
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrOverloaded))

		st, err := svc.StatusOf(ctx, "dana")
		require.NoError(t, err)
		assert.Equal(t, models.StatusOverloaded, st.Status)
		assert.Equal(t, 2, st.OpenAssignmentCount)

		require.NoError(t, svc.Release(ctx, "dana"))
		st, err = svc.StatusOf(ctx, "dana")
		require.NoError(t, err)
		assert.Equal(t, models.StatusActive, st.Status)
		assert.Equal(t, 1, st.OpenAssignmentCount)
	})

	t.Run("away authors cannot be reserved", func(t *testing.T) {
		require.NoError(t, svc.SetAway(ctx, "eve", true))
		st, err := svc.StatusOf(ctx, "eve")
		require.NoError(t, err)
		assert.Equal(t, models.StatusAway, st.Status)
		assert.True(t, stderrors.Is(svc.Reserve(ctx, "eve"), errors.ErrOverloaded))

		require.NoError(t, svc.SetAway(ctx, "eve", false))
		assert.NoError(t, svc.Reserve(ctx, "eve"))
	})

	t.Run("release never goes negative", func(t *testing.T) {
		require.NoError(t, svc.Release(ctx, "frank"))
		require.NoError(t, svc.Release(ctx, "frank"))
		st, err := svc.StatusOf(ctx, "frank")
		require.NoError(t, err)
		assert.Equal(t, 0, st.OpenAssignmentCount)
	})

	t.Run("concurrent reservations respect capacity", func(t *testing.T) {
		const k, n = 4, 64
		require.NoError(t, svc.SetCapacity(ctx, "grace", k))

		var ok, refused atomic.Int64
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := svc.Reserve(ctx, "grace")
				switch {
				case err == nil:
					ok.Add(1)
				case stderrors.Is(err, errors.ErrOverloaded):
					refused.Add(1)
				}
				st, err := svc.StatusOf(ctx, "grace")
				if err == nil {
					assert.LessOrEqual(t, st.OpenAssignmentCount, k)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int64(k), ok.Load())
		assert.Equal(t, int64(n-k), refused.Load())
	})
}

func TestMemoryTracker(t *testing.T) {
	exerciseTracker(t, NewMemoryTracker(3))
}

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "bugrouter.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLTracker(t *testing.T) {
	exerciseTracker(t, NewSQLTracker(newTestStore(t).DB(), 3))
}

func TestSQLTrackerSharesStateAcrossInstances(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t).DB()

	first := NewSQLTracker(db, 3)
	require.NoError(t, first.SetCapacity(ctx, "alice", 1))
	require.NoError(t, first.Reserve(ctx, "alice"))

	second := NewSQLTracker(db, 3)
	err := second.Reserve(ctx, "alice")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrOverloaded))
	assert.Contains(t, err.Error(), "at capacity")

	st, err := second.StatusOf(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, st.OpenAssignmentCount)
	assert.Equal(t, models.StatusOverloaded, st.Status)
}

func TestSQLTrackerSeedKeepsStoredSettings(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t).DB()
	cfg := config.AvailabilityConfig{
		Backend:            "storage",
		MaxCapacityDefault: 5,
		Engineers:          []config.EngineerConfig{{ID: "alice", Away: true}, {ID: "bob", Capacity: 2}},
	}

	svc, err := New(ctx, cfg, db)
	require.NoError(t, err)
	st, err := svc.StatusOf(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAway, st.Status)
	st, err = svc.StatusOf(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, st.MaxCapacity)

	require.NoError(t, svc.SetAway(ctx, "alice", false))

	svc, err = New(ctx, cfg, db)
	require.NoError(t, err)
	st, err = svc.StatusOf(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, st.Status)
}

func TestSQLTrackerClosedDatabase(t *testing.T) {
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "bugrouter.db"), nil)
	require.NoError(t, err)
	tracker := NewSQLTracker(store.DB(), 3)
	require.NoError(t, store.Close())

	ctx := context.Background()
	_, err = tracker.StatusOf(ctx, "alice")
	assert.True(t, stderrors.Is(err, errors.ErrAvailabilityServiceUnavailable))
	assert.True(t, stderrors.Is(tracker.Reserve(ctx, "alice"), errors.ErrAvailabilityServiceUnavailable))
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	_, err := New(context.Background(), config.AvailabilityConfig{Backend: "zookeeper"}, nil)
	assert.Error(t, err)

	_, err = New(context.Background(), config.AvailabilityConfig{Backend: "storage"}, nil)
	assert.Error(t, err)
}

func TestMemoryTrackerCancelledContext(t *testing.T) {
	m := NewMemoryTracker(3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.StatusOf(ctx, "a")
	assert.True(t, stderrors.Is(err, errors.ErrAvailabilityServiceUnavailable))
	assert.True(t, stderrors.Is(m.Reserve(ctx, "a"), errors.ErrAvailabilityServiceUnavailable))
}

func TestMemoryTrackerRejectsNegativeCapacity(t *testing.T) {
	assert.Error(t, NewMemoryTracker(3).SetCapacity(context.Background(), "a", -1))
}

func TestNewSeedsEngineers(t *testing.T) {
	ctx := context.Background()
	svc, err := New(ctx, config.AvailabilityConfig{
		Backend:            "memory",
		MaxCapacityDefault: 5,
		Engineers: []config.EngineerConfig{
			{ID: "alice", Away: true},
			{ID: "bob", Capacity: 1},
		},
	}, nil)
	require.NoError(t, err)

	st, err := svc.StatusOf(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAway, st.Status)
	assert.Equal(t, 5, st.MaxCapacity)

	st, err = svc.StatusOf(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, st.MaxCapacity)
}

func TestRedisTrackerUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	r := newRedisTracker(client, RedisOptions{Timeout: time.Second})

	ctx := context.Background()
	_, err := r.StatusOf(ctx, "alice")
	assert.True(t, stderrors.Is(err, errors.ErrAvailabilityServiceUnavailable))
	assert.True(t, stderrors.Is(r.Reserve(ctx, "alice"), errors.ErrAvailabilityServiceUnavailable))
	assert.True(t, stderrors.Is(r.Release(ctx, "alice"), errors.ErrAvailabilityServiceUnavailable))
}

func TestNewRedisTrackerRequiresAddr(t *testing.T) {
	_, err := NewRedisTracker(context.Background(), RedisOptions{})
	assert.Error(t, err)
}

func TestRedisTracker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	addr := os.Getenv("BUGROUTER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BUGROUTER_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	prefix := fmt.Sprintf("bugrouter:test:%d:", time.Now().UnixNano())
	r, err := NewRedisTracker(ctx, RedisOptions{Addr: addr, KeyPrefix: prefix, DefaultCapacity: 3})
	if err != nil {
		t.Skipf("redis unreachable at %s: %v", addr, err)
	}
	defer r.Close()
	defer func() {
		keys, _ := r.client.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			r.client.Del(ctx, keys...)
		}
	}()

	exerciseTracker(t, r)
}
