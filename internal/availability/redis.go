package availability

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rohankatakam/bugrouter/internal/errors"
	"github.com/rohankatakam/bugrouter/internal/models"
)

const (
	defaultKeyPrefix = "bugrouter:availability:"

	fieldOpen     = "open"
	fieldCapacity = "capacity"
	fieldAway     = "away"

	reserveAway       = -1
	reserveAtCapacity = -2
)

// reserveScript checks away and capacity and increments in one step.
// KEYS[1] author hash, ARGV[1] default capacity.
var reserveScript = redis.NewScript(`
local open = tonumber(redis.call('HGET', KEYS[1], 'open') or '0')
local cap = tonumber(redis.call('HGET', KEYS[1], 'capacity') or ARGV[1])
if redis.call('HGET', KEYS[1], 'away') == '1' then
  return -1
end
if open >= cap then
  return -2
end
return redis.call('HINCRBY', KEYS[1], 'open', 1)
`)

// releaseScript decrements without going below zero
var releaseScript = redis.NewScript(`
local open = tonumber(redis.call('HGET', KEYS[1], 'open') or '0')
if open <= 0 then
  return 0
end
return redis.call('HINCRBY', KEYS[1], 'open', -1)
`)

// RedisOptions configures a RedisTracker
type RedisOptions struct {
	Addr            string
	Password        string
	DB              int
	KeyPrefix       string
	DefaultCapacity int
	// Timeout bounds every call when the caller's context has no deadline
	Timeout time.Duration
}

// RedisTracker keeps availability in redis so several processes share one
// view of workload. Atomicity comes from server-side scripts.
type RedisTracker struct {
	client          *redis.Client
	prefix          string
	defaultCapacity int
	timeout         time.Duration
	logger          *slog.Logger
}

// NewRedisTracker connects and verifies connectivity
func NewRedisTracker(ctx context.Context, opts RedisOptions) (*RedisTracker, error) {
	if opts.Addr == "" {
		return nil, errors.ConfigErrorf("redis address missing")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.AvailabilityUnavailable(err, fmt.Sprintf("failed to connect to redis at %s", opts.Addr))
	}

	t := newRedisTracker(client, opts)
	t.logger.Info("redis availability tracker connected", "addr", opts.Addr)
	return t, nil
}

func newRedisTracker(client *redis.Client, opts RedisOptions) *RedisTracker {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = defaultKeyPrefix
	}
	if opts.DefaultCapacity <= 0 {
		opts.DefaultCapacity = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	return &RedisTracker{
		client:          client,
		prefix:          opts.KeyPrefix,
		defaultCapacity: opts.DefaultCapacity,
		timeout:         opts.Timeout,
		logger:          slog.Default().With("component", "availability_redis"),
	}
}

// Close closes the redis connection
func (r *RedisTracker) Close() error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	return nil
}

func (r *RedisTracker) key(authorID string) string {
	return r.prefix + authorID
}

func (r *RedisTracker) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

// StatusOf implements Tracker
func (r *RedisTracker) StatusOf(ctx context.Context, authorID string) (models.Availability, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	vals, err := r.client.HMGet(ctx, r.key(authorID), fieldOpen, fieldCapacity, fieldAway).Result()
	if err != nil {
		return models.Availability{}, errors.AvailabilityUnavailable(err, "redis status lookup failed for "+authorID)
	}

	open := intField(vals[0], 0)
	capacity := intField(vals[1], r.defaultCapacity)
	away := intField(vals[2], 0) == 1

	return models.Availability{
		AuthorID:            authorID,
		OpenAssignmentCount: open,
		MaxCapacity:         capacity,
		Status:              models.DeriveStatus(away, open, capacity),
	}, nil
}

// intField parses an HMGET value, which is nil for a missing field
func intField(v interface{}, def int) int {
	s, ok := v.(string)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// Reserve implements Tracker
func (r *RedisTracker) Reserve(ctx context.Context, authorID string) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	res, err := reserveScript.Run(ctx, r.client, []string{r.key(authorID)}, r.defaultCapacity).Int64()
	if err != nil {
		return errors.AvailabilityUnavailable(err, "redis reserve failed for "+authorID)
	}

	switch res {
	case reserveAway:
		return errors.Overloadedf("%s is away", authorID)
	case reserveAtCapacity:
		return errors.Overloadedf("%s is at capacity", authorID)
	}
	r.logger.Debug("reserved", "author", authorID, "open", res)
	return nil
}

// Release implements Tracker
func (r *RedisTracker) Release(ctx context.Context, authorID string) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	res, err := releaseScript.Run(ctx, r.client, []string{r.key(authorID)}).Int64()
	if err != nil && !stderrors.Is(err, redis.Nil) {
		return errors.AvailabilityUnavailable(err, "redis release failed for "+authorID)
	}
	r.logger.Debug("released", "author", authorID, "open", res)
	return nil
}

// SetAway implements Admin
func (r *RedisTracker) SetAway(ctx context.Context, authorID string, away bool) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	v := 0
	if away {
		v = 1
	}
	if err := r.client.HSet(ctx, r.key(authorID), fieldAway, v).Err(); err != nil {
		return errors.AvailabilityUnavailable(err, "redis set away failed for "+authorID)
	}
	return nil
}

// SetCapacity implements Admin
func (r *RedisTracker) SetCapacity(ctx context.Context, authorID string, capacity int) error {
	if capacity < 0 {
		return errors.ValidationErrorf("capacity for %s must be non-negative, got %d", authorID, capacity)
	}
	ctx, cancel := r.bound(ctx)
	defer cancel()

	if err := r.client.HSet(ctx, r.key(authorID), fieldCapacity, capacity).Err(); err != nil {
		return errors.AvailabilityUnavailable(err, "redis set capacity failed for "+authorID)
	}
	return nil
}
