package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/arklim/deadline-jail/internal/core/port"
)

var errInvalidWindow = errors.New("window must be positive")

// SlidingWindowConfig defines configuration for the sliding window limiter.
type SlidingWindowConfig struct {
	KeyPrefix string
	TTL       time.Duration
}

// RateLimitRepository persists credential endpoint attempts in Redis sorted sets scored by
// unix nanoseconds.
type RateLimitRepository struct {
	client *redis.Client
	cfg    SlidingWindowConfig
}

// NewRateLimitRepository constructs a repository using the provided Redis client and config.
func NewRateLimitRepository(client *redis.Client, cfg SlidingWindowConfig) *RateLimitRepository {
	return &RateLimitRepository{client: client, cfg: cfg}
}

// RecordAttempt adds an attempt at the given time and refreshes the key TTL atomically.
func (r *RateLimitRepository) RecordAttempt(ctx context.Context, identifier string, at time.Time) error {
	key := r.key(identifier)
	// Members are unique so concurrent attempts in the same nanosecond are all counted.
	member := redis.Z{
		Score:  float64(at.UnixNano()),
		Member: fmt.Sprintf("%d-%s", at.UnixNano(), uuid.NewString()),
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, member)
		if r.cfg.TTL > 0 {
			pipe.Expire(ctx, key, r.cfg.TTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis record attempt: %w", err)
	}
	return nil
}

// CountAttempts returns how many attempts occurred within the window ending at reference.
func (r *RateLimitRepository) CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	if window <= 0 {
		return 0, errInvalidWindow
	}

	min, max := scoreRange(window, reference)
	count, err := r.client.ZCount(ctx, r.key(identifier), min, max).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zcount: %w", err)
	}
	return int(count), nil
}

// TrimWindow removes attempts older than the window relative to reference.
func (r *RateLimitRepository) TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error {
	if window <= 0 {
		return errInvalidWindow
	}

	threshold := fmt.Sprintf("(%d", reference.Add(-window).UnixNano())
	if err := r.client.ZRemRangeByScore(ctx, r.key(identifier), "-inf", threshold).Err(); err != nil {
		return fmt.Errorf("redis zremrangebyscore: %w", err)
	}
	return nil
}

// OldestAttempt returns the oldest attempt remaining inside the active window.
func (r *RateLimitRepository) OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	if window <= 0 {
		return time.Time{}, false, errInvalidWindow
	}

	min, max := scoreRange(window, reference)
	values, err := r.client.ZRangeByScoreWithScores(ctx, r.key(identifier), &redis.ZRangeBy{
		Min:   min,
		Max:   max,
		Count: 1,
	}).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis zrangebyscore: %w", err)
	}
	if len(values) == 0 {
		return time.Time{}, false, nil
	}
	return time.Unix(0, int64(values[0].Score)), true, nil
}

func (r *RateLimitRepository) key(identifier string) string {
	if r.cfg.KeyPrefix == "" {
		return identifier
	}
	return r.cfg.KeyPrefix + ":" + identifier
}

func scoreRange(window time.Duration, reference time.Time) (string, string) {
	return fmt.Sprintf("%d", reference.Add(-window).UnixNano()), fmt.Sprintf("%d", reference.UnixNano())
}

var _ port.RateLimitStore = (*RateLimitRepository)(nil)
