package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func TestRateLimitRepository_CountsWithinWindow(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "jail:ratelimit", TTL: time.Minute})

	ctx := context.Background()
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

	for _, at := range []time.Time{now.Add(-90 * time.Second), now.Add(-30 * time.Second), now, now} {
		if err := repo.RecordAttempt(ctx, "login:203.0.113.7", at); err != nil {
			t.Fatalf("RecordAttempt returned error: %v", err)
		}
	}

	count, err := repo.CountAttempts(ctx, "login:203.0.113.7", time.Minute, now)
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 attempts inside the window, got %d", count)
	}

	if ttl := server.TTL("jail:ratelimit:login:203.0.113.7"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected ttl within (0, 1m], got %v", ttl)
	}
}

func TestRateLimitRepository_TrimAndOldest(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "rl"})

	ctx := context.Background()
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	stale := now.Add(-2 * time.Minute)
	fresh := now.Add(-20 * time.Second)

	for _, at := range []time.Time{stale, fresh} {
		if err := repo.RecordAttempt(ctx, "register:203.0.113.7", at); err != nil {
			t.Fatalf("RecordAttempt returned error: %v", err)
		}
	}

	if err := repo.TrimWindow(ctx, "register:203.0.113.7", time.Minute, now); err != nil {
		t.Fatalf("TrimWindow returned error: %v", err)
	}
	if n, _ := client.ZCard(ctx, "rl:register:203.0.113.7").Result(); n != 1 {
		t.Fatalf("expected stale attempt to be trimmed, %d remain", n)
	}

	oldest, ok, err := repo.OldestAttempt(ctx, "register:203.0.113.7", time.Minute, now)
	if err != nil {
		t.Fatalf("OldestAttempt returned error: %v", err)
	}
	if !ok || !oldest.Equal(fresh) {
		t.Fatalf("expected oldest attempt %v, got %v (found=%v)", fresh, oldest, ok)
	}

	if _, _, err := repo.OldestAttempt(ctx, "register:203.0.113.7", 0, now); err == nil {
		t.Fatalf("expected error for non-positive window")
	}
}

func TestRateLimitRepository_OldestAttemptEmpty(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{})

	_, ok, err := repo.OldestAttempt(context.Background(), "login:nobody", time.Minute, time.Now())
	if err != nil {
		t.Fatalf("OldestAttempt returned error: %v", err)
	}
	if ok {
		t.Fatalf("expected no attempts")
	}
}
