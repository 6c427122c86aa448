package redis

import (
	"context"
	"strconv"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/deadline-jail/internal/infra/config"
)

func TestNewClientHealthCheck(t *testing.T) {
	server := miniredis.RunT(t)

	cfg := config.RedisSettings{Host: server.Host(), Port: mustPort(t, server), KeyPrefix: "jail:ratelimit"}
	client, err := NewClient(context.Background(), cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	defer client.Close()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
	if client.KeyPrefix() != "jail:ratelimit" {
		t.Fatalf("unexpected key prefix %q", client.KeyPrefix())
	}

	server.Close()
	if err := client.HealthCheck(context.Background()); err == nil {
		t.Fatalf("expected health check to fail once redis is gone")
	}
}

func TestNewClientUnreachable(t *testing.T) {
	server := miniredis.RunT(t)
	port := mustPort(t, server)
	server.Close()

	if _, err := NewClient(context.Background(), config.RedisSettings{Host: "127.0.0.1", Port: port}, nil); err == nil {
		t.Fatalf("expected ping failure for a closed server")
	}
}

func TestOptionsTLS(t *testing.T) {
	opts := Options(config.RedisSettings{Host: "cache", Port: 6380, TLSEnabled: true})
	if opts.Addr != "cache:6380" {
		t.Fatalf("unexpected addr %q", opts.Addr)
	}
	if opts.TLSConfig == nil {
		t.Fatalf("expected TLS config when enabled")
	}
}

func mustPort(t *testing.T, server *miniredis.Miniredis) int {
	t.Helper()
	port, err := strconv.Atoi(server.Port())
	if err != nil {
		t.Fatalf("parse miniredis port: %v", err)
	}
	return port
}
