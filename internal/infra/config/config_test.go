package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Name != "deadline-jail" {
		t.Fatalf("unexpected app name %q", cfg.App.Name)
	}
	if cfg.Storage.Driver != StorageSQLite {
		t.Fatalf("expected sqlite default, got %q", cfg.Storage.Driver)
	}
	if cfg.JWT.AccessTokenTTL != time.Hour {
		t.Fatalf("expected 1h token ttl, got %s", cfg.JWT.AccessTokenTTL)
	}
	if cfg.Redis.Enabled {
		t.Fatal("redis should be disabled by default")
	}
	if len(cfg.Kafka.Brokers) != 0 {
		t.Fatalf("expected no default brokers, got %v", cfg.Kafka.Brokers)
	}
	if cfg.Password.MinLength != 8 || cfg.Password.MinZxcvbnScore != 2 {
		t.Fatalf("unexpected password policy %+v", cfg.Password)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("JAIL_STORAGE_DRIVER", "memory")
	t.Setenv("JAIL_APP_PORT", "9999")
	t.Setenv("JAIL_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("JAIL_APP_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("JAIL_JWT_ACCESS_TOKEN_TTL", "30m")
	t.Setenv("JAIL_REDIS_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Storage.Driver != StorageMemory {
		t.Fatalf("expected memory driver, got %q", cfg.Storage.Driver)
	}
	if cfg.App.Port != 9999 {
		t.Fatalf("expected port 9999, got %d", cfg.App.Port)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
	if len(cfg.App.AllowedOrigins) != 2 {
		t.Fatalf("unexpected origins %v", cfg.App.AllowedOrigins)
	}
	if cfg.JWT.AccessTokenTTL != 30*time.Minute {
		t.Fatalf("expected 30m ttl, got %s", cfg.JWT.AccessTokenTTL)
	}
	if !cfg.Redis.Enabled {
		t.Fatal("expected redis to be enabled")
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("JAIL_STORAGE_DRIVER", "mongo")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown storage driver")
	}
}
