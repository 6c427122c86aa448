package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "JAIL"

// Storage drivers accepted by storage.driver.
const (
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Storage   StorageSettings   `mapstructure:"storage"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	JWT       JWTSettings       `mapstructure:"jwt"`
	GRPC      GRPCSettings      `mapstructure:"grpc"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
	Password  PasswordSettings  `mapstructure:"password"`
}

type AppSettings struct {
	Name           string   `mapstructure:"name"`
	Env            string   `mapstructure:"env"`
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type GRPCSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// StorageSettings selects the persistence backend.
type StorageSettings struct {
	Driver     string `mapstructure:"driver"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures the Redis connection backing rate limits.
type RedisSettings struct {
	Enabled    bool   `mapstructure:"enabled"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
	KeyPrefix  string `mapstructure:"key_prefix"`
}

// KafkaSettings configures the domain event producer. No brokers means events are only logged.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

// RateLimitSettings configures the sliding window on the credential endpoints.
type RateLimitSettings struct {
	WindowDuration      time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts    int           `mapstructure:"login_max_attempts"`
	RegisterMaxAttempts int           `mapstructure:"register_max_attempts"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

// PasswordSettings configures the registration password policy.
type PasswordSettings struct {
	MinLength      int `mapstructure:"min_length"`
	MinZxcvbnScore int `mapstructure:"min_zxcvbn_score"`
}

type JWTSettings struct {
	KeyDirectory   string        `mapstructure:"key_directory"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

type TelemetrySettings struct {
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

// Validate rejects combinations the service cannot start with.
func (c *AppConfig) Validate() error {
	switch c.Storage.Driver {
	case StorageSQLite:
		if strings.TrimSpace(c.Storage.SQLitePath) == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite driver")
		}
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if c.App.Port <= 0 {
		return fmt.Errorf("app.port must be positive")
	}
	if c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("rate_limit.window_duration must be positive")
	}
	return nil
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.allowed_origins",
		"storage.driver",
		"storage.sqlite_path",
		"grpc.enabled",
		"grpc.host",
		"grpc.port",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.enabled",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.key_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"jwt.key_directory",
		"jwt.access_token_ttl",
		"telemetry.tracing_enabled",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"rate_limit.window_duration",
		"rate_limit.login_max_attempts",
		"rate_limit.register_max_attempts",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
		"password.min_length",
		"password.min_zxcvbn_score",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	cfg.App.AllowedOrigins = splitList(cfg.App.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "deadline-jail")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.allowed_origins", []string{"http://localhost:5173"})

	v.SetDefault("storage.driver", StorageSQLite)
	v.SetDefault("storage.sqlite_path", "./data/deadline-jail.db")

	v.SetDefault("grpc.enabled", true)
	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50051)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "jail")
	v.SetDefault("postgres.password", "jail_password")
	v.SetDefault("postgres.database", "deadline_jail")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.key_prefix", "jail:ratelimit")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "jail")

	v.SetDefault("jwt.key_directory", "./secrets")
	v.SetDefault("jwt.access_token_ttl", "1h")

	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	v.SetDefault("telemetry.service_name", "deadline-jail")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.login_max_attempts", 5)
	v.SetDefault("rate_limit.register_max_attempts", 3)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("password.min_length", 8)
	v.SetDefault("password.min_zxcvbn_score", 2)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envPrefix+"_"+envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}

// splitList flattens comma separated entries coming from a single environment variable.
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
