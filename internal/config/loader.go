package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "leadgate.yaml"

// DefaultEnvFile is loaded into the process environment before the overlay.
const DefaultEnvFile = ".env"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	if err := loadDotEnv(DefaultEnvFile); err != nil {
		return nil, fmt.Errorf("config dotenv: %w", err)
	}

	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// CLIFlags holds command-line overrides. Nil fields were not set and leave
// the loaded value alone.
type CLIFlags struct {
	ConfigPath *string
	Port       *string
	LogLevel   *string
	DSN        *string
	NatsURL    *string
	StoreDrv   *string
}

// LoadWithCLI loads defaults < YAML < ENV < CLI and returns the YAML path
// that was used.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	path := DefaultConfigFile
	if flags.ConfigPath != nil && *flags.ConfigPath != "" {
		path = *flags.ConfigPath
	}

	if err := loadDotEnv(DefaultEnvFile); err != nil {
		return nil, "", fmt.Errorf("config dotenv: %w", err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, path); err != nil {
		return nil, "", fmt.Errorf("config yaml: %w", err)
	}
	loadEnv(&cfg)
	applyCLI(&cfg, flags)

	if err := validate(&cfg); err != nil {
		return nil, "", fmt.Errorf("config validate: %w", err)
	}
	return &cfg, path, nil
}

func applyCLI(cfg *Config, f CLIFlags) {
	if f.Port != nil {
		cfg.Server.Port = *f.Port
	}
	if f.LogLevel != nil {
		cfg.Logging.Level = *f.LogLevel
	}
	if f.DSN != nil {
		cfg.Postgres.DSN = *f.DSN
	}
	if f.NatsURL != nil {
		cfg.NATS.URL = *f.NatsURL
	}
	if f.StoreDrv != nil {
		cfg.Store.Driver = *f.StoreDrv
	}
}

// loadDotEnv populates unset environment variables from path. Variables
// already present in the environment win. A missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil {
		slog.Debug("loaded env file", "path", path)
		return nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("read %s: %w", path, err)
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "LEADGATE_PORT")
	setString(&cfg.Server.CORSOrigin, "LEADGATE_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "LEADGATE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "LEADGATE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "LEADGATE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "LEADGATE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "LEADGATE_PG_HEALTH_CHECK")
	setString(&cfg.Store.Driver, "LEADGATE_STORE_DRIVER")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Stream, "LEADGATE_NATS_STREAM")
	setString(&cfg.AMQP.URL, "AMQP_URL")
	setString(&cfg.AMQP.Exchange, "LEADGATE_AMQP_EXCHANGE")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.Logging.Level, "LEADGATE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "LEADGATE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "LEADGATE_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "LEADGATE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "LEADGATE_BREAKER_TIMEOUT")

	// Queue
	setString(&cfg.Queue.Driver, "LEADGATE_QUEUE_DRIVER")
	setInt(&cfg.Queue.MaxDeliveries, "LEADGATE_QUEUE_MAX_DELIVERIES")
	setUint64(&cfg.Queue.RetryAttempts, "LEADGATE_QUEUE_RETRY_ATTEMPTS")
	setDuration(&cfg.Queue.BackoffBase, "LEADGATE_QUEUE_BACKOFF_BASE")
	setDuration(&cfg.Queue.BackoffMax, "LEADGATE_QUEUE_BACKOFF_MAX")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "LEADGATE_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2, "LEADGATE_CACHE_L2")
	setString(&cfg.Cache.L2Bucket, "LEADGATE_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.TTL, "LEADGATE_CACHE_TTL")

	// Access
	setList(&cfg.Access.PrivilegedUsers, "LEADGATE_PRIVILEGED_USERS")
	setList(&cfg.Access.PrivilegedRoles, "LEADGATE_PRIVILEGED_ROLES")
	setString(&cfg.Access.AgentRole, "LEADGATE_AGENT_ROLE")
	setString(&cfg.Access.TeamLeadRole, "LEADGATE_TEAM_LEAD_ROLE")
	setString(&cfg.Access.PipelineKey, "LEADGATE_PIPELINE_KEY")

	setInt(&cfg.Binder.ResyncConcurrency, "LEADGATE_RESYNC_CONCURRENCY")

	// OTEL
	setBool(&cfg.OTEL.Enabled, "LEADGATE_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "LEADGATE_OTEL_ENDPOINT")
	setBool(&cfg.OTEL.Insecure, "LEADGATE_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRate, "LEADGATE_OTEL_SAMPLE_RATE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	case "memory":
	default:
		return fmt.Errorf("store.driver must be postgres or memory, got %q", cfg.Store.Driver)
	}
	switch cfg.Queue.Driver {
	case "nats":
		if cfg.NATS.URL == "" {
			return errors.New("nats.url is required")
		}
	case "amqp":
		if cfg.AMQP.URL == "" {
			return errors.New("amqp.url is required")
		}
	default:
		return fmt.Errorf("queue.driver must be nats or amqp, got %q", cfg.Queue.Driver)
	}
	if cfg.Queue.MaxDeliveries < 1 {
		return errors.New("queue.max_deliveries must be >= 1")
	}
	if cfg.Queue.BackoffBase <= 0 {
		return errors.New("queue.backoff_base must be > 0")
	}
	if cfg.Queue.BackoffMax < cfg.Queue.BackoffBase {
		return errors.New("queue.backoff_max must be >= queue.backoff_base")
	}
	switch cfg.Cache.L2 {
	case "natskv", "none":
	case "redis":
		if cfg.Redis.URL == "" {
			return errors.New("redis.url is required when cache.l2 is redis")
		}
	default:
		return fmt.Errorf("cache.l2 must be natskv, redis or none, got %q", cfg.Cache.L2)
	}
	if cfg.Cache.L2 == "natskv" && cfg.NATS.URL == "" {
		return errors.New("nats.url is required when cache.l2 is natskv")
	}
	if cfg.Access.TeamLeadRole == "" || cfg.Access.AgentRole == "" {
		return errors.New("access.team_lead_role and access.agent_role are required")
	}
	if cfg.Binder.ResyncConcurrency < 1 {
		return errors.New("binder.resync_concurrency must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.OTEL.SampleRate < 0 || cfg.OTEL.SampleRate > 1 {
		return errors.New("otel.sample_rate must be within [0, 1]")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setList reads a comma-separated list. Blank entries are dropped.
func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
