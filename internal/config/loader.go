package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "content-agent.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// CONTENT_CONFIG overrides the YAML path. A .env file in the working
// directory is loaded into the environment first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	path := DefaultConfigFile
	if v := os.Getenv("CONTENT_CONFIG"); v != "" {
		path = v
	}
	return LoadFrom(path)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
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

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
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
	setString(&cfg.Server.Port, "CONTENT_PORT")
	setDuration(&cfg.Server.ShutdownTimeout, "CONTENT_SHUTDOWN_TIMEOUT")
	setString(&cfg.Logging.Level, "CONTENT_LOG_LEVEL")
	setString(&cfg.Logging.Service, "CONTENT_LOG_SERVICE")

	setString(&cfg.Store.Backend, "CONTENT_STORE_BACKEND")
	setString(&cfg.Store.Dir, "CONTENT_STORE_DIR")
	setString(&cfg.Store.KeyPrefix, "CONTENT_STORE_KEY_PREFIX")
	setString(&cfg.Store.Bucket, "CONTENT_STORE_BUCKET")
	setDuration(&cfg.Store.CacheTTL, "CONTENT_STORE_CACHE_TTL")
	setInt64(&cfg.Store.CacheMaxBytes, "CONTENT_STORE_CACHE_MAX_BYTES")

	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setString(&cfg.Redis.QueueKey, "REDIS_QUEUE_KEY")
	setString(&cfg.Redis.ProcessingKey, "REDIS_PROCESSING_KEY")

	setString(&cfg.NATS.URL, "NATS_URL")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "CONTENT_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "CONTENT_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "CONTENT_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "CONTENT_PG_MAX_CONN_IDLE_TIME")

	setString(&cfg.LLM.Provider, "CONTENT_LLM_PROVIDER")
	setString(&cfg.LLM.APIKey, "ANTHROPIC_API_KEY")
	setString(&cfg.LLM.BaseURL, "ANTHROPIC_BASE_URL")
	setString(&cfg.LLM.Model, "CONTENT_LLM_MODEL")
	setInt(&cfg.LLM.MaxTokens, "CONTENT_LLM_MAX_TOKENS")
	setDuration(&cfg.LLM.Timeout, "CONTENT_LLM_TIMEOUT")

	setInt(&cfg.Breaker.MaxFailures, "CONTENT_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "CONTENT_BREAKER_TIMEOUT")

	setDuration(&cfg.Orchestrator.AgentDelay, "CONTENT_AGENT_DELAY")
	setDuration(&cfg.Orchestrator.AgentTimeout, "CONTENT_AGENT_TIMEOUT")
	setDuration(&cfg.Orchestrator.JobTimeout, "CONTENT_JOB_TIMEOUT")

	setString(&cfg.Dispatch.Mode, "CONTENT_DISPATCH_MODE")
	setInt(&cfg.Dispatch.Workers, "CONTENT_WORKERS")

	setDuration(&cfg.Stream.Interval, "CONTENT_STREAM_INTERVAL")
	setDuration(&cfg.Stream.MaxDuration, "CONTENT_STREAM_MAX_DURATION")

	setBool(&cfg.Cleanup.Enabled, "CONTENT_CLEANUP_ENABLED")
	setDuration(&cfg.Cleanup.Retention, "CONTENT_CLEANUP_RETENTION")
	setDuration(&cfg.Cleanup.Interval, "CONTENT_CLEANUP_INTERVAL")
}

// validate checks that required fields are set and enums are known.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}

	switch cfg.Store.Backend {
	case "memory":
	case "filesystem":
		if cfg.Store.Dir == "" {
			return errors.New("store.dir is required for the filesystem backend")
		}
	case "redis":
		if cfg.Redis.Addr == "" {
			return errors.New("redis.addr is required for the redis backend")
		}
	case "natskv":
		if cfg.NATS.URL == "" {
			return errors.New("nats.url is required for the natskv backend")
		}
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required for the postgres backend")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	default:
		return fmt.Errorf("store.backend %q is not supported", cfg.Store.Backend)
	}

	switch cfg.LLM.Provider {
	case "mock":
	case "anthropic":
		if cfg.LLM.APIKey == "" {
			return errors.New("ANTHROPIC_API_KEY is required for the anthropic provider")
		}
	default:
		return fmt.Errorf("llm.provider %q is not supported", cfg.LLM.Provider)
	}
	if cfg.LLM.MaxTokens < 1 {
		return errors.New("llm.max_tokens must be >= 1")
	}

	switch cfg.Dispatch.Mode {
	case "inline":
	case "queue":
		if cfg.Redis.Addr == "" {
			return errors.New("redis.addr is required for queue dispatch")
		}
		if cfg.Store.Backend == "memory" {
			return errors.New("store.backend memory is per process and cannot be shared with queue workers")
		}
	default:
		return fmt.Errorf("dispatch.mode %q is not supported", cfg.Dispatch.Mode)
	}

	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Stream.Interval <= 0 {
		return errors.New("stream.interval must be > 0")
	}
	if cfg.Cleanup.Enabled && (cfg.Cleanup.Retention <= 0 || cfg.Cleanup.Interval <= 0) {
		return errors.New("cleanup.retention and cleanup.interval must be > 0")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
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

var dsnPassword = regexp.MustCompile(`://([^:/?#]+):([^@/]+)@`)

// RedactDSN masks the password of a URL-style DSN for logging.
func RedactDSN(dsn string) string {
	return dsnPassword.ReplaceAllString(dsn, `://$1:****@`)
}
