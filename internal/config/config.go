// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	DB      DBConfig      `mapstructure:"db"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Broker  BrokerConfig  `mapstructure:"broker"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	Storage StorageConfig `mapstructure:"storage"`
	Events  EventsConfig  `mapstructure:"events"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"base_url"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig locates the Redis instance backing the broker and cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// BrokerConfig names the shared job queue.
type BrokerConfig struct {
	Queue         string `mapstructure:"queue"`
	PopTimeoutSec int    `mapstructure:"pop_timeout_seconds"`
}

// CacheConfig bounds the lookup cache.
type CacheConfig struct {
	TTLSeconds int `mapstructure:"ttl_seconds"`
}

// WorkerConfig governs the worker pool and recovery sweep.
type WorkerConfig struct {
	Concurrency        int  `mapstructure:"concurrency"`
	MaxAttempts        int  `mapstructure:"max_attempts"`
	MetricsPort        int  `mapstructure:"metrics_port"`
	SweepIntervalSec   int  `mapstructure:"sweep_interval_seconds"`
	RunningStaleSec    int  `mapstructure:"running_stale_seconds"`
	PendingStaleSec    int  `mapstructure:"pending_stale_seconds"`
	HandlerTimeoutSec  int  `mapstructure:"handler_timeout_seconds"`
	BrokerBackoffMs    int  `mapstructure:"broker_backoff_ms"`
	ScreenshotsEnabled bool `mapstructure:"screenshots_enabled"`
}

// StorageConfig selects the blob backend for QR and screenshot images.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"` // gcs | local | memory
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// EventsConfig selects the analytics event publisher.
type EventsConfig struct {
	Provider  string `mapstructure:"provider"` // pubsub | memory | noop
	ProjectID string `mapstructure:"project_id"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// PopTimeout returns the bounded wait for a broker pop.
func (c BrokerConfig) PopTimeout() time.Duration {
	return time.Duration(c.PopTimeoutSec) * time.Second
}

// CacheTTL returns the lookup cache entry lifetime.
func (c CacheConfig) CacheTTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// SweepInterval returns the recovery sweep cadence.
func (c WorkerConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}

// RunningStaleAfter returns the staleness threshold for running jobs.
func (c WorkerConfig) RunningStaleAfter() time.Duration {
	return time.Duration(c.RunningStaleSec) * time.Second
}

// PendingStaleAfter returns the orphan threshold for pending jobs.
func (c WorkerConfig) PendingStaleAfter() time.Duration {
	return time.Duration(c.PendingStaleSec) * time.Second
}

// HandlerTimeout bounds a single handler invocation.
func (c WorkerConfig) HandlerTimeout() time.Duration {
	return time.Duration(c.HandlerTimeoutSec) * time.Second
}

// BrokerBackoff returns the wait after a broker or store error.
func (c WorkerConfig) BrokerBackoff() time.Duration {
	return time.Duration(c.BrokerBackoffMs) * time.Millisecond
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SHORTLOOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("broker.queue", "job_queue")
	v.SetDefault("broker.pop_timeout_seconds", 1)
	v.SetDefault("cache.ttl_seconds", 3600)
	v.SetDefault("worker.concurrency", 5)
	v.SetDefault("worker.max_attempts", 3)
	v.SetDefault("worker.metrics_port", 8080)
	v.SetDefault("worker.sweep_interval_seconds", 60)
	v.SetDefault("worker.running_stale_seconds", 300)
	v.SetDefault("worker.pending_stale_seconds", 120)
	v.SetDefault("worker.handler_timeout_seconds", 30)
	v.SetDefault("worker.broker_backoff_ms", 1000)
	v.SetDefault("worker.screenshots_enabled", true)
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.prefix", "artifacts")
	v.SetDefault("events.provider", "noop")
	v.SetDefault("logging.development", true)
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be positive")
	}
	if c.Worker.MaxAttempts <= 0 {
		return fmt.Errorf("worker.max_attempts must be positive")
	}
	if c.Broker.Queue == "" {
		return fmt.Errorf("broker.queue is required")
	}
	if c.Broker.PopTimeoutSec <= 0 {
		return fmt.Errorf("broker.pop_timeout_seconds must be positive")
	}
	switch c.Storage.Provider {
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.provider is gcs but storage.gcs_bucket is not set")
		}
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.provider is local but storage.local_dir is not set")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage provider %q", c.Storage.Provider)
	}
	switch c.Events.Provider {
	case "pubsub":
		if c.Events.ProjectID == "" {
			return fmt.Errorf("events.provider is pubsub but events.project_id is not set")
		}
	case "memory", "noop":
	default:
		return fmt.Errorf("unknown events provider %q", c.Events.Provider)
	}
	return nil
}
