// Package config loads the service configuration from config.toml and
// EDGESYNC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. EDGESYNC_DATABASE_PASSWORD.
const EnvPrefix = "EDGESYNC"

// Config holds all application configuration
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Event     EventConfig     `mapstructure:"event"`
	Log       LogConfig       `mapstructure:"log"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig names the running instance
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Port string `mapstructure:"port"`
}

// DatabaseConfig holds the edge store connection settings
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=postgres sqlite"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	SQLitePath      string        `mapstructure:"sqlite_path"` // file path or ":memory:"
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gt=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0,ltefield=MaxOpenConns"` // capped by max_open_conns
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// RedisConfig holds the shared Redis connection used by the redis backends
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig selects and tunes the entity cache backend
type CacheConfig struct {
	Type         string        `mapstructure:"type" validate:"oneof=memory redis badger"`
	MaxEntries   int           `mapstructure:"max_entries" validate:"gte=0"`
	TTL          time.Duration `mapstructure:"ttl"`
	TombstoneTTL time.Duration `mapstructure:"tombstone_ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	BadgerPath   string        `mapstructure:"badger_path"` // empty runs badger in memory
}

// SyncConfig tunes downlink processing
type SyncConfig struct {
	LockMode        string        `mapstructure:"lock_mode" validate:"oneof=kind sharded"`
	LockShards      int           `mapstructure:"lock_shards" validate:"gt=0"`
	LockTimeout     time.Duration `mapstructure:"lock_timeout"`
	ExecutorWorkers int           `mapstructure:"executor_workers" validate:"gt=0"`
	StageTimeout    time.Duration `mapstructure:"stage_timeout"`
	DispatchWorkers int           `mapstructure:"dispatch_workers" validate:"gt=0"`
	DedupeEnabled   bool          `mapstructure:"dedupe_enabled"`
	DedupeStore     string        `mapstructure:"dedupe_store" validate:"oneof=memory redis"`
	DedupeTTL       time.Duration `mapstructure:"dedupe_ttl"`
}

// EventConfig drives the uplink outbox processor
type EventConfig struct {
	ProcessorEnabled bool          `mapstructure:"processor_enabled"`
	BatchSize        int           `mapstructure:"batch_size" validate:"gt=0"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	MaxRetries       int           `mapstructure:"max_retries" validate:"gte=0"`
	CleanupEnabled   bool          `mapstructure:"cleanup_enabled"`
	CleanupRetention time.Duration `mapstructure:"cleanup_retention"`
	Sender           string        `mapstructure:"sender" validate:"oneof=log redis"`
	StreamPrefix     string        `mapstructure:"stream_prefix"`
	StreamMaxLen     int64         `mapstructure:"stream_max_len"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
	Output string `mapstructure:"output"` // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
	MaxBodySize    int64         `mapstructure:"max_body_size"`
	TrustedProxies []string      `mapstructure:"trusted_proxies"`
}

// TelemetryConfig holds OpenTelemetry export settings
type TelemetryConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	CollectorEndpoint string        `mapstructure:"collector_endpoint"` // OTLP gRPC, e.g. localhost:4317
	SamplingRatio     float64       `mapstructure:"sampling_ratio" validate:"gte=0,lte=1"`
	ServiceName       string        `mapstructure:"service_name"`
	Insecure          bool          `mapstructure:"insecure"`
	MetricsInterval   time.Duration `mapstructure:"metrics_interval"`
	DBTraceEnabled    bool          `mapstructure:"db_trace_enabled"`
	DBSlowQueryThresh time.Duration `mapstructure:"db_slow_query_threshold"`
	LogsEnabled       bool          `mapstructure:"logs_enabled"`
	LogsLevel         string        `mapstructure:"logs_level"`
}

// defaults holds every known key. A key must be listed here for its
// environment variable to be picked up.
var defaults = map[string]any{
	"app.name": "edgesync",
	"app.env":  "development",
	"app.port": "8080",

	"database.driver":             "postgres",
	"database.host":               "localhost",
	"database.port":               5432,
	"database.user":               "postgres",
	"database.password":           "",
	"database.dbname":             "edgesync",
	"database.sslmode":            "disable",
	"database.sqlite_path":        "edgesync.db",
	"database.auto_migrate":       false,
	"database.max_open_conns":     25,
	"database.max_idle_conns":     5,
	"database.conn_max_lifetime":  time.Hour,
	"database.conn_max_idle_time": 30 * time.Minute,

	"redis.host":     "localhost",
	"redis.port":     6379,
	"redis.password": "",
	"redis.db":       0,

	"cache.type":          "memory",
	"cache.max_entries":   100000,
	"cache.ttl":           time.Duration(0),
	"cache.tombstone_ttl": time.Hour,
	"cache.key_prefix":    "edgesync:cache:",
	"cache.badger_path":   "",

	"sync.lock_mode":        "kind",
	"sync.lock_shards":      64,
	"sync.lock_timeout":     30 * time.Second,
	"sync.executor_workers": 16,
	"sync.stage_timeout":    time.Minute,
	"sync.dispatch_workers": 4,
	"sync.dedupe_enabled":   false,
	"sync.dedupe_store":     "memory",
	"sync.dedupe_ttl":       24 * time.Hour,

	"event.processor_enabled": false,
	"event.batch_size":        100,
	"event.poll_interval":     5 * time.Second,
	"event.max_retries":       5,
	"event.cleanup_enabled":   false,
	"event.cleanup_retention": 7 * 24 * time.Hour,
	"event.sender":            "log",
	"event.stream_prefix":     "edgesync:uplink:",
	"event.stream_max_len":    10000,

	"log.level":  "info",
	"log.format": "console",
	"log.output": "stdout",

	"http.read_timeout":     15 * time.Second,
	"http.write_timeout":    15 * time.Second,
	"http.idle_timeout":     time.Minute,
	"http.max_header_bytes": 1 << 20,
	"http.max_body_size":    10 << 20,
	"http.trusted_proxies":  []string{},

	"telemetry.enabled":                 false,
	"telemetry.collector_endpoint":      "localhost:4317",
	"telemetry.sampling_ratio":          1.0,
	"telemetry.service_name":            "edgesync",
	"telemetry.insecure":                false,
	"telemetry.metrics_interval":        30 * time.Second,
	"telemetry.db_trace_enabled":        false,
	"telemetry.db_slow_query_threshold": 200 * time.Millisecond,
	"telemetry.logs_enabled":            false,
	"telemetry.logs_level":              "info",
}

// Load reads config.toml from the working directory or /app, then applies
// EDGESYNC_* environment overrides and validates the result.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("mapstructure")
	})
	return v
}

func (c *Config) validate() error {
	if err := structValidator.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			return describe(fieldErrs[0])
		}
		return err
	}

	if c.App.Env != "production" {
		return nil
	}
	postgres := c.Database.Driver == "postgres"
	switch {
	case postgres && c.Database.Password == "":
		return errors.New("database.password is required in production")
	case postgres && c.Database.SSLMode == "disable":
		return errors.New("database.sslmode cannot be 'disable' in production")
	case c.Sync.DedupeEnabled && c.Sync.DedupeStore == "memory":
		return errors.New("sync.dedupe_store=memory is not shared between nodes; use redis in production")
	}
	return nil
}

// describe turns a failed struct rule into a message naming the config key.
func describe(fe validator.FieldError) error {
	key := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "oneof":
		return fmt.Errorf("%s must be one of [%s], got %q", key, fe.Param(), fe.Value())
	case "ltefield":
		return fmt.Errorf("%s (%v) cannot exceed %s", key, fe.Value(), fe.Param())
	case "gt":
		return fmt.Errorf("%s must be greater than %s", key, fe.Param())
	default:
		return fmt.Errorf("%s fails %s=%s, got %v", key, fe.Tag(), fe.Param(), fe.Value())
	}
}

// DSN returns the connection string for the configured driver, with
// credentials escaped.
func (d *DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.SQLitePath
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     d.DBName,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}
