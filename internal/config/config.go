// Package config loads and validates scraper configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/ai-news-scraper/internal/storage/local"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Auth      AuthConfig       `mapstructure:"auth"`
	Logging   LoggingConfig    `mapstructure:"logging"`
	Scraper   ScraperConfig    `mapstructure:"scraper"`
	Progress  ProgressConfig   `mapstructure:"progress"`
	Storage   StorageConfig    `mapstructure:"storage"`
	Raw       RawConfig        `mapstructure:"raw"`
	Database  DatabaseConfig   `mapstructure:"database"`
	PubSub    PubSubConfig     `mapstructure:"pubsub"`
	Schedules []ScheduleConfig `mapstructure:"schedules"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	WSPingInterval  time.Duration `mapstructure:"ws_ping_interval"`
}

// Addr returns host:port for http.Server.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ScraperConfig governs fetching, retries, and request limits.
type ScraperConfig struct {
	UserAgent        string            `mapstructure:"user_agent"`
	RateLimit        float64           `mapstructure:"rate_limit"`
	Burst            int               `mapstructure:"burst"`
	RequestTimeout   time.Duration     `mapstructure:"request_timeout"`
	PersistTimeout   time.Duration     `mapstructure:"persist_timeout"`
	MaxRetries       int               `mapstructure:"max_retries"`
	BackoffInitialMs int               `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int               `mapstructure:"backoff_max_ms"`
	DefaultMaxPages  int               `mapstructure:"default_max_pages"`
	MaxRange         int64             `mapstructure:"max_range"`
	BaseURLs         map[string]string `mapstructure:"base_urls"`
}

// BackoffInitial returns the first retry delay.
func (s ScraperConfig) BackoffInitial() time.Duration {
	return time.Duration(s.BackoffInitialMs) * time.Millisecond
}

// BackoffMax returns the retry delay cap.
func (s ScraperConfig) BackoffMax() time.Duration {
	return time.Duration(s.BackoffMaxMs) * time.Millisecond
}

// ProgressConfig tunes the progress hub and its sinks.
type ProgressConfig struct {
	ObserverBuffer int  `mapstructure:"observer_buffer"`
	BufferSize     int  `mapstructure:"buffer_size"`
	MaxBatchEvents int  `mapstructure:"batch"`
	MaxBatchWaitMs int  `mapstructure:"batch_wait_ms"`
	SinkTimeoutMs  int  `mapstructure:"sink_timeout_ms"`
	LogEnabled     bool `mapstructure:"log_enabled"`
	MetricsEnabled bool `mapstructure:"metrics_enabled"`
}

// StorageConfig selects the run and article store.
type StorageConfig struct {
	Backend string       `mapstructure:"backend"`
	SQLite  SQLiteConfig `mapstructure:"sqlite"`
}

// SQLiteConfig locates the embedded database.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RawConfig selects where raw article HTML is archived.
type RawConfig struct {
	Backend string       `mapstructure:"backend"`
	Bucket  string       `mapstructure:"bucket"`
	Prefix  string       `mapstructure:"prefix"`
	Local   local.Config `mapstructure:"local"`
}

// DatabaseConfig controls access to Postgres.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PubSubConfig holds metadata for run notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Enabled reports whether run notifications should be published.
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" && p.TopicName != ""
}

// ScheduleConfig is one cron-triggered run.
type ScheduleConfig struct {
	Name          string `mapstructure:"name"`
	Cron          string `mapstructure:"cron"`
	Source        string `mapstructure:"source"`
	ScrapeType    string `mapstructure:"scrape_type"`
	Mode          string `mapstructure:"mode"`
	MaxPages      int    `mapstructure:"max_pages"`
	ForceRescrape bool   `mapstructure:"force_rescrape"`
}

// Storage and raw archive backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"

	RawNone   = "none"
	RawMemory = "memory"
	RawLocal  = "local"
	RawGCS    = "gcs"
)

// legacyEnv maps keys onto environment names used by earlier deployments.
var legacyEnv = map[string]string{
	"database.dsn":        "DATABASE_URL",
	"server.host":         "SERVER_HOST",
	"server.port":         "SERVER_PORT",
	"scraper.rate_limit":  "SCRAPER_RATE_LIMIT",
	"scraper.max_retries": "SCRAPER_MAX_RETRIES",
}

// Load builds a Config from .env, disk, and the environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

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
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.request_timeout", 60*time.Second)
	v.SetDefault("server.ws_ping_interval", 30*time.Second)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("scraper.user_agent", "")
	v.SetDefault("scraper.rate_limit", 2.0)
	v.SetDefault("scraper.burst", 1)
	v.SetDefault("scraper.request_timeout", 30*time.Second)
	v.SetDefault("scraper.persist_timeout", 10*time.Second)
	v.SetDefault("scraper.max_retries", 3)
	v.SetDefault("scraper.backoff_initial_ms", 1000)
	v.SetDefault("scraper.backoff_max_ms", 30000)
	v.SetDefault("scraper.default_max_pages", 100)
	v.SetDefault("scraper.max_range", 50000)
	v.SetDefault("progress.observer_buffer", 64)
	v.SetDefault("progress.buffer_size", 4096)
	v.SetDefault("progress.batch", 100)
	v.SetDefault("progress.batch_wait_ms", 500)
	v.SetDefault("progress.sink_timeout_ms", 10000)
	v.SetDefault("progress.log_enabled", true)
	v.SetDefault("progress.metrics_enabled", true)
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.sqlite.path", "scraper.db")
	v.SetDefault("raw.backend", RawNone)
	v.SetDefault("raw.prefix", "raw")
	v.SetDefault("raw.local.base_dir", "data/raw")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return errors.New("auth.api_key must be set when auth is enabled")
	}
	if err := c.Scraper.validate(); err != nil {
		return err
	}
	if c.Progress.ObserverBuffer <= 0 {
		return errors.New("progress.observer_buffer must be > 0")
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for the postgres backend")
		}
	case BackendSQLite:
		if c.Storage.SQLite.Path == "" {
			return errors.New("storage.sqlite.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of memory, postgres, sqlite", c.Storage.Backend)
	}
	switch c.Raw.Backend {
	case RawNone, RawMemory:
	case RawLocal:
		if strings.TrimSpace(c.Raw.Local.BaseDir) == "" {
			return errors.New("raw.local.base_dir is required for the local raw backend")
		}
	case RawGCS:
		if c.Raw.Bucket == "" {
			return errors.New("raw.bucket is required for the gcs raw backend")
		}
	default:
		return fmt.Errorf("raw.backend %q is not one of none, memory, local, gcs", c.Raw.Backend)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return errors.New("pubsub.project_id and pubsub.topic_name must be set together")
	}
	seen := make(map[string]struct{}, len(c.Schedules))
	for i, s := range c.Schedules {
		if s.Name == "" || s.Cron == "" {
			return fmt.Errorf("schedules[%d] requires name and cron", i)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("schedules[%d]: duplicate name %q", i, s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return nil
}

func (s ScraperConfig) validate() error {
	switch {
	case s.RequestTimeout <= 0:
		return errors.New("scraper.request_timeout must be > 0")
	case s.RateLimit < 0:
		return errors.New("scraper.rate_limit must be >= 0")
	case s.MaxRetries <= 0:
		return errors.New("scraper.max_retries must be > 0")
	case s.BackoffInitialMs <= 0:
		return errors.New("scraper.backoff_initial_ms must be > 0")
	case s.BackoffMaxMs < s.BackoffInitialMs:
		return errors.New("scraper.backoff_max_ms must be >= scraper.backoff_initial_ms")
	case s.DefaultMaxPages <= 0:
		return errors.New("scraper.default_max_pages must be > 0")
	case s.MaxRange <= 0:
		return errors.New("scraper.max_range must be > 0")
	}
	return nil
}
