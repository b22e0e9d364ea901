package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Backend    BackendConfig    `yaml:"backend"`
	Stream     StreamConfig     `yaml:"stream"`
	Polling    PollingConfig    `yaml:"polling"`
	Display    DisplayConfig    `yaml:"display"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Log        LogConfig        `yaml:"log"`
}

// WorkerPoolConfig holds the configuration for the call announcement worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	Enabled    bool   `yaml:"enabled"`
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// ServerConfig holds the local screen API configuration.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	RequestIPHeader string        `yaml:"request_ip_header"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds"`
	CacheTTL        time.Duration `yaml:"-"`
}

// BackendConfig describes the franchise REST API this session consumes.
type BackendConfig struct {
	BaseURL        string            `yaml:"base_url"`
	StoreID        string            `yaml:"store_id"`
	Headers        map[string]string `yaml:"headers"`
	HTTPProxy      string            `yaml:"http_proxy"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	Timeout        time.Duration     `yaml:"-"`
}

// StreamConfig configures the server-push connection.
type StreamConfig struct {
	// Channel defaults to the store id.
	Channel           string        `yaml:"channel"`
	Role              string        `yaml:"role"`
	ReconnectDelayMS  int           `yaml:"reconnect_delay_ms"`
	ReconnectJitterMS int           `yaml:"reconnect_jitter_ms"`
	ReconnectDelay    time.Duration `yaml:"-"`
	ReconnectJitter   time.Duration `yaml:"-"`
}

// PollingConfig configures the snapshot fallback used while the stream is down.
type PollingConfig struct {
	IntervalMS int           `yaml:"interval_ms"`
	Interval   time.Duration `yaml:"-"`
}

// DisplayConfig holds how timestamps and the called window are shown.
type DisplayConfig struct {
	Timezone string         `yaml:"timezone"`
	Location *time.Location `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration. A DSN starting
// with "file:" or ending in ".db" selects sqlite.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// IsSQLite reports whether the DSN names a sqlite database.
func (d DatabaseConfig) IsSQLite() bool {
	return strings.HasPrefix(d.DSN, "file:") || strings.HasSuffix(d.DSN, ".db")
}

// LogConfig selects the zap configuration.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	cfg.Backend.BaseURL = strings.TrimRight(cfg.Backend.BaseURL, "/")
	if cfg.Backend.TimeoutSeconds <= 0 {
		cfg.Backend.TimeoutSeconds = 30
	}
	cfg.Backend.Timeout = time.Duration(cfg.Backend.TimeoutSeconds) * time.Second

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 5
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 10
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 2
	}
	cfg.Server.CacheTTL = time.Duration(cfg.Server.CacheTTLSeconds) * time.Second

	if cfg.Stream.Channel == "" {
		cfg.Stream.Channel = cfg.Backend.StoreID
	}
	if cfg.Stream.Role == "" {
		cfg.Stream.Role = "admin"
	}
	if cfg.Stream.ReconnectDelayMS <= 0 {
		cfg.Stream.ReconnectDelayMS = 5000
	}
	if cfg.Stream.ReconnectJitterMS < 0 {
		cfg.Stream.ReconnectJitterMS = 0
	}
	cfg.Stream.ReconnectDelay = time.Duration(cfg.Stream.ReconnectDelayMS) * time.Millisecond
	cfg.Stream.ReconnectJitter = time.Duration(cfg.Stream.ReconnectJitterMS) * time.Millisecond

	if cfg.Polling.IntervalMS <= 0 {
		cfg.Polling.IntervalMS = 20000
	}
	cfg.Polling.Interval = time.Duration(cfg.Polling.IntervalMS) * time.Millisecond

	if cfg.Display.Timezone == "" {
		cfg.Display.Timezone = "Local"
	}
	loc, err := time.LoadLocation(cfg.Display.Timezone)
	if err != nil {
		return fmt.Errorf("failed to load timezone %q: %w", cfg.Display.Timezone, err)
	}
	cfg.Display.Location = loc

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "file:waitboard.db"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		cfg.WorkerPool.Size = 1
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	return nil
}
