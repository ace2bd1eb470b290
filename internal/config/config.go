// Package config handles configuration loading for hostline-siem.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"hostline-siem/internal/alertstore"
	"hostline-siem/internal/archive"
	"hostline-siem/internal/detect"
	"hostline-siem/internal/fim"
	"hostline-siem/internal/intel"
	"hostline-siem/internal/logsource"
	"hostline-siem/internal/notify"
)

// Config holds the complete application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Detection DetectionConfig `yaml:"detection"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Storage   StorageConfig   `yaml:"storage"`
	Intel     intel.Config    `yaml:"intel"`
	FIM       FIMConfig       `yaml:"fim"`
	Notify    notify.Config   `yaml:"notify"`
	Archive   archive.Config  `yaml:"archive"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	HTTPPort     int           `yaml:"http_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DetectionConfig holds detection pipeline settings.
type DetectionConfig struct {
	Source   logsource.DirConfig `yaml:"source"`
	RuleFile string              `yaml:"rule_file"`
	Window   WindowConfig        `yaml:"window"`
}

// WindowConfig holds window detector settings.
type WindowConfig struct {
	// Clock selects the attempt timestamp source: "wall" or "line".
	Clock string `yaml:"clock"`

	// State selects where attempt history lives: "run" or "redis".
	State string `yaml:"state"`

	Redis detect.RedisConfig `yaml:"redis"`
}

// Detect converts the window settings into the detector's configuration.
func (w WindowConfig) Detect() detect.WindowConfig {
	return detect.WindowConfig{
		Clock: detect.Clock(w.Clock),
		State: w.State,
	}
}

// LifecycleConfig holds alert lifecycle settings.
type LifecycleConfig struct {
	// Strict restricts status transitions to
	// open -> acknowledged -> closed and open -> closed.
	Strict bool `yaml:"strict"`
}

// StorageConfig selects and configures the alert store backend.
type StorageConfig struct {
	// Backend is "memory" or "clickhouse".
	Backend    string                      `yaml:"backend"`
	ClickHouse alertstore.ClickHouseConfig `yaml:"clickhouse"`
}

// FIMConfig holds file integrity monitoring settings.
type FIMConfig struct {
	Enabled bool       `yaml:"enabled"`
	Agent   fim.Config `yaml:",inline"`
}

// RateLimitConfig holds rate limiting settings.
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RequestsPerIP int           `yaml:"requests_per_ip"`
	WindowSize    time.Duration `yaml:"window_size"`
	CleanupPeriod time.Duration `yaml:"cleanup_period"`
	ExemptPaths   []string      `yaml:"exempt_paths"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:     8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Detection: DetectionConfig{
			Source: logsource.DefaultDirConfig(),
			Window: WindowConfig{
				Clock: "wall",
				State: "run",
				Redis: detect.DefaultRedisConfig(),
			},
		},
		Storage: StorageConfig{
			Backend:    "memory",
			ClickHouse: alertstore.DefaultClickHouseConfig(),
		},
		Intel: intel.DefaultConfig(),
		FIM: FIMConfig{
			Enabled: false,
			Agent:   fim.DefaultConfig(),
		},
		Notify: notify.Config{
			Kafka:     notify.DefaultKafkaConfig(),
			LogAlerts: true,
		},
		Archive: archive.DefaultConfig(),
		RateLimit: RateLimitConfig{
			Enabled:       true,
			RequestsPerIP: 1000,
			WindowSize:    time.Minute,
			CleanupPeriod: 5 * time.Minute,
			ExemptPaths:   []string{"/health"},
		},
	}
}

// Load loads configuration from a file or returns defaults. The file path
// comes from SIEM_CONFIG_PATH, falling back to configs/config.yaml; a
// missing file is not an error.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := os.Getenv("SIEM_CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if port := os.Getenv("SIEM_HTTP_PORT"); port != "" {
		fmt.Sscanf(port, "%d", &c.Server.HTTPPort)
	}

	if level := os.Getenv("SIEM_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if dir := os.Getenv("SIEM_LOG_DIR"); dir != "" {
		c.Detection.Source.Dir = dir
	}

	if backend := os.Getenv("SIEM_STORAGE_BACKEND"); backend != "" {
		c.Storage.Backend = backend
	}

	if host := os.Getenv("CLICKHOUSE_HOST"); host != "" {
		c.Storage.ClickHouse.Hosts = []string{host}
	}

	if db := os.Getenv("CLICKHOUSE_DATABASE"); db != "" {
		c.Storage.ClickHouse.Database = db
	}

	if user := os.Getenv("CLICKHOUSE_USER"); user != "" {
		c.Storage.ClickHouse.Username = user
	}

	if pass := os.Getenv("CLICKHOUSE_PASSWORD"); pass != "" {
		c.Storage.ClickHouse.Password = pass
	}

	if addr := os.Getenv("SIEM_REDIS_ADDR"); addr != "" {
		c.Detection.Window.Redis.Addr = addr
		c.Detection.Window.State = "redis"
	}

	if enabled := os.Getenv("SIEM_RATELIMIT_ENABLED"); enabled == "false" {
		c.RateLimit.Enabled = false
	}

	if rps := os.Getenv("SIEM_RATELIMIT_RPS"); rps != "" {
		fmt.Sscanf(rps, "%d", &c.RateLimit.RequestsPerIP)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.Server.HTTPPort)
	}

	switch c.Storage.Backend {
	case "memory", "clickhouse":
	default:
		return fmt.Errorf("invalid storage backend: %q", c.Storage.Backend)
	}

	switch detect.Clock(c.Detection.Window.Clock) {
	case detect.ClockWall, detect.ClockLine, "":
	default:
		return fmt.Errorf("invalid window clock: %q", c.Detection.Window.Clock)
	}

	switch c.Detection.Window.State {
	case "run", "redis", "":
	default:
		return fmt.Errorf("invalid window state: %q", c.Detection.Window.State)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerIP <= 0 {
		return fmt.Errorf("requests_per_ip must be positive")
	}

	return nil
}
