package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Sampling SamplingConfig `mapstructure:"sampling"`
	Tracker  TrackerConfig  `mapstructure:"tracker"`
	UsageLog UsageLogConfig `mapstructure:"usage_log"`
	Report   ReportConfig   `mapstructure:"report"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Console  ConsoleConfig  `mapstructure:"console"`
}

// SamplingConfig controls how often and how the focused window is queried
type SamplingConfig struct {
	Interval           string `mapstructure:"interval"`
	MinDurationSeconds int    `mapstructure:"min_duration_seconds"`
	CommandTimeout     string `mapstructure:"command_timeout"`
	MaxAppNameLength   int    `mapstructure:"max_app_name_length"`
	PIDCacheSize       int    `mapstructure:"pid_cache_size"`
}

// TrackerConfig defines aggregation and shutdown behaviour
type TrackerConfig struct {
	MaxApps       int    `mapstructure:"max_apps"`
	OverflowLabel string `mapstructure:"overflow_label"`
	FlushOnExit   bool   `mapstructure:"flush_on_exit"`
}

// UsageLogConfig defines the durable append-only interval log
type UsageLogConfig struct {
	Path            string `mapstructure:"path"`
	RetryMaxElapsed string `mapstructure:"retry_max_elapsed"`
	Sync            bool   `mapstructure:"sync"`
}

// ReportConfig defines the rendered usage report
type ReportConfig struct {
	Path       string `mapstructure:"path"`
	Title      string `mapstructure:"title"`
	ChartJSURL string `mapstructure:"chart_js_url"`
	FailFatal  bool   `mapstructure:"fail_fatal"`
}

// RedisConfig defines the optional Redis stream mirror of the usage log
type RedisConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Addr        string `mapstructure:"addr"`
	Password    string `mapstructure:"password"`
	DB          int    `mapstructure:"db"`
	Stream      string `mapstructure:"stream"`
	MaxLen      int64  `mapstructure:"max_len"`
	DialTimeout string `mapstructure:"dial_timeout"`
}

// MetricsConfig defines the prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// ConsoleConfig defines the operator-facing transition output
type ConsoleConfig struct {
	Color bool `mapstructure:"color"`
}

// ErrNoConfigFile is returned by Load when an explicitly requested file does not exist.
var ErrNoConfigFile = errors.New("config: file not found")

// Load loads configuration from file and environment variables.
// An empty path means defaults plus environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	v.SetEnvPrefix("FOCUSTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrNoConfigFile, configPath)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns the configuration used when no file or environment overrides exist.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// SetDefaults sets default configuration values
func SetDefaults(v *viper.Viper) {
	// Sampling defaults
	v.SetDefault("sampling.interval", "1s")
	v.SetDefault("sampling.min_duration_seconds", 1)
	v.SetDefault("sampling.command_timeout", "2s")
	v.SetDefault("sampling.max_app_name_length", 128)
	v.SetDefault("sampling.pid_cache_size", 256)

	// Tracker defaults
	v.SetDefault("tracker.max_apps", 100)
	v.SetDefault("tracker.overflow_label", "Other")
	v.SetDefault("tracker.flush_on_exit", false)

	// Usage log defaults
	v.SetDefault("usage_log.path", "log.csv")
	v.SetDefault("usage_log.retry_max_elapsed", "5s")
	v.SetDefault("usage_log.sync", true)

	// Report defaults
	v.SetDefault("report.path", "report.html")
	v.SetDefault("report.title", "App Usage Time Distribution (seconds)")
	v.SetDefault("report.chart_js_url", "https://cdn.jsdelivr.net/npm/chart.js")
	v.SetDefault("report.fail_fatal", true)

	// Redis mirror defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "focustrack:intervals")
	v.SetDefault("redis.max_len", 10000)
	v.SetDefault("redis.dial_timeout", "5s")

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", "127.0.0.1:9464")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)

	// Console defaults
	v.SetDefault("console.color", true)
}

// validate validates the configuration
func validate(cfg *Config) error {
	interval, err := time.ParseDuration(cfg.Sampling.Interval)
	if err != nil {
		return fmt.Errorf("invalid sampling interval %q: %w", cfg.Sampling.Interval, err)
	}
	if interval <= 0 {
		return fmt.Errorf("sampling interval must be positive: %s", cfg.Sampling.Interval)
	}
	if _, err := time.ParseDuration(cfg.Sampling.CommandTimeout); err != nil {
		return fmt.Errorf("invalid sampling command timeout %q: %w", cfg.Sampling.CommandTimeout, err)
	}
	if cfg.Sampling.MinDurationSeconds < 0 {
		return fmt.Errorf("min_duration_seconds must not be negative: %d", cfg.Sampling.MinDurationSeconds)
	}
	if cfg.Sampling.MaxAppNameLength <= 0 {
		return fmt.Errorf("max_app_name_length must be positive: %d", cfg.Sampling.MaxAppNameLength)
	}

	if cfg.Tracker.MaxApps < 0 {
		return fmt.Errorf("tracker max_apps must not be negative: %d", cfg.Tracker.MaxApps)
	}
	if cfg.Tracker.MaxApps > 0 && strings.TrimSpace(cfg.Tracker.OverflowLabel) == "" {
		return fmt.Errorf("tracker overflow_label is required when max_apps is set")
	}

	if cfg.UsageLog.Path == "" {
		return fmt.Errorf("usage log path is required")
	}
	if _, err := time.ParseDuration(cfg.UsageLog.RetryMaxElapsed); err != nil {
		return fmt.Errorf("invalid usage log retry_max_elapsed %q: %w", cfg.UsageLog.RetryMaxElapsed, err)
	}

	if cfg.Report.Path == "" {
		return fmt.Errorf("report path is required")
	}
	if filepath.Clean(cfg.Report.Path) == filepath.Clean(cfg.UsageLog.Path) {
		return fmt.Errorf("report path and usage log path must differ")
	}

	if cfg.Redis.Enabled {
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("redis addr is required when redis is enabled")
		}
		if cfg.Redis.Stream == "" {
			return fmt.Errorf("redis stream is required when redis is enabled")
		}
		if _, err := time.ParseDuration(cfg.Redis.DialTimeout); err != nil {
			return fmt.Errorf("invalid redis dial_timeout %q: %w", cfg.Redis.DialTimeout, err)
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		return fmt.Errorf("metrics addr is required when metrics are enabled")
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging format: %s (must be json or text)", cfg.Logging.Format)
	}

	// Ensure output directories exist
	for _, p := range []string{cfg.UsageLog.Path, cfg.Report.Path} {
		dir := filepath.Dir(p)
		if dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// SamplingInterval returns the parsed tick period
func (c *Config) SamplingInterval() time.Duration {
	return ParseDuration(c.Sampling.Interval, time.Second)
}

// ParseDuration parses a duration string with a fallback
func ParseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
