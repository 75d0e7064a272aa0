package main

import (
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/goodtune/focustrack/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	validateDump bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  `Validate the focustrack configuration file and environment for syntax and semantic errors.`,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Dump full configuration with defaults highlighted")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	source := configPath
	if source == "" {
		source = "(defaults and environment)"
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "❌ Configuration validation failed: %v\n", err)
		return err
	}

	// Check for unknown keys (always, not just with --dump)
	var unknownKeys []string
	if configPath != "" {
		unknownKeys, err = findUnknownKeys(configPath)
		if err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "⚠️  Warning: Could not check for unknown keys: %v\n", err)
		}
	}

	_, _ = fmt.Fprintf(out, "✅ Configuration is valid: %s\n", source)

	// Warn about unknown keys
	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		_, _ = fmt.Fprintln(out)
		_, _ = red.Fprintf(out, "⚠️  WARNING: Found %d unknown configuration key(s):\n", len(unknownKeys))
		for _, key := range unknownKeys {
			_, _ = red.Fprintf(out, "   - %s\n", key)
		}
		_, _ = fmt.Fprintln(out, "\nThese keys will be ignored and may indicate typos or deprecated settings.")
	}

	// If dump requested, show full configuration with defaults highlighted
	if validateDump {
		_, _ = fmt.Fprintln(out, "\n"+strings.Repeat("=", 80))
		_, _ = fmt.Fprintln(out, "FULL CONFIGURATION (values different from defaults are highlighted)")
		_, _ = fmt.Fprintln(out, strings.Repeat("=", 80))

		dumpConfig(out, cfg, config.Default(), unknownKeys)
	}

	return nil
}

// findUnknownKeys loads the config file and checks for unknown keys
func findUnknownKeys(configPath string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	validKeys := getValidKeys()

	unknown := []string{}
	for _, key := range v.AllKeys() {
		if !validKeys[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)

	return unknown, nil
}

// getValidKeys returns a set of all valid configuration keys. Every key has
// a default, so the defaults double as the schema.
func getValidKeys() map[string]bool {
	v := viper.New()
	config.SetDefaults(v)

	keys := make(map[string]bool)
	for _, key := range v.AllKeys() {
		keys[key] = true
	}
	return keys
}

// dumpConfig dumps configuration with color highlighting for non-default values
func dumpConfig(out io.Writer, cfg, defaultCfg *config.Config, unknownKeys []string) {
	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan, color.Bold)

	field := func(name string, value, defaultValue interface{}) {
		dumpField(out, name, value, defaultValue, yellow, green)
	}

	// Sampling
	_, _ = cyan.Fprintln(out, "\n[sampling]")
	field("  interval", cfg.Sampling.Interval, defaultCfg.Sampling.Interval)
	field("  min_duration_seconds", cfg.Sampling.MinDurationSeconds, defaultCfg.Sampling.MinDurationSeconds)
	field("  command_timeout", cfg.Sampling.CommandTimeout, defaultCfg.Sampling.CommandTimeout)
	field("  max_app_name_length", cfg.Sampling.MaxAppNameLength, defaultCfg.Sampling.MaxAppNameLength)
	field("  pid_cache_size", cfg.Sampling.PIDCacheSize, defaultCfg.Sampling.PIDCacheSize)

	// Tracker
	_, _ = cyan.Fprintln(out, "\n[tracker]")
	field("  max_apps", cfg.Tracker.MaxApps, defaultCfg.Tracker.MaxApps)
	field("  overflow_label", cfg.Tracker.OverflowLabel, defaultCfg.Tracker.OverflowLabel)
	field("  flush_on_exit", cfg.Tracker.FlushOnExit, defaultCfg.Tracker.FlushOnExit)

	// Usage log
	_, _ = cyan.Fprintln(out, "\n[usage_log]")
	field("  path", cfg.UsageLog.Path, defaultCfg.UsageLog.Path)
	field("  retry_max_elapsed", cfg.UsageLog.RetryMaxElapsed, defaultCfg.UsageLog.RetryMaxElapsed)
	field("  sync", cfg.UsageLog.Sync, defaultCfg.UsageLog.Sync)

	// Report
	_, _ = cyan.Fprintln(out, "\n[report]")
	field("  path", cfg.Report.Path, defaultCfg.Report.Path)
	field("  title", cfg.Report.Title, defaultCfg.Report.Title)
	field("  chart_js_url", cfg.Report.ChartJSURL, defaultCfg.Report.ChartJSURL)
	field("  fail_fatal", cfg.Report.FailFatal, defaultCfg.Report.FailFatal)

	// Redis
	_, _ = cyan.Fprintln(out, "\n[redis]")
	field("  enabled", cfg.Redis.Enabled, defaultCfg.Redis.Enabled)
	field("  addr", cfg.Redis.Addr, defaultCfg.Redis.Addr)
	field("  password", redactPassword(cfg.Redis.Password), redactPassword(defaultCfg.Redis.Password))
	field("  db", cfg.Redis.DB, defaultCfg.Redis.DB)
	field("  stream", cfg.Redis.Stream, defaultCfg.Redis.Stream)
	field("  max_len", cfg.Redis.MaxLen, defaultCfg.Redis.MaxLen)
	field("  dial_timeout", cfg.Redis.DialTimeout, defaultCfg.Redis.DialTimeout)

	// Metrics
	_, _ = cyan.Fprintln(out, "\n[metrics]")
	field("  enabled", cfg.Metrics.Enabled, defaultCfg.Metrics.Enabled)
	field("  addr", cfg.Metrics.Addr, defaultCfg.Metrics.Addr)

	// Logging
	_, _ = cyan.Fprintln(out, "\n[logging]")
	field("  level", cfg.Logging.Level, defaultCfg.Logging.Level)
	field("  format", cfg.Logging.Format, defaultCfg.Logging.Format)
	field("  file", cfg.Logging.File, defaultCfg.Logging.File)
	field("  max_size_mb", cfg.Logging.MaxSizeMB, defaultCfg.Logging.MaxSizeMB)
	field("  max_backups", cfg.Logging.MaxBackups, defaultCfg.Logging.MaxBackups)
	field("  max_age_days", cfg.Logging.MaxAgeDays, defaultCfg.Logging.MaxAgeDays)

	// Console
	_, _ = cyan.Fprintln(out, "\n[console]")
	field("  color", cfg.Console.Color, defaultCfg.Console.Color)

	// Display unknown keys if any
	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)

		_, _ = cyan.Fprintln(out, "\n[UNKNOWN KEYS - These will be ignored!]")
		for _, key := range unknownKeys {
			_, _ = red.Fprintf(out, "  %s = (unknown key - check for typos)\n", key)
		}
	}

	_, _ = fmt.Fprintln(out, "\n"+strings.Repeat("=", 80))
}

// dumpField prints a field with color if it differs from default
func dumpField(out io.Writer, name string, value, defaultValue interface{}, modifiedColor, defaultColor *color.Color) {
	isDefault := reflect.DeepEqual(value, defaultValue)

	valueStr := fmt.Sprintf("%v", value)

	if isDefault {
		_, _ = defaultColor.Fprintf(out, "%s = %s\n", name, valueStr)
	} else {
		_, _ = modifiedColor.Fprintf(out, "%s = %s  (modified from default: %v)\n", name, valueStr, defaultValue)
	}
}

// redactPassword redacts password if not empty
func redactPassword(password string) string {
	if password == "" {
		return ""
	}
	return "***REDACTED***"
}
