package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/quartz"
	"github.com/goodtune/focustrack/internal/config"
	"github.com/goodtune/focustrack/internal/console"
	"github.com/goodtune/focustrack/internal/logging"
	"github.com/goodtune/focustrack/internal/metrics"
	"github.com/goodtune/focustrack/internal/report"
	"github.com/goodtune/focustrack/internal/sampler"
	"github.com/goodtune/focustrack/internal/systemd"
	"github.com/goodtune/focustrack/internal/usage"
	"github.com/goodtune/focustrack/internal/usagelog"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Start tracking foreground application usage",
	Long:  `Start sampling the focused application, logging usage intervals and updating the report.`,
	RunE:  runTrack,
}

func init() {
	rootCmd.AddCommand(trackCmd)
}

func runTrack(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger, logCloser := logging.Setup(cfg.Logging)
	defer func() { _ = logCloser.Close() }()
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting focustrack")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize usage log
	sink, err := openUsageLog(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize usage log: %w", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close usage log")
		}
	}()

	logger.Info().Str("path", cfg.UsageLog.Path).Msg("Usage log initialized")

	// Initialize window sampler
	focus, err := sampler.New(sampler.Config{
		CommandTimeout: config.ParseDuration(cfg.Sampling.CommandTimeout, sampler.DefaultCommandTimeout),
		MaxNameLength:  cfg.Sampling.MaxAppNameLength,
		PIDCacheSize:   cfg.Sampling.PIDCacheSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize sampler: %w", err)
	}

	publisher := report.NewPublisher(cfg.Report.Path, report.Options{
		Title:      cfg.Report.Title,
		ChartJSURL: cfg.Report.ChartJSURL,
	}, nil, logger)

	// Initialize Metrics Server
	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics.Addr, logger)

		ln, err := systemd.MetricsListener()
		if err != nil {
			return fmt.Errorf("failed to get systemd listeners: %w", err)
		}
		if ln != nil {
			logger.Info().Msg("Running with systemd socket activation")
			metricsServer.SetListener(ln)
		}

		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			if err := metricsServer.Stop(); err != nil {
				logger.Error().Err(err).Msg("Error stopping Metrics Server")
			}
		}()
	}

	// The watchdog is fed by tracker ticks, so a stalled sampler trips it.
	watchdog, err := systemd.NewWatchdog(quartz.NewReal(), logger)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to start systemd watchdog")
	} else if watchdog != nil {
		logger.Info().Msg("Systemd watchdog enabled")
	}

	printer := console.New(cmd.OutOrStdout(), cfg.Console.Color)
	tracker := usage.NewTracker(focus, sink, publisher, trackerConfig(cfg), logger,
		usage.WithAnnouncer(printer),
		usage.WithHeartbeat(watchdog.Beat),
	)

	printer.Banner(version, cfg.UsageLog.Path, cfg.Report.Path)

	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to notify systemd")
	}

	runErr := tracker.Run(ctx)

	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to notify systemd")
	}

	if runErr != nil {
		return fmt.Errorf("usage tracking stopped: %w", runErr)
	}

	logger.Info().
		Int("apps", tracker.Stats().Len()).
		Msg("focustrack stopped")
	return nil
}

// openUsageLog opens the CSV log and, when enabled, the Redis mirror. Only the
// CSV file is retried and fatal; the mirror is best effort.
func openUsageLog(cfg *config.Config, logger zerolog.Logger) (usagelog.Writer, error) {
	csvLog, err := usagelog.OpenCSV(cfg.UsageLog.Path, usagelog.CSVOptions{Sync: cfg.UsageLog.Sync})
	if err != nil {
		return nil, err
	}

	retryFor := config.ParseDuration(cfg.UsageLog.RetryMaxElapsed, 5*time.Second)
	writers := []usagelog.Writer{usagelog.WithRetry(csvLog, retryFor, logger)}

	if cfg.Redis.Enabled {
		mirror, err := usagelog.OpenRedis(cfg.Redis)
		if err != nil {
			_ = csvLog.Close()
			return nil, fmt.Errorf("failed to initialize redis mirror: %w", err)
		}
		logger.Info().
			Str("addr", cfg.Redis.Addr).
			Str("stream", cfg.Redis.Stream).
			Msg("Redis mirror initialized")
		writers = append(writers, usagelog.BestEffort(mirror, logger))
	}

	return usagelog.Multi(writers...), nil
}

func trackerConfig(cfg *config.Config) usage.Config {
	return usage.Config{
		Interval:           cfg.SamplingInterval(),
		MinDurationSeconds: uint64(cfg.Sampling.MinDurationSeconds),
		FlushOnExit:        cfg.Tracker.FlushOnExit,
		ReportFailFatal:    cfg.Report.FailFatal,
		Stats: usage.StatsConfig{
			MaxApps:       cfg.Tracker.MaxApps,
			OverflowLabel: usage.AppID(cfg.Tracker.OverflowLabel),
		},
	}
}
