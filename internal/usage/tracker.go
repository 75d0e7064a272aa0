package usage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/goodtune/focustrack/internal/metrics"
	"github.com/rs/zerolog"
)

// DefaultInterval is the sampling period
const DefaultInterval = time.Second

// Sampler reports the application currently holding focus. Implementations
// return SystemIdle rather than an error when the query fails.
type Sampler interface {
	CurrentForegroundApp(ctx context.Context) AppID
}

// LogWriter durably appends emitted intervals in emission order
type LogWriter interface {
	Append(ctx context.Context, interval UsageInterval) error
}

// ReportPublisher regenerates the visual summary from a full snapshot
type ReportPublisher interface {
	Publish(ctx context.Context, snapshot Snapshot) error
}

// Announcer shows each recorded interval to the operator
type Announcer interface {
	Transition(interval UsageInterval)
}

// Config holds tracker configuration
type Config struct {
	Interval           time.Duration
	MinDurationSeconds uint64
	FlushOnExit        bool
	ReportFailFatal    bool
	Stats              StatsConfig
}

// Option customises a Tracker
type Option func(*Tracker)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clock quartz.Clock) Option {
	return func(t *Tracker) { t.clock = clock }
}

// WithAnnouncer attaches an operator display.
func WithAnnouncer(a Announcer) Option {
	return func(t *Tracker) { t.announcer = a }
}

// WithHeartbeat calls beat after every tick that completes without error.
// A stalled or failing tracker stops beating.
func WithHeartbeat(beat func()) Option {
	return func(t *Tracker) { t.heartbeat = beat }
}

// Tracker samples focus on a fixed period and turns transitions into
// logged, aggregated and rendered usage intervals. Ticks never overlap.
type Tracker struct {
	sampler   Sampler
	log       LogWriter
	report    ReportPublisher
	announcer Announcer
	heartbeat func()
	clock     quartz.Clock
	detector  Detector
	stats     *Stats

	interval        time.Duration
	flushOnExit     bool
	reportFailFatal bool
	logger          zerolog.Logger

	mu    sync.Mutex
	state State
}

// NewTracker creates a new usage tracker
func NewTracker(sampler Sampler, log LogWriter, report ReportPublisher, config Config, logger zerolog.Logger, opts ...Option) *Tracker {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}

	t := &Tracker{
		sampler:         sampler,
		log:             log,
		report:          report,
		clock:           quartz.NewReal(),
		detector:        Detector{MinDurationSeconds: config.MinDurationSeconds},
		stats:           NewStats(config.Stats),
		interval:        config.Interval,
		flushOnExit:     config.FlushOnExit,
		reportFailFatal: config.ReportFailFatal,
		logger:          logger.With().Str("component", "usage-tracker").Logger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.state = NewState(t.clock.Now())
	return t
}

// Stats returns the running aggregate
func (t *Tracker) Stats() *Stats {
	return t.stats
}

// State returns a copy of the current tracker state
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Run samples immediately and then once per interval until ctx is done or a
// tick fails. Cancellation is a clean exit and returns nil.
func (t *Tracker) Run(ctx context.Context) error {
	t.mu.Lock()
	t.state = NewState(t.clock.Now("tracker", "start"))
	t.mu.Unlock()

	t.logger.Info().Dur("interval", t.interval).Msg("Usage tracker started")

	if err := t.beatingTick(ctx); err != nil {
		return t.finish(ctx, err)
	}

	waiter := t.clock.TickerFunc(ctx, t.interval, func() error {
		return t.beatingTick(ctx)
	}, "tracker", "tick")

	return t.finish(ctx, waiter.Wait())
}

func (t *Tracker) finish(ctx context.Context, err error) error {
	if ctx.Err() == nil || (err != nil && !errors.Is(err, ctx.Err())) {
		if err != nil {
			t.logger.Error().Err(err).Msg("Usage tracker stopped")
		}
		return err
	}

	if t.flushOnExit {
		if err := t.Flush(context.WithoutCancel(ctx)); err != nil {
			return fmt.Errorf("flush on exit: %w", err)
		}
	}
	t.logger.Info().Msg("Usage tracker stopped")
	return nil
}

func (t *Tracker) beatingTick(ctx context.Context) error {
	if err := t.Tick(ctx); err != nil {
		return err
	}
	if t.heartbeat != nil {
		t.heartbeat()
	}
	return nil
}

// Tick takes one sample and records the interval it closes, if any.
func (t *Tracker) Tick(ctx context.Context) error {
	now := t.clock.Now("tracker", "sample")
	app := t.sampler.CurrentForegroundApp(ctx)

	metrics.SampleDuration.Observe(t.clock.Since(now).Seconds())
	metrics.SamplesTotal.Inc()
	if app == SystemIdle {
		metrics.IdleSamplesTotal.Inc()
	}

	t.mu.Lock()
	prev := t.state
	next, interval := t.detector.OnSample(prev, Sample{App: app, ObservedAt: now}, now)
	t.state = next
	t.mu.Unlock()

	if prev.Current == next.Current {
		return nil
	}

	metrics.TransitionsTotal.Inc()
	t.logger.Debug().
		Str("from", string(prev.Current)).
		Str("to", string(next.Current)).
		Msg("Focus changed")

	if interval == nil {
		if prev.Current != NoApp {
			metrics.FilteredTransitionsTotal.Inc()
		}
		return nil
	}

	return t.commit(ctx, *interval)
}

// Flush closes the in-progress interval as if focus moved away at the
// current time. The next sample is then treated as the first.
func (t *Tracker) Flush(ctx context.Context) error {
	now := t.clock.Now("tracker", "flush")

	t.mu.Lock()
	next, interval := t.detector.OnSample(t.state, Sample{App: NoApp, ObservedAt: now}, now)
	t.state = next
	t.mu.Unlock()

	if interval == nil {
		return nil
	}
	return t.commit(ctx, *interval)
}

// commit logs, aggregates and renders one interval, in that order
func (t *Tracker) commit(ctx context.Context, interval UsageInterval) error {
	if err := t.log.Append(ctx, interval); err != nil {
		return fmt.Errorf("append usage interval for %q: %w", interval.App, err)
	}

	key := t.stats.Apply(interval)

	metrics.IntervalsTotal.Inc()
	metrics.AppSecondsTotal.WithLabelValues(string(key)).Add(float64(interval.DurationSeconds))
	metrics.TrackedApps.Set(float64(t.stats.Len()))

	t.logger.Debug().
		Str("app", string(interval.App)).
		Str("credited_to", string(key)).
		Uint64("duration_seconds", interval.DurationSeconds).
		Time("started_at", interval.StartedAt).
		Msg("Recorded usage interval")

	if t.announcer != nil {
		t.announcer.Transition(interval)
	}

	if t.report == nil {
		return nil
	}

	if err := t.report.Publish(ctx, t.stats.Snapshot()); err != nil {
		metrics.ReportRendersTotal.WithLabelValues("error").Inc()
		if t.reportFailFatal {
			return fmt.Errorf("publish report: %w", err)
		}
		t.logger.Error().Err(err).Msg("Failed to publish report, skipping")
		return nil
	}
	metrics.ReportRendersTotal.WithLabelValues("ok").Inc()

	return nil
}
