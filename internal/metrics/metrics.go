package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Sampling metrics
	SamplesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "focustrack_samples_total",
			Help: "Total foreground window samples taken",
		},
	)

	IdleSamplesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "focustrack_idle_samples_total",
			Help: "Samples where the focused window could not be queried",
		},
	)

	SampleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "focustrack_sample_duration_seconds",
			Help:    "Time spent querying the focused window",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2},
		},
	)

	// Detection metrics
	TransitionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "focustrack_transitions_total",
			Help: "Focus changes observed between samples",
		},
	)

	FilteredTransitionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "focustrack_filtered_transitions_total",
			Help: "Focus changes whose closed interval was too short to record",
		},
	)

	IntervalsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "focustrack_intervals_total",
			Help: "Usage intervals emitted",
		},
	)

	// Aggregate metrics
	AppSecondsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focustrack_app_seconds_total",
			Help: "Cumulative focused seconds per application",
		},
		[]string{"app"},
	)

	TrackedApps = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "focustrack_tracked_apps",
			Help: "Distinct applications in the running aggregate",
		},
	)

	// Output metrics
	LogAppendFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focustrack_log_append_failures_total",
			Help: "Failed usage log append attempts",
		},
		[]string{"sink"},
	)

	ReportRendersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focustrack_report_renders_total",
			Help: "Report renders by result",
		},
		[]string{"result"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		SamplesTotal,
		IdleSamplesTotal,
		SampleDuration,
		TransitionsTotal,
		FilteredTransitionsTotal,
		IntervalsTotal,
		AppSecondsTotal,
		TrackedApps,
		LogAppendFailures,
		ReportRendersTotal,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Handler exposes the server's mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
