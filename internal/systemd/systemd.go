// Package systemd integrates with the service manager when focustrack runs
// as a user unit. Every call is a no-op outside systemd.
package systemd

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/coreos/go-systemd/v22/activation"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"
)

// MetricsSocketName is the FileDescriptorName= of the metrics socket
const MetricsSocketName = "metrics"

// MetricsListener returns the socket-activated metrics listener, or nil when
// the process was not started by socket activation.
func MetricsListener() (net.Listener, error) {
	// false = don't unset env vars
	if len(activation.Files(false)) == 0 {
		return nil, nil
	}

	listenersMap, err := activation.ListenersWithNames()
	if err != nil {
		return nil, fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if lns, ok := listenersMap[MetricsSocketName]; ok && len(lns) > 0 {
		return lns[0], nil
	}
	return nil, nil
}

// NotifyReady sends READY=1 notification to systemd
func NotifyReady() error {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		return fmt.Errorf("failed to send sd_notify: %w", err)
	}
	return nil
}

// NotifyStopping sends STOPPING=1 notification to systemd
func NotifyStopping() error {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		return fmt.Errorf("failed to send sd_notify stopping: %w", err)
	}
	return nil
}

// Watchdog forwards tracker heartbeats to the systemd watchdog. A stalled
// tracker stops beating, so systemd sees the stall and restarts the unit.
type Watchdog struct {
	clock  quartz.Clock
	every  time.Duration
	ping   func() error
	logger zerolog.Logger

	mu     sync.Mutex
	last   time.Time
	pinged bool
}

// NewWatchdog returns a watchdog that pings at most every half timeout. It
// returns nil when no watchdog is configured for this unit; Beat on a nil
// Watchdog does nothing.
func NewWatchdog(clock quartz.Clock, logger zerolog.Logger) (*Watchdog, error) {
	timeout, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return nil, fmt.Errorf("check watchdog: %w", err)
	}
	if timeout <= 0 {
		return nil, nil
	}
	return newWatchdog(clock, timeout/2, func() error {
		_, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		return err
	}, logger), nil
}

func newWatchdog(clock quartz.Clock, every time.Duration, ping func() error, logger zerolog.Logger) *Watchdog {
	if clock == nil {
		clock = quartz.NewReal()
	}
	logger = logger.With().Str("component", "systemd").Logger()
	logger.Debug().Dur("interval", every).Msg("Watchdog enabled")
	return &Watchdog{clock: clock, every: every, ping: ping, logger: logger}
}

// Beat records that the tracker completed a tick. The first beat pings
// immediately; later beats ping once every interval.
func (w *Watchdog) Beat() {
	if w == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now("systemd", "watchdog")
	if w.pinged && now.Sub(w.last) < w.every {
		return
	}
	if err := w.ping(); err != nil {
		w.logger.Warn().Err(err).Msg("Watchdog notification failed")
		return
	}
	w.last = now
	w.pinged = true
}
