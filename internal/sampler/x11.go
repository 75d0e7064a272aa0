package sampler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goodtune/focustrack/internal/usage"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

var errNoFocus = errors.New("no focused window")

// windowKey identifies a process behind a window. Both ids can be reused by
// the system, so the pair is cached rather than the pid alone.
type windowKey struct {
	window string
	pid    int
}

// x11 asks the X server for the active window via xprop and resolves the
// owning process name from /proc.
type x11 struct {
	config Config
	run    runner
	comm   func(pid int) (string, error)
	names  *lru.Cache[windowKey, string]
	logger zerolog.Logger
}

func newX11(config Config, run runner, comm func(int) (string, error), logger zerolog.Logger) (*x11, error) {
	names, err := lru.New[windowKey, string](config.PIDCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create process name cache: %w", err)
	}
	return &x11{
		config: config,
		run:    run,
		comm:   comm,
		names:  names,
		logger: logger,
	}, nil
}

func (s *x11) CurrentForegroundApp(ctx context.Context) usage.AppID {
	ctx, cancel := context.WithTimeout(ctx, s.config.CommandTimeout)
	defer cancel()

	name, err := s.query(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Focus query failed, reporting idle")
		return usage.SystemIdle
	}
	return Sanitize(name, s.config.MaxNameLength)
}

func (s *x11) query(ctx context.Context) (string, error) {
	out, err := s.run(ctx, "xprop", "-root", "_NET_ACTIVE_WINDOW")
	if err != nil {
		return "", fmt.Errorf("query active window: %w", err)
	}
	window, err := parseActiveWindow(string(out))
	if err != nil {
		return "", err
	}

	out, err = s.run(ctx, "xprop", "-id", window, "_NET_WM_PID", "WM_CLASS")
	if err != nil {
		return "", fmt.Errorf("query window %s: %w", window, err)
	}
	pid, class := parseWindowProps(string(out))

	if pid > 0 {
		key := windowKey{window: window, pid: pid}
		if name, ok := s.names.Get(key); ok {
			return name, nil
		}
		name, err := s.comm(pid)
		if err == nil && name != "" {
			s.names.Add(key, name)
			return name, nil
		}
		s.logger.Debug().Err(err).Int("pid", pid).Msg("Process name lookup failed, using window class")
	}

	if class == "" {
		return "", errNoFocus
	}
	return class, nil
}

// parseActiveWindow extracts the window id from
// "_NET_ACTIVE_WINDOW(WINDOW): window id # 0x3a00007".
func parseActiveWindow(out string) (string, error) {
	idx := strings.LastIndex(out, "#")
	if idx < 0 {
		return "", fmt.Errorf("unexpected xprop output: %q", strings.TrimSpace(out))
	}
	fields := strings.Fields(out[idx+1:])
	if len(fields) == 0 {
		return "", fmt.Errorf("unexpected xprop output: %q", strings.TrimSpace(out))
	}
	id := strings.TrimSuffix(fields[0], ",")
	if id == "0x0" {
		return "", errNoFocus
	}
	return id, nil
}

// parseWindowProps reads _NET_WM_PID and the class half of WM_CLASS.
func parseWindowProps(out string) (int, string) {
	var pid int
	var class string
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch {
		case strings.HasPrefix(key, "_NET_WM_PID"):
			if n, err := strconv.Atoi(value); err == nil {
				pid = n
			}
		case strings.HasPrefix(key, "WM_CLASS"):
			parts := strings.Split(value, ",")
			class = strings.Trim(strings.TrimSpace(parts[len(parts)-1]), `"`)
		}
	}
	return pid, class
}

func readProcComm(pid int) (string, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
