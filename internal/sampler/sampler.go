// Package sampler queries the operating system for the application that
// currently holds input focus. Every failure is reported as
// usage.SystemIdle; callers never see an error.
package sampler

import (
	"context"
	"os/exec"
	"runtime"
	"strings"
	"time"
	"unicode"

	"github.com/goodtune/focustrack/internal/usage"
	"github.com/rs/zerolog"
)

const (
	// DefaultCommandTimeout bounds a single OS focus query.
	DefaultCommandTimeout = 2 * time.Second

	// DefaultMaxNameLength caps application names in runes.
	DefaultMaxNameLength = 128

	// DefaultPIDCacheSize is the number of pid to name lookups remembered.
	DefaultPIDCacheSize = 256
)

// Sampler reports the application currently holding focus
type Sampler interface {
	CurrentForegroundApp(ctx context.Context) usage.AppID
}

// Func adapts a plain function to the Sampler interface
type Func func(ctx context.Context) usage.AppID

// CurrentForegroundApp calls f.
func (f Func) CurrentForegroundApp(ctx context.Context) usage.AppID {
	return f(ctx)
}

// Config holds sampler configuration
type Config struct {
	CommandTimeout time.Duration
	MaxNameLength  int
	PIDCacheSize   int
}

// runner executes an external command and returns its stdout
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// New returns the sampler for the running platform. Platforms without a
// supported focus query get a sampler that always reports SystemIdle.
func New(config Config, logger zerolog.Logger) (Sampler, error) {
	if config.CommandTimeout <= 0 {
		config.CommandTimeout = DefaultCommandTimeout
	}
	if config.MaxNameLength <= 0 {
		config.MaxNameLength = DefaultMaxNameLength
	}
	if config.PIDCacheSize <= 0 {
		config.PIDCacheSize = DefaultPIDCacheSize
	}

	logger = logger.With().Str("component", "sampler").Logger()

	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd", "netbsd":
		return newX11(config, execRunner, readProcComm, logger)
	case "darwin":
		return newDarwin(config, execRunner, logger), nil
	default:
		logger.Warn().Str("os", runtime.GOOS).Msg("Foreground window query not supported, every sample will be idle")
		return Func(func(context.Context) usage.AppID { return usage.SystemIdle }), nil
	}
}

// Sanitize turns a raw window-system name into an AppID: surrounding space
// is trimmed, control characters are removed and the result is truncated to
// maxLen runes. A leading usage.OverflowMarker is dropped so no app can pose
// as the overflow bucket. Names that end up empty map to SystemIdle.
func Sanitize(name string, maxLen int) usage.AppID {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, name)
	cleaned = strings.TrimSpace(cleaned)
	for strings.HasPrefix(cleaned, usage.OverflowMarker) {
		cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, usage.OverflowMarker))
	}

	if maxLen > 0 {
		if runes := []rune(cleaned); len(runes) > maxLen {
			cleaned = strings.TrimSpace(string(runes[:maxLen]))
		}
	}

	if cleaned == "" {
		return usage.SystemIdle
	}
	return usage.AppID(cleaned)
}
