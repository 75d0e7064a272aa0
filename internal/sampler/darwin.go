package sampler

import (
	"context"
	"strings"

	"github.com/goodtune/focustrack/internal/usage"
	"github.com/rs/zerolog"
)

const frontmostScript = `tell application "System Events" to get name of first application process whose frontmost is true`

// darwin asks System Events for the frontmost process name.
type darwin struct {
	config Config
	run    runner
	logger zerolog.Logger
}

func newDarwin(config Config, run runner, logger zerolog.Logger) *darwin {
	return &darwin{config: config, run: run, logger: logger}
}

func (s *darwin) CurrentForegroundApp(ctx context.Context) usage.AppID {
	ctx, cancel := context.WithTimeout(ctx, s.config.CommandTimeout)
	defer cancel()

	out, err := s.run(ctx, "osascript", "-e", frontmostScript)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Focus query failed, reporting idle")
		return usage.SystemIdle
	}
	return Sanitize(strings.TrimSpace(string(out)), s.config.MaxNameLength)
}
