package report

import (
	"bytes"
	"context"
	"fmt"

	"github.com/coder/quartz"
	"github.com/goodtune/focustrack/internal/usage"
	"github.com/natefinch/atomic"
	"github.com/rs/zerolog"
)

// Publisher writes the rendered report to a file, replacing it whole on
// every update so readers never see a partial document.
type Publisher struct {
	path   string
	opts   Options
	clock  quartz.Clock
	logger zerolog.Logger
}

// NewPublisher creates a publisher for path. A nil clock uses wall time.
func NewPublisher(path string, opts Options, clock quartz.Clock, logger zerolog.Logger) *Publisher {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Publisher{
		path:   path,
		opts:   opts,
		clock:  clock,
		logger: logger.With().Str("component", "report").Logger(),
	}
}

// Path returns the report location
func (p *Publisher) Path() string {
	return p.path
}

// Publish renders snapshot and atomically replaces the report file.
func (p *Publisher) Publish(ctx context.Context, snapshot usage.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	opts := p.opts
	opts.GeneratedAt = p.clock.Now("report", "publish")

	doc, err := Render(snapshot, opts)
	if err != nil {
		return err
	}

	if err := atomic.WriteFile(p.path, bytes.NewReader(doc.HTML)); err != nil {
		return fmt.Errorf("write report %s: %w", p.path, err)
	}

	p.logger.Debug().
		Str("path", p.path).
		Int("apps", len(doc.Entries)).
		Uint64("total_seconds", doc.Total).
		Msg("Report updated")
	return nil
}
