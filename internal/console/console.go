// Package console prints operator-facing transition lines. The output is
// for people watching the terminal and is not meant to be parsed.
package console

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/goodtune/focustrack/internal/usage"
)

// TimestampLayout formats transition times in local wall-clock time
const TimestampLayout = "2006-01-02 15:04:05"

// Printer writes one line per recorded interval
type Printer struct {
	mu    sync.Mutex
	out   io.Writer
	stamp *color.Color
	app   *color.Color
	secs  *color.Color
	title *color.Color
}

// New creates a printer writing to out. With colorize false no escape
// sequences are written, otherwise colour follows terminal detection.
func New(out io.Writer, colorize bool) *Printer {
	p := &Printer{
		out:   out,
		stamp: color.New(color.Faint),
		app:   color.New(color.FgCyan, color.Bold),
		secs:  color.New(color.FgGreen),
		title: color.New(color.FgYellow, color.Bold),
	}
	if !colorize {
		for _, c := range []*color.Color{p.stamp, p.app, p.secs, p.title} {
			c.DisableColor()
		}
	}
	return p
}

// Transition prints "[<timestamp>] <app> -> <seconds>s".
func (p *Printer) Transition(interval usage.UsageInterval) {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, _ = fmt.Fprintf(p.out, "%s %s -> %s\n",
		p.stamp.Sprintf("[%s]", interval.EndedAt.Local().Format(TimestampLayout)),
		p.app.Sprint(string(interval.App)),
		p.secs.Sprintf("%ds", interval.DurationSeconds),
	)
}

// Banner announces where output goes and how to stop.
func (p *Printer) Banner(version, logPath, reportPath string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, _ = p.title.Fprintf(p.out, "focustrack %s\n", version)
	_, _ = fmt.Fprintf(p.out, "Tracking foreground application usage.\n")
	_, _ = fmt.Fprintf(p.out, "  Usage log: %s\n", logPath)
	if reportPath != "" {
		_, _ = fmt.Fprintf(p.out, "  Report:    %s\n", reportPath)
	}
	_, _ = fmt.Fprintf(p.out, "Press Ctrl+C to stop.\n")
}
