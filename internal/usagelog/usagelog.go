// Package usagelog persists emitted usage intervals. The CSV file is the
// durable record; other sinks mirror it.
package usagelog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goodtune/focustrack/internal/metrics"
	"github.com/goodtune/focustrack/internal/usage"
	"github.com/rs/zerolog"
)

// ErrClosed is returned when appending to a closed writer.
var ErrClosed = errors.New("usagelog: writer closed")

// retryInitialInterval is the first wait between failed appends
const retryInitialInterval = 50 * time.Millisecond

// Writer appends usage intervals in emission order
type Writer interface {
	Append(ctx context.Context, interval usage.UsageInterval) error
	Close() error
}

// named is implemented by writers that label their metrics
type named interface {
	Name() string
}

func sinkName(w Writer) string {
	if n, ok := w.(named); ok {
		return n.Name()
	}
	return "log"
}

// multi fans every interval out to several writers
type multi struct {
	writers []Writer
}

// Multi returns a writer that appends to each writer in order and stops at
// the first failure. Put the durable sink first.
func Multi(writers ...Writer) Writer {
	return &multi{writers: writers}
}

func (m *multi) Append(ctx context.Context, interval usage.UsageInterval) error {
	for _, w := range m.writers {
		if err := w.Append(ctx, interval); err != nil {
			return err
		}
	}
	return nil
}

func (m *multi) Close() error {
	var errs []error
	for _, w := range m.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// retrying retries failed appends with exponential backoff
type retrying struct {
	w          Writer
	maxElapsed time.Duration
	logger     zerolog.Logger
}

// WithRetry wraps w so a failed append is retried until maxElapsed has
// passed. The last error is then returned to the caller. A non-positive
// maxElapsed disables retries. Errors that mean the record may already be in
// the log (ErrPartialWrite, ErrNotSynced) and ErrClosed are never retried.
func WithRetry(w Writer, maxElapsed time.Duration, logger zerolog.Logger) Writer {
	return &retrying{
		w:          w,
		maxElapsed: maxElapsed,
		logger:     logger.With().Str("component", "usagelog").Str("sink", sinkName(w)).Logger(),
	}
}

func (r *retrying) Name() string { return sinkName(r.w) }

func (r *retrying) Append(ctx context.Context, interval usage.UsageInterval) error {
	var b backoff.BackOff = &backoff.StopBackOff{}
	if r.maxElapsed > 0 {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = retryInitialInterval
		eb.MaxElapsedTime = r.maxElapsed
		b = eb
	}

	attempts := 0
	op := func() error {
		attempts++
		err := r.w.Append(ctx, interval)
		if err == nil {
			return nil
		}
		metrics.LogAppendFailures.WithLabelValues(sinkName(r.w)).Inc()
		if permanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn().Err(err).Dur("retry_in", wait).Msg("Usage log append failed, retrying")
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return fmt.Errorf("append after %d attempts: %w", attempts, err)
	}
	if attempts > 1 {
		r.logger.Info().Int("attempts", attempts).Msg("Usage log append recovered")
	}
	return nil
}

func permanent(err error) bool {
	return errors.Is(err, ErrClosed) || errors.Is(err, ErrPartialWrite) || errors.Is(err, ErrNotSynced)
}

func (r *retrying) Close() error {
	return r.w.Close()
}

// bestEffort logs and swallows append failures
type bestEffort struct {
	w      Writer
	logger zerolog.Logger
}

// BestEffort wraps a mirror sink whose failures must never stop tracking.
func BestEffort(w Writer, logger zerolog.Logger) Writer {
	return &bestEffort{
		w:      w,
		logger: logger.With().Str("component", "usagelog").Str("sink", sinkName(w)).Logger(),
	}
}

func (b *bestEffort) Name() string { return sinkName(b.w) }

func (b *bestEffort) Append(ctx context.Context, interval usage.UsageInterval) error {
	if err := b.w.Append(ctx, interval); err != nil {
		metrics.LogAppendFailures.WithLabelValues(sinkName(b.w)).Inc()
		b.logger.Warn().Err(err).Str("app", string(interval.App)).Msg("Mirror append failed, skipping")
	}
	return nil
}

func (b *bestEffort) Close() error {
	return b.w.Close()
}
