package usagelog

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/goodtune/focustrack/internal/config"
	"github.com/goodtune/focustrack/internal/usage"
	"github.com/redis/go-redis/v9"
)

// DefaultStream is the stream key used when none is configured
const DefaultStream = "focustrack:intervals"

// RedisOptions configures a RedisWriter
type RedisOptions struct {
	Stream string
	// MaxLen trims the stream to this many entries; 0 keeps everything.
	MaxLen int64
}

// RedisWriter mirrors intervals into a Redis stream, one entry per interval.
type RedisWriter struct {
	client *redis.Client
	opts   RedisOptions
	owned  bool
}

// NewRedis returns a writer on an existing client. Close does not close the
// client.
func NewRedis(client *redis.Client, opts RedisOptions) *RedisWriter {
	if opts.Stream == "" {
		opts.Stream = DefaultStream
	}
	return &RedisWriter{client: client, opts: opts}
}

// OpenRedis connects to the configured server and verifies it with a ping.
func OpenRedis(cfg config.RedisConfig) (*RedisWriter, error) {
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	w := NewRedis(client, RedisOptions{Stream: cfg.Stream, MaxLen: cfg.MaxLen})
	w.owned = true
	return w, nil
}

// Name labels this sink in metrics
func (w *RedisWriter) Name() string { return "redis" }

// Append adds one stream entry for interval.
func (w *RedisWriter) Append(ctx context.Context, interval usage.UsageInterval) error {
	args := &redis.XAddArgs{
		Stream: w.opts.Stream,
		MaxLen: w.opts.MaxLen,
		Values: map[string]interface{}{
			"app":              string(interval.App),
			"started_at":       interval.StartedAt.UTC().Format(time.RFC3339),
			"ended_at":         interval.EndedAt.UTC().Format(time.RFC3339),
			"duration_seconds": strconv.FormatUint(interval.DurationSeconds, 10),
		},
	}
	if err := w.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", w.opts.Stream, err)
	}
	return nil
}

// Close releases the client if this writer opened it
func (w *RedisWriter) Close() error {
	if !w.owned {
		return nil
	}
	return w.client.Close()
}
