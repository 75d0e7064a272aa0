package usagelog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goodtune/focustrack/internal/config"
	"github.com/goodtune/focustrack/internal/usage"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, time.October, 18, 9, 0, 0, 0, time.UTC)

func interval(app usage.AppID, start, secs int) usage.UsageInterval {
	return usage.UsageInterval{
		App:             app,
		StartedAt:       t0.Add(time.Duration(start) * time.Second),
		EndedAt:         t0.Add(time.Duration(start+secs) * time.Second),
		DurationSeconds: uint64(secs),
	}
}

func stamp(in usage.UsageInterval) string {
	return in.EndedAt.Local().Format(TimestampLayout)
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestCSVWriter(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "log.csv")

	w, err := OpenCSV(path, CSVOptions{Sync: true})
	require.NoError(t, err)

	a := interval("A", 0, 3)
	b := interval("B", 3, 5)
	require.NoError(t, w.Append(ctx, a))
	require.NoError(t, w.Append(ctx, b))
	require.NoError(t, w.Close())

	require.Equal(t, []string{
		"Timestamp,AppName,Duration",
		stamp(a) + ",A,3",
		stamp(b) + ",B,5",
	}, readLines(t, path))
}

func TestCSVWriterReopenPreservesHistory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "log.csv")

	first := interval("A", 0, 3)
	w, err := OpenCSV(path, CSVOptions{})
	require.NoError(t, err)
	require.NoError(t, w.Append(ctx, first))
	require.NoError(t, w.Close())

	second := interval("Terminal", 10, 42)
	w, err = OpenCSV(path, CSVOptions{})
	require.NoError(t, err)
	require.NoError(t, w.Append(ctx, second))
	require.NoError(t, w.Close())

	require.Equal(t, []string{
		"Timestamp,AppName,Duration",
		stamp(first) + ",A,3",
		stamp(second) + ",Terminal,42",
	}, readLines(t, path))
}

func TestCSVWriterQuotesDelimiters(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "log.csv")

	w, err := OpenCSV(path, CSVOptions{})
	require.NoError(t, err)
	in := interval(`Acme, "Pro"`, 0, 7)
	require.NoError(t, w.Append(ctx, in))
	require.NoError(t, w.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 2)
	require.Equal(t, stamp(in)+`,"Acme, ""Pro""",7`, lines[1])
}

func TestCSVWriterClosed(t *testing.T) {
	w, err := OpenCSV(filepath.Join(t.TempDir(), "log.csv"), CSVOptions{})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	err = w.Append(context.Background(), interval("A", 0, 2))
	require.ErrorIs(t, err, ErrClosed)
}

func TestRedisWriter(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	w, err := OpenRedis(config.RedisConfig{
		Addr:        mr.Addr(),
		Stream:      "test:intervals",
		MaxLen:      2,
		DialTimeout: "5s",
	})
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	require.NoError(t, w.Append(ctx, interval("A", 0, 3)))
	require.NoError(t, w.Append(ctx, interval("B", 3, 5)))
	require.NoError(t, w.Append(ctx, interval("C", 8, 2)))

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	entries, err := client.XRange(ctx, "test:intervals", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2, "stream is trimmed to max_len")

	require.Equal(t, "B", entries[0].Values["app"])
	require.Equal(t, "5", entries[0].Values["duration_seconds"])
	require.Equal(t, "2026-10-18T09:00:03Z", entries[0].Values["started_at"])
	require.Equal(t, "2026-10-18T09:00:08Z", entries[0].Values["ended_at"])
	require.Equal(t, "C", entries[1].Values["app"])
}

func TestOpenRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := OpenRedis(config.RedisConfig{Addr: addr, DialTimeout: "500ms"})
	require.Error(t, err)
}

// flakyWriter fails the first n appends.
type flakyWriter struct {
	mu       sync.Mutex
	failures int
	err      error
	calls    int
	got      []usage.UsageInterval
	closed   bool
}

func (f *flakyWriter) Append(_ context.Context, in usage.UsageInterval) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures != 0 {
		if f.failures > 0 {
			f.failures--
		}
		return f.err
	}
	f.got = append(f.got, in)
	return nil
}

func (f *flakyWriter) Close() error {
	f.closed = true
	return nil
}

func TestWithRetryRecovers(t *testing.T) {
	fw := &flakyWriter{failures: 2, err: errors.New("resource temporarily unavailable")}
	w := WithRetry(fw, 5*time.Second, zerolog.Nop())

	require.NoError(t, w.Append(context.Background(), interval("A", 0, 3)))
	require.Equal(t, 3, fw.calls)
	require.Len(t, fw.got, 1)
}

func TestWithRetryGivesUp(t *testing.T) {
	diskFull := errors.New("no space left on device")
	fw := &flakyWriter{failures: -1, err: diskFull}
	w := WithRetry(fw, 200*time.Millisecond, zerolog.Nop())

	err := w.Append(context.Background(), interval("A", 0, 3))
	require.ErrorIs(t, err, diskFull)
	require.Greater(t, fw.calls, 1)
}

func TestWithRetryDisabled(t *testing.T) {
	diskFull := errors.New("no space left on device")
	fw := &flakyWriter{failures: -1, err: diskFull}
	w := WithRetry(fw, 0, zerolog.Nop())

	require.ErrorIs(t, w.Append(context.Background(), interval("A", 0, 3)), diskFull)
	require.Equal(t, 1, fw.calls)
}

func TestWithRetryStopsOnClosed(t *testing.T) {
	fw := &flakyWriter{failures: -1, err: ErrClosed}
	w := WithRetry(fw, 5*time.Second, zerolog.Nop())

	require.ErrorIs(t, w.Append(context.Background(), interval("A", 0, 3)), ErrClosed)
	require.Equal(t, 1, fw.calls)
}

func TestMultiWithBestEffortMirror(t *testing.T) {
	primary := &flakyWriter{}
	mirror := &flakyWriter{failures: -1, err: errors.New("connection refused")}
	w := Multi(primary, BestEffort(mirror, zerolog.Nop()))

	require.NoError(t, w.Append(context.Background(), interval("A", 0, 3)))
	require.Len(t, primary.got, 1)
	require.Equal(t, 1, mirror.calls)

	require.NoError(t, w.Close())
	require.True(t, primary.closed)
	require.True(t, mirror.closed)
}

func TestMultiStopsAtPrimaryFailure(t *testing.T) {
	diskFull := errors.New("no space left on device")
	primary := &flakyWriter{failures: -1, err: diskFull}
	mirror := &flakyWriter{}
	w := Multi(primary, mirror)

	require.ErrorIs(t, w.Append(context.Background(), interval("A", 0, 3)), diskFull)
	require.Empty(t, mirror.got)
}

var errNoSpace = errors.New("no space left on device")

// failingFile fails its first writes, optionally after writing half the bytes.
type failingFile struct {
	f        *os.File
	failures int
	partial  bool
	writes   int
}

func (w *failingFile) Write(p []byte) (int, error) {
	w.writes++
	if w.failures > 0 {
		w.failures--
		if w.partial {
			n, _ := w.f.Write(p[:len(p)/2])
			return n, errNoSpace
		}
		return 0, errNoSpace
	}
	return w.f.Write(p)
}

// openFailingCSV returns a CSV writer on a log that already has its header,
// with every write going through out.
func openFailingCSV(t *testing.T, out *failingFile, syncFn func() error) (*CSVWriter, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "log.csv")

	w, err := OpenCSV(path, CSVOptions{})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	out.f = f
	return newCSVWriter(path, out, syncFn, f.Close), path
}

func TestCSVWriterRetryAfterFailedWrite(t *testing.T) {
	out := &failingFile{failures: 1}
	cw, path := openFailingCSV(t, out, nil)
	w := WithRetry(cw, 2*time.Second, zerolog.Nop())

	in := interval("A", 0, 3)
	require.NoError(t, w.Append(context.Background(), in))
	require.NoError(t, w.Append(context.Background(), interval("B", 3, 5)))
	require.NoError(t, w.Close())

	require.Equal(t, 3, out.writes)
	require.Equal(t, []string{
		"Timestamp,AppName,Duration",
		stamp(in) + ",A,3",
		stamp(interval("B", 3, 5)) + ",B,5",
	}, readLines(t, path))
}

func TestCSVWriterSyncFailureIsNotRetried(t *testing.T) {
	syncs := 0
	syncFn := func() error {
		syncs++
		return errors.New("input/output error")
	}
	cw, path := openFailingCSV(t, &failingFile{}, syncFn)
	w := WithRetry(cw, 2*time.Second, zerolog.Nop())

	in := interval("A", 0, 3)
	err := w.Append(context.Background(), in)
	require.ErrorIs(t, err, ErrNotSynced)
	require.Equal(t, 1, syncs)
	require.NoError(t, w.Close())

	// The record reached the file exactly once.
	require.Equal(t, []string{"Timestamp,AppName,Duration", stamp(in) + ",A,3"}, readLines(t, path))
}

func TestCSVWriterPartialWriteIsNotRetried(t *testing.T) {
	out := &failingFile{failures: 1, partial: true}
	cw, _ := openFailingCSV(t, out, nil)
	w := WithRetry(cw, 2*time.Second, zerolog.Nop())

	err := w.Append(context.Background(), interval("A", 0, 3))
	require.ErrorIs(t, err, ErrPartialWrite)
	require.ErrorIs(t, err, errNoSpace)
	require.Equal(t, 1, out.writes)
	require.NoError(t, w.Close())
}
