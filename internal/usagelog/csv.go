package usagelog

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/goodtune/focustrack/internal/usage"
)

// TimestampLayout formats the local wall-clock time of each record
const TimestampLayout = "2006-01-02 15:04:05"

// Header is written once when the log file is empty
var Header = []string{"Timestamp", "AppName", "Duration"}

var (
	// ErrPartialWrite means part of a record reached the file. Writing it
	// again would corrupt the log, so it is never retried.
	ErrPartialWrite = errors.New("usagelog: partial record written")

	// ErrNotSynced means a record was written but could not be flushed to
	// stable storage. The record is in the file and must not be appended again.
	ErrNotSynced = errors.New("usagelog: record written but not synced")
)

// CSVOptions configures a CSVWriter
type CSVOptions struct {
	// Sync forces the file to stable storage after every record.
	Sync bool
}

// CSVWriter appends intervals to a comma-separated file. Existing content is
// preserved across restarts. App names containing commas or quotes are quoted
// so the column layout stays intact.
//
// Each record is encoded into its own buffer and handed to the file in a
// single write, so a failed append leaves no state behind and can be retried.
type CSVWriter struct {
	mu     sync.Mutex
	path   string
	out    io.Writer
	sync   func() error
	close  func() error
	closed bool
}

// OpenCSV opens path for appending, creating it if needed.
func OpenCSV(path string, opts CSVOptions) (*CSVWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open usage log: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat usage log: %w", err)
	}

	var syncFn func() error
	if opts.Sync {
		syncFn = f.Sync
	}
	w := newCSVWriter(path, f, syncFn, f.Close)

	if info.Size() == 0 {
		if err := w.write(Header); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write usage log header: %w", err)
		}
	}

	return w, nil
}

func newCSVWriter(path string, out io.Writer, syncFn, closeFn func() error) *CSVWriter {
	if closeFn == nil {
		closeFn = func() error { return nil }
	}
	return &CSVWriter{path: path, out: out, sync: syncFn, close: closeFn}
}

// Name labels this sink in metrics
func (w *CSVWriter) Name() string { return "csv" }

// Path returns the log file location
func (w *CSVWriter) Path() string { return w.path }

// Append writes one record stamped with the interval's end time.
func (w *CSVWriter) Append(_ context.Context, interval usage.UsageInterval) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	return w.write([]string{
		interval.EndedAt.Local().Format(TimestampLayout),
		string(interval.App),
		strconv.FormatUint(interval.DurationSeconds, 10),
	})
}

func (w *CSVWriter) write(record []string) error {
	line, err := encodeRecord(record)
	if err != nil {
		return err
	}

	n, err := w.out.Write(line)
	if err != nil {
		if n > 0 {
			return fmt.Errorf("%w (%d of %d bytes): %w", ErrPartialWrite, n, len(line), err)
		}
		return err
	}

	if w.sync != nil {
		if err := w.sync(); err != nil {
			return fmt.Errorf("%w: %w", ErrNotSynced, err)
		}
	}
	return nil
}

func encodeRecord(record []string) ([]byte, error) {
	var buf bytes.Buffer
	enc := csv.NewWriter(&buf)
	if err := enc.Write(record); err != nil {
		return nil, fmt.Errorf("encode usage record: %w", err)
	}
	enc.Flush()
	if err := enc.Error(); err != nil {
		return nil, fmt.Errorf("encode usage record: %w", err)
	}
	return buf.Bytes(), nil
}

// Close closes the file. Further appends return ErrClosed.
func (w *CSVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.close()
}
