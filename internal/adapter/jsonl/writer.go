// Package jsonl implements the event log port as a buffered JSON Lines
// appender with internal write retries and loss reporting, plus the tail
// and rotation helpers external tooling builds on.
package jsonl

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/craftapp/craftd/internal/domain/event"
)

// retryPolicy controls how failed batch writes are retried.
type retryPolicy struct {
	maxAttempts  int
	initialDelay time.Duration
	multiplier   float64
	maxDelay     time.Duration
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{
		maxAttempts:  3,
		initialDelay: 50 * time.Millisecond,
		multiplier:   2.0,
		maxDelay:     time.Second,
	}
}

// nextDelay returns the backoff delay before the given retry (1-indexed).
func (p retryPolicy) nextDelay(attempt int) time.Duration {
	d := float64(p.initialDelay) * math.Pow(p.multiplier, float64(attempt-1))
	if d > float64(p.maxDelay) {
		return p.maxDelay
	}
	return time.Duration(d)
}

// Options configures a Writer.
type Options struct {
	// FlushInterval bounds how long a record sits in memory before the
	// background flush picks it up. Zero means 250ms.
	FlushInterval time.Duration
	// OnRecordsLost receives the ids of a batch dropped after every write
	// retry failed.
	OnRecordsLost func(ids []string, err error)
}

type pendingRecord struct {
	id   string
	line []byte
}

// Writer appends records to one JSON Lines file. Appends only queue; a
// background goroutine writes batches, retrying with backoff and reporting
// exhausted batches through OnRecordsLost. Nothing here ever panics into a
// caller.
type Writer struct {
	path  string
	lost  func(ids []string, err error)
	retry retryPolicy

	mu      sync.Mutex
	pending []pendingRecord
	closed  bool

	wake    chan struct{}
	quit    chan struct{}
	stopped chan struct{}
}

// NewWriter creates the log directory and starts the flush loop.
func NewWriter(path string, opts Options) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	interval := opts.FlushInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	w := &Writer{
		path:    path,
		lost:    opts.OnRecordsLost,
		retry:   defaultRetryPolicy(),
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go w.flushLoop(interval)
	return w, nil
}

// Append queues one record. It fails only when the record cannot be
// encoded. A closed writer drops the record silently: disposal must stop
// all writes, including ones already in flight through the bus.
func (w *Writer) Append(record event.LoggedEvent) error {
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.pending = append(w.pending, pendingRecord{id: record.ID, line: line})
	select {
	case w.wake <- struct{}{}:
	default:
	}
	return nil
}

// Path returns the log file location.
func (w *Writer) Path() string { return w.path }

// Close flushes buffered records and stops the flush loop. Safe to call
// more than once; the context bounds the wait for the final flush.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	already := w.closed
	w.closed = true
	w.mu.Unlock()
	if !already {
		close(w.quit)
	}

	select {
	case <-w.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) flushLoop(interval time.Duration) {
	defer close(w.stopped)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.quit:
			w.flush()
			return
		case <-w.wake:
			w.flush()
		case <-ticker.C:
			w.flush()
		}
	}
}

// flush writes everything pending as one batch. An exhausted batch is
// dropped and reported; the records of a partially written batch may be
// retried whole, which favors duplicates over silent loss.
func (w *Writer) flush() {
	w.mu.Lock()
	batch := w.pending
	w.pending = nil
	w.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	if err := w.writeBatch(batch); err != nil {
		ids := make([]string, len(batch))
		for i, rec := range batch {
			ids[i] = rec.id
		}
		slog.Error("event log batch lost after retries",
			"path", w.path, "records", len(ids), "error", err)
		if w.lost != nil {
			w.lost(ids, err)
		}
	}
}

func (w *Writer) writeBatch(batch []pendingRecord) error {
	var lastErr error
	for attempt := 1; attempt <= w.retry.maxAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(w.retry.nextDelay(attempt - 1))
		}
		if lastErr = w.writeOnce(batch); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (w *Writer) writeOnce(batch []pendingRecord) error {
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()
	for _, rec := range batch {
		if _, err := f.Write(rec.line); err != nil {
			return fmt.Errorf("write event log: %w", err)
		}
	}
	return nil
}
