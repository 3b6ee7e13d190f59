// Package eventlog defines the durable event log port (interface).
package eventlog

import (
	"context"

	"github.com/craftapp/craftd/internal/domain/event"
)

// Appender persists automation event records to an append-only log.
type Appender interface {
	// Append queues one record for durable storage. The adapter retries
	// failed writes internally and reports exhausted batches through its
	// loss callback instead of returning an error here; Append only fails
	// when the record cannot be encoded.
	Append(record event.LoggedEvent) error

	// Path returns the location of the underlying log, for external tools.
	Path() string

	// Close flushes buffered records and releases the log.
	Close(ctx context.Context) error
}
