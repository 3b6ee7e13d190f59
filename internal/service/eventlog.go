package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/craftapp/craftd/internal/adapter/otel"
	"github.com/craftapp/craftd/internal/domain/event"
	"github.com/craftapp/craftd/internal/logger"
	"github.com/craftapp/craftd/internal/port/eventbus"
	"github.com/craftapp/craftd/internal/port/eventlog"
)

// EventLogOptions configures an EventLogService.
type EventLogOptions struct {
	WorkspaceID string
	Appender    eventlog.Appender
	Metrics     *otel.Metrics // optional
}

// EventLogService records every bus event in the append-only history log.
// It never returns an error into the dispatch path; persistence trouble is
// the appender's to retry and report.
type EventLogService struct {
	workspaceID string
	appender    eventlog.Appender
	metrics     *otel.Metrics

	mu          sync.Mutex
	unsubscribe func()
	disposed    bool
}

// NewEventLogService creates the service. Call Subscribe to attach it to a bus.
func NewEventLogService(opts EventLogOptions) *EventLogService {
	return &EventLogService{
		workspaceID: opts.WorkspaceID,
		appender:    opts.Appender,
		metrics:     opts.Metrics,
	}
}

// Subscribe registers the service for every event type on the bus.
func (s *EventLogService) Subscribe(bus eventbus.Bus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || s.unsubscribe != nil {
		return
	}
	s.unsubscribe = bus.SubscribeAll(s.handle)
}

func (s *EventLogService) handle(ctx context.Context, t event.Type, p event.Payload) error {
	if s.isDisposed() {
		return nil
	}

	workspaceID := p.WorkspaceID
	if workspaceID == "" {
		workspaceID = s.workspaceID
	}
	timestamp := p.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	// The bus emission id doubles as the record id, so a loss report
	// names the emissions that vanished.
	id := logger.EmitID(ctx)
	if id == "" {
		id = uuid.NewString()
	}

	record := event.LoggedEvent{
		ID:          id,
		Type:        t,
		WorkspaceID: workspaceID,
		SessionID:   p.SessionID,
		Timestamp:   timestamp,
		Data:        p,
	}
	if err := s.appender.Append(record); err != nil {
		slog.Warn("event log append failed", "event", t, "error", err)
		return nil
	}
	if s.metrics != nil {
		s.metrics.RecordsLogged.Add(ctx, 1)
	}
	return nil
}

func (s *EventLogService) isDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// LogPath returns the location of the underlying log file.
func (s *EventLogService) LogPath() string {
	return s.appender.Path()
}

// Dispose unregisters the bus handler and closes the appender, flushing
// whatever it still buffers. Safe to call more than once.
func (s *EventLogService) Dispose(ctx context.Context) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.disposed = true
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if err := s.appender.Close(ctx); err != nil {
		return fmt.Errorf("close event log: %w", err)
	}
	return nil
}
