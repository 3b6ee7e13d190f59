// Package membus implements the event bus port as an in-process,
// per-workspace dispatcher with per-event-type rate limiting.
package membus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/craftapp/craftd/internal/adapter/otel"
	"github.com/craftapp/craftd/internal/domain/event"
	"github.com/craftapp/craftd/internal/logger"
	"github.com/craftapp/craftd/internal/port/eventbus"
)

// Defaults for the per-type emission budget. The scheduler fires once per
// minute from one producer but must tolerate bursts from manual triggers,
// so its type gets a higher budget.
const (
	DefaultLimit     = 10
	DefaultTickLimit = 60
)

// Options configures a Bus.
type Options struct {
	WorkspaceID string
	// DefaultLimit is the per-type emission budget per rolling minute.
	// Zero means DefaultLimit.
	Limit int
	// Limits overrides the budget for specific types. Nil applies the
	// SchedulerTick default; an explicit empty map disables overrides.
	Limits map[event.Type]int
	// Metrics receives bus instrumentation when non-nil.
	Metrics *otel.Metrics
}

// Bus dispatches automation events to subscribed handlers.
type Bus struct {
	workspaceID string
	limiter     *windowLimiter
	metrics     *otel.Metrics

	mu       sync.Mutex
	disposed bool
	nextID   int
	byType   map[event.Type]map[int]eventbus.Handler
	any      map[int]eventbus.Handler
}

// New creates a bus for one workspace.
func New(opts Options) *Bus {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Limits == nil {
		opts.Limits = map[event.Type]int{event.TypeSchedulerTick: DefaultTickLimit}
	}
	return &Bus{
		workspaceID: opts.WorkspaceID,
		limiter:     newWindowLimiter(opts.Limit, opts.Limits),
		metrics:     opts.Metrics,
		byType:      make(map[event.Type]map[int]eventbus.Handler),
		any:         make(map[int]eventbus.Handler),
	}
}

// Emit delivers the event to every handler registered for its type and to
// every all-event handler. A disposed bus and a rate-limited emission both
// deliver to nobody. Emit returns once all handlers have finished.
func (b *Bus) Emit(ctx context.Context, t event.Type, p event.Payload) {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return
	}
	if !b.limiter.allow(t, time.Now()) {
		b.mu.Unlock()
		slog.Warn("event dropped by rate limit", "event", t, "workspace", b.workspaceID)
		if b.metrics != nil {
			b.metrics.EventsDropped.Add(ctx, 1)
		}
		return
	}
	handlers := make([]eventbus.Handler, 0, len(b.byType[t])+len(b.any))
	for _, h := range b.byType[t] {
		handlers = append(handlers, h)
	}
	for _, h := range b.any {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.EventsEmitted.Add(ctx, 1)
	}
	// Every dispatch carries an emission id so handler logs and history
	// records correlate back to this call.
	ctx = logger.WithEmitID(ctx, uuid.NewString())
	ctx, span := otel.StartEmitSpan(ctx, string(t), b.workspaceID)
	defer span.End()
	start := time.Now()

	var wg sync.WaitGroup
	for _, h := range handlers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.invoke(ctx, h, t, p)
		}()
	}
	wg.Wait()

	if b.metrics != nil {
		b.metrics.EmitDuration.Record(ctx, time.Since(start).Seconds())
	}
}

// invoke runs one handler with its error or panic contained, so a failing
// handler never affects siblings or the emitter.
func (b *Bus) invoke(ctx context.Context, h eventbus.Handler, t event.Type, p event.Payload) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("handler panicked during dispatch",
				"event", t, "emit_id", logger.EmitID(ctx), "panic", r)
			if b.metrics != nil {
				b.metrics.HandlerErrors.Add(ctx, 1)
			}
		}
	}()
	if err := h(ctx, t, p); err != nil {
		slog.Warn("handler failed during dispatch",
			"event", t, "emit_id", logger.EmitID(ctx), "error", err)
		if b.metrics != nil {
			b.metrics.HandlerErrors.Add(ctx, 1)
		}
	}
}

// Subscribe registers a handler for one event type. The returned function
// cancels the registration; on a disposed bus it registers nothing.
func (b *Bus) Subscribe(t event.Type, h eventbus.Handler) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed || h == nil {
		return func() {}
	}
	id := b.nextID
	b.nextID++
	if b.byType[t] == nil {
		b.byType[t] = make(map[int]eventbus.Handler)
	}
	b.byType[t][id] = h
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.byType[t], id)
	}
}

// SubscribeAll registers a handler invoked for every event type.
func (b *Bus) SubscribeAll(h eventbus.Handler) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed || h == nil {
		return func() {}
	}
	id := b.nextID
	b.nextID++
	b.any[id] = h
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.any, id)
	}
}

// HandlerCount reports registrations for the given types, or the total
// across all types plus all-event handlers when called without arguments.
func (b *Bus) HandlerCount(types ...event.Type) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(types) == 0 {
		n := len(b.any)
		for _, hs := range b.byType {
			n += len(hs)
		}
		return n
	}
	n := 0
	for _, t := range types {
		n += len(b.byType[t])
	}
	return n
}

// Disposed reports whether Dispose has been called.
func (b *Bus) Disposed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disposed
}

// Dispose drops every registration and is safe to call more than once.
func (b *Bus) Dispose() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed {
		return
	}
	b.disposed = true
	b.byType = make(map[event.Type]map[int]eventbus.Handler)
	b.any = make(map[int]eventbus.Handler)
	slog.Debug("event bus disposed", "workspace", b.workspaceID)
}
