package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/craftapp/craftd/internal/adapter/jsonl"
	"github.com/craftapp/craftd/internal/adapter/membus"
	"github.com/craftapp/craftd/internal/adapter/otel"
	"github.com/craftapp/craftd/internal/config"
	"github.com/craftapp/craftd/internal/domain/event"
	"github.com/craftapp/craftd/internal/domain/prompt"
	"github.com/craftapp/craftd/internal/domain/rule"
)

// Callbacks are the host-supplied notification points. Every field is
// optional; a nil callback is skipped.
type Callbacks struct {
	// OnPromptsReady receives each batch of prompts produced by one event.
	OnPromptsReady func(prompts []prompt.PendingPrompt)
	// OnError is notified when prompt generation failed for an event.
	OnError func(eventType event.Type, err error)
	// OnEventLost is notified when event log records were dropped after
	// the writer exhausted its retries.
	OnEventLost func(eventIDs []string, err error)
}

// SystemOptions configures an AutomationSystem.
type SystemOptions struct {
	WorkspaceID   string
	WorkspaceRoot string
	// SessionID is the default target for prompts generated by events
	// that carry no session of their own, such as scheduler ticks.
	SessionID string
	// Config supplies engine tuning. Nil means config.Defaults().
	Config    *config.Config
	Callbacks Callbacks
}

// ReloadStatus reports a rule load to the host.
type ReloadStatus struct {
	Success         bool     `json:"success"`
	AutomationCount int      `json:"automationCount"`
	Errors          []string `json:"errors,omitempty"`
}

// AutomationSystem owns the bus, scheduler, and handlers for one
// workspace. Everything it wires is created together in the constructor
// and torn down together in Dispose.
type AutomationSystem struct {
	workspaceID string
	rulesPath   string
	metrics     *otel.Metrics

	bus       *membus.Bus
	scheduler *Scheduler
	prompts   *PromptService
	eventLog  *EventLogService

	rules *ruleStore
	meta  *metadataCache

	mu       sync.Mutex
	disposed bool
}

// ruleStore holds the active rule set; reloads swap the whole config
// atomically while the prompt pipeline keeps reading.
type ruleStore struct {
	mu  sync.RWMutex
	cfg *rule.Config
}

func (r *ruleStore) MatchersFor(t event.Type) []rule.Matcher {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg.MatchersFor(t)
}

func (r *ruleStore) swap(cfg *rule.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
}

func (r *ruleStore) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg.MatcherCount()
}

// NewAutomationSystem builds and starts the engine for one workspace.
// Rule file problems never fail construction; the engine degrades to an
// empty rule set and keeps logging events. Only an unusable event log
// location is a hard error.
func NewAutomationSystem(opts SystemOptions) (*AutomationSystem, error) {
	cfg := config.Defaults()
	if opts.Config != nil {
		cfg = *opts.Config
	}

	metrics, err := otel.NewMetrics()
	if err != nil {
		slog.Warn("automation metrics unavailable", "error", err)
		metrics = nil
	}

	historyPath := resolvePath(opts.WorkspaceRoot, cfg.Files.History)
	if trimmed, err := jsonl.Rotate(historyPath, cfg.History.MaxEntries); err != nil {
		slog.Warn("event log rotation failed", "path", historyPath, "error", err)
	} else if trimmed > 0 {
		slog.Info("event log rotated", "path", historyPath, "dropped", trimmed)
	}

	sys := &AutomationSystem{
		workspaceID: opts.WorkspaceID,
		rulesPath:   resolvePath(opts.WorkspaceRoot, cfg.Files.Rules),
		metrics:     metrics,
		rules:       &ruleStore{cfg: rule.Empty()},
		meta:        newMetadataCache(),
	}
	sys.loadRules()

	sys.bus = membus.New(membus.Options{
		WorkspaceID: opts.WorkspaceID,
		Limit:       cfg.Rate.PerMinute,
		Limits:      map[event.Type]int{event.TypeSchedulerTick: cfg.Rate.TickPerMinute},
		Metrics:     metrics,
	})

	writer, err := jsonl.NewWriter(historyPath, jsonl.Options{
		OnRecordsLost: sys.recordsLost(opts.Callbacks.OnEventLost),
	})
	if err != nil {
		sys.bus.Dispose()
		return nil, fmt.Errorf("open event log: %w", err)
	}

	sys.eventLog = NewEventLogService(EventLogOptions{
		WorkspaceID: opts.WorkspaceID,
		Appender:    writer,
		Metrics:     metrics,
	})
	sys.eventLog.Subscribe(sys.bus)

	sys.prompts = NewPromptService(PromptOptions{
		SessionID:      opts.SessionID,
		Rules:          sys.rules,
		Metadata:       sys.meta,
		Metrics:        metrics,
		OnPromptsReady: opts.Callbacks.OnPromptsReady,
		OnError:        opts.Callbacks.OnError,
	})
	sys.prompts.Subscribe(sys.bus)

	sys.scheduler = NewScheduler(sys.onTick)
	sys.scheduler.Start()

	slog.Info("automation system ready",
		"workspace", opts.WorkspaceID,
		"automations", sys.rules.count(),
		"log", writer.Path())
	return sys, nil
}

// recordsLost forwards event log losses to the host callback and counts
// them.
func (a *AutomationSystem) recordsLost(cb func([]string, error)) func([]string, error) {
	return func(ids []string, err error) {
		if a.metrics != nil {
			a.metrics.RecordsLost.Add(context.Background(), int64(len(ids)))
		}
		if cb != nil {
			cb(ids, err)
		}
	}
}

// loadRules reads the rule file and swaps it in. Problems degrade to an
// empty rule set; they never propagate.
func (a *AutomationSystem) loadRules() ReloadStatus {
	res, err := rule.LoadFile(a.rulesPath)
	if err != nil {
		slog.Error("rule load failed, running with no automations",
			"path", a.rulesPath, "error", err)
		a.rules.swap(rule.Empty())
		return ReloadStatus{Errors: []string{err.Error()}}
	}
	for _, w := range res.Warnings {
		slog.Warn("rule config accepted with issue", "path", a.rulesPath, "issue", w)
	}
	if rule.EnsureIDs(res.Config) {
		if err := rule.Save(res.Config, a.rulesPath); err != nil {
			slog.Warn("matcher id backfill not persisted", "path", a.rulesPath, "error", err)
		}
	}
	a.rules.swap(res.Config)
	return ReloadStatus{
		Success:         true,
		AutomationCount: res.Config.MatcherCount(),
		Errors:          res.Warnings,
	}
}

func (a *AutomationSystem) onTick(ctx context.Context, info TickInfo) error {
	if a.metrics != nil {
		a.metrics.SchedulerTicks.Add(ctx, 1)
	}
	a.Emit(ctx, event.TypeSchedulerTick, tickPayload(a.workspaceID, info))
	return nil
}

// tickPayload converts scheduler tick info into the event payload shape.
func tickPayload(workspaceID string, info TickInfo) event.Payload {
	return event.Payload{
		WorkspaceID: workspaceID,
		Timestamp:   info.Timestamp,
		LocalTime:   info.LocalTime,
		LocalDate:   info.LocalDate,
		Hour:        event.Int(info.Hour),
		Minute:      event.Int(info.Minute),
		DayOfWeek:   event.Int(info.DayOfWeek),
		DayName:     info.DayName,
	}
}

// Emit publishes one event, filling workspace id and timestamp defaults.
// It returns after every subscribed handler has run.
func (a *AutomationSystem) Emit(ctx context.Context, t event.Type, p event.Payload) {
	a.bus.Emit(ctx, t, p.WithDefaults(a.workspaceID, time.Now()))
}

// UpdateSessionMetadata diffs the new snapshot against the stored one and
// emits the implied events in a fixed order, awaiting each before the
// next. A session never seen before diffs against the zero snapshot. The
// new snapshot is stored first so handlers observe the state they are
// being told about.
func (a *AutomationSystem) UpdateSessionMetadata(ctx context.Context, sessionID string, snap event.MetadataSnapshot) []event.Type {
	ctx, span := otel.StartDiffSpan(ctx, sessionID)
	defer span.End()

	old, _ := a.meta.Metadata(sessionID)
	changes := diffSnapshots(old, snap)
	a.meta.set(sessionID, snap)

	emitted := make([]event.Type, 0, len(changes))
	for _, change := range changes {
		p := change.payload
		p.SessionID = sessionID
		a.Emit(ctx, change.typ, p)
		emitted = append(emitted, change.typ)
	}
	return emitted
}

// SetInitialSessionMetadata seeds the stored snapshot without emitting
// anything. The next update diffs against this seed instead of the zero
// snapshot.
func (a *AutomationSystem) SetInitialSessionMetadata(sessionID string, snap event.MetadataSnapshot) {
	a.meta.set(sessionID, snap)
}

// RemoveSessionMetadata forgets a session, typically at session end.
func (a *AutomationSystem) RemoveSessionMetadata(sessionID string) {
	a.meta.remove(sessionID)
}

// ReloadRules re-reads the rule file and swaps the active set. A load
// failure leaves the engine running with no automations, matching
// initial-load behavior.
func (a *AutomationSystem) ReloadRules() ReloadStatus {
	status := a.loadRules()
	slog.Info("rules reloaded",
		"success", status.Success, "automations", status.AutomationCount)
	return status
}

// LogPath returns the event log location for external tools.
func (a *AutomationSystem) LogPath() string {
	return a.eventLog.LogPath()
}

// Disposed reports whether Dispose has run.
func (a *AutomationSystem) Disposed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.disposed
}

// Dispose tears the system down: scheduler first so no tick lands mid
// teardown, then the handlers, then the bus, then the metadata cache.
// Safe to call more than once.
func (a *AutomationSystem) Dispose(ctx context.Context) error {
	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return nil
	}
	a.disposed = true
	a.mu.Unlock()

	a.scheduler.Stop()
	a.prompts.Dispose()
	err := a.eventLog.Dispose(ctx)
	a.bus.Dispose()
	a.meta.clear()
	slog.Info("automation system disposed", "workspace", a.workspaceID)
	return err
}

// resolvePath anchors a relative engine path at the workspace root.
func resolvePath(root, path string) string {
	if filepath.IsAbs(path) || root == "" {
		return path
	}
	return filepath.Join(root, path)
}
