package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/craftapp/craftd/internal/adapter/otel"
	"github.com/craftapp/craftd/internal/domain/event"
	"github.com/craftapp/craftd/internal/domain/prompt"
	"github.com/craftapp/craftd/internal/domain/rule"
	"github.com/craftapp/craftd/internal/port/eventbus"
)

// RuleSource provides the matcher lists the prompt pipeline consults.
type RuleSource interface {
	MatchersFor(t event.Type) []rule.Matcher
}

// MetadataSource provides the last stored metadata snapshot per session.
type MetadataSource interface {
	Metadata(sessionID string) (event.MetadataSnapshot, bool)
}

// PromptOptions configures a PromptService.
type PromptOptions struct {
	SessionID string // fallback target when the event carries no session
	Rules     RuleSource
	Metadata  MetadataSource // optional
	Metrics   *otel.Metrics  // optional

	// OnPromptsReady receives each non-empty batch of generated prompts.
	OnPromptsReady func(prompts []prompt.PendingPrompt)
	// OnError is notified when a batch could not be produced for an event.
	OnError func(eventType event.Type, err error)
}

// PromptService is the bus handler that turns matching workspace events
// into pending prompts. Agent lifecycle events are ignored even when a
// matcher is configured for them.
type PromptService struct {
	opts PromptOptions

	mu          sync.Mutex
	unsubscribe func()
	disposed    bool
}

// NewPromptService creates the service. Call Subscribe to attach it to a bus.
func NewPromptService(opts PromptOptions) *PromptService {
	return &PromptService{opts: opts}
}

// Subscribe registers the service for every event type on the bus.
func (s *PromptService) Subscribe(bus eventbus.Bus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || s.unsubscribe != nil {
		return
	}
	s.unsubscribe = bus.SubscribeAll(s.handle)
}

func (s *PromptService) handle(ctx context.Context, t event.Type, p event.Payload) error {
	if s.isDisposed() {
		return nil
	}
	if !t.IsWorkspace() {
		return nil
	}
	matchers := s.opts.Rules.MatchersFor(t)
	if len(matchers) == 0 {
		return nil
	}

	ctx, span := otel.StartPromptSpan(ctx, string(t), len(matchers))
	defer span.End()

	value := rule.MatchValue(t, p)
	// Cron fields are evaluated against the minute the event announces,
	// not the instant the handler happens to run.
	now := p.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	type match struct {
		matcher *rule.Matcher
		actions []rule.Action
	}
	var matched []match
	for i := range matchers {
		m := &matchers[i]
		if !rule.Matches(m, t, value, now) {
			continue
		}
		if actions := m.PromptActions(); len(actions) > 0 {
			matched = append(matched, match{matcher: m, actions: actions})
		}
	}
	if len(matched) == 0 {
		return nil
	}

	var meta *event.MetadataSnapshot
	if s.opts.Metadata != nil && p.SessionID != "" {
		if snap, ok := s.opts.Metadata.Metadata(p.SessionID); ok {
			meta = &snap
		}
	}
	env, err := prompt.Env(t, p, meta)
	if err != nil {
		if s.opts.OnError != nil {
			s.opts.OnError(t, err)
		}
		return fmt.Errorf("build prompt environment: %w", err)
	}

	target := p.SessionID
	if target == "" {
		target = s.opts.SessionID
	}

	batch := make([]prompt.PendingPrompt, 0, len(matched))
	for _, m := range matched {
		labels := expandAll(m.matcher.Labels, env)
		for _, action := range m.actions {
			text := prompt.Expand(action.Prompt, env)
			mentions := prompt.Mentions(text)
			if mentions == nil {
				mentions = []string{}
			}
			batch = append(batch, prompt.PendingPrompt{
				SessionID:      target,
				MatcherID:      m.matcher.ID,
				Prompt:         text,
				Mentions:       mentions,
				Labels:         labels,
				PermissionMode: m.matcher.PermissionMode,
				LLMConnection:  action.LLMConnection,
				Model:          action.Model,
			})
		}
	}

	if s.opts.Metrics != nil {
		s.opts.Metrics.PromptsGenerated.Add(ctx, int64(len(batch)))
	}
	slog.Debug("pending prompts ready", "event", t, "count", len(batch))
	if s.opts.OnPromptsReady != nil {
		s.opts.OnPromptsReady(batch)
	}
	return nil
}

func (s *PromptService) isDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// Dispose unregisters the bus handler. An event already in dispatch
// finishes; no new batch starts afterward.
func (s *PromptService) Dispose() {
	s.mu.Lock()
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.disposed = true
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// expandAll applies environment expansion to each template in order.
func expandAll(templates []string, env map[string]string) []string {
	if len(templates) == 0 {
		return nil
	}
	out := make([]string, len(templates))
	for i, tpl := range templates {
		out[i] = prompt.Expand(tpl, env)
	}
	return out
}
