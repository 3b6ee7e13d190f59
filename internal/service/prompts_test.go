package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/craftapp/craftd/internal/adapter/membus"
	"github.com/craftapp/craftd/internal/domain/event"
	"github.com/craftapp/craftd/internal/domain/prompt"
	"github.com/craftapp/craftd/internal/domain/rule"
)

// batchRecorder captures prompt batches delivered by the service.
type batchRecorder struct {
	mu      sync.Mutex
	batches [][]prompt.PendingPrompt
}

func (r *batchRecorder) record(batch []prompt.PendingPrompt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, batch)
}

func (r *batchRecorder) all() [][]prompt.PendingPrompt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batches
}

func promptMatcher(t event.Type, m rule.Matcher) *ruleStore {
	return &ruleStore{cfg: &rule.Config{
		Automations: map[event.Type][]rule.Matcher{t: {m}},
	}}
}

func TestPromptServiceGeneratesBatch(t *testing.T) {
	rec := &batchRecorder{}
	rules := promptMatcher(event.TypeLabelAdd, rule.Matcher{
		ID:             "m-1",
		Pattern:        "urgent.*",
		Labels:         []string{"seen-$CRAFT_LABEL"},
		PermissionMode: "plan",
		Actions: []rule.Action{
			{Type: rule.KindPrompt, Prompt: "triage $CRAFT_LABEL with @Reviewer"},
			{Type: rule.KindPrompt, Prompt: "summarize ${CRAFT_LABEL}", LLMConnection: "openai", Model: "gpt-4o"},
		},
	})

	svc := NewPromptService(PromptOptions{
		SessionID:      "host",
		Rules:          rules,
		OnPromptsReady: rec.record,
	})
	bus := membus.New(membus.Options{WorkspaceID: "w1"})
	defer bus.Dispose()
	svc.Subscribe(bus)

	bus.Emit(context.Background(), event.TypeLabelAdd, event.Payload{
		SessionID: "s1",
		Label:     "urgent-fix",
	})

	batches := rec.all()
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}
	batch := batches[0]
	if len(batch) != 2 {
		t.Fatalf("expected 2 prompts in batch, got %d", len(batch))
	}

	first := batch[0]
	if first.Prompt != "triage urgent-fix with @Reviewer" {
		t.Errorf("unexpected prompt text %q", first.Prompt)
	}
	if first.SessionID != "s1" {
		t.Errorf("expected session s1, got %q", first.SessionID)
	}
	if first.MatcherID != "m-1" {
		t.Errorf("expected matcher id m-1, got %q", first.MatcherID)
	}
	if len(first.Mentions) != 1 || first.Mentions[0] != "Reviewer" {
		t.Errorf("expected mentions [Reviewer], got %v", first.Mentions)
	}
	if len(first.Labels) != 1 || first.Labels[0] != "seen-urgent-fix" {
		t.Errorf("expected expanded labels, got %v", first.Labels)
	}
	if first.PermissionMode != "plan" {
		t.Errorf("expected permission mode plan, got %q", first.PermissionMode)
	}

	second := batch[1]
	if second.Prompt != "summarize urgent-fix" {
		t.Errorf("unexpected prompt text %q", second.Prompt)
	}
	if second.LLMConnection != "openai" || second.Model != "gpt-4o" {
		t.Errorf("expected llm routing carried, got %+v", second)
	}
	if len(second.Mentions) != 0 {
		t.Errorf("expected no mentions, got %v", second.Mentions)
	}
	if second.Mentions == nil {
		t.Error("expected mentions to be an empty list, not nil")
	}
}

func TestPromptServiceIgnoresAgentEvents(t *testing.T) {
	rec := &batchRecorder{}
	rules := promptMatcher(event.TypePreToolUse, rule.Matcher{
		ID:      "m-agent",
		Actions: []rule.Action{{Type: rule.KindPrompt, Prompt: "never"}},
	})

	svc := NewPromptService(PromptOptions{Rules: rules, OnPromptsReady: rec.record})
	bus := membus.New(membus.Options{})
	defer bus.Dispose()
	svc.Subscribe(bus)

	bus.Emit(context.Background(), event.TypePreToolUse, event.Payload{
		SessionID: "s1",
		ToolName:  "Bash",
	})

	if got := rec.all(); len(got) != 0 {
		t.Fatalf("expected no batches for agent lifecycle event, got %d", len(got))
	}
}

func TestPromptServiceNoMatchNoBatch(t *testing.T) {
	rec := &batchRecorder{}
	rules := promptMatcher(event.TypeLabelAdd, rule.Matcher{
		ID:      "m-1",
		Pattern: "^release-",
		Actions: []rule.Action{{Type: rule.KindPrompt, Prompt: "ship it"}},
	})

	svc := NewPromptService(PromptOptions{Rules: rules, OnPromptsReady: rec.record})
	bus := membus.New(membus.Options{})
	defer bus.Dispose()
	svc.Subscribe(bus)

	bus.Emit(context.Background(), event.TypeLabelAdd, event.Payload{Label: "hotfix"})

	if got := rec.all(); len(got) != 0 {
		t.Fatalf("expected no batches for non-matching label, got %d", len(got))
	}
}

func TestPromptServiceSkipsNonPromptActions(t *testing.T) {
	rec := &batchRecorder{}
	rules := promptMatcher(event.TypeLabelAdd, rule.Matcher{
		ID:      "m-1",
		Actions: []rule.Action{{Type: "webhook", Prompt: ""}},
	})

	svc := NewPromptService(PromptOptions{Rules: rules, OnPromptsReady: rec.record})
	bus := membus.New(membus.Options{})
	defer bus.Dispose()
	svc.Subscribe(bus)

	bus.Emit(context.Background(), event.TypeLabelAdd, event.Payload{Label: "anything"})

	if got := rec.all(); len(got) != 0 {
		t.Fatalf("expected no batches without prompt actions, got %d", len(got))
	}
}

func TestPromptServiceFallbackSession(t *testing.T) {
	rec := &batchRecorder{}
	rules := promptMatcher(event.TypeSchedulerTick, rule.Matcher{
		ID:      "m-tick",
		Actions: []rule.Action{{Type: rule.KindPrompt, Prompt: "standup time"}},
	})

	svc := NewPromptService(PromptOptions{
		SessionID:      "host-session",
		Rules:          rules,
		OnPromptsReady: rec.record,
	})
	bus := membus.New(membus.Options{})
	defer bus.Dispose()
	svc.Subscribe(bus)

	bus.Emit(context.Background(), event.TypeSchedulerTick, event.Payload{
		Timestamp: time.Date(2025, 6, 2, 12, 5, 0, 0, time.UTC),
		LocalTime: "12:05",
	})

	batches := rec.all()
	if len(batches) != 1 || len(batches[0]) != 1 {
		t.Fatalf("expected one batch with one prompt, got %v", batches)
	}
	if got := batches[0][0].SessionID; got != "host-session" {
		t.Errorf("expected fallback session, got %q", got)
	}
}

func TestPromptServiceCronAgainstEventMinute(t *testing.T) {
	rec := &batchRecorder{}
	rules := promptMatcher(event.TypeSchedulerTick, rule.Matcher{
		ID:      "m-cron",
		Cron:    "*/5 * * * *",
		Actions: []rule.Action{{Type: rule.KindPrompt, Prompt: "five minute check"}},
	})

	svc := NewPromptService(PromptOptions{Rules: rules, OnPromptsReady: rec.record})
	bus := membus.New(membus.Options{})
	defer bus.Dispose()
	svc.Subscribe(bus)

	// The announced minute matches */5 even if dispatch runs later.
	bus.Emit(context.Background(), event.TypeSchedulerTick, event.Payload{
		Timestamp: time.Date(2025, 6, 2, 9, 10, 0, 0, time.UTC),
	})
	// An off-schedule minute produces nothing.
	bus.Emit(context.Background(), event.TypeSchedulerTick, event.Payload{
		Timestamp: time.Date(2025, 6, 2, 9, 11, 0, 0, time.UTC),
	})

	batches := rec.all()
	if len(batches) != 1 {
		t.Fatalf("expected exactly 1 batch, got %d", len(batches))
	}
}

func TestPromptServiceMetadataInEnv(t *testing.T) {
	rec := &batchRecorder{}
	rules := promptMatcher(event.TypeLabelAdd, rule.Matcher{
		ID:      "m-1",
		Actions: []rule.Action{{Type: rule.KindPrompt, Prompt: "state: $CRAFT_SESSION_METADATA"}},
	})

	meta := newMetadataCache()
	meta.set("s1", event.MetadataSnapshot{
		Labels:        []string{"urgent"},
		SessionStatus: "running",
	})

	svc := NewPromptService(PromptOptions{
		Rules:          rules,
		Metadata:       meta,
		OnPromptsReady: rec.record,
	})
	bus := membus.New(membus.Options{})
	defer bus.Dispose()
	svc.Subscribe(bus)

	bus.Emit(context.Background(), event.TypeLabelAdd, event.Payload{
		SessionID: "s1",
		Label:     "urgent",
	})

	batches := rec.all()
	if len(batches) != 1 || len(batches[0]) != 1 {
		t.Fatalf("expected one batch with one prompt, got %v", batches)
	}
	text := batches[0][0].Prompt
	if !strings.Contains(text, `"session_status":"running"`) {
		t.Errorf("expected metadata JSON in prompt, got %q", text)
	}
	if !strings.Contains(text, `"labels":["urgent"]`) {
		t.Errorf("expected labels in metadata JSON, got %q", text)
	}
}

func TestPromptServiceDispose(t *testing.T) {
	rec := &batchRecorder{}
	rules := promptMatcher(event.TypeLabelAdd, rule.Matcher{
		ID:      "m-1",
		Actions: []rule.Action{{Type: rule.KindPrompt, Prompt: "hi"}},
	})

	svc := NewPromptService(PromptOptions{Rules: rules, OnPromptsReady: rec.record})
	bus := membus.New(membus.Options{})
	defer bus.Dispose()
	svc.Subscribe(bus)

	bus.Emit(context.Background(), event.TypeLabelAdd, event.Payload{Label: "x"})
	svc.Dispose()
	bus.Emit(context.Background(), event.TypeLabelAdd, event.Payload{Label: "y"})

	if got := rec.all(); len(got) != 1 {
		t.Fatalf("expected exactly 1 batch before dispose, got %d", len(got))
	}
}
