// Package rule defines the automation rule model and matching engine for a
// Craft workspace. Rules live in a JSON file owned by external editors; this
// package loads, migrates, and evaluates them but only writes the file back
// for ID backfill.
package rule

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/craftapp/craftd/internal/domain/event"
)

// KindPrompt is the only action kind this engine executes. Other kinds are
// carried through load and rewrite untouched for forward compatibility.
const KindPrompt = "prompt"

// Config is the parsed rule file: matcher lists keyed by event type.
type Config struct {
	Version     int                      `json:"version,omitempty"`
	Automations map[event.Type][]Matcher `json:"automations"`
}

// Matcher is one user-authored rule. Pattern and Cron are mutually
// exclusive in practice: Cron applies only to SchedulerTick rules.
// The JSON keys follow the established rule-file format.
type Matcher struct {
	ID             string   `json:"id,omitempty"`
	Name           string   `json:"name,omitempty"`
	Pattern        string   `json:"matcher,omitempty"`
	Cron           string   `json:"cron,omitempty"`
	Timezone       string   `json:"timezone,omitempty"`
	Enabled        *bool    `json:"enabled,omitempty"`
	Labels         []string `json:"labels,omitempty"`
	PermissionMode string   `json:"permissionMode,omitempty"`
	Actions        []Action `json:"actions"`
}

// Disabled reports whether the matcher was explicitly switched off.
// An absent enabled field means the matcher is active.
func (m *Matcher) Disabled() bool { return m.Enabled != nil && !*m.Enabled }

// PromptActions returns the matcher's prompt-kind actions in file order.
func (m *Matcher) PromptActions() []Action {
	var out []Action
	for _, a := range m.Actions {
		if a.Type == KindPrompt {
			out = append(out, a)
		}
	}
	return out
}

// Action is one entry in a matcher's action list. Prompt actions are fully
// typed; any other kind keeps its raw JSON so a rewrite never drops fields
// this engine does not understand.
type Action struct {
	Type          string `json:"type"`
	Prompt        string `json:"prompt,omitempty"`
	LLMConnection string `json:"llmConnection,omitempty"`
	Model         string `json:"model,omitempty"`

	raw json.RawMessage
}

// UnmarshalJSON decodes the known fields and retains the original bytes.
func (a *Action) UnmarshalJSON(data []byte) error {
	type plain Action
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = Action(p)
	a.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON writes back the original bytes when the action came from a
// file, so unknown kinds and extra fields survive an ID-backfill rewrite.
func (a Action) MarshalJSON() ([]byte, error) {
	if a.raw != nil {
		return a.raw, nil
	}
	type plain Action
	return json.Marshal(plain(a))
}

// MatchersFor returns the matcher list configured for an event type.
// A nil config has no matchers.
func (c *Config) MatchersFor(t event.Type) []Matcher {
	if c == nil {
		return nil
	}
	return c.Automations[t]
}

// MatcherCount returns the total number of matchers across all event types.
func (c *Config) MatcherCount() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, ms := range c.Automations {
		n += len(ms)
	}
	return n
}

// EventTypes returns the event types with at least one matcher, sorted.
func (c *Config) EventTypes() []event.Type {
	if c == nil {
		return nil
	}
	types := make([]event.Type, 0, len(c.Automations))
	for t, ms := range c.Automations {
		if len(ms) > 0 {
			types = append(types, t)
		}
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Empty returns a usable config with no rules, the fallback shape when a
// rule file is missing or fails to parse.
func Empty() *Config {
	return &Config{Automations: map[event.Type][]Matcher{}}
}

func (m *Matcher) describe(t event.Type, index int) string {
	if m.Name != "" {
		return fmt.Sprintf("%s[%d] (%s)", t, index, m.Name)
	}
	return fmt.Sprintf("%s[%d]", t, index)
}
