package rule

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/craftapp/craftd/internal/domain/event"
)

// LoadResult is a parsed rule file plus the non-fatal problems found in it.
// Warnings cover deprecated aliases, unknown event names, and matchers
// dropped for having no actions; none of them fail the load.
type LoadResult struct {
	Config   *Config
	Warnings []string
}

// wireConfig mirrors the file shape before event-name canonicalization.
type wireConfig struct {
	Version     int                  `json:"version"`
	Automations map[string][]Matcher `json:"automations"`
}

// Parse decodes and normalizes a rule file. Deprecated event names are
// rewritten to their canonical form (merging with any canonical entry),
// unknown names are dropped, and matchers without actions are dropped; all
// three produce warnings. Malformed JSON is the only hard error.
func Parse(data []byte) (*LoadResult, error) {
	var wire wireConfig
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("parse rule file: %w", err)
	}

	res := &LoadResult{Config: &Config{
		Version:     wire.Version,
		Automations: map[event.Type][]Matcher{},
	}}

	// Sorted key order keeps alias merging deterministic.
	keys := make([]string, 0, len(wire.Automations))
	for k := range wire.Automations {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		typ, deprecated, ok := event.Canonical(key)
		if !ok {
			res.warnf("unknown event name %q dropped", key)
			continue
		}
		if deprecated {
			res.warnf("deprecated event name %q rewritten to %q", key, typ)
		}
		for i, m := range wire.Automations[key] {
			if len(m.Actions) == 0 {
				res.warnf("matcher %s dropped: no actions", m.describe(typ, i))
				continue
			}
			res.Config.Automations[typ] = append(res.Config.Automations[typ], m)
		}
	}
	return res, nil
}

// LoadFile reads and parses the rule file at path. A missing file is not an
// error; it yields an empty config, matching a workspace that has never
// configured automations.
func LoadFile(path string) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &LoadResult{Config: Empty()}, nil
		}
		return nil, fmt.Errorf("read rule file %s: %w", path, err)
	}
	res, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("rule file %s: %w", path, err)
	}
	return res, nil
}

// EnsureIDs assigns a generated id to every matcher missing one and reports
// whether anything changed. Ids are short (the first uuid segment) since
// they appear in prompt attributions and rule-editor UIs. Types are visited
// in sorted order so repeated runs touch matchers in the same sequence.
func EnsureIDs(cfg *Config) bool {
	if cfg == nil {
		return false
	}
	types := make([]event.Type, 0, len(cfg.Automations))
	for t := range cfg.Automations {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	changed := false
	for _, t := range types {
		ms := cfg.Automations[t]
		for i := range ms {
			if ms[i].ID == "" {
				ms[i].ID = uuid.NewString()[:8]
				changed = true
			}
		}
	}
	return changed
}

// Save writes the config back to path atomically. Only the ID backfill path
// uses this; external editors own all other writes to the rule file.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode rule file: %w", err)
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create rule dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write rule file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace rule file: %w", err)
	}
	return nil
}

func (r *LoadResult) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}
