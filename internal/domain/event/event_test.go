package event

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestCanonicalKnownType(t *testing.T) {
	typ, deprecated, ok := Canonical("LabelAdd")
	if !ok {
		t.Fatal("expected LabelAdd to resolve")
	}
	if deprecated {
		t.Error("LabelAdd is canonical, not deprecated")
	}
	if typ != TypeLabelAdd {
		t.Errorf("expected LabelAdd, got %s", typ)
	}
}

func TestCanonicalDeprecatedAliases(t *testing.T) {
	cases := map[string]Type{
		"TagAdd":       TypeLabelAdd,
		"TagRemove":    TypeLabelRemove,
		"ModeChange":   TypePermissionModeChange,
		"StatusChange": TypeSessionStatusChange,
	}
	for alias, want := range cases {
		typ, deprecated, ok := Canonical(alias)
		if !ok {
			t.Errorf("%s: expected alias to resolve", alias)
			continue
		}
		if !deprecated {
			t.Errorf("%s: expected deprecated flag", alias)
		}
		if typ != want {
			t.Errorf("%s: expected %s, got %s", alias, want, typ)
		}
	}
}

func TestCanonicalUnknownType(t *testing.T) {
	if _, _, ok := Canonical("NoSuchEvent"); ok {
		t.Error("expected unknown name to be rejected")
	}
}

func TestWorkspaceAndAgentFamiliesAreDisjoint(t *testing.T) {
	for _, typ := range Types() {
		if typ.IsWorkspace() && typ.IsAgent() {
			t.Errorf("%s belongs to both families", typ)
		}
		if !typ.Known() {
			t.Errorf("%s listed but not known", typ)
		}
	}
	if !TypeSchedulerTick.IsWorkspace() {
		t.Error("SchedulerTick must be a workspace event")
	}
	if TypePreToolUse.IsWorkspace() {
		t.Error("PreToolUse must not be a workspace event")
	}
}

func TestPayloadWithDefaults(t *testing.T) {
	now := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	p := Payload{Label: "urgent"}.WithDefaults("ws-1", now)

	if p.WorkspaceID != "ws-1" {
		t.Errorf("expected workspace ws-1, got %q", p.WorkspaceID)
	}
	if !p.Timestamp.Equal(now) {
		t.Errorf("expected timestamp %v, got %v", now, p.Timestamp)
	}

	// Explicit values are preserved.
	earlier := now.Add(-time.Hour)
	p = Payload{WorkspaceID: "ws-2", Timestamp: earlier}.WithDefaults("ws-1", now)
	if p.WorkspaceID != "ws-2" || !p.Timestamp.Equal(earlier) {
		t.Error("defaults must not overwrite explicit values")
	}
}

func TestPayloadOmitsEmptyFields(t *testing.T) {
	p := Payload{WorkspaceID: "ws-1", Timestamp: time.Now(), Label: "bug"}
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(raw)
	for _, absent := range []string{"old_mode", "hour", "tool_name", "is_flagged"} {
		if strings.Contains(s, absent) {
			t.Errorf("expected %s to be omitted, got %s", absent, s)
		}
	}
}

func TestPayloadFlagFalseSurvivesSerialization(t *testing.T) {
	p := Payload{WorkspaceID: "ws-1", Timestamp: time.Now(), IsFlagged: Bool(false)}
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"is_flagged":false`) {
		t.Errorf("expected explicit false flag, got %s", raw)
	}
}
