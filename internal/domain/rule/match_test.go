package rule

import (
	"testing"
	"time"

	"github.com/craftapp/craftd/internal/domain/event"
)

func TestMatchValuePerType(t *testing.T) {
	cases := []struct {
		name    string
		typ     event.Type
		payload event.Payload
		want    string
	}{
		{"label add", event.TypeLabelAdd, event.Payload{Label: "urgent"}, "urgent"},
		{"label remove", event.TypeLabelRemove, event.Payload{Label: "done"}, "done"},
		{"mode change", event.TypePermissionModeChange, event.Payload{OldMode: "plan", NewMode: "acceptEdits"}, "acceptEdits"},
		{"flag on", event.TypeFlagChange, event.Payload{IsFlagged: event.Bool(true)}, "true"},
		{"flag off", event.TypeFlagChange, event.Payload{IsFlagged: event.Bool(false)}, "false"},
		{"status change", event.TypeSessionStatusChange, event.Payload{OldStatus: "idle", NewStatus: "running"}, "running"},
		{"tool name", event.TypePreToolUse, event.Payload{ToolName: "Bash"}, "Bash"},
		{"tool call fallback", event.TypePostToolUse, event.Payload{ToolCall: &event.ToolCall{Name: "Read"}}, "Read"},
		{"config change always empty", event.TypeLabelConfigChange, event.Payload{Label: "x"}, ""},
		{"scheduler tick empty", event.TypeSchedulerTick, event.Payload{LocalTime: "14:30"}, ""},
	}
	for _, tc := range cases {
		if got := MatchValue(tc.typ, tc.payload); got != tc.want {
			t.Errorf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestMatchesUnconditionalWithoutPattern(t *testing.T) {
	m := Matcher{Actions: []Action{{Type: KindPrompt, Prompt: "x"}}}
	if !Matches(&m, event.TypeLabelAdd, "anything", time.Now()) {
		t.Error("pattern-less matcher must match any value")
	}
	if !Matches(&m, event.TypeLabelConfigChange, "", time.Now()) {
		t.Error("pattern-less matcher must match the empty value")
	}
}

func TestMatchesRegex(t *testing.T) {
	m := Matcher{Pattern: "urgent|critical"}
	if !Matches(&m, event.TypeLabelAdd, "urgent", time.Now()) {
		t.Error("expected match for urgent")
	}
	if Matches(&m, event.TypeLabelAdd, "routine", time.Now()) {
		t.Error("expected no match for routine")
	}
}

func TestMatchesInvalidRegexNeverMatches(t *testing.T) {
	m := Matcher{Pattern: "[unclosed"}
	if Matches(&m, event.TypeLabelAdd, "anything", time.Now()) {
		t.Error("invalid regex must be treated as non-matching")
	}
}

func TestMatchesDisabledMatcher(t *testing.T) {
	off := false
	m := Matcher{Enabled: &off}
	if Matches(&m, event.TypeLabelAdd, "anything", time.Now()) {
		t.Error("disabled matcher must never match")
	}
}

func TestMatchesCronOnTick(t *testing.T) {
	m := Matcher{Cron: "*/15 * * * *"}
	on := time.Date(2025, 6, 2, 14, 30, 5, 0, time.UTC)
	off := time.Date(2025, 6, 2, 14, 31, 5, 0, time.UTC)

	if !Matches(&m, event.TypeSchedulerTick, "", on) {
		t.Error("expected match at a 15-minute boundary")
	}
	if Matches(&m, event.TypeSchedulerTick, "", off) {
		t.Error("expected no match off the boundary")
	}
}

func TestMatchesTickWithoutCron(t *testing.T) {
	m := Matcher{Pattern: ".*"}
	if Matches(&m, event.TypeSchedulerTick, "", time.Now()) {
		t.Error("tick matcher without cron must never match")
	}
}

func TestMatchesCronRespectsZone(t *testing.T) {
	// 09:00 in a UTC-4 zone; the cron fires at 9am wall clock.
	edt := time.FixedZone("EDT", -4*3600)
	m := Matcher{Cron: "0 9 * * *"}

	if !Matches(&m, event.TypeSchedulerTick, "", time.Date(2025, 6, 2, 9, 0, 30, 0, edt)) {
		t.Error("expected match at 9am local time")
	}
	if Matches(&m, event.TypeSchedulerTick, "", time.Date(2025, 6, 2, 13, 0, 30, 0, edt)) {
		t.Error("expected no match at 1pm local time")
	}
}

func TestMatchesCronExplicitTimezone(t *testing.T) {
	m := Matcher{Cron: "0 9 * * *", Timezone: "UTC"}
	local := time.FixedZone("somewhere", 3*3600)

	// 09:00 UTC expressed as 12:00 in a UTC+3 zone still matches.
	if !Matches(&m, event.TypeSchedulerTick, "", time.Date(2025, 6, 2, 12, 0, 30, 0, local)) {
		t.Error("expected timezone field to override the clock's zone")
	}
}

func TestMatchesCronInvalidInputs(t *testing.T) {
	bad := Matcher{Cron: "not a cron"}
	if Matches(&bad, event.TypeSchedulerTick, "", time.Now()) {
		t.Error("invalid cron must be treated as non-matching")
	}
	badZone := Matcher{Cron: "* * * * *", Timezone: "Not/AZone"}
	if Matches(&badZone, event.TypeSchedulerTick, "", time.Now()) {
		t.Error("invalid timezone must be treated as non-matching")
	}
}
