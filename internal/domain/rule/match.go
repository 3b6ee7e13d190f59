package rule

import (
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/craftapp/craftd/internal/domain/event"
)

// MatchValue extracts the single string an event type is matched on. Label
// events match on the label, mode changes on the new mode, flag changes on
// the stringified flag, status changes on the new status, and tool events
// on the tool name with a fallback to the nested tool-call shape. Config
// changes and scheduler ticks match on the empty string: the former so a
// pattern-less matcher always fires, the latter because ticks are matched
// by cron, not regex.
func MatchValue(t event.Type, p event.Payload) string {
	switch t {
	case event.TypeLabelAdd, event.TypeLabelRemove:
		return p.Label
	case event.TypePermissionModeChange:
		return p.NewMode
	case event.TypeFlagChange:
		if p.IsFlagged == nil {
			return ""
		}
		return strconv.FormatBool(*p.IsFlagged)
	case event.TypeSessionStatusChange:
		return p.NewStatus
	case event.TypePreToolUse, event.TypePostToolUse, event.TypePermissionRequest:
		if p.ToolName != "" {
			return p.ToolName
		}
		if p.ToolCall != nil {
			return p.ToolCall.Name
		}
		return ""
	default:
		return ""
	}
}

// Matches tests one matcher against an event. Scheduler ticks require a
// cron expression that fires in the minute containing now; every other type
// matches unconditionally when no pattern is set, or by regex otherwise.
// An invalid regex, cron expression, or timezone makes the matcher
// non-matching rather than an error.
func Matches(m *Matcher, t event.Type, matchValue string, now time.Time) bool {
	if m.Disabled() {
		return false
	}
	if t == event.TypeSchedulerTick {
		return cronMatches(m, now)
	}
	if m.Pattern == "" {
		return true
	}
	re, err := patterns.compile(m.Pattern)
	if err != nil {
		return false
	}
	return re.MatchString(matchValue)
}

func cronMatches(m *Matcher, now time.Time) bool {
	if m.Cron == "" {
		return false
	}
	sched, err := cron.ParseStandard(m.Cron)
	if err != nil {
		return false
	}
	loc := now.Location()
	if m.Timezone != "" {
		l, err := time.LoadLocation(m.Timezone)
		if err != nil {
			return false
		}
		loc = l
	}
	// The schedule fires in this minute iff the next firing strictly after
	// one second before the minute boundary lands exactly on the boundary.
	minute := now.In(loc).Truncate(time.Minute)
	return sched.Next(minute.Add(-time.Second)).Equal(minute)
}
