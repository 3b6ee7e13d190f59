// Package event defines the automation event taxonomy for a Craft workspace.
package event

// Type identifies the kind of automation event.
type Type string

// Workspace-level events. Only these are eligible for prompt generation.
const (
	TypeLabelAdd             Type = "LabelAdd"
	TypeLabelRemove          Type = "LabelRemove"
	TypeLabelConfigChange    Type = "LabelConfigChange"
	TypePermissionModeChange Type = "PermissionModeChange"
	TypeFlagChange           Type = "FlagChange"
	TypeSessionStatusChange  Type = "SessionStatusChange"
	TypeSchedulerTick        Type = "SchedulerTick"
)

// Agent-lifecycle events. Logged for auditing and reserved for a separate
// execution path; the prompt pipeline rejects them.
const (
	TypePreToolUse        Type = "PreToolUse"
	TypePostToolUse       Type = "PostToolUse"
	TypeSessionStart      Type = "SessionStart"
	TypeSessionEnd        Type = "SessionEnd"
	TypeSubagentStart     Type = "SubagentStart"
	TypeSubagentStop      Type = "SubagentStop"
	TypeNotification      Type = "Notification"
	TypePermissionRequest Type = "PermissionRequest"
)

// workspaceTypes is the closed set of events the prompt pipeline accepts.
var workspaceTypes = map[Type]bool{
	TypeLabelAdd:             true,
	TypeLabelRemove:          true,
	TypeLabelConfigChange:    true,
	TypePermissionModeChange: true,
	TypeFlagChange:           true,
	TypeSessionStatusChange:  true,
	TypeSchedulerTick:        true,
}

var agentTypes = map[Type]bool{
	TypePreToolUse:        true,
	TypePostToolUse:       true,
	TypeSessionStart:      true,
	TypeSessionEnd:        true,
	TypeSubagentStart:     true,
	TypeSubagentStop:      true,
	TypeNotification:      true,
	TypePermissionRequest: true,
}

// deprecatedAliases maps retired rule-file keys to their canonical types.
// Keys written before the label/permission rename still load.
var deprecatedAliases = map[string]Type{
	"TagAdd":       TypeLabelAdd,
	"TagRemove":    TypeLabelRemove,
	"ModeChange":   TypePermissionModeChange,
	"StatusChange": TypeSessionStatusChange,
}

// IsWorkspace reports whether t is a workspace-level event.
func (t Type) IsWorkspace() bool { return workspaceTypes[t] }

// IsAgent reports whether t is an agent-lifecycle event.
func (t Type) IsAgent() bool { return agentTypes[t] }

// Known reports whether t is a member of the closed event enumeration.
func (t Type) Known() bool { return workspaceTypes[t] || agentTypes[t] }

// Canonical resolves a rule-file key to a known event type. deprecated
// reports that the key was a retired alias for the returned type; ok is
// false when the key names no known event at all.
func Canonical(name string) (t Type, deprecated, ok bool) {
	if alias, found := deprecatedAliases[name]; found {
		return alias, true, true
	}
	if Type(name).Known() {
		return Type(name), false, true
	}
	return "", false, false
}

// Types returns every known event type, workspace events first. The order
// is stable so config reports and tests stay deterministic.
func Types() []Type {
	return []Type{
		TypeLabelAdd,
		TypeLabelRemove,
		TypeLabelConfigChange,
		TypePermissionModeChange,
		TypeFlagChange,
		TypeSessionStatusChange,
		TypeSchedulerTick,
		TypePreToolUse,
		TypePostToolUse,
		TypeSessionStart,
		TypeSessionEnd,
		TypeSubagentStart,
		TypeSubagentStop,
		TypeNotification,
		TypePermissionRequest,
	}
}
