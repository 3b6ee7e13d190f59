package event

import (
	"encoding/json"
	"time"
)

// Payload carries the data for one automation event. It is a single flat
// shape shared by every event type; fields that do not apply stay zero and
// are omitted from JSON. Prompt expansion derives one CRAFT_* variable per
// populated field, so tags here are part of the template contract.
type Payload struct {
	WorkspaceID string    `json:"workspace_id"`
	SessionID   string    `json:"session_id,omitempty"`
	SessionName string    `json:"session_name,omitempty"`
	Timestamp   time.Time `json:"timestamp"`

	// Label events.
	Label string `json:"label,omitempty"`

	// Permission mode changes.
	OldMode string `json:"old_mode,omitempty"`
	NewMode string `json:"new_mode,omitempty"`

	// Flag changes. Pointer so an explicit false survives serialization.
	IsFlagged *bool `json:"is_flagged,omitempty"`

	// Session status changes.
	OldStatus string `json:"old_status,omitempty"`
	NewStatus string `json:"new_status,omitempty"`

	// Scheduler ticks.
	LocalTime string `json:"local_time,omitempty"`
	LocalDate string `json:"local_date,omitempty"`
	Hour      *int   `json:"hour,omitempty"`
	Minute    *int   `json:"minute,omitempty"`
	DayOfWeek *int   `json:"day_of_week,omitempty"`
	DayName   string `json:"day_name,omitempty"`

	// Agent-lifecycle events.
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`
	ToolCall  *ToolCall       `json:"tool_call,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// ToolCall mirrors the nested tool invocation shape some agent hosts emit
// instead of a top-level tool name.
type ToolCall struct {
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// WithDefaults returns a copy of p with the workspace id and timestamp
// filled in when the emitter left them empty.
func (p Payload) WithDefaults(workspaceID string, now time.Time) Payload {
	if p.WorkspaceID == "" {
		p.WorkspaceID = workspaceID
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = now.UTC()
	}
	return p
}

// Bool returns a pointer to b, for populating the IsFlagged field.
func Bool(b bool) *bool { return &b }

// Int returns a pointer to n, for populating scheduler tick fields.
func Int(n int) *int { return &n }
