package event

import "time"

// LoggedEvent is one record in the append-only workspace history. Records
// are written as JSON Lines and identified by id when a write is lost.
type LoggedEvent struct {
	ID          string    `json:"id"`
	Type        Type      `json:"type"`
	WorkspaceID string    `json:"workspace_id"`
	SessionID   string    `json:"session_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Data        Payload   `json:"data"`
}

// MetadataSnapshot is the observed state of one session. Consecutive
// snapshots are diffed to derive workspace events; a session never seen
// before is diffed against the zero snapshot.
type MetadataSnapshot struct {
	SessionName    string   `json:"session_name,omitempty"`
	PermissionMode string   `json:"permission_mode,omitempty"`
	Labels         []string `json:"labels,omitempty"`
	IsFlagged      bool     `json:"is_flagged,omitempty"`
	SessionStatus  string   `json:"session_status,omitempty"`
}
