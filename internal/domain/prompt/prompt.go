// Package prompt defines the pending-prompt output shape and the template
// expansion helpers used to build one: CRAFT_* environment synthesis,
// $VAR/${VAR} substitution, and @mention extraction.
package prompt

// PendingPrompt is one expanded prompt ready for an external executor. The
// JSON keys follow the host callback contract.
type PendingPrompt struct {
	SessionID      string   `json:"sessionId,omitempty"`
	MatcherID      string   `json:"matcherId,omitempty"`
	Prompt         string   `json:"prompt"`
	Mentions       []string `json:"mentions"`
	Labels         []string `json:"labels,omitempty"`
	PermissionMode string   `json:"permissionMode,omitempty"`
	LLMConnection  string   `json:"llmConnection,omitempty"`
	Model          string   `json:"model,omitempty"`
}
