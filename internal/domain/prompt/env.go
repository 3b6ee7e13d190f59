package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/craftapp/craftd/internal/domain/event"
)

// Fixed keys present in every expansion environment. Per-field keys come on
// top of these, one CRAFT_<FIELD> per populated payload field.
const (
	envEvent           = "CRAFT_EVENT"
	envEventData       = "CRAFT_EVENT_DATA"
	envSessionID       = "CRAFT_SESSION_ID"
	envSessionName     = "CRAFT_SESSION_NAME"
	envWorkspaceID     = "CRAFT_WORKSPACE_ID"
	envSessionMetadata = "CRAFT_SESSION_METADATA"
)

// Env builds the variable map for one event. String field values are
// shell-sanitized; the JSON blob values are not, since stripping quotes
// would corrupt them.
func Env(t event.Type, p event.Payload, meta *event.MetadataSnapshot) (map[string]string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode payload fields: %w", err)
	}

	env := make(map[string]string, len(fields)+6)
	for key, val := range fields {
		env["CRAFT_"+strings.ToUpper(key)] = fieldValue(val)
	}

	env[envEvent] = string(t)
	env[envEventData] = string(raw)
	env[envSessionID] = Sanitize(p.SessionID)
	env[envSessionName] = Sanitize(p.SessionName)
	env[envWorkspaceID] = Sanitize(p.WorkspaceID)

	metaJSON := "{}"
	if meta != nil {
		if b, err := json.Marshal(meta); err == nil {
			metaJSON = string(b)
		}
	}
	env[envSessionMetadata] = metaJSON
	return env, nil
}

// fieldValue renders one payload field: strings sanitized and unquoted,
// scalars as their JSON text, structured values as compact JSON.
func fieldValue(val json.RawMessage) string {
	var s string
	if err := json.Unmarshal(val, &s); err == nil {
		return Sanitize(s)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, val); err != nil {
		return string(val)
	}
	return buf.String()
}

// Expand substitutes $VAR and ${VAR} references from env into template.
// Unresolvable variables expand to the empty string.
func Expand(template string, env map[string]string) string {
	return os.Expand(template, func(key string) string { return env[key] })
}

// shellMeta is the character set stripped from user-controlled values. The
// host may embed expanded prompts in shell commands, so values must not be
// able to terminate a quote or start a substitution.
const shellMeta = "`$\\\"';&|<>(){}\n\r"

// Sanitize strips shell metacharacters from a user-controlled value.
func Sanitize(s string) string {
	if !strings.ContainsAny(s, shellMeta) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if !strings.ContainsRune(shellMeta, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
