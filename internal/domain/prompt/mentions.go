package prompt

import (
	"regexp"
	"strings"
)

// A mention is @ followed by a letter then letters, digits, or hyphens,
// at start of text or after whitespace, an opening bracket, or a quote.
// The prefix requirement keeps email-like tokens from being captured.
var mentionRe = regexp.MustCompile(`(?:^|[\s(\[{"'])@([A-Za-z][A-Za-z0-9-]*)`)

// Mentions extracts the @name references from expanded prompt text,
// deduplicated case-insensitively while preserving first-occurrence order
// and casing.
func Mentions(text string) []string {
	matches := mentionRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		key := strings.ToLower(m[1])
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m[1])
	}
	return out
}
