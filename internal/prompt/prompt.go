// Package prompt flattens a structured chat transcript into the single
// linear prompt string that backend sessions accept.
package prompt

import "strings"

// Role identifies the speaker of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one already-flattened message of a transcript.
type Turn struct {
	Role Role
	Text string
}

// Separator joins consecutive prompt lines.
const Separator = "\n\n"

// Build renders the system text and turns as "System: …", "User: …" and
// "Assistant: …" lines joined by blank lines. Blank system text and turns
// whose trimmed text is empty are left out. Build is pure and never fails.
func Build(system string, turns []Turn) string {
	lines := make([]string, 0, len(turns)+1)

	if s := strings.TrimSpace(system); s != "" {
		lines = append(lines, "System: "+s)
	}

	for _, t := range turns {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		lines = append(lines, label(t.Role)+": "+text)
	}

	return strings.Join(lines, Separator)
}

func label(r Role) string {
	if r == RoleUser {
		return "User"
	}
	return "Assistant"
}
