package orchestrator

import "strings"

// metaPrefix marks a line the model was instructed to use for internal
// scratch notes; such lines must never reach the user, per §4.10's
// SANITIZE step.
const metaPrefix = "[meta]"

// markupEscapes is the restricted-markup reserved-character set escaped
// before a reply leaves the core, per §6's "restricted markup subset".
// The concrete platform adapter may apply its own richer escaping on
// top; this is the conservative, platform-agnostic baseline.
var markupEscapes = []string{"_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", "."}

// sanitize strips leaked [meta] lines, escapes the reserved markup
// characters, then enforces maxChars.
func sanitize(text string, maxChars int) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), metaPrefix) {
			continue
		}
		kept = append(kept, line)
	}
	out := strings.TrimSpace(strings.Join(kept, "\n"))
	out = escapeMarkup(out)
	return truncate(out, maxChars)
}

func escapeMarkup(s string) string {
	var b strings.Builder
	for _, r := range s {
		for _, esc := range markupEscapes {
			if string(r) == esc {
				b.WriteByte('\\')
				break
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

func truncate(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
