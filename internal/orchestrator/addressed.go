package orchestrator

import (
	"regexp"
	"strings"

	"github.com/ThatHunky/gryag-sub007/internal/transport"
)

// compileTriggers turns the configured trigger patterns into compiled
// regexes, returning an error for the first pattern that fails to
// compile, so a bad pattern fails startup instead of being ignored.
func compileTriggers(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

// isAddressed implements §4.10's ADDRESSED rule: a reply to the bot, a
// trigger-pattern match, or a direct (one-on-one) chat.
func isAddressed(msg transport.Message, triggers []*regexp.Regexp) bool {
	if msg.ReplyToIsBot || msg.IsDirect {
		return true
	}
	for _, re := range triggers {
		if re.MatchString(msg.Text) {
			return true
		}
	}
	return false
}

// isAdminCommand reports whether text is a slash command, which the
// FILTERED transition drops since admin commands are handled by a
// separate, thin command surface (§6), not the turn orchestrator.
func isAdminCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/")
}
