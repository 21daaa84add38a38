package facts

import (
	"database/sql"
	"regexp"
	"strings"

	"github.com/ThatHunky/gryag-sub007/internal/store"
)

// pattern is one lexical rule: a regex whose named "value" group, once
// matched, becomes a fact value under a fixed category/key.
type pattern struct {
	category string
	key      string
	re       *regexp.Regexp
}

// cyr is the letter range a value may contain: ASCII letters, the shared
// Cyrillic а-я/А-Я block (which already covers ъ, ы, э and their uppercase
// forms) plus the extra Ukrainian letters (і, ї, є, ґ) and Russian ё,
// none of which fall inside that block, and their uppercase forms for
// capitalized proper nouns (city/person names).
const cyr = `a-zA-Zа-яА-ЯіїєґІЇЄҐёЁ`

// val builds the shared value-capture character class used by every
// pattern below.
func val(extra string) string {
	return `(?P<value>[` + cyr + extra + `\- ]{2,40})`
}

// cyrLB is a left-boundary assertion standing in for \b before a
// Cyrillic trigger word. Go's regexp \b is ASCII-only (it treats \w as
// [0-9A-Za-z_]), so a literal \b immediately before a Cyrillic letter
// never matches: neither side of the position is ASCII "word", so no
// boundary is ever found, even at the start of the string. This
// consumes one non-letter separator (or matches the empty start of
// string) instead.
const cyrLB = `(?:^|[^` + cyr + `])`

// rulePatterns are intentionally simple and language-agnostic in the
// sense of matching common possessive/copular constructions rather than
// depending on a specific grammar; they trade recall for precision, per
// §4.4's "high-precision, low-recall" requirement. The group's working
// languages are English, Ukrainian and Russian: every category has an
// English and a Ukrainian pattern, and location, profession and
// preference also accept Russian trigger words; the possession and
// relationship patterns have Ukrainian forms only. Ukrainian/Russian are pro-drop (the subject pronoun
// is often dropped, "люблю піцу" not "я люблю піцу"), so those patterns
// make "я" optional where English needs an explicit subject.
var rulePatterns = []pattern{
	{CategoryLocation, "lives_in", regexp.MustCompile(`(?i)\bi\s+(?:live|'m living|am living)\s+in\s+` + val("0-9"))},
	{CategoryLocation, "from", regexp.MustCompile(`(?i)\bi(?:'m| am)\s+from\s+` + val("0-9"))},
	{CategoryLocation, "lives_in", regexp.MustCompile(`(?i)` + cyrLB + `(?:я\s+)?(?:живу|мешкаю)\s+в\s+` + val("0-9"))},
	{CategoryLocation, "from", regexp.MustCompile(`(?i)` + cyrLB + `я\s+(?:з|із|из)\s+` + val("0-9"))},

	{CategoryProfession, "works_as", regexp.MustCompile(`(?i)\bi\s+(?:work|am working)\s+as\s+an?\s+` + val(""))},
	{CategoryProfession, "occupation", regexp.MustCompile(`(?i)\bi(?:'m| am)\s+an?\s+(?P<value>[a-zA-Z]+(?:er|or|ist|ian))\b`)},
	{CategoryProfession, "works_as", regexp.MustCompile(`(?i)` + cyrLB + `я\s+(?:працюю|работаю)\s+(?:як\s+|в\s+якості\s+)?` + val(""))},

	{CategoryPreference, "likes", regexp.MustCompile(`(?i)\bi\s+(?:really\s+)?(?:like|love|enjoy)\s+` + val("0-9"))},
	{CategoryPreference, "dislikes", regexp.MustCompile(`(?i)\bi\s+(?:hate|dislike|can't stand)\s+` + val("0-9"))},
	{CategoryPreference, "likes", regexp.MustCompile(`(?i)` + cyrLB + `(?:я\s+)?(?:дуже\s+)?(?:люблю|обожнюю|обожаю)\s+` + val("0-9"))},
	{CategoryPreference, "dislikes", regexp.MustCompile(`(?i)` + cyrLB + `(?:я\s+)?(?:не\s+люблю|ненавиджу|ненавижу)\s+` + val("0-9"))},

	{CategoryPossession, "owns", regexp.MustCompile(`(?i)\bi\s+(?:own|have|bought)\s+an?\s+` + val("0-9"))},
	{CategoryPossession, "owns", regexp.MustCompile(`(?i)` + cyrLB + `(?:я\s+)?(?:маю|купив|купила|у\s+мене\s+є)\s+` + val("0-9"))},

	{CategoryRelationship, "partner", regexp.MustCompile(`(?i)\bmy\s+(?:wife|husband|girlfriend|boyfriend|partner)\s+is\s+` + val(""))},
	{CategoryRelationship, "partner", regexp.MustCompile(`(?i)` + cyrLB + `(?:моя|мій)\s+(?:дружина|чоловік|дівчина|хлопець|партнер(?:ка)?)\s*(?:—|-|це)?\s*` + val(""))},
}

// ruleConfidence is the fixed confidence for every rule hit, satisfying
// §4.4's confidence ≥ 0.8 floor for the rule-based pass.
const ruleConfidence = 0.85

// extractRules runs every pattern against each message in w and returns
// one candidate per match, attributed to the message's author.
func extractRules(w ConversationWindow) []Candidate {
	var out []Candidate
	for _, msg := range w.Messages {
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			continue
		}
		for _, p := range rulePatterns {
			m := p.re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			idx := p.re.SubexpIndex("value")
			if idx < 0 || idx >= len(m) {
				continue
			}
			value := strings.TrimSpace(m[idx])
			if value == "" {
				continue
			}
			out = append(out, Candidate{
				EntityType:   store.EntityUser,
				EntityID:     msg.UserID,
				ChatContext:  sql.NullInt64{Int64: w.ChatID, Valid: true},
				Category:     p.category,
				Key:          p.key,
				Value:        value,
				Confidence:   ruleConfidence,
				EvidenceText: text,
				SourceMsgID:  sql.NullInt64{Int64: msg.ID, Valid: msg.ID != 0},
			})
		}
	}
	return out
}
