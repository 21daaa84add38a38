package facts

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ThatHunky/gryag-sub007/chat"
	"github.com/ThatHunky/gryag-sub007/internal/logging"
	"github.com/ThatHunky/gryag-sub007/internal/store"
)

const llmExtractionPrompt = `You extract durable facts about chat participants from a conversation excerpt.
Return ONLY a JSON array of objects, each shaped exactly as:
{"user_id": <int>, "category": "location|profession|preference|relationship|possession|other", "key": "<short_snake_case>", "value": "<short phrase>", "confidence": <0..1>, "evidence": "<quoted source text>"}
Omit anything not clearly stated by the participant themselves. Return [] if nothing qualifies.`

type llmFact struct {
	UserID     int64   `json:"user_id"`
	Category   string  `json:"category"`
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence"`
}

// extractLLM asks client to extract facts from w's transcript, dropping
// any entry whose category falls outside the allowed enumeration or
// whose confidence is out of range. Failures are returned to the caller
// to log-and-swallow, per §4.4's failure semantics.
func extractLLM(ctx context.Context, client chat.Client, w ConversationWindow) ([]Candidate, error) {
	var transcript strings.Builder
	for _, msg := range w.Messages {
		fmt.Fprintf(&transcript, "[user %d] %s\n", msg.UserID, msg.Text)
	}

	convo := client.NewChat(llmExtractionPrompt)
	resp, err := convo.Message(ctx, chat.UserMessage(transcript.String()), chat.WithTemperature(0))
	if err != nil {
		return nil, fmt.Errorf("facts: llm extraction: %w", err)
	}

	raw := strings.TrimSpace(resp.GetText())
	raw = stripCodeFence(raw)

	var parsed []llmFact
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("facts: parse llm output: %w", err)
	}

	out := make([]Candidate, 0, len(parsed))
	for _, f := range parsed {
		if !allowedCategories[f.Category] {
			logging.Logger().With("component", "facts").Warn("dropped fact with disallowed category", "category", f.Category)
			continue
		}
		if f.Confidence <= 0 || f.Confidence > 1 || f.Key == "" || f.Value == "" || f.UserID == 0 {
			continue
		}
		out = append(out, Candidate{
			EntityType:   store.EntityUser,
			EntityID:     f.UserID,
			ChatContext:  sql.NullInt64{Int64: w.ChatID, Valid: true},
			Category:     f.Category,
			Key:          f.Key,
			Value:        f.Value,
			Confidence:   f.Confidence,
			EvidenceText: f.Evidence,
		})
	}
	return out, nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
