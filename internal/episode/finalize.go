package episode

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ThatHunky/gryag-sub007/chat"
	"github.com/ThatHunky/gryag-sub007/internal/logging"
	"github.com/ThatHunky/gryag-sub007/internal/store"
)

const topicSummaryPrompt = `Summarize this conversation excerpt in two parts, separated by a line containing only "---":
1. A single-line topic (under 80 characters).
2. A summary of at most 400 characters, preserving any decisions made.
Return only those two parts, nothing else.`

const maxSummaryChars = 400

// finalize builds and persists an Episode for a window that cleared
// both the MinMessages and MinImportance bars.
func (m *Monitor) finalize(ctx context.Context, w *Window, importance float64, now time.Time) error {
	topic, summary := m.deriveTopicSummary(ctx, w)

	var embedding []float32
	if m.embedder != nil {
		if vec, err := m.embedder.Embed(ctx, topic+" "+summary); err != nil {
			logging.Logger().With("component", "episode").Warn("episode embedding failed", "error", err)
		} else {
			embedding = vec
		}
	}

	messageIDs := make([]int64, len(w.Messages))
	for i, msg := range w.Messages {
		messageIDs[i] = msg.ID
	}
	participants := make([]int64, 0, len(w.Participants))
	for id := range w.Participants {
		participants = append(participants, id)
	}

	ep := store.Episode{
		ChatID:           w.ChatID,
		ThreadID:         w.ThreadID,
		Topic:            topic,
		Summary:          summary,
		SummaryEmbedding: embedding,
		Importance:       importance,
		Valence:          store.ValenceNeutral,
		MessageIDs:       messageIDs,
		ParticipantIDs:   participants,
		CreatedAt:        now,
	}

	_, err := m.store.Episodes().Create(ctx, ep)
	return err
}

// deriveTopicSummary asks the LLM for a topic+summary pair, falling
// back to mechanical derivation from the transcript on any failure or
// when no client is configured.
func (m *Monitor) deriveTopicSummary(ctx context.Context, w *Window) (topic, summary string) {
	if m.client != nil {
		if t, s, err := m.askLLM(ctx, w); err == nil {
			return t, s
		} else {
			logging.Logger().With("component", "episode").Warn("llm topic/summary failed, using fallback", "error", err)
		}
	}
	return fallbackTopic(w), fallbackSummary(w)
}

func (m *Monitor) askLLM(ctx context.Context, w *Window) (string, string, error) {
	var transcript strings.Builder
	for _, msg := range w.Messages {
		fmt.Fprintf(&transcript, "[user %d] %s\n", msg.UserID, msg.Text)
	}

	convo := m.client.NewChat(topicSummaryPrompt)
	resp, err := convo.Message(ctx, chat.UserMessage(transcript.String()), chat.WithTemperature(0.2))
	if err != nil {
		return "", "", err
	}

	parts := strings.SplitN(resp.GetText(), "---", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("episode: unexpected llm output shape")
	}
	topic := strings.TrimSpace(parts[0])
	summary := strings.TrimSpace(parts[1])
	if len(summary) > maxSummaryChars {
		summary = summary[:maxSummaryChars]
	}
	if topic == "" || summary == "" {
		return "", "", fmt.Errorf("episode: empty topic or summary from llm")
	}
	return topic, summary, nil
}

func fallbackTopic(w *Window) string {
	for _, msg := range w.Messages {
		if text := strings.TrimSpace(msg.Text); text != "" {
			if len(text) > 80 {
				return text[:80]
			}
			return text
		}
	}
	return "untitled conversation"
}

func fallbackSummary(w *Window) string {
	if len(w.Messages) == 0 {
		return ""
	}
	first := strings.TrimSpace(w.Messages[0].Text)
	last := strings.TrimSpace(w.Messages[len(w.Messages)-1].Text)
	summary := first
	if last != "" && last != first {
		summary = first + " ... " + last
	}
	if len(summary) > maxSummaryChars {
		summary = summary[:maxSummaryChars]
	}
	return summary
}
