// Package summarizer produces periodic 7-day and 30-day per-chat
// rollups, run on a schedule by internal/scheduler.
package summarizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ThatHunky/gryag-sub007/chat"
	"github.com/ThatHunky/gryag-sub007/internal/logging"
	"github.com/ThatHunky/gryag-sub007/internal/store"
)

const metaPrompt = "Summarize this chat log concisely. Preserve decisions and important context. Respond in a single language, matching whatever the conversation mostly uses."

// Config tunes the bounded chat log and run cadence.
type Config struct {
	MaxChars      int
	Interval7d    time.Duration
	Interval30d   time.Duration
	LookbackLimit int // max messages pulled per chat before truncation
}

// DefaultConfig matches §4.6's literal defaults.
var DefaultConfig = Config{
	MaxChars:      100_000,
	Interval7d:    24 * time.Hour,
	Interval30d:   24 * time.Hour,
	LookbackLimit: 5000,
}

// Summarizer builds and persists periodic chat rollups.
type Summarizer struct {
	cfg    Config
	store  *store.Store
	client chat.Client
}

// New builds a Summarizer.
func New(cfg Config, st *store.Store, client chat.Client) *Summarizer {
	return &Summarizer{cfg: cfg, store: st, client: client}
}

// Run evaluates every active chat for both summary types, skipping any
// type whose interval hasn't elapsed since its last run.
func (s *Summarizer) Run(ctx context.Context, now time.Time) {
	log := logging.Logger().With("component", "summarizer")

	for _, t := range []store.SummaryType{store.Summary7d, store.Summary30d} {
		interval := s.interval(t)
		lastRun, err := s.store.Summaries().LastRun(ctx, t)
		if err != nil {
			log.Warn("last run lookup failed", "type", t, "error", err)
			continue
		}
		if !lastRun.IsZero() && now.Sub(lastRun) < interval {
			continue
		}

		period := s.period(t, now)
		chatIDs, err := s.store.Summaries().ActiveChatIDs(ctx, period)
		if err != nil {
			log.Warn("active chats lookup failed", "type", t, "error", err)
			continue
		}

		for _, chatID := range chatIDs {
			if err := s.summarizeChat(ctx, chatID, t, period, now); err != nil {
				log.Warn("summarize chat failed", "chat_id", chatID, "type", t, "error", err)
			}
		}
	}
}

func (s *Summarizer) interval(t store.SummaryType) time.Duration {
	if t == store.Summary7d {
		return s.cfg.Interval7d
	}
	return s.cfg.Interval30d
}

func (s *Summarizer) period(t store.SummaryType, now time.Time) time.Time {
	if t == store.Summary7d {
		return now.Add(-7 * 24 * time.Hour)
	}
	return now.Add(-30 * 24 * time.Hour)
}

func (s *Summarizer) summarizeChat(ctx context.Context, chatID int64, t store.SummaryType, periodStart, now time.Time) error {
	messages, err := s.store.Messages().RecentMessages(ctx, chatID, nil, s.cfg.LookbackLimit)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}

	log := buildBoundedLog(messages, s.cfg.MaxChars)
	if log == "" {
		return nil
	}

	convo := s.client.NewChat(metaPrompt)
	resp, err := convo.Message(ctx, chat.UserMessage(log), chat.WithTemperature(0.1))
	if err != nil {
		return fmt.Errorf("llm summarize: %w", err)
	}

	text := strings.TrimSpace(resp.GetText())
	if text == "" {
		return fmt.Errorf("empty summary returned")
	}

	cs := store.ChatSummary{
		ChatID:      chatID,
		Type:        t,
		PeriodStart: periodStart,
		PeriodEnd:   now,
		Text:        text,
		TokenCount:  estimateTokens(text),
		GeneratedAt: now,
	}
	return s.store.Summaries().Upsert(ctx, cs)
}

// buildBoundedLog renders messages (newest-first, as returned by
// RecentMessages) into a reverse-chronological transcript truncated to
// maxChars, then reverses it back to chronological order for the
// prompt.
func buildBoundedLog(messages []store.Message, maxChars int) string {
	var lines []string
	total := 0
	for _, m := range messages {
		line := fmt.Sprintf("[%s] %s", m.Role, m.Text)
		if total+len(line) > maxChars {
			break
		}
		lines = append(lines, line)
		total += len(line)
	}
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return strings.Join(lines, "\n")
}

func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}
