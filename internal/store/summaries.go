package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SummaryType is the rollup period a chat summary covers.
type SummaryType string

const (
	Summary7d  SummaryType = "7d"
	Summary30d SummaryType = "30d"
)

// ChatSummary is a periodic per-chat rollup.
type ChatSummary struct {
	ID          int64
	ChatID      int64
	Type        SummaryType
	PeriodStart time.Time
	PeriodEnd   time.Time
	Text        string
	TokenCount  int
	GeneratedAt time.Time
}

// SummaryRepo persists periodic chat rollups.
type SummaryRepo struct{ db *sql.DB }

// Summaries returns the summary repository bound to s.
func (s *Store) Summaries() *SummaryRepo { return &SummaryRepo{db: s.db} }

// Upsert writes a summary, overwriting any existing row for the same
// (chat_id, type, period_start).
func (r *SummaryRepo) Upsert(ctx context.Context, cs ChatSummary) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_summaries (chat_id, type, period_start, period_end, text, token_count, generated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(chat_id, type, period_start) DO UPDATE SET
		     period_end = excluded.period_end,
		     text = excluded.text,
		     token_count = excluded.token_count,
		     generated_at = excluded.generated_at`,
		cs.ChatID, string(cs.Type), cs.PeriodStart, cs.PeriodEnd, cs.Text, cs.TokenCount, cs.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert chat summary: %w", err)
	}
	return nil
}

// Latest returns the most recently generated summary of a type for a chat.
func (r *SummaryRepo) Latest(ctx context.Context, chatID int64, t SummaryType) (ChatSummary, error) {
	var cs ChatSummary
	var typeStr string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, chat_id, type, period_start, period_end, text, token_count, generated_at
		 FROM chat_summaries WHERE chat_id = ? AND type = ? ORDER BY period_start DESC LIMIT 1`,
		chatID, string(t),
	).Scan(&cs.ID, &cs.ChatID, &typeStr, &cs.PeriodStart, &cs.PeriodEnd, &cs.Text, &cs.TokenCount, &cs.GeneratedAt)
	if err == sql.ErrNoRows {
		return ChatSummary{}, ErrNotFound
	}
	if err != nil {
		return ChatSummary{}, fmt.Errorf("query chat summary: %w", err)
	}
	cs.Type = SummaryType(typeStr)
	return cs, nil
}

// LastRun returns the generated_at of the most recent summary of a type
// across all chats, used by the scheduler to decide whether an interval
// has elapsed.
func (r *SummaryRepo) LastRun(ctx context.Context, t SummaryType) (time.Time, error) {
	var ts time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT generated_at FROM chat_summaries WHERE type = ? ORDER BY generated_at DESC LIMIT 1`, string(t),
	).Scan(&ts)
	if err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("query last run: %w", err)
	}
	return ts, nil
}

// ActiveChatIDs returns chats with at least one message since since.
func (r *SummaryRepo) ActiveChatIDs(ctx context.Context, since time.Time) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT chat_id FROM messages WHERE ts >= ?`, since)
	if err != nil {
		return nil, fmt.Errorf("query active chats: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan chat id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
