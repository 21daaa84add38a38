package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Ban records a per-chat user ban.
type Ban struct {
	ChatID       int64
	UserID       int64
	Timestamp    time.Time
	LastNoticeTS sql.NullTime
}

// BanRepo persists bans.
type BanRepo struct{ db *sql.DB }

// Bans returns the ban repository bound to s.
func (s *Store) Bans() *BanRepo { return &BanRepo{db: s.db} }

// Ban inserts or refreshes a ban row.
func (r *BanRepo) Ban(ctx context.Context, chatID, userID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO bans (chat_id, user_id, ts) VALUES (?, ?, ?)
		 ON CONFLICT(chat_id, user_id) DO UPDATE SET ts = excluded.ts`,
		chatID, userID, at,
	)
	if err != nil {
		return fmt.Errorf("ban user: %w", err)
	}
	return nil
}

// Unban removes a ban row.
func (r *BanRepo) Unban(ctx context.Context, chatID, userID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM bans WHERE chat_id = ? AND user_id = ?`, chatID, userID)
	if err != nil {
		return fmt.Errorf("unban user: %w", err)
	}
	return nil
}

// Get returns the ban row for a user in a chat, or ErrNotFound.
func (r *BanRepo) Get(ctx context.Context, chatID, userID int64) (Ban, error) {
	var b Ban
	err := r.db.QueryRowContext(ctx,
		`SELECT chat_id, user_id, ts, last_notice_ts FROM bans WHERE chat_id = ? AND user_id = ?`,
		chatID, userID,
	).Scan(&b.ChatID, &b.UserID, &b.Timestamp, &b.LastNoticeTS)
	if err == sql.ErrNoRows {
		return Ban{}, ErrNotFound
	}
	if err != nil {
		return Ban{}, fmt.Errorf("query ban: %w", err)
	}
	return b, nil
}

// RecordNotice stamps last_notice_ts so the caller can enforce a
// once-per-cooldown banned-user notice.
func (r *BanRepo) RecordNotice(ctx context.Context, chatID, userID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE bans SET last_notice_ts = ? WHERE chat_id = ? AND user_id = ?`, at, chatID, userID)
	if err != nil {
		return fmt.Errorf("record ban notice: %w", err)
	}
	return nil
}
