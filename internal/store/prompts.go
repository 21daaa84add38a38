package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PromptScope is where a system prompt applies, in resolution order
// personal -> chat -> global.
type PromptScope string

const (
	ScopePersonal PromptScope = "personal"
	ScopeChat     PromptScope = "chat"
	ScopeGlobal   PromptScope = "global"
)

// SystemPrompt is an admin-authored prompt override.
type SystemPrompt struct {
	ID          int64
	AdminID     int64
	ChatID      sql.NullInt64
	Scope       PromptScope
	Text        string
	IsActive    bool
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ActivatedAt sql.NullTime
}

// PromptRepo persists system prompts. SetActive is transactional: it
// deactivates whatever is active in the scope, then inserts the new
// active row, matching the resolver's cache-invalidation contract
// (internal/prompt is the cache; this repo is only the record of truth).
type PromptRepo struct{ db *sql.DB }

// Prompts returns the prompt repository bound to s.
func (s *Store) Prompts() *PromptRepo { return &PromptRepo{db: s.db} }

// SetActive deactivates the current active row in p's scope, then inserts
// p as the new active row, returning its id.
func (r *PromptRepo) SetActive(ctx context.Context, p SystemPrompt) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin set-prompt transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE system_prompts SET is_active = 0 WHERE scope = ? AND chat_id IS ? AND is_active = 1`,
		string(p.Scope), p.ChatID,
	); err != nil {
		return 0, fmt.Errorf("deactivate current prompt: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO system_prompts (admin_id, chat_id, scope, text, is_active, version, created_at, updated_at, activated_at)
		 VALUES (?, ?, ?, ?, 1, ?, ?, ?, ?)`,
		p.AdminID, p.ChatID, string(p.Scope), p.Text, p.Version, p.CreatedAt, p.UpdatedAt, p.ActivatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert prompt: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit set-prompt transaction: %w", err)
	}
	return id, nil
}

// Deactivate clears the is_active flag on a specific prompt row.
func (r *PromptRepo) Deactivate(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE system_prompts SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivate prompt: %w", err)
	}
	return nil
}

// Active returns the active prompt for a scope and chatID, or
// ErrNotFound. chatID is always matched, so global-scope prompts are
// found only with a null chatID.
func (r *PromptRepo) Active(ctx context.Context, scope PromptScope, chatID sql.NullInt64) (SystemPrompt, error) {
	var p SystemPrompt
	var scopeStr string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, admin_id, chat_id, scope, text, is_active, version, created_at, updated_at, activated_at
		 FROM system_prompts WHERE scope = ? AND chat_id IS ? AND is_active = 1`,
		string(scope), chatID,
	).Scan(&p.ID, &p.AdminID, &p.ChatID, &scopeStr, &p.Text, &p.IsActive, &p.Version, &p.CreatedAt, &p.UpdatedAt, &p.ActivatedAt)
	if err == sql.ErrNoRows {
		return SystemPrompt{}, ErrNotFound
	}
	if err != nil {
		return SystemPrompt{}, fmt.Errorf("query active prompt: %w", err)
	}
	p.Scope = PromptScope(scopeStr)
	return p, nil
}
