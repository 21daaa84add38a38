package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThatHunky/gryag-sub007/chat"
)

// MessageRole mirrors chat.Role but also allows the "system" role used by
// persisted system messages; kept distinct from chat.Role so this package
// does not require the chat package to grow persistence-only concepts.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
	RoleTool      MessageRole = "tool"
)

// Message is a single persisted row in the messages table.
type Message struct {
	ID                      int64
	ChatID                  int64
	ThreadID                sql.NullInt64
	UserID                  sql.NullInt64
	Role                    MessageRole
	Text                    string
	Media                   []chat.MediaPart
	Embedding               []float32
	Metadata                map[string]any
	ExternalMessageID       string
	ReplyToExternalMsgID    string
	Deleted                 bool
	Timestamp               time.Time
}

// MessageRepo persists conversation turns.
type MessageRepo struct{ db *sql.DB }

// Messages returns the message repository bound to s.
func (s *Store) Messages() *MessageRepo { return &MessageRepo{db: s.db} }

// AppendMessage inserts a new row and returns its stable, chat-monotonic id.
func (r *MessageRepo) AppendMessage(ctx context.Context, m Message) (int64, error) {
	mediaJSON, err := marshalNullable(m.Media)
	if err != nil {
		return 0, fmt.Errorf("marshal media: %w", err)
	}
	embJSON, err := marshalNullable(m.Embedding)
	if err != nil {
		return 0, fmt.Errorf("marshal embedding: %w", err)
	}
	metaJSON, err := marshalNullable(m.Metadata)
	if err != nil {
		return 0, fmt.Errorf("marshal metadata: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (chat_id, thread_id, user_id, role, text, media_json, embedding_json, metadata_json, external_msg_id, reply_to_ext_id, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ChatID, m.ThreadID, m.UserID, string(m.Role), m.Text, mediaJSON, embJSON, metaJSON,
		nullString(m.ExternalMessageID), nullString(m.ReplyToExternalMsgID), m.Timestamp,
	)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	return res.LastInsertId()
}

// UpdateEmbedding fills the embedding vector for a message inserted earlier.
// A missing row (already pruned by retention) is a no-op, not an error.
func (r *MessageRepo) UpdateEmbedding(ctx context.Context, id int64, vec []float32) error {
	data, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `UPDATE messages SET embedding_json = ? WHERE id = ?`, string(data), id)
	if err != nil {
		return fmt.Errorf("update embedding: %w", err)
	}
	return nil
}

// RecentMessages returns the last limit messages for a chat, newest first.
// When threadID is non-nil but no rows match, it degrades to chat-level.
func (r *MessageRepo) RecentMessages(ctx context.Context, chatID int64, threadID *int64, limit int) ([]Message, error) {
	if threadID != nil {
		msgs, err := r.queryRecent(ctx, `chat_id = ? AND thread_id = ? AND deleted = 0`, chatID, *threadID, limit)
		if err != nil {
			return nil, err
		}
		if len(msgs) > 0 {
			return msgs, nil
		}
	}
	return r.queryRecent(ctx, `chat_id = ? AND deleted = 0`, chatID, limit)
}

func (r *MessageRepo) queryRecent(ctx context.Context, where string, args ...any) ([]Message, error) {
	var limit int
	// last arg is always the limit in both call sites above.
	limit = args[len(args)-1].(int)
	args = args[:len(args)-1]

	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, chat_id, thread_id, user_id, role, text, media_json, embedding_json, metadata_json,
		             external_msg_id, reply_to_ext_id, deleted, ts FROM messages WHERE %s ORDER BY ts DESC, id DESC LIMIT ?`, where),
		append(args, limit)...,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// SearchMessages returns candidate rows for the hybrid search engine: a
// substring match over text, ordered newest-first, capped at k.
func (r *MessageRepo) SearchMessages(ctx context.Context, chatID int64, query string, k int) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, chat_id, thread_id, user_id, role, text, media_json, embedding_json, metadata_json,
		        external_msg_id, reply_to_ext_id, deleted, ts
		 FROM messages WHERE chat_id = ? AND deleted = 0 AND text LIKE ? ORDER BY ts DESC LIMIT ?`,
		chatID, "%"+query+"%", k,
	)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// EmbeddedSince returns up to limit most-recent messages in chatID that
// carry a non-null embedding, used by the semantic-candidate pass.
func (r *MessageRepo) EmbeddedSince(ctx context.Context, chatID int64, limit int) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, chat_id, thread_id, user_id, role, text, media_json, embedding_json, metadata_json,
		        external_msg_id, reply_to_ext_id, deleted, ts
		 FROM messages WHERE chat_id = ? AND deleted = 0 AND embedding_json IS NOT NULL
		 ORDER BY ts DESC LIMIT ?`,
		chatID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query embedded messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		var m Message
		var roleStr string
		var mediaJSON, embJSON, metaJSON sql.NullString
		var extID, replyExtID sql.NullString
		if err := rows.Scan(&m.ID, &m.ChatID, &m.ThreadID, &m.UserID, &roleStr, &m.Text,
			&mediaJSON, &embJSON, &metaJSON, &extID, &replyExtID, &m.Deleted, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = MessageRole(roleStr)
		m.ExternalMessageID = extID.String
		m.ReplyToExternalMsgID = replyExtID.String
		if mediaJSON.Valid && mediaJSON.String != "" {
			if err := json.Unmarshal([]byte(mediaJSON.String), &m.Media); err != nil {
				return nil, fmt.Errorf("decode media: %w", err)
			}
		}
		if embJSON.Valid && embJSON.String != "" {
			if err := json.Unmarshal([]byte(embJSON.String), &m.Embedding); err != nil {
				return nil, fmt.Errorf("decode embedding: %w", err)
			}
		}
		if metaJSON.Valid && metaJSON.String != "" {
			if err := json.Unmarshal([]byte(metaJSON.String), &m.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// PruneOlderThan soft-deletes messages older than the retention horizon.
func (r *MessageRepo) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET deleted = 1 WHERE ts < ? AND deleted = 0`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune messages: %w", err)
	}
	return res.RowsAffected()
}

// ActiveChatsSince returns the distinct chat IDs with at least one
// undeleted message at or after since, used by the scheduler's
// proactive-reply tick to pick candidate chats without depending on a
// transport-side roster.
func (r *MessageRepo) ActiveChatsSince(ctx context.Context, since time.Time) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT chat_id FROM messages WHERE ts >= ? AND deleted = 0`, since)
	if err != nil {
		return nil, fmt.Errorf("query active chats: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var chatID int64
		if err := rows.Scan(&chatID); err != nil {
			return nil, err
		}
		out = append(out, chatID)
	}
	return out, rows.Err()
}

func marshalNullable(v any) (sql.NullString, error) {
	switch t := v.(type) {
	case []chat.MediaPart:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	case []float32:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	case map[string]any:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
