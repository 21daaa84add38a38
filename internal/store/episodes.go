package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Valence is the emotional tone of an episode.
type Valence string

const (
	ValencePositive Valence = "positive"
	ValenceNegative Valence = "negative"
	ValenceNeutral  Valence = "neutral"
	ValenceMixed    Valence = "mixed"
)

// Episode is a finalized conversation window promoted to long-term memory.
type Episode struct {
	ID               int64
	ChatID           int64
	ThreadID         sql.NullInt64
	Topic            string
	Summary          string
	SummaryEmbedding []float32
	Importance       float64
	Valence          Valence
	MessageIDs       []int64
	ParticipantIDs   []int64
	Tags             []string
	CreatedAt        time.Time
	LastAccessed     time.Time
	AccessCount      int
}

// EpisodeRepo persists finalized conversation windows.
type EpisodeRepo struct{ db *sql.DB }

// Episodes returns the episode repository bound to s.
func (s *Store) Episodes() *EpisodeRepo { return &EpisodeRepo{db: s.db} }

// Create inserts a finalized episode and returns its id.
func (r *EpisodeRepo) Create(ctx context.Context, e Episode) (int64, error) {
	embJSON, err := marshalNullable(e.SummaryEmbedding)
	if err != nil {
		return 0, fmt.Errorf("marshal summary embedding: %w", err)
	}
	msgIDs, err := json.Marshal(e.MessageIDs)
	if err != nil {
		return 0, fmt.Errorf("marshal message ids: %w", err)
	}
	participants, err := json.Marshal(e.ParticipantIDs)
	if err != nil {
		return 0, fmt.Errorf("marshal participants: %w", err)
	}
	tagsJSON, err := marshalNullable(e.Tags)
	if err != nil {
		return 0, fmt.Errorf("marshal tags: %w", err)
	}

	if e.Valence == "" {
		e.Valence = ValenceNeutral
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO episodes (chat_id, thread_id, topic, summary, summary_embedding, importance, emotional_valence,
		                        message_ids_json, participant_ids, tags_json, created_at, last_accessed, access_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		e.ChatID, e.ThreadID, e.Topic, e.Summary, embJSON, e.Importance, string(e.Valence),
		string(msgIDs), string(participants), tagsJSON, e.CreatedAt, e.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert episode: %w", err)
	}
	return res.LastInsertId()
}

// RecentByImportance returns the most-recently-accessed episodes for a
// chat at or above a minimum importance, most recently accessed first,
// with importance breaking ties.
func (r *EpisodeRepo) RecentByImportance(ctx context.Context, chatID int64, minImportance float64, limit int) ([]Episode, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, chat_id, thread_id, topic, summary, summary_embedding, importance, emotional_valence,
		        message_ids_json, participant_ids, tags_json, created_at, last_accessed, access_count
		 FROM episodes WHERE chat_id = ? AND importance >= ? ORDER BY last_accessed DESC, importance DESC LIMIT ?`,
		chatID, minImportance, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close()

	var out []Episode
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Touch updates last_accessed/access_count for a retrieved episode.
func (r *EpisodeRepo) Touch(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE episodes SET last_accessed = ?, access_count = access_count + 1 WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("touch episode: %w", err)
	}
	return nil
}

func scanEpisode(rows *sql.Rows) (Episode, error) {
	var e Episode
	var valence string
	var embJSON, tagsJSON sql.NullString
	var msgIDsJSON, participantsJSON string
	if err := rows.Scan(&e.ID, &e.ChatID, &e.ThreadID, &e.Topic, &e.Summary, &embJSON, &e.Importance, &valence,
		&msgIDsJSON, &participantsJSON, &tagsJSON, &e.CreatedAt, &e.LastAccessed, &e.AccessCount); err != nil {
		return Episode{}, fmt.Errorf("scan episode: %w", err)
	}
	e.Valence = Valence(valence)
	if err := json.Unmarshal([]byte(msgIDsJSON), &e.MessageIDs); err != nil {
		return Episode{}, fmt.Errorf("decode message ids: %w", err)
	}
	if err := json.Unmarshal([]byte(participantsJSON), &e.ParticipantIDs); err != nil {
		return Episode{}, fmt.Errorf("decode participants: %w", err)
	}
	if embJSON.Valid && embJSON.String != "" {
		if err := json.Unmarshal([]byte(embJSON.String), &e.SummaryEmbedding); err != nil {
			return Episode{}, fmt.Errorf("decode summary embedding: %w", err)
		}
	}
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &e.Tags); err != nil {
			return Episode{}, fmt.Errorf("decode tags: %w", err)
		}
	}
	return e, nil
}
