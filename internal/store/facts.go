package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// EntityType distinguishes a fact about a user from a fact about a chat.
type EntityType string

const (
	EntityUser EntityType = "user"
	EntityChat EntityType = "chat"
)

// ChangeType classifies how a re-observed fact with a different value
// relates to the one already on file. Upsert computes it but does not
// store it on either row.
type ChangeType string

const (
	ChangeEvolution    ChangeType = "evolution"
	ChangeContradiction ChangeType = "contradiction"
)

// Fact is a typed, confidence-scored assertion about a user or chat.
type Fact struct {
	ID             int64
	EntityType     EntityType
	EntityID       int64
	ChatContext    sql.NullInt64
	Category       string
	Key            string
	Value          string
	Confidence     float64
	EvidenceCount  int
	EvidenceText   string
	SourceMsgID    sql.NullInt64
	FirstObserved  time.Time
	LastReinforced time.Time
	IsActive       bool
	DecayRate      float64
	Embedding      []float32
}

// FactRepo persists durable facts and applies the confidence-fusion rule
// on re-observation.
type FactRepo struct{ db *sql.DB }

// Facts returns the fact repository bound to s.
func (s *Store) Facts() *FactRepo { return &FactRepo{db: s.db} }

// Upsert inserts f, or if an active row already exists for its unique key
// (entity_type, entity_id, chat_context, category, key), fuses the new
// observation into it. When the normalized values match:
// new_confidence = min(1, old_confidence + 0.1*weight) where weight is the
// new observation's confidence, evidence_count is incremented, and
// last_reinforced advances. When they differ, the higher-confidence
// version stays active: if f's confidence is at least the old row's, the
// old row is deactivated (kept in the table) and f is inserted as the new
// active row; otherwise f is not stored and the old row only gains one
// evidence_count. The change type is not stored on either row.
func (r *FactRepo) Upsert(ctx context.Context, f Fact) (Fact, error) {
	existing, err := r.find(ctx, f.EntityType, f.EntityID, f.ChatContext, f.Category, f.Key)
	if err != nil && err != ErrNotFound {
		return Fact{}, err
	}

	if err == ErrNotFound {
		return r.insert(ctx, f)
	}

	if sameValue(existing.Value, f.Value) {
		existing.Confidence = math.Min(1, existing.Confidence+0.1*f.Confidence)
		existing.EvidenceCount++
		existing.LastReinforced = f.LastReinforced
		if f.EvidenceText != "" {
			existing.EvidenceText = f.EvidenceText
		}
		if err := r.update(ctx, existing); err != nil {
			return Fact{}, err
		}
		return existing, nil
	}

	// Value changed: keep the higher-confidence version active. When f
	// wins, the old row is deactivated; when it loses, f is not stored.
	// change_type is computed here but not persisted anywhere.
	changeType := ChangeEvolution
	if math.Abs(existing.Confidence-f.Confidence) > 0.3 {
		changeType = ChangeContradiction
	}
	_ = changeType

	if f.Confidence >= existing.Confidence {
		if err := r.deactivate(ctx, existing.ID); err != nil {
			return Fact{}, err
		}
		return r.insert(ctx, f)
	}
	// existing stays active; still bump evidence so repeated low-confidence
	// contradictions don't silently vanish from evidence_count.
	existing.EvidenceCount++
	existing.LastReinforced = f.LastReinforced
	if err := r.update(ctx, existing); err != nil {
		return Fact{}, err
	}
	return existing, nil
}

func sameValue(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func (r *FactRepo) find(ctx context.Context, et EntityType, entityID int64, chatCtx sql.NullInt64, category, key string) (Fact, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, entity_type, entity_id, chat_context, category, key, value, confidence, evidence_count,
		        evidence_text, source_msg_id, first_observed, last_reinforced, is_active, decay_rate, embedding_json
		 FROM facts WHERE entity_type = ? AND entity_id = ? AND chat_context IS ? AND category = ? AND key = ? AND is_active = 1`,
		string(et), entityID, chatCtx, category, key,
	)
	return scanFact(row)
}

func (r *FactRepo) insert(ctx context.Context, f Fact) (Fact, error) {
	embJSON, err := marshalNullable(f.Embedding)
	if err != nil {
		return Fact{}, fmt.Errorf("marshal fact embedding: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO facts (entity_type, entity_id, chat_context, category, key, value, confidence, evidence_count,
		                    evidence_text, source_msg_id, first_observed, last_reinforced, is_active, decay_rate, embedding_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		string(f.EntityType), f.EntityID, f.ChatContext, f.Category, f.Key, f.Value, f.Confidence, max(1, f.EvidenceCount),
		nullString(f.EvidenceText), f.SourceMsgID, f.FirstObserved, f.LastReinforced, f.DecayRate, embJSON,
	)
	if err != nil {
		return Fact{}, fmt.Errorf("insert fact: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Fact{}, err
	}
	f.ID = id
	f.IsActive = true
	return f, nil
}

func (r *FactRepo) update(ctx context.Context, f Fact) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE facts SET value = ?, confidence = ?, evidence_count = ?, evidence_text = ?, last_reinforced = ? WHERE id = ?`,
		f.Value, f.Confidence, f.EvidenceCount, nullString(f.EvidenceText), f.LastReinforced, f.ID,
	)
	if err != nil {
		return fmt.Errorf("update fact: %w", err)
	}
	return nil
}

func (r *FactRepo) deactivate(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE facts SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivate fact: %w", err)
	}
	return nil
}

// Deactivate marks a fact inactive, e.g. when decay drives confidence
// below the retention threshold.
func (r *FactRepo) Deactivate(ctx context.Context, id int64) error { return r.deactivate(ctx, id) }

// ForEntity returns every active fact for the given entity, optionally
// scoped to a chat context.
func (r *FactRepo) ForEntity(ctx context.Context, et EntityType, entityID int64, chatCtx sql.NullInt64) ([]Fact, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, entity_type, entity_id, chat_context, category, key, value, confidence, evidence_count,
		        evidence_text, source_msg_id, first_observed, last_reinforced, is_active, decay_rate, embedding_json
		 FROM facts WHERE entity_type = ? AND entity_id = ? AND is_active = 1 AND (chat_context IS ? OR chat_context IS NULL)
		 ORDER BY confidence DESC`,
		string(et), entityID, chatCtx,
	)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	var out []Fact
	for rows.Next() {
		f, err := scanFactRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFact(row rowScanner) (Fact, error) {
	var f Fact
	var et string
	var embJSON sql.NullString
	var evidenceText sql.NullString
	err := row.Scan(&f.ID, &et, &f.EntityID, &f.ChatContext, &f.Category, &f.Key, &f.Value, &f.Confidence,
		&f.EvidenceCount, &evidenceText, &f.SourceMsgID, &f.FirstObserved, &f.LastReinforced, &f.IsActive, &f.DecayRate, &embJSON)
	if err == sql.ErrNoRows {
		return Fact{}, ErrNotFound
	}
	if err != nil {
		return Fact{}, fmt.Errorf("scan fact: %w", err)
	}
	f.EntityType = EntityType(et)
	f.EvidenceText = evidenceText.String
	if embJSON.Valid && embJSON.String != "" {
		if err := json.Unmarshal([]byte(embJSON.String), &f.Embedding); err != nil {
			return Fact{}, fmt.Errorf("decode fact embedding: %w", err)
		}
	}
	return f, nil
}

func scanFactRows(rows *sql.Rows) (Fact, error) { return scanFact(rows) }
