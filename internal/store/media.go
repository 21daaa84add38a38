package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MediaCacheEntry is a TTL-bounded reference to a locally cached media
// file, consumed by tools that edit or re-send previously received media.
type MediaCacheEntry struct {
	MediaID   string
	ChatID    int64
	UserID    sql.NullInt64
	FilePath  string
	MediaType string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// MediaRepo persists the media cache.
type MediaRepo struct{ db *sql.DB }

// Media returns the media cache repository bound to s.
func (s *Store) Media() *MediaRepo { return &MediaRepo{db: s.db} }

// Put inserts a media cache entry, generating a media id if e.MediaID is empty.
func (r *MediaRepo) Put(ctx context.Context, e MediaCacheEntry) (string, error) {
	if e.MediaID == "" {
		e.MediaID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO media_cache (media_id, chat_id, user_id, file_path, media_type, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.MediaID, e.ChatID, e.UserID, e.FilePath, e.MediaType, e.ExpiresAt, e.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert media cache entry: %w", err)
	}
	return e.MediaID, nil
}

// Get returns a non-expired media cache entry, or ErrNotFound.
func (r *MediaRepo) Get(ctx context.Context, mediaID string, now time.Time) (MediaCacheEntry, error) {
	var e MediaCacheEntry
	err := r.db.QueryRowContext(ctx,
		`SELECT media_id, chat_id, user_id, file_path, media_type, expires_at, created_at
		 FROM media_cache WHERE media_id = ? AND expires_at > ?`,
		mediaID, now,
	).Scan(&e.MediaID, &e.ChatID, &e.UserID, &e.FilePath, &e.MediaType, &e.ExpiresAt, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return MediaCacheEntry{}, ErrNotFound
	}
	if err != nil {
		return MediaCacheEntry{}, fmt.Errorf("query media cache entry: %w", err)
	}
	return e, nil
}

// PruneExpired deletes cache entries whose TTL has elapsed.
func (r *MediaRepo) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM media_cache WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, fmt.Errorf("prune media cache: %w", err)
	}
	return res.RowsAffected()
}
