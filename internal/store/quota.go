package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// QuotaRepo persists the durable counters backing the rate-limit engine.
// The in-process quota engine (internal/quota) keeps a fast in-memory
// mirror of these rows; this repository is the authority across restarts.
type QuotaRepo struct{ db *sql.DB }

// Quota returns the quota repository bound to s.
func (s *Store) Quota() *QuotaRepo { return &QuotaRepo{db: s.db} }

// GlobalWindow returns the current (count, window_start) for a user, or
// (0, zero time) if none is stored yet; it writes nothing.
func (r *QuotaRepo) GlobalWindow(ctx context.Context, userID int64) (count int, windowStart time.Time, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT count, window_start FROM quota_windows WHERE user_id = ?`, userID,
	).Scan(&count, &windowStart)
	if err == sql.ErrNoRows {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("query global window: %w", err)
	}
	return count, windowStart, nil
}

// SetGlobalWindow writes the global counter state for a user.
func (r *QuotaRepo) SetGlobalWindow(ctx context.Context, userID int64, count int, windowStart time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO quota_windows (user_id, count, window_start) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET count = excluded.count, window_start = excluded.window_start`,
		userID, count, windowStart,
	)
	if err != nil {
		return fmt.Errorf("set global window: %w", err)
	}
	return nil
}

// RecordFeatureUsage appends a feature-usage row.
func (r *QuotaRepo) RecordFeatureUsage(ctx context.Context, userID int64, feature string, at time.Time, throttled bool) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO feature_usage (user_id, feature, requested_at, throttled) VALUES (?, ?, ?, ?)`,
		userID, feature, at, throttled,
	)
	if err != nil {
		return fmt.Errorf("record feature usage: %w", err)
	}
	return nil
}

// CountFeatureUsage counts non-throttled feature_usage rows for a user
// since since.
func (r *QuotaRepo) CountFeatureUsage(ctx context.Context, userID int64, feature string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM feature_usage WHERE user_id = ? AND feature = ? AND requested_at >= ? AND throttled = 0`,
		userID, feature, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count feature usage: %w", err)
	}
	return n, nil
}

// FeatureUsageCounts returns the allowed and throttled row counts for
// userID/feature since since, e.g. to verify a "3 allowed + 1
// throttled" usage trail.
func (r *QuotaRepo) FeatureUsageCounts(ctx context.Context, userID int64, feature string, since time.Time) (allowed, throttled int, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN throttled = 0 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN throttled = 1 THEN 1 ELSE 0 END), 0)
		 FROM feature_usage WHERE user_id = ? AND feature = ? AND requested_at >= ?`,
		userID, feature, since,
	).Scan(&allowed, &throttled)
	if err != nil {
		return 0, 0, fmt.Errorf("count feature usage by outcome: %w", err)
	}
	return allowed, throttled, nil
}

// PruneFeatureUsage deletes feature_usage rows older than the retention
// horizon.
func (r *QuotaRepo) PruneFeatureUsage(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM feature_usage WHERE requested_at < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune feature usage: %w", err)
	}
	return res.RowsAffected()
}

// Reputation returns a user's reputation multiplier, defaulting to 1.0.
func (r *QuotaRepo) Reputation(ctx context.Context, userID int64) (float64, error) {
	var mult float64
	err := r.db.QueryRowContext(ctx, `SELECT multiplier FROM reputation WHERE user_id = ?`, userID).Scan(&mult)
	if err == sql.ErrNoRows {
		return 1.0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query reputation: %w", err)
	}
	return mult, nil
}

// SetReputation clamps and writes a user's reputation multiplier.
func (r *QuotaRepo) SetReputation(ctx context.Context, userID int64, mult float64) error {
	if mult < 0.5 {
		mult = 0.5
	}
	if mult > 2.0 {
		mult = 2.0
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reputation (user_id, multiplier) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET multiplier = excluded.multiplier`,
		userID, mult,
	)
	if err != nil {
		return fmt.Errorf("set reputation: %w", err)
	}
	return nil
}
