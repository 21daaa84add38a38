// Package quota implements the two-layer rate-limit engine: a global
// per-user hourly window, and a per-feature limiter with hourly+daily
// windows scaled by a reputation multiplier. The global window is kept in
// memory and written through to the durable store on every check; the
// per-feature limiter reads its counts from the store. The store remains
// authoritative across restarts.
package quota

import (
	"context"
	"sync"
	"time"

	"github.com/ThatHunky/gryag-sub007/internal/store"
)

// FeatureLimits is the (per_hour, per_day) quota for one named feature.
type FeatureLimits struct {
	PerHour int
	PerDay  int
}

// Config tunes the engine.
type Config struct {
	// GlobalPerHour is the default global per-user hourly allowance.
	GlobalPerHour int
	// AdminIDs bypass both limiters entirely.
	AdminIDs map[int64]bool
	// Features maps feature name to its limits. A feature absent from this
	// map is treated fail-open (always allowed), per spec.
	Features map[string]FeatureLimits
	// RetentionHorizon bounds how long feature-usage history is kept.
	RetentionHorizon time.Duration
}

// globalFeature is the reserved feature name the global per-user
// limiter records its usage under in feature_usage, so every Allow
// call (admitted or throttled) leaves a durable row alongside the
// per-feature ones, per §8 scenario 3 ("quotas table shows 3 allowed +
// 1 throttled event").
const globalFeature = "global"

type globalWindow struct {
	count       int
	windowStart time.Time
}

// alignedHourStart and alignedDayStart truncate to the current UTC
// clock-hour/calendar-day boundary, per §4.3 step 4's "aligned hour and
// day windows" (not a sliding now-1h/now-24h lookback).
func alignedHourStart(now time.Time) time.Time {
	return now.UTC().Truncate(time.Hour)
}

func alignedDayStart(now time.Time) time.Time {
	return now.UTC().Truncate(24 * time.Hour)
}

// Engine is the process-wide rate-limit state, guarded by a single
// short-lived lock per map as prescribed by the concurrency model.
type Engine struct {
	cfg Config
	st  *store.Store

	mu      sync.Mutex
	windows map[int64]*globalWindow
}

// New creates a quota engine backed by st.
func New(cfg Config, st *store.Store) *Engine {
	if cfg.AdminIDs == nil {
		cfg.AdminIDs = map[int64]bool{}
	}
	if cfg.Features == nil {
		cfg.Features = map[string]FeatureLimits{}
	}
	if cfg.RetentionHorizon == 0 {
		cfg.RetentionHorizon = 7 * 24 * time.Hour
	}
	return &Engine{cfg: cfg, st: st, windows: make(map[int64]*globalWindow)}
}

// Allow checks the global per-user hourly window.
func (e *Engine) Allow(ctx context.Context, userID int64) (bool, error) {
	if e.cfg.AdminIDs[userID] {
		return true, nil
	}

	now := time.Now()

	e.mu.Lock()
	w, ok := e.windows[userID]
	if !ok {
		count, start, err := e.st.Quota().GlobalWindow(ctx, userID)
		if err != nil {
			e.mu.Unlock()
			return false, err
		}
		if start.IsZero() {
			start = now
		}
		w = &globalWindow{count: count, windowStart: start}
		e.windows[userID] = w
	}

	if now.Sub(w.windowStart) > time.Hour {
		w.count = 0
		w.windowStart = now
	}

	allowed := w.count < e.cfg.GlobalPerHour
	if allowed {
		w.count++
	}
	count, start := w.count, w.windowStart
	e.mu.Unlock()

	if err := e.st.Quota().SetGlobalWindow(ctx, userID, count, start); err != nil {
		return false, err
	}
	if err := e.st.Quota().RecordFeatureUsage(ctx, userID, globalFeature, now, !allowed); err != nil {
		return false, err
	}
	return allowed, nil
}

// AllowFeature checks the per-feature limiter: admin bypass, fail-open for
// unknown features, reputation-scaled hourly+daily windows.
func (e *Engine) AllowFeature(ctx context.Context, userID int64, feature string) (bool, error) {
	if e.cfg.AdminIDs[userID] {
		return true, nil
	}

	limits, known := e.cfg.Features[feature]
	if !known {
		return true, nil
	}

	rep, err := e.st.Quota().Reputation(ctx, userID)
	if err != nil {
		return false, err
	}

	now := time.Now()
	hourCount, err := e.st.Quota().CountFeatureUsage(ctx, userID, feature, alignedHourStart(now))
	if err != nil {
		return false, err
	}
	dayCount, err := e.st.Quota().CountFeatureUsage(ctx, userID, feature, alignedDayStart(now))
	if err != nil {
		return false, err
	}

	adjustedHour := float64(limits.PerHour) * rep
	adjustedDay := float64(limits.PerDay) * rep

	if float64(hourCount) >= adjustedHour || float64(dayCount) >= adjustedDay {
		_ = e.st.Quota().RecordFeatureUsage(ctx, userID, feature, now, true)
		return false, nil
	}
	return true, nil
}

// RecordUsage logs a successful feature invocation.
func (e *Engine) RecordUsage(ctx context.Context, userID int64, feature string) error {
	return e.st.Quota().RecordFeatureUsage(ctx, userID, feature, time.Now(), false)
}

// UsageStats is the read side of §8's round-trip law: record_usage
// followed by get_usage_stats returns used_this_hour equal to the
// number of record_usage calls in the last aligned hour.
type UsageStats struct {
	UsedThisHour int
	UsedToday    int
}

// GetUsageStats returns feature's usage counts for userID in the
// current aligned hour/day windows. Pass globalFeature's value via
// GetGlobalUsageStats instead; this is for the per-feature limiter.
func (e *Engine) GetUsageStats(ctx context.Context, userID int64, feature string) (UsageStats, error) {
	now := time.Now()
	hour, err := e.st.Quota().CountFeatureUsage(ctx, userID, feature, alignedHourStart(now))
	if err != nil {
		return UsageStats{}, err
	}
	day, err := e.st.Quota().CountFeatureUsage(ctx, userID, feature, alignedDayStart(now))
	if err != nil {
		return UsageStats{}, err
	}
	return UsageStats{UsedThisHour: hour, UsedToday: day}, nil
}

// GlobalUsageStats reports the durable allowed/throttled trail Allow
// leaves under globalFeature in the current aligned hour, for
// admin/testing visibility into the same "N allowed, M throttled"
// counts §8 scenario 3 checks.
type GlobalUsageStats struct {
	AllowedThisHour   int
	ThrottledThisHour int
}

// GetGlobalUsageStats reads GlobalUsageStats for userID.
func (e *Engine) GetGlobalUsageStats(ctx context.Context, userID int64) (GlobalUsageStats, error) {
	allowed, throttled, err := e.st.Quota().FeatureUsageCounts(ctx, userID, globalFeature, alignedHourStart(time.Now()))
	if err != nil {
		return GlobalUsageStats{}, err
	}
	return GlobalUsageStats{AllowedThisHour: allowed, ThrottledThisHour: throttled}, nil
}

// SetReputation is the explicit admin operation that adjusts a user's
// feature-quota multiplier; reputation policy is otherwise undefined
// (spec Open Question), so no automatic updates happen here.
func (e *Engine) SetReputation(ctx context.Context, userID int64, multiplier float64) error {
	return e.st.Quota().SetReputation(ctx, userID, multiplier)
}

// PruneHistory deletes feature-usage rows past the retention horizon.
func (e *Engine) PruneHistory(ctx context.Context) (int64, error) {
	return e.st.Quota().PruneFeatureUsage(ctx, time.Now().Add(-e.cfg.RetentionHorizon))
}
