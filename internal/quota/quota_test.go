package quota

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThatHunky/gryag-sub007/internal/store"
)

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(cfg, st)
}

func TestGlobalWindowAllowsUpToLimit(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Config{GlobalPerHour: 3})

	for i := 0; i < 3; i++ {
		allowed, err := e.Allow(ctx, 50)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, err := e.Allow(ctx, 50)
	require.NoError(t, err)
	assert.False(t, allowed, "fourth request should be denied")
}

func TestAdminBypassesGlobalWindow(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Config{GlobalPerHour: 1, AdminIDs: map[int64]bool{7: true}})

	for i := 0; i < 5; i++ {
		allowed, err := e.Allow(ctx, 7)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
}

func TestUnknownFeatureFailsOpen(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Config{GlobalPerHour: 5})

	allowed, err := e.AllowFeature(ctx, 1, "unregistered-tool")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestFeatureLimiterDeniesOverAdjustedQuota(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Config{
		GlobalPerHour: 5,
		Features:      map[string]FeatureLimits{"weather": {PerHour: 2, PerDay: 10}},
	})

	for i := 0; i < 2; i++ {
		allowed, err := e.AllowFeature(ctx, 1, "weather")
		require.NoError(t, err)
		require.True(t, allowed)
		require.NoError(t, e.RecordUsage(ctx, 1, "weather"))
	}

	allowed, err := e.AllowFeature(ctx, 1, "weather")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestGlobalWindowRecordsDurableThrottleTrail(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Config{GlobalPerHour: 3})

	for i := 0; i < 4; i++ {
		_, err := e.Allow(ctx, 50)
		require.NoError(t, err)
	}

	stats, err := e.GetGlobalUsageStats(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.AllowedThisHour)
	assert.Equal(t, 1, stats.ThrottledThisHour)
}

func TestGetUsageStatsReflectsRecordUsageCalls(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Config{
		GlobalPerHour: 5,
		Features:      map[string]FeatureLimits{"weather": {PerHour: 10, PerDay: 20}},
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, e.RecordUsage(ctx, 1, "weather"))
	}

	stats, err := e.GetUsageStats(ctx, 1, "weather")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.UsedThisHour)
	assert.Equal(t, 3, stats.UsedToday)
}

func TestReputationScalesFeatureQuota(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Config{
		GlobalPerHour: 5,
		Features:      map[string]FeatureLimits{"weather": {PerHour: 2, PerDay: 10}},
	})
	require.NoError(t, e.SetReputation(ctx, 1, 2.0))

	for i := 0; i < 4; i++ {
		allowed, err := e.AllowFeature(ctx, 1, "weather")
		require.NoError(t, err)
		require.True(t, allowed, "iteration %d", i)
		require.NoError(t, e.RecordUsage(ctx, 1, "weather"))
	}
}
