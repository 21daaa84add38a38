package contextmgr

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ThatHunky/gryag-sub007/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestAssembleIncludesImmediateMessagesChronologically(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	base := time.Now().Add(-time.Hour)
	for i, text := range []string{"first", "second", "third"} {
		_, err := st.Messages().AppendMessage(ctx, store.Message{
			ChatID:    1,
			Role:      store.RoleUser,
			Text:      text,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	m := New(DefaultConfig, st, nil)
	snippets, msgs, err := m.Assemble(ctx, 1, nil, "")
	require.NoError(t, err)
	require.NotEmpty(t, snippets)
	require.Equal(t, "first", snippets[0].Content)
	require.Equal(t, "third", snippets[len(snippets)-1].Content)
	require.Len(t, msgs, len(snippets))
}

func TestAssembleFallsBackToLastMessageWhenNoTiersMatch(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	cfg := DefaultConfig
	cfg.ImmediateCount = 0
	cfg.RecentCount = 0

	_, err := st.Messages().AppendMessage(ctx, store.Message{ChatID: 1, Role: store.RoleUser, Text: "only message", Timestamp: time.Now()})
	require.NoError(t, err)

	m := New(cfg, st, nil)
	snippets, _, err := m.Assemble(ctx, 1, nil, "")
	require.NoError(t, err)
	require.Len(t, snippets, 1)
	require.Equal(t, "only message", snippets[0].Content)
}

func TestAssembleTruncatesImmediateTierOverBudget(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	base := time.Now().Add(-time.Hour)
	long := make([]byte, 400)
	for i := range long {
		long[i] = 'x'
	}
	for i := 0; i < 3; i++ {
		_, err := st.Messages().AppendMessage(ctx, store.Message{
			ChatID:    1,
			Role:      store.RoleUser,
			Text:      string(long),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	cfg := DefaultConfig
	cfg.TokenBudget = 100 // 10 tokens for immediate tier at 10% share

	m := New(cfg, st, nil)
	snippets, _, err := m.Assemble(ctx, 1, nil, "")
	require.NoError(t, err)
	require.Less(t, len(snippets), 3)
}

func TestAssembleIncludesBackgroundFacts(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	_, err := st.Messages().AppendMessage(ctx, store.Message{
		ChatID: 1, UserID: sql.NullInt64{Int64: 42, Valid: true}, Role: store.RoleUser, Text: "hi", Timestamp: time.Now(),
	})
	require.NoError(t, err)

	now := time.Now()
	_, err = st.Facts().Upsert(ctx, store.Fact{
		EntityType: store.EntityUser, EntityID: 42, ChatContext: sql.NullInt64{Int64: 1, Valid: true},
		Category: "location", Key: "city", Value: "Kyiv",
		Confidence: 0.9, IsActive: true, FirstObserved: now, LastReinforced: now,
	})
	require.NoError(t, err)

	m := New(DefaultConfig, st, nil)
	snippets, _, err := m.Assemble(ctx, 1, nil, "")
	require.NoError(t, err)

	found := false
	for _, s := range snippets {
		if s.Tier == TierBackground {
			found = true
		}
	}
	require.True(t, found)
}
