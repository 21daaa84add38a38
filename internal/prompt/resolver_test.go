package prompt

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ThatHunky/gryag-sub007/internal/store"
)

func newTestResolver(t *testing.T) (*Resolver, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st), st
}

func TestResolveFallsBackThroughScopes(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestResolver(t)

	now := time.Now()
	_, err := r.SetPrompt(ctx, store.SystemPrompt{
		AdminID: 1, Scope: store.ScopeGlobal, Text: "global prompt", Version: 1,
		CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	text, err := r.Resolve(ctx, 300, 999)
	require.NoError(t, err)
	require.Equal(t, "global prompt", text)

	chatID := sql.NullInt64{Int64: 300, Valid: true}
	id, err := r.SetPrompt(ctx, store.SystemPrompt{
		AdminID: 1, ChatID: chatID, Scope: store.ScopeChat, Text: "chat prompt", Version: 1,
		CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	text, err = r.Resolve(ctx, 300, 999)
	require.NoError(t, err)
	require.Equal(t, "chat prompt", text)

	text, err = r.Resolve(ctx, 301, 999)
	require.NoError(t, err)
	require.Equal(t, "global prompt", text)

	require.NoError(t, r.DeactivatePrompt(ctx, id, store.ScopeChat, chatID))

	text, err = r.Resolve(ctx, 300, 999)
	require.NoError(t, err)
	require.Equal(t, "global prompt", text)
}

func TestResolveReturnsEmptyWhenNothingActive(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestResolver(t)

	text, err := r.Resolve(ctx, 1, 1)
	require.NoError(t, err)
	require.Empty(t, text)
}
