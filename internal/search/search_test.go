package search

import (
	"context"
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

func TestSearchKeywordMatch(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	_, err := st.Messages().AppendMessage(ctx, store.Message{ChatID: 1, Role: store.RoleUser, Text: "I love pizza", Timestamp: time.Now()})
	require.NoError(t, err)
	_, err = st.Messages().AppendMessage(ctx, store.Message{ChatID: 1, Role: store.RoleUser, Text: "unrelated weather chat", Timestamp: time.Now()})
	require.NoError(t, err)

	e := New(Config{EnableKeywordSearch: true}, st, nil)
	results, err := e.Search(ctx, 1, "pizza", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "I love pizza", results[0].Content)
}

func TestSearchFallsBackToRecentWhenEmpty(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	_, err := st.Messages().AppendMessage(ctx, store.Message{ChatID: 1, Role: store.RoleUser, Text: "hello there", Timestamp: time.Now()})
	require.NoError(t, err)

	e := New(Config{EnableKeywordSearch: true}, st, nil)
	results, err := e.Search(ctx, 1, "nonmatching query xyz", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "hello there", results[0].Content)
}

type fakeEmbedder struct {
	vecs map[string][]float32
}

func (f fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vecs[text], nil
}

func TestSearchSemanticCandidatesRankedBySimilarity(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	id1, err := st.Messages().AppendMessage(ctx, store.Message{ChatID: 1, Role: store.RoleUser, Text: "close match", Timestamp: time.Now()})
	require.NoError(t, err)
	require.NoError(t, st.Messages().UpdateEmbedding(ctx, id1, []float32{1, 0, 0}))

	id2, err := st.Messages().AppendMessage(ctx, store.Message{ChatID: 1, Role: store.RoleUser, Text: "far match", Timestamp: time.Now()})
	require.NoError(t, err)
	require.NoError(t, st.Messages().UpdateEmbedding(ctx, id2, []float32{0, 1, 0}))

	emb := fakeEmbedder{vecs: map[string][]float32{"query": {1, 0, 0}}}
	e := New(Config{EnableHybrid: true, SemanticCandidatePool: 3}, st, emb)

	results, err := e.Search(ctx, 1, "query", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "close match", results[0].Content)
}

func TestCosineSimilarity(t *testing.T) {
	require.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{1, 0}), 0.0001)
	require.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 0.0001)
}
