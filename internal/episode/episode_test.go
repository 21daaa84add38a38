package episode

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
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

func TestTrackMessageCreatesWindow(t *testing.T) {
	m := New(DefaultConfig, newTestStore(t), nil, nil)
	m.TrackMessage(1, sql.NullInt64{}, Message{ID: 1, UserID: 7, Text: "hi", Timestamp: time.Now()})
	assert.Equal(t, 1, m.Len())
}

func TestSweepDiscardsBelowMinMessages(t *testing.T) {
	cfg := Config{WindowTimeout: time.Millisecond, WindowMax: 100, MinMessages: 10, MinImportance: 0}
	m := New(cfg, newTestStore(t), nil, nil)
	m.TrackMessage(1, sql.NullInt64{}, Message{ID: 1, UserID: 7, Text: "hi", Timestamp: time.Now()})

	time.Sleep(2 * time.Millisecond)
	m.Sweep(context.Background(), time.Now())

	assert.Equal(t, 0, m.Len())
}

func TestSweepFinalizesImportantWindow(t *testing.T) {
	st := newTestStore(t)
	cfg := Config{WindowTimeout: time.Millisecond, WindowMax: 100, MinMessages: 2, MinImportance: 0}
	m := New(cfg, st, nil, nil)

	now := time.Now()
	for i, uid := range []int64{1, 2, 3, 4} {
		m.TrackMessage(55, sql.NullInt64{}, Message{ID: int64(i + 1), UserID: uid, Text: "talking about the project?", Timestamp: now})
	}

	time.Sleep(2 * time.Millisecond)
	m.Sweep(context.Background(), time.Now())

	episodes, err := st.Episodes().RecentByImportance(context.Background(), 55, 0, 10)
	require.NoError(t, err)
	require.Len(t, episodes, 1)
	assert.NotEmpty(t, episodes[0].Topic)
	assert.NotEmpty(t, episodes[0].Summary)
}

func TestSweepIgnoresWindowsStillActive(t *testing.T) {
	cfg := Config{WindowTimeout: time.Hour, WindowMax: 100, MinMessages: 1, MinImportance: 0}
	m := New(cfg, newTestStore(t), nil, nil)
	m.TrackMessage(1, sql.NullInt64{}, Message{ID: 1, UserID: 7, Text: "hi", Timestamp: time.Now()})

	m.Sweep(context.Background(), time.Now())
	assert.Equal(t, 1, m.Len())
}

func TestScoreImportanceRewardsParticipationAndQuestions(t *testing.T) {
	quiet := &Window{Participants: map[int64]bool{1: true}, Messages: []Message{{Text: "ok"}}}
	busy := &Window{
		Participants: map[int64]bool{1: true, 2: true, 3: true, 4: true},
		Messages: []Message{
			{Text: "what do we do next?"}, {Text: "should we ship today?"},
			{Text: "I think so"}, {Text: "agreed"},
		},
	}
	assert.Greater(t, scoreImportance(busy), scoreImportance(quiet))
}
