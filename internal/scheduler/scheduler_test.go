package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ThatHunky/gryag-sub007/internal/episode"
	"github.com/ThatHunky/gryag-sub007/internal/quota"
	"github.com/ThatHunky/gryag-sub007/internal/store"
	"github.com/ThatHunky/gryag-sub007/internal/summarizer"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestNewRegistersEveryConfiguredJob(t *testing.T) {
	st := newTestStore(t)
	tasks := Tasks{
		Summarizer: summarizer.New(summarizer.DefaultConfig, st, nil),
		Episodes:   episode.New(episode.DefaultConfig, st, nil, nil),
		Quota:      quota.New(quota.Config{GlobalPerHour: 5}, st),
		Store:      st,
	}

	s, err := New(DefaultConfig, tasks)
	require.NoError(t, err)
	require.NotEmpty(t, s.cron.Entries())
}

func TestRetentionPruneRunIsSafeOnEmptyStore(t *testing.T) {
	st := newTestStore(t)
	s, err := New(DefaultConfig, Tasks{Store: st})
	require.NoError(t, err)

	ctx := context.Background()
	s.runRetentionPrune(ctx)
	s.runMediaPrune(ctx)
}

type fakeProactive struct {
	calledChatIDs []int64
}

func (f *fakeProactive) TriggerProactive(ctx context.Context, chatID int64, threadID *int64) error {
	f.calledChatIDs = append(f.calledChatIDs, chatID)
	return nil
}

func TestProactiveTickCallsTriggerForActiveChats(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.Messages().AppendMessage(ctx, store.Message{ChatID: 42, Role: store.RoleUser, Text: "hi", Timestamp: time.Now()})
	require.NoError(t, err)

	proactive := &fakeProactive{}
	s, err := New(DefaultConfig, Tasks{Store: st, Proactive: proactive})
	require.NoError(t, err)

	s.runProactiveTick(ctx)
	require.Equal(t, []int64{42}, proactive.calledChatIDs)
}

func TestStartStopCompletesWithinShutdownBudget(t *testing.T) {
	st := newTestStore(t)
	tasks := Tasks{
		Episodes: episode.New(episode.DefaultConfig, st, nil, nil),
	}

	s, err := New(DefaultConfig, tasks)
	require.NoError(t, err)

	s.Start()
	start := time.Now()
	s.Stop()
	require.Less(t, time.Since(start), ShutdownBudget+time.Second)
}
