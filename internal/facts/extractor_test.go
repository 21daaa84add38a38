package facts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThatHunky/gryag-sub007/chat"
	"github.com/ThatHunky/gryag-sub007/internal/store"
)

type fakeChatClient struct{ reply string }

func (f *fakeChatClient) NewChat(systemPrompt string, initialMsgs ...chat.Message) chat.Chat {
	return &fakeChat{reply: f.reply}
}

type fakeChat struct{ reply string }

func (f *fakeChat) Message(ctx context.Context, msg chat.Message, opts ...chat.Option) (chat.Message, error) {
	return chat.AssistantMessage(f.reply), nil
}
func (f *fakeChat) History() (string, []chat.Message)   { return "", nil }
func (f *fakeChat) TokenUsage() (chat.TokenUsage, error) { return chat.TokenUsage{}, nil }
func (f *fakeChat) MaxTokens() int                       { return 4096 }
func (f *fakeChat) RegisterTool(tool chat.Tool) error    { return nil }
func (f *fakeChat) DeregisterTool(name string)           {}
func (f *fakeChat) ListTools() []string                  { return nil }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestExtractorRuleOnlySkipsLLMWhenDisabled(t *testing.T) {
	st := newTestStore(t)
	e := New(DefaultConfig, st, nil)

	w := ConversationWindow{ChatID: 1, Messages: []Message{
		{ID: 1, UserID: 5, Text: "i live in Lviv"},
	}}
	facts := e.Extract(context.Background(), w)
	require.Len(t, facts, 1)
	assert.Equal(t, "lives_in", facts[0].Key)
}

func TestExtractorFallsBackToLLMWhenRuleYieldLow(t *testing.T) {
	st := newTestStore(t)
	client := &fakeChatClient{reply: `[{"user_id":9,"category":"profession","key":"works_as","value":"a baker","confidence":0.7,"evidence":"..."}]`}
	e := New(Config{MinRuleYield: 5, ActivityThreshold: 1}, st, client)

	w := ConversationWindow{ChatID: 1, Messages: []Message{
		{ID: 1, UserID: 9, Text: "just chatting about nothing in particular"},
	}}
	facts := e.Extract(context.Background(), w)
	require.Len(t, facts, 1)
	assert.Equal(t, "profession", facts[0].Category)
}

func TestExtractorDropsDisallowedCategory(t *testing.T) {
	st := newTestStore(t)
	client := &fakeChatClient{reply: `[{"user_id":9,"category":"medical_history","key":"x","value":"y","confidence":0.9,"evidence":"z"}]`}
	e := New(Config{MinRuleYield: 5, ActivityThreshold: 1}, st, client)

	w := ConversationWindow{ChatID: 1, Messages: []Message{{ID: 1, UserID: 9, Text: "random text"}}}
	facts := e.Extract(context.Background(), w)
	assert.Empty(t, facts)
}

func TestExtractorSwallowsLLMFailure(t *testing.T) {
	st := newTestStore(t)
	client := &fakeChatClient{reply: "not json at all"}
	e := New(Config{MinRuleYield: 5, ActivityThreshold: 1}, st, client)

	w := ConversationWindow{ChatID: 1, Messages: []Message{{ID: 1, UserID: 9, Text: "random text"}}}
	assert.NotPanics(t, func() {
		facts := e.Extract(context.Background(), w)
		assert.Empty(t, facts)
	})
}

func TestExtractorFusesRepeatedObservation(t *testing.T) {
	st := newTestStore(t)
	e := New(DefaultConfig, st, nil)

	w := ConversationWindow{ChatID: 1, Messages: []Message{{ID: 1, UserID: 5, Text: "i live in Lviv"}}}
	first := e.Extract(context.Background(), w)
	require.Len(t, first, 1)

	w2 := ConversationWindow{ChatID: 1, Messages: []Message{{ID: 2, UserID: 5, Text: "i live in Lviv"}}}
	second := e.Extract(context.Background(), w2)
	require.Len(t, second, 1)

	assert.Greater(t, second[0].Confidence, first[0].Confidence)
	assert.Equal(t, 2, second[0].EvidenceCount)
}
