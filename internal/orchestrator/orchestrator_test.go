package orchestrator

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ThatHunky/gryag-sub007/chat"
	"github.com/ThatHunky/gryag-sub007/internal/contextmgr"
	"github.com/ThatHunky/gryag-sub007/internal/episode"
	"github.com/ThatHunky/gryag-sub007/internal/prompt"
	"github.com/ThatHunky/gryag-sub007/internal/quota"
	"github.com/ThatHunky/gryag-sub007/internal/store"
	"github.com/ThatHunky/gryag-sub007/internal/tools"
	"github.com/ThatHunky/gryag-sub007/internal/transport"
)

type fakeChat struct {
	reply chat.Message
	err   error
}

func (f *fakeChat) Message(ctx context.Context, msg chat.Message, opts ...chat.Option) (chat.Message, error) {
	return f.reply, f.err
}
func (f *fakeChat) History() (string, []chat.Message)   { return "", nil }
func (f *fakeChat) TokenUsage() (chat.TokenUsage, error) { return chat.TokenUsage{}, nil }
func (f *fakeChat) MaxTokens() int                       { return 8000 }
func (f *fakeChat) RegisterTool(tool chat.Tool) error    { return nil }
func (f *fakeChat) DeregisterTool(name string)           {}
func (f *fakeChat) ListTools() []string                  { return nil }

type fakeClient struct {
	chat *fakeChat
}

func (f *fakeClient) NewChat(systemPrompt string, initialMsgs ...chat.Message) chat.Chat {
	return f.chat
}

type fakeSender struct {
	sent []string
}

func (f *fakeSender) SendText(ctx context.Context, chatID int64, text string, replyTo *int64) error {
	f.sent = append(f.sent, text)
	return nil
}
func (f *fakeSender) SendMedia(ctx context.Context, chatID int64, kind string, data []byte, fileID string, caption string) error {
	return nil
}
func (f *fakeSender) AnswerCallback(ctx context.Context, id string, text string, alert bool) error {
	return nil
}
func (f *fakeSender) SetCommands(ctx context.Context, commands []string) error { return nil }

func newTestOrchestrator(t *testing.T, reply chat.Message) (*Orchestrator, *store.Store, *fakeSender) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	q := quota.New(quota.Config{GlobalPerHour: 5}, st)
	cm := contextmgr.New(contextmgr.DefaultConfig, st, nil)
	pr := prompt.New(st)
	client := &fakeClient{chat: &fakeChat{reply: reply}}
	registry := tools.NewRegistry()
	dispatcher := tools.NewDispatcher(registry, q)
	episodes := episode.New(episode.DefaultConfig, st, nil, nil)
	sender := &fakeSender{}

	cfg := DefaultConfig
	cfg.TriggerPatterns = []string{`(?i)bot`}

	orc, err := New(cfg, st, q, cm, pr, client, registry, dispatcher, episodes, nil, sender, nil)
	require.NoError(t, err)
	return orc, st, sender
}

func userPtr(id int64) *int64 { return &id }

func sqlNullInt64(id int64) sql.NullInt64 { return sql.NullInt64{Int64: id, Valid: true} }

func TestHandleMessageIgnoresUnaddressedTurn(t *testing.T) {
	ctx := context.Background()
	orc, st, sender := newTestOrchestrator(t, chat.AssistantMessage("hello"))

	err := orc.HandleMessage(ctx, transport.Message{
		ChatID: 1, MessageID: 1, UserID: userPtr(10), Text: "just chatting",
	})
	require.NoError(t, err)
	require.Empty(t, sender.sent)

	msgs, err := st.Messages().RecentMessages(ctx, 1, nil, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestHandleMessageRepliesWhenAddressed(t *testing.T) {
	ctx := context.Background()
	orc, st, sender := newTestOrchestrator(t, chat.AssistantMessage("hi there"))

	err := orc.HandleMessage(ctx, transport.Message{
		ChatID: 1, MessageID: 1, UserID: userPtr(10), Text: "hey bot, how are you",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"hi there"}, sender.sent)

	msgs, err := st.Messages().RecentMessages(ctx, 1, nil, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, store.RoleAssistant, msgs[0].Role)
}

func TestHandleMessageDropsBotSender(t *testing.T) {
	ctx := context.Background()
	orc, st, sender := newTestOrchestrator(t, chat.AssistantMessage("hi"))

	err := orc.HandleMessage(ctx, transport.Message{
		ChatID: 1, MessageID: 1, UserID: userPtr(10), UserIsBot: true, Text: "hey bot",
	})
	require.NoError(t, err)
	require.Empty(t, sender.sent)

	msgs, err := st.Messages().RecentMessages(ctx, 1, nil, 10)
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestHandleMessageDeniesOverQuota(t *testing.T) {
	ctx := context.Background()
	orc, _, sender := newTestOrchestrator(t, chat.AssistantMessage("hi"))

	for i := 0; i < 6; i++ {
		err := orc.HandleMessage(ctx, transport.Message{
			ChatID: 1, MessageID: int64(i), UserID: userPtr(10), Text: "hey bot",
		})
		require.NoError(t, err)
	}

	require.Equal(t, DefaultFallback.Quota, sender.sent[len(sender.sent)-1])
}

func TestHandleMessageDropsBannedUser(t *testing.T) {
	ctx := context.Background()
	orc, _, sender := newTestOrchestrator(t, chat.AssistantMessage("hi"))

	require.NoError(t, orc.store.Bans().Ban(ctx, 1, 10, time.Now()))

	err := orc.HandleMessage(ctx, transport.Message{
		ChatID: 1, MessageID: 1, UserID: userPtr(10), Text: "hey bot",
	})
	require.NoError(t, err)
	require.Equal(t, []string{DefaultFallback.Banned}, sender.sent)
}

func TestTriggerProactiveSendsWhenHistoryExists(t *testing.T) {
	ctx := context.Background()
	orc, st, sender := newTestOrchestrator(t, chat.AssistantMessage("anyone still around?"))

	_, err := st.Messages().AppendMessage(ctx, store.Message{
		ChatID: 1, UserID: sqlNullInt64(10), Role: store.RoleUser, Text: "been quiet in here", Timestamp: time.Now(),
	})
	require.NoError(t, err)

	err = orc.TriggerProactive(ctx, 1, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"anyone still around?"}, sender.sent)

	msgs, err := st.Messages().RecentMessages(ctx, 1, nil, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
}

func TestHandleMessageFallsBackWithNoLLMConfigured(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	q := quota.New(quota.Config{GlobalPerHour: 5}, st)
	cm := contextmgr.New(contextmgr.DefaultConfig, st, nil)
	pr := prompt.New(st)
	registry := tools.NewRegistry()
	dispatcher := tools.NewDispatcher(registry, q)
	episodes := episode.New(episode.DefaultConfig, st, nil, nil)
	sender := &fakeSender{}

	cfg := DefaultConfig
	cfg.TriggerPatterns = []string{`(?i)bot`}

	// A genuinely nil chat.Client, as cmd/gryag leaves it when no API
	// key is configured, not a non-nil interface wrapping a nil pointer.
	orc, err := New(cfg, st, q, cm, pr, nil, registry, dispatcher, episodes, nil, sender, nil)
	require.NoError(t, err)

	err = orc.HandleMessage(ctx, transport.Message{
		ChatID: 1, MessageID: 1, UserID: userPtr(10), Text: "hey bot, how are you",
	})
	require.NoError(t, err)
	require.Equal(t, []string{DefaultFallback.LLMUnavailable}, sender.sent)
}

func TestTriggerProactiveSkipsWithNoLLMConfigured(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	q := quota.New(quota.Config{GlobalPerHour: 5}, st)
	cm := contextmgr.New(contextmgr.DefaultConfig, st, nil)
	pr := prompt.New(st)
	registry := tools.NewRegistry()
	dispatcher := tools.NewDispatcher(registry, q)
	episodes := episode.New(episode.DefaultConfig, st, nil, nil)
	sender := &fakeSender{}

	orc, err := New(DefaultConfig, st, q, cm, pr, nil, registry, dispatcher, episodes, nil, sender, nil)
	require.NoError(t, err)

	_, err = st.Messages().AppendMessage(ctx, store.Message{
		ChatID: 1, UserID: sqlNullInt64(10), Role: store.RoleUser, Text: "been quiet in here", Timestamp: time.Now(),
	})
	require.NoError(t, err)

	err = orc.TriggerProactive(ctx, 1, nil)
	require.NoError(t, err)
	require.Empty(t, sender.sent)
}

func TestTriggerProactiveSkipsEmptyChat(t *testing.T) {
	ctx := context.Background()
	orc, _, sender := newTestOrchestrator(t, chat.AssistantMessage("hi"))

	err := orc.TriggerProactive(ctx, 404, nil)
	require.NoError(t, err)
	require.Empty(t, sender.sent)
}
