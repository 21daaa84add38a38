package llmclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThatHunky/gryag-sub007/chat"
	"github.com/ThatHunky/gryag-sub007/internal/circuit"
)

type fakeChat struct {
	reply Message
	err   error
	calls int
}

type Message = chat.Message

func (f *fakeChat) Message(ctx context.Context, msg chat.Message, opts ...chat.Option) (chat.Message, error) {
	f.calls++
	if f.err != nil {
		return chat.Message{}, f.err
	}
	return f.reply, nil
}
func (f *fakeChat) History() (string, []chat.Message)      { return "", nil }
func (f *fakeChat) TokenUsage() (chat.TokenUsage, error)    { return chat.TokenUsage{}, nil }
func (f *fakeChat) MaxTokens() int                          { return 4096 }
func (f *fakeChat) RegisterTool(tool chat.Tool) error       { return nil }
func (f *fakeChat) DeregisterTool(name string)              {}
func (f *fakeChat) ListTools() []string                     { return nil }

func TestGuardedChatRecordsFailuresAgainstBreaker(t *testing.T) {
	b := circuit.New(circuit.Config{FailureThreshold: 2, Cooldown: time.Hour})
	inner := &fakeChat{err: errors.New("boom")}
	g := &guardedChat{client: &Client{breaker: b, caps: chat.Capabilities{}}, inner: inner}

	_, err := g.Message(context.Background(), chat.UserMessage("hi"))
	require.Error(t, err)
	_, err = g.Message(context.Background(), chat.UserMessage("hi"))
	require.Error(t, err)

	assert.Equal(t, circuit.Open, b.GetState())

	_, err = g.Message(context.Background(), chat.UserMessage("hi"))
	assert.ErrorIs(t, err, ErrLLMUnavailable)
	assert.Equal(t, 2, inner.calls, "breaker should short-circuit the third call")
}

func TestGuardedChatFiltersMediaBeforeDelegating(t *testing.T) {
	b := circuit.New(circuit.DefaultConfig)
	inner := &fakeChat{reply: chat.AssistantMessage("ok")}
	g := &guardedChat{client: &Client{breaker: b, caps: chat.Capabilities{Audio: false}}, inner: inner}

	msg := chat.UserMessage("listen")
	msg.AddMedia(chat.MediaPart{Kind: chat.MediaAudio, MIMEType: "audio/ogg"})

	_, err := g.Message(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestGuardedChatSuccessResetsBreaker(t *testing.T) {
	b := circuit.New(circuit.Config{FailureThreshold: 1, Cooldown: time.Millisecond})
	inner := &fakeChat{err: errors.New("transient")}
	g := &guardedChat{client: &Client{breaker: b, caps: chat.Capabilities{}}, inner: inner}

	_, _ = g.Message(context.Background(), chat.UserMessage("hi"))
	assert.Equal(t, circuit.Open, b.GetState())

	time.Sleep(2 * time.Millisecond)
	inner.err = nil
	inner.reply = chat.AssistantMessage("recovered")
	_, err := g.Message(context.Background(), chat.UserMessage("hi"))
	require.NoError(t, err)
	assert.Equal(t, circuit.Closed, b.GetState())
}

func TestIsNonRetryableClassification(t *testing.T) {
	assert.True(t, isNonRetryable(errors.New("429 Too Many Requests")))
	assert.True(t, isNonRetryable(errors.New("RESOURCE_EXHAUSTED: quota exceeded")))
	assert.False(t, isNonRetryable(errors.New("connection reset by peer")))
	assert.False(t, isNonRetryable(nil))
}
