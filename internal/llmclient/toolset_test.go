package llmclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThatHunky/gryag-sub007/chat"
)

type stubTool struct{ name string }

func (s *stubTool) Name() string                            { return s.name }
func (s *stubTool) Description() string                     { return "stub" }
func (s *stubTool) MCPJsonSchema() string                   { return `{"inputSchema":{"type":"object"}}` }
func (s *stubTool) Call(ctx context.Context, input string) string { return "{}" }

func TestToolSetRegistrationOrder(t *testing.T) {
	ts := newToolSet()
	require.NoError(t, ts.register(&stubTool{name: "b"}))
	require.NoError(t, ts.register(&stubTool{name: "a"}))
	require.NoError(t, ts.register(&stubTool{name: "b"})) // re-register keeps original position

	assert.Equal(t, []string{"b", "a"}, ts.names())
	assert.Equal(t, 2, ts.len())
}

func TestToolSetDeregister(t *testing.T) {
	ts := newToolSet()
	require.NoError(t, ts.register(&stubTool{name: "only"}))
	ts.deregister("only")

	_, ok := ts.get("only")
	assert.False(t, ok)
	assert.Empty(t, ts.names())
}

func TestToolSetRegisterRejectsEmptyName(t *testing.T) {
	ts := newToolSet()
	err := ts.register(&stubTool{name: ""})
	assert.Error(t, err)
}

var _ chat.Tool = (*stubTool)(nil)
