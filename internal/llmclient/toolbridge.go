package llmclient

import (
	"context"
	"encoding/json"

	"github.com/ThatHunky/gryag-sub007/chat"
	"github.com/ThatHunky/gryag-sub007/internal/tools"
)

// toolBridge adapts one entry of an internal/tools.Registry into a
// chat.Tool so it can be registered on a provider-specific Chat. Calls
// are routed through the shared Dispatcher, which enforces quota gating
// and panic isolation uniformly across providers.
type toolBridge struct {
	def        tools.Definition
	dispatcher *tools.Dispatcher
	userID     int64
}

func (b *toolBridge) Name() string        { return b.def.Name }
func (b *toolBridge) Description() string { return b.def.Description }

func (b *toolBridge) MCPJsonSchema() string {
	data, _ := json.Marshal(struct {
		Name        string          `json:"name"`
		Description string          `json:"description,omitempty"`
		InputSchema json.RawMessage `json:"inputSchema"`
	}{Name: b.def.Name, Description: b.def.Description, InputSchema: b.def.InputSchema})
	return string(data)
}

func (b *toolBridge) Call(ctx context.Context, input string) string {
	return b.dispatcher.Call(ctx, b.userID, b.def.Name, input)
}

// bridgeTools wraps every definition in reg as a chat.Tool bound to
// userID, for registration on a freshly created Chat.
func bridgeTools(reg *tools.Registry, dispatcher *tools.Dispatcher, userID int64) []*toolBridge {
	defs := reg.Definitions()
	out := make([]*toolBridge, 0, len(defs))
	for _, d := range defs {
		out = append(out, &toolBridge{def: d, dispatcher: dispatcher, userID: userID})
	}
	return out
}

// BridgeTools is bridgeTools exposed as chat.Tool, for orchestrator
// callers outside this package that register a turn's tools on a
// freshly created Chat before sending the first message.
func BridgeTools(reg *tools.Registry, dispatcher *tools.Dispatcher, userID int64) []chat.Tool {
	bridged := bridgeTools(reg, dispatcher, userID)
	out := make([]chat.Tool, len(bridged))
	for i, b := range bridged {
		out[i] = b
	}
	return out
}
