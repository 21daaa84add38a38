package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/ThatHunky/gryag-sub007/chat"
)

// openaiClient is a chat.Client backed by the OpenAI-compatible
// ChatCompletions API. Responses-API-only reasoning models are out of
// scope: tools are central to every SPEC_FULL.md turn, and the
// teacher's own code notes the Responses API doesn't support them yet.
type openaiClient struct {
	openaiClient openai.Client
	modelName    string
	caps         chat.Capabilities
}

var _ chat.Client = (*openaiClient)(nil)

// newOpenAIClient also serves Ollama's OpenAI-compatible endpoint when
// apiBase points at a local server; apiKey may be empty in that case.
func newOpenAIClient(apiBase, apiKey, model string) (*openaiClient, error) {
	opts := []option.RequestOption{option.WithBaseURL(apiBase)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &openaiClient{
		openaiClient: openai.NewClient(opts...),
		modelName:    model,
		caps:         DetectCapabilities(model),
	}, nil
}

func (c *openaiClient) NewChat(systemPrompt string, initialMsgs ...chat.Message) chat.Chat {
	return &openaiChat{client: c, state: newState(systemPrompt, initialMsgs), tools: newToolSet()}
}

type openaiChat struct {
	mu     sync.Mutex
	client *openaiClient
	state  *state
	tools  *toolSet
}

var _ chat.Chat = (*openaiChat)(nil)

func (c *openaiChat) Message(ctx context.Context, msg chat.Message, opts ...chat.Option) (chat.Message, error) {
	reqOpts := chat.ApplyOptions(opts...)
	systemPrompt, history := c.state.snapshot()

	var msgs []openai.ChatCompletionMessageParamUnion
	if systemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(systemPrompt))
	}
	for _, m := range history {
		msgs = append(msgs, toOpenAIMessageParams(m)...)
	}
	msgs = append(msgs, toOpenAIMessageParams(msg)...)

	params := openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    shared.ChatModel(c.client.modelName),
	}
	if reqOpts.Temperature != nil {
		params.Temperature = param.NewOpt(*reqOpts.Temperature)
	}
	if reqOpts.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(reqOpts.MaxTokens))
	}
	if toolParams := c.toolParams(); len(toolParams) > 0 {
		params.Tools = toolParams
	}

	round := 0
	for {
		resp, err := c.client.openaiClient.Chat.Completions.New(ctx, params)
		if err != nil {
			return chat.Message{}, fmt.Errorf("openai: generate: %w", err)
		}
		if len(resp.Choices) == 0 {
			return chat.Message{}, fmt.Errorf("openai: empty response")
		}
		choice := resp.Choices[0]

		usage := &chat.TokenUsageDetails{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		}

		assistant := chat.Message{Role: chat.AssistantRole}
		if choice.Message.Content != "" {
			assistant.AddText(choice.Message.Content)
		}
		for _, tc := range choice.Message.ToolCalls {
			assistant.AddToolCall(chat.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: json.RawMessage(tc.Function.Arguments)})
		}

		if len(choice.Message.ToolCalls) == 0 || round >= c.client.caps.MaxToolRounds {
			c.state.append([]chat.Message{msg, assistant}, usage)
			return assistant, nil
		}

		params.Messages = append(params.Messages, choice.Message.ToParam())
		for _, tc := range choice.Message.ToolCalls {
			result := c.callTool(ctx, tc.Function.Name, tc.Function.Arguments)
			params.Messages = append(params.Messages, openai.ToolMessage(result, tc.ID))
		}
		round++
	}
}

func (c *openaiChat) callTool(ctx context.Context, name, argsJSON string) string {
	tool, ok := c.tools.get(name)
	if !ok {
		return fmt.Sprintf(`{"error":"no tool named %q is registered"}`, name)
	}
	return tool.Call(ctx, argsJSON)
}

func (c *openaiChat) toolParams() []openai.ChatCompletionToolParam {
	all := c.tools.all()
	if len(all) == 0 {
		return nil
	}
	out := make([]openai.ChatCompletionToolParam, 0, len(all))
	for _, t := range all {
		var parsed struct {
			InputSchema json.RawMessage `json:"inputSchema"`
		}
		if err := json.Unmarshal([]byte(t.MCPJsonSchema()), &parsed); err != nil {
			continue
		}
		var schemaMap map[string]any
		_ = json.Unmarshal(parsed.InputSchema, &schemaMap)
		out = append(out, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name(),
				Description: param.NewOpt(t.Description()),
				Parameters:  schemaMap,
			},
		})
	}
	return out
}

func toOpenAIMessageParams(m chat.Message) []openai.ChatCompletionMessageParamUnion {
	switch m.Role {
	case chat.UserRole:
		if m.HasText() {
			return []openai.ChatCompletionMessageParamUnion{openai.UserMessage(m.GetText())}
		}
	case chat.AssistantRole:
		if m.HasToolCalls() {
			var calls []openai.ChatCompletionMessageToolCallParam
			for _, tc := range m.GetToolCalls() {
				calls = append(calls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				})
			}
			msg := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
			if m.HasText() {
				msg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: param.NewOpt(m.GetText()),
				}
			}
			return []openai.ChatCompletionMessageParamUnion{{OfAssistant: &msg}}
		}
		return []openai.ChatCompletionMessageParamUnion{openai.AssistantMessage(m.GetText())}
	case chat.ToolRole:
		var out []openai.ChatCompletionMessageParamUnion
		for _, tr := range m.GetToolResults() {
			out = append(out, openai.ToolMessage(tr.Content, tr.ToolCallID))
		}
		return out
	}
	return nil
}

func (c *openaiChat) History() (string, []chat.Message) { return c.state.history() }

func (c *openaiChat) TokenUsage() (chat.TokenUsage, error) { return c.state.usage(), nil }

func (c *openaiChat) MaxTokens() int { return modelMaxTokens(c.client.modelName) }

func (c *openaiChat) RegisterTool(tool chat.Tool) error { return c.tools.register(tool) }

func (c *openaiChat) DeregisterTool(name string) { c.tools.deregister(name) }

func (c *openaiChat) ListTools() []string { return c.tools.names() }
