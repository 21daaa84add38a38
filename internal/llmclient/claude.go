package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ThatHunky/gryag-sub007/chat"
)

// claudeClient is a chat.Client backed by Anthropic's Messages API.
type claudeClient struct {
	anthropicClient anthropic.Client
	modelName       string
	caps            chat.Capabilities
}

var _ chat.Client = (*claudeClient)(nil)

func newClaudeClient(apiKey, apiBase, model string) (*claudeClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("claude: API key required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if apiBase != "" {
		opts = append(opts, option.WithBaseURL(apiBase))
	}
	return &claudeClient{
		anthropicClient: anthropic.NewClient(opts...),
		modelName:       model,
		caps:            DetectCapabilities(model),
	}, nil
}

func (c *claudeClient) NewChat(systemPrompt string, initialMsgs ...chat.Message) chat.Chat {
	return &claudeChat{client: c, state: newState(systemPrompt, initialMsgs), tools: newToolSet()}
}

type claudeChat struct {
	mu     sync.Mutex
	client *claudeClient
	state  *state
	tools  *toolSet
}

var _ chat.Chat = (*claudeChat)(nil)

func (c *claudeChat) Message(ctx context.Context, msg chat.Message, opts ...chat.Option) (chat.Message, error) {
	reqOpts := chat.ApplyOptions(opts...)
	systemPrompt, history := c.state.snapshot()

	var msgs []anthropic.MessageParam
	for _, m := range history {
		p, err := toClaudeMessageParam(m)
		if err != nil {
			return chat.Message{}, fmt.Errorf("claude: converting history: %w", err)
		}
		msgs = append(msgs, p)
	}
	current, err := toClaudeMessageParam(msg)
	if err != nil {
		return chat.Message{}, fmt.Errorf("claude: converting message: %w", err)
	}
	msgs = append(msgs, current)

	maxTokens := int64(modelMaxTokens(c.client.modelName))
	if reqOpts.MaxTokens > 0 {
		maxTokens = int64(reqOpts.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Messages:  msgs,
		Model:     anthropic.Model(c.client.modelName),
		MaxTokens: maxTokens,
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	if reqOpts.Temperature != nil {
		params.Temperature = anthropic.Float(*reqOpts.Temperature)
	}
	if toolParams := c.toolParams(); len(toolParams) > 0 {
		params.Tools = toolParams
	}

	round := 0
	for {
		resp, err := c.client.anthropicClient.Messages.New(ctx, params)
		if err != nil {
			return chat.Message{}, fmt.Errorf("claude: generate: %w", err)
		}

		usage := &chat.TokenUsageDetails{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
			TotalTokens:  int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		}

		assistant := chat.Message{Role: chat.AssistantRole}
		var toolUses []anthropic.ToolUseBlock
		for _, block := range resp.Content {
			switch variant := block.AsAny().(type) {
			case anthropic.TextBlock:
				assistant.AddText(variant.Text)
			case anthropic.ToolUseBlock:
				toolUses = append(toolUses, variant)
				args, _ := json.Marshal(variant.Input)
				assistant.AddToolCall(chat.ToolCall{ID: variant.ID, Name: variant.Name, Arguments: args})
			}
		}

		if len(toolUses) == 0 || round >= c.client.caps.MaxToolRounds {
			c.state.append([]chat.Message{msg, assistant}, usage)
			return assistant, nil
		}

		assistantParam, err := toClaudeMessageParam(assistant)
		if err != nil {
			return chat.Message{}, fmt.Errorf("claude: converting assistant turn: %w", err)
		}
		params.Messages = append(params.Messages, assistantParam)

		var resultBlocks []anthropic.ContentBlockParamUnion
		for _, tu := range toolUses {
			result := c.callTool(ctx, tu.Name, string(tu.Input))
			resultBlocks = append(resultBlocks, anthropic.NewToolResultBlock(tu.ID, result, false))
		}
		params.Messages = append(params.Messages, anthropic.NewUserMessage(resultBlocks...))
		round++
	}
}

func (c *claudeChat) callTool(ctx context.Context, name, argsJSON string) string {
	tool, ok := c.tools.get(name)
	if !ok {
		return fmt.Sprintf(`{"error":"no tool named %q is registered"}`, name)
	}
	return tool.Call(ctx, argsJSON)
}

func (c *claudeChat) toolParams() []anthropic.ToolUnionParam {
	all := c.tools.all()
	if len(all) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(all))
	for _, t := range all {
		var parsed struct {
			InputSchema struct {
				Properties map[string]any `json:"properties"`
				Required   []string       `json:"required"`
			} `json:"inputSchema"`
		}
		if err := json.Unmarshal([]byte(t.MCPJsonSchema()), &parsed); err != nil {
			continue
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name(),
				Description: anthropic.String(t.Description()),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: parsed.InputSchema.Properties,
					Required:   parsed.InputSchema.Required,
				},
			},
		})
	}
	return out
}

func toClaudeMessageParam(m chat.Message) (anthropic.MessageParam, error) {
	switch m.Role {
	case chat.UserRole, chat.ToolRole:
		var blocks []anthropic.ContentBlockParamUnion
		for _, c := range m.Contents {
			if c.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(c.Text))
			}
			if c.ToolResult != nil {
				blocks = append(blocks, anthropic.NewToolResultBlock(c.ToolResult.ToolCallID, c.ToolResult.Content, c.ToolResult.Error != ""))
			}
		}
		return anthropic.NewUserMessage(blocks...), nil
	case chat.AssistantRole:
		var blocks []anthropic.ContentBlockParamUnion
		for _, c := range m.Contents {
			if c.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(c.Text))
			}
			if c.ToolCall != nil {
				var args any
				_ = json.Unmarshal(c.ToolCall.Arguments, &args)
				blocks = append(blocks, anthropic.NewToolUseBlock(c.ToolCall.ID, args, c.ToolCall.Name))
			}
		}
		return anthropic.NewAssistantMessage(blocks...), nil
	default:
		return anthropic.MessageParam{}, fmt.Errorf("claude: unsupported role %q", m.Role)
	}
}

func (c *claudeChat) History() (string, []chat.Message) { return c.state.history() }

func (c *claudeChat) TokenUsage() (chat.TokenUsage, error) { return c.state.usage(), nil }

func (c *claudeChat) MaxTokens() int { return modelMaxTokens(c.client.modelName) }

func (c *claudeChat) RegisterTool(tool chat.Tool) error { return c.tools.register(tool) }

func (c *claudeChat) DeregisterTool(name string) { c.tools.deregister(name) }

func (c *claudeChat) ListTools() []string { return c.tools.names() }
