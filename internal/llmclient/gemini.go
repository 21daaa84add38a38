package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"google.golang.org/genai"

	"github.com/ThatHunky/gryag-sub007/chat"
)

// geminiClient is a chat.Client backed by Google's Gemini API, built
// fresh against google.golang.org/genai rather than adapted from the
// teacher's now-incompatible single-string-Content implementation.
type geminiClient struct {
	genaiClient *genai.Client
	modelName   string
	caps        chat.Capabilities
}

var _ chat.Client = (*geminiClient)(nil)

func newGeminiClient(apiKey, model string) (*geminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key required")
	}
	c, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &geminiClient{genaiClient: c, modelName: model, caps: DetectCapabilities(model)}, nil
}

func (c *geminiClient) NewChat(systemPrompt string, initialMsgs ...chat.Message) chat.Chat {
	return &geminiChat{
		client: c,
		state:  newState(systemPrompt, initialMsgs),
		tools:  newToolSet(),
	}
}

func (c *geminiClient) embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.genaiClient.Models.EmbedContent(ctx, "text-embedding-004",
		[]*genai.Content{{Parts: []*genai.Part{{Text: text}}}}, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini: embed: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("gemini: embed: empty response")
	}
	return resp.Embeddings[0].Values, nil
}

type geminiChat struct {
	mu     sync.Mutex
	client *geminiClient
	state  *state
	tools  *toolSet
}

var _ chat.Chat = (*geminiChat)(nil)

func (c *geminiChat) Message(ctx context.Context, msg chat.Message, opts ...chat.Option) (chat.Message, error) {
	reqOpts := chat.ApplyOptions(opts...)
	systemPrompt, history := c.state.snapshot()

	contents := make([]*genai.Content, 0, len(history)+1)
	for _, m := range history {
		contents = append(contents, toGeminiContent(m))
	}
	contents = append(contents, toGeminiContent(msg))

	cfg := &genai.GenerateContentConfig{}
	if systemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}}
	}
	if reqOpts.Temperature != nil {
		t := float32(*reqOpts.Temperature)
		cfg.Temperature = &t
	}
	if reqOpts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(reqOpts.MaxTokens)
	}
	if decls := c.functionDeclarations(); len(decls) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	round := 0
	for {
		resp, err := c.client.genaiClient.Models.GenerateContent(ctx, c.client.modelName, contents, cfg)
		if err != nil {
			return chat.Message{}, fmt.Errorf("gemini: generate: %w", err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return chat.Message{}, fmt.Errorf("gemini: empty response")
		}

		var usage *chat.TokenUsageDetails
		if resp.UsageMetadata != nil {
			usage = &chat.TokenUsageDetails{
				InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
				OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
				TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
				CachedTokens: int(resp.UsageMetadata.CachedContentTokenCount),
			}
		}

		parts := resp.Candidates[0].Content.Parts
		var calls []*genai.FunctionCall
		assistant := chat.Message{Role: chat.AssistantRole}
		for _, p := range parts {
			if p.FunctionCall != nil {
				calls = append(calls, p.FunctionCall)
				args, _ := json.Marshal(p.FunctionCall.Args)
				assistant.AddToolCall(chat.ToolCall{ID: p.FunctionCall.ID, Name: p.FunctionCall.Name, Arguments: args})
			}
			if p.Text != "" {
				assistant.AddText(p.Text)
			}
		}

		if len(calls) == 0 || round >= c.client.caps.MaxToolRounds {
			c.state.append([]chat.Message{msg, assistant}, usage)
			return assistant, nil
		}

		contents = append(contents, resp.Candidates[0].Content)
		resultParts := make([]*genai.Part, 0, len(calls))
		for _, call := range calls {
			result := c.callTool(ctx, call.Name, call.Args)
			resultParts = append(resultParts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{ID: call.ID, Name: call.Name, Response: result},
			})
		}
		contents = append(contents, &genai.Content{Role: "function", Parts: resultParts})
		round++
	}
}

func (c *geminiChat) callTool(ctx context.Context, name string, args map[string]any) map[string]any {
	tool, ok := c.tools.get(name)
	if !ok {
		return map[string]any{"error": fmt.Sprintf("no tool named %q is registered", name)}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return map[string]any{"error": "failed to marshal arguments"}
	}
	raw := tool.Call(ctx, string(argsJSON))
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{"result": raw}
	}
	return out
}

func (c *geminiChat) functionDeclarations() []*genai.FunctionDeclaration {
	tools := c.tools.all()
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decl, err := mcpToGeminiFunctionDeclaration(t)
		if err != nil {
			continue
		}
		decls = append(decls, decl)
	}
	return decls
}

func mcpToGeminiFunctionDeclaration(t chat.ToolDef) (*genai.FunctionDeclaration, error) {
	var parsed struct {
		InputSchema json.RawMessage `json:"inputSchema"`
	}
	if err := json.Unmarshal([]byte(t.MCPJsonSchema()), &parsed); err != nil {
		return nil, err
	}
	params := &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{}}
	var schemaMap map[string]any
	if len(parsed.InputSchema) > 0 {
		if err := json.Unmarshal(parsed.InputSchema, &schemaMap); err == nil {
			if props, ok := schemaMap["properties"].(map[string]any); ok {
				for name, raw := range props {
					if pm, ok := raw.(map[string]any); ok {
						prop := &genai.Schema{}
						if ts, ok := pm["type"].(string); ok {
							switch ts {
							case "string":
								prop.Type = genai.TypeString
							case "integer":
								prop.Type = genai.TypeInteger
							case "number":
								prop.Type = genai.TypeNumber
							case "boolean":
								prop.Type = genai.TypeBoolean
							case "array":
								prop.Type = genai.TypeArray
							case "object":
								prop.Type = genai.TypeObject
							}
						}
						if desc, ok := pm["description"].(string); ok {
							prop.Description = desc
						}
						params.Properties[name] = prop
					}
				}
			}
			if req, ok := schemaMap["required"].([]any); ok {
				for _, r := range req {
					if name, ok := r.(string); ok {
						params.Required = append(params.Required, name)
					}
				}
			}
		}
	}
	return &genai.FunctionDeclaration{Name: t.Name(), Description: t.Description(), Parameters: params}, nil
}

func toGeminiContent(m chat.Message) *genai.Content {
	role := "user"
	if m.Role == chat.AssistantRole {
		role = "model"
	}
	parts := make([]*genai.Part, 0, len(m.Contents))
	for _, c := range m.Contents {
		switch {
		case c.Text != "":
			parts = append(parts, &genai.Part{Text: c.Text})
		case c.Media != nil:
			parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: c.Media.MIMEType, Data: c.Media.Data}})
		}
	}
	if len(parts) == 0 {
		parts = append(parts, &genai.Part{Text: ""})
	}
	return &genai.Content{Role: role, Parts: parts}
}

func (c *geminiChat) History() (string, []chat.Message) { return c.state.history() }

func (c *geminiChat) TokenUsage() (chat.TokenUsage, error) { return c.state.usage(), nil }

func (c *geminiChat) MaxTokens() int { return modelMaxTokens(c.client.modelName) }

func (c *geminiChat) RegisterTool(tool chat.Tool) error { return c.tools.register(tool) }

func (c *geminiChat) DeregisterTool(name string) { c.tools.deregister(name) }

func (c *geminiChat) ListTools() []string { return c.tools.names() }
