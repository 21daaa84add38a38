// Package llmclient wraps provider SDKs (Gemini, Claude, OpenAI/Ollama)
// behind the chat.Client/chat.Chat contract, adding the cross-cutting
// concerns no single provider SDK handles: capability probing, media
// filtering, system-instruction fallback, bounded tool-call arbitration,
// circuit breaking, API-key index rotation (the backend is not re-dialed
// with the new key), and embedding concurrency control.
package llmclient

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ThatHunky/gryag-sub007/chat"
	"github.com/ThatHunky/gryag-sub007/internal/circuit"
	"github.com/ThatHunky/gryag-sub007/internal/logging"
)

// embedConcurrency bounds how many embedding requests may be in flight
// at once, independent of chat traffic.
const embedConcurrency = 8

// Config configures a Client.
type Config struct {
	Model   string
	APIKeys []string // New dials the backend with the first; at least one required
	APIBase string   // override for OpenAI-compatible/Ollama endpoints

	Breaker *circuit.Breaker // defaults to circuit.New(circuit.DefaultConfig)
}

// Client is the single entry point the rest of the system uses to talk
// to an LLM, regardless of provider.
type Client struct {
	cfg      Config
	provider Provider
	backend  chat.Client
	caps     chat.Capabilities
	breaker  *circuit.Breaker
	embedSem chan struct{}

	mu      sync.Mutex
	keyIdx  int
	failing atomic.Bool
}

var _ chat.Client = (*Client)(nil)

// New builds a Client, routing to the appropriate backend by model name.
func New(cfg Config) (*Client, error) {
	if len(cfg.APIKeys) == 0 && DetectProvider(cfg.Model) != ProviderOllama {
		return nil, fmt.Errorf("llmclient: at least one API key required for %s", cfg.Model)
	}
	c := &Client{
		cfg:      cfg,
		provider: DetectProvider(cfg.Model),
		caps:     DetectCapabilities(cfg.Model),
		breaker:  cfg.Breaker,
		embedSem: make(chan struct{}, embedConcurrency),
	}
	if c.breaker == nil {
		c.breaker = circuit.New(circuit.DefaultConfig)
	}
	if err := c.dial(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) currentKey() string {
	if len(c.cfg.APIKeys) == 0 {
		return ""
	}
	return c.cfg.APIKeys[c.keyIdx%len(c.cfg.APIKeys)]
}

// rotateKey advances keyIdx to the next configured API key, used after a
// non-retryable failure that looks like an exhausted/invalid key. Only
// the index moves: the backend built by New keeps the key it was dialed
// with, so later requests still go out with that key.
func (c *Client) rotateKey() {
	if len(c.cfg.APIKeys) < 2 {
		return
	}
	c.mu.Lock()
	c.keyIdx = (c.keyIdx + 1) % len(c.cfg.APIKeys)
	c.mu.Unlock()
	logging.Logger().With("component", "llmclient").Warn("rotated API key after failure", "model", c.cfg.Model)
}

func (c *Client) dial() error {
	switch c.provider {
	case ProviderGemini:
		backend, err := newGeminiClient(c.currentKey(), c.cfg.Model)
		if err != nil {
			return err
		}
		c.backend = backend
	case ProviderClaude:
		backend, err := newClaudeClient(c.currentKey(), c.cfg.APIBase, c.cfg.Model)
		if err != nil {
			return err
		}
		c.backend = backend
	case ProviderOpenAI:
		apiBase := c.cfg.APIBase
		if apiBase == "" {
			apiBase = "https://api.openai.com/v1"
		}
		backend, err := newOpenAIClient(apiBase, c.currentKey(), c.cfg.Model)
		if err != nil {
			return err
		}
		c.backend = backend
	case ProviderOllama:
		apiBase := c.cfg.APIBase
		if apiBase == "" {
			apiBase = "http://localhost:11434/v1"
		}
		backend, err := newOpenAIClient(apiBase, c.currentKey(), c.cfg.Model)
		if err != nil {
			return err
		}
		c.backend = backend
	default:
		return fmt.Errorf("llmclient: unrouteable model %q", c.cfg.Model)
	}
	return nil
}

// NewChat returns a Chat wrapping the backend's own Chat with media
// filtering and circuit breaking applied uniformly.
func (c *Client) NewChat(systemPrompt string, initialMsgs ...chat.Message) chat.Chat {
	// Ollama-served models frequently mishandle a dedicated system role;
	// fall back to the prepend-as-first-turn technique for that family.
	if c.provider == ProviderOllama && systemPrompt != "" {
		prefix := []chat.Message{
			chat.UserMessage(systemPrompt),
			chat.AssistantMessage("Understood, I'll follow these instructions."),
		}
		initialMsgs = append(prefix, initialMsgs...)
		systemPrompt = ""
	}
	return &guardedChat{
		client: c,
		inner:  c.backend.NewChat(systemPrompt, initialMsgs...),
	}
}

// Embed computes a text embedding, gated by both the circuit breaker and
// a fixed concurrency limit independent of chat traffic. Only Gemini
// implements embeddings in this client; other providers return an error.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if !c.breaker.Allow() {
		return nil, ErrLLMUnavailable
	}
	backend, ok := c.backend.(*geminiClient)
	if !ok {
		return nil, fmt.Errorf("llmclient: embeddings not supported by provider %s", c.provider)
	}

	select {
	case c.embedSem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.embedSem }()

	vec, err := backend.embed(ctx, text)
	c.recordResult(err)
	return vec, err
}

func (c *Client) recordResult(err error) {
	if err == nil {
		c.breaker.Record(true)
		return
	}
	if isNonRetryable(err) {
		c.rotateKey()
	}
	c.breaker.Record(false)
}

// guardedChat decorates a provider Chat with media filtering and circuit
// breaker gating around Message.
type guardedChat struct {
	client *Client
	inner  chat.Chat
}

var _ chat.Chat = (*guardedChat)(nil)

func (g *guardedChat) Message(ctx context.Context, msg chat.Message, opts ...chat.Option) (chat.Message, error) {
	if !g.client.breaker.Allow() {
		return chat.Message{}, ErrLLMUnavailable
	}

	msg = filterMedia(msg, g.client.caps)

	resp, err := g.inner.Message(ctx, msg, opts...)
	g.client.recordResult(err)
	if err != nil {
		return chat.Message{}, err
	}
	return resp, nil
}

func (g *guardedChat) History() (string, []chat.Message) { return g.inner.History() }

func (g *guardedChat) TokenUsage() (chat.TokenUsage, error) { return g.inner.TokenUsage() }

func (g *guardedChat) MaxTokens() int { return g.inner.MaxTokens() }

func (g *guardedChat) RegisterTool(tool chat.Tool) error { return g.inner.RegisterTool(tool) }

func (g *guardedChat) DeregisterTool(name string) { g.inner.DeregisterTool(name) }

func (g *guardedChat) ListTools() []string { return g.inner.ListTools() }
