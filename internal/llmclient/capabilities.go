package llmclient

import (
	"strings"

	"github.com/ThatHunky/gryag-sub007/chat"
)

// MaxToolRounds bounds how many tool-call round-trips a single turn may
// take; past it, each backend returns the model's latest response as it
// is, without executing further tool calls. Mirrors
// internal/tools.MaxRoundTrips; duplicated as a constant here to avoid an
// import cycle (internal/tools never needs to know about llmclient).
const MaxToolRounds = 2

// Provider identifies which backend SDK a model name routes to.
type Provider int

const (
	ProviderGemini Provider = iota
	ProviderClaude
	ProviderOpenAI
	ProviderOllama
)

func (p Provider) String() string {
	switch p {
	case ProviderGemini:
		return "gemini"
	case ProviderClaude:
		return "claude"
	case ProviderOpenAI:
		return "openai"
	case ProviderOllama:
		return "ollama"
	default:
		return "unknown"
	}
}

// DetectProvider routes a model name to the backend that serves it, by
// stable name-pattern rules. Unrecognized names fall through to Ollama,
// treated as an OpenAI-compatible local endpoint.
func DetectProvider(model string) Provider {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(m, "claude-"):
		return ProviderClaude
	case strings.HasPrefix(m, "gemini-"):
		return ProviderGemini
	case strings.HasPrefix(m, "gpt-"), strings.HasPrefix(m, "o1-"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4-"):
		return ProviderOpenAI
	default:
		return ProviderOllama
	}
}

// DetectCapabilities resolves what a model supports from its name alone.
// Unknown models default to the most permissive-but-safe profile: text
// and tools enabled, media disabled (a silent downgrade is safer than a
// provider-side rejection for attachments we can't predict).
func DetectCapabilities(model string) chat.Capabilities {
	m := strings.ToLower(strings.TrimSpace(model))
	caps := chat.Capabilities{Tools: true, MaxToolRounds: MaxToolRounds}

	switch DetectProvider(model) {
	case ProviderGemini:
		caps.Audio = true
		caps.Video = true
	case ProviderClaude:
		// Claude's Messages API accepts images but not audio/video inline.
	case ProviderOpenAI:
		if strings.HasPrefix(m, "gpt-4o") || strings.HasPrefix(m, "gpt-5") {
			caps.Audio = true
		}
	case ProviderOllama:
		// Local/compatible models: assume text+tools only unless proven
		// otherwise; most Ollama-served models reject media parts.
	}

	// Reasoning-only model families commonly run without tool support on
	// older API surfaces; only the o1- family has tools turned off here,
	// while o3 and o4 models keep the default.
	if strings.HasPrefix(m, "o1-") {
		caps.Tools = false
	}

	return caps
}

// modelTokenLimits merges the per-provider tables the examples keep
// separately, matched longest-prefix-first.
var modelTokenLimits = []chat.ModelTokenLimits{
	{Model: "gemini-2.5-pro", TokenLimits: chat.TokenLimits{Context: 1048576, Output: 65536}},
	{Model: "gemini-2.5-flash", TokenLimits: chat.TokenLimits{Context: 1048576, Output: 65536}},
	{Model: "gemini-2.0-flash", TokenLimits: chat.TokenLimits{Context: 1048576, Output: 8192}},
	{Model: "gemini-1.5-pro", TokenLimits: chat.TokenLimits{Context: 2097152, Output: 8192}},
	{Model: "gemini-1.5-flash", TokenLimits: chat.TokenLimits{Context: 1048576, Output: 8192}},
	{Model: "claude-opus-4", TokenLimits: chat.TokenLimits{Context: 200000, Output: 32000}},
	{Model: "claude-sonnet-4", TokenLimits: chat.TokenLimits{Context: 200000, Output: 64000}},
	{Model: "claude-3-7-sonnet", TokenLimits: chat.TokenLimits{Context: 200000, Output: 64000}},
	{Model: "claude-3-5-sonnet", TokenLimits: chat.TokenLimits{Context: 200000, Output: 8192}},
	{Model: "claude-3-5-haiku", TokenLimits: chat.TokenLimits{Context: 200000, Output: 8192}},
	{Model: "gpt-5", TokenLimits: chat.TokenLimits{Context: 400000, Output: 128000}},
	{Model: "gpt-4.1", TokenLimits: chat.TokenLimits{Context: 1000000, Output: 32768}},
	{Model: "gpt-4o", TokenLimits: chat.TokenLimits{Context: 128000, Output: 16384}},
	{Model: "gpt-4", TokenLimits: chat.TokenLimits{Context: 8192, Output: 8192}},
}

func modelMaxTokens(model string) int {
	m := strings.ToLower(model)
	for _, l := range modelTokenLimits {
		if strings.HasPrefix(m, l.Model) {
			return l.Output
		}
	}
	return 4096
}
