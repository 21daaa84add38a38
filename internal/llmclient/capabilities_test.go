package llmclient

import "testing"

func TestDetectProvider(t *testing.T) {
	cases := map[string]Provider{
		"claude-3-5-sonnet-20241022": ProviderClaude,
		"gemini-2.5-flash":           ProviderGemini,
		"gpt-4o-mini":                ProviderOpenAI,
		"o3-mini":                    ProviderOpenAI,
		"llama3.1:8b":                ProviderOllama,
		"mixtral":                    ProviderOllama,
	}
	for model, want := range cases {
		if got := DetectProvider(model); got != want {
			t.Errorf("DetectProvider(%q) = %v, want %v", model, got, want)
		}
	}
}

func TestDetectCapabilitiesGeminiSupportsMedia(t *testing.T) {
	caps := DetectCapabilities("gemini-2.5-flash")
	if !caps.Audio || !caps.Video {
		t.Errorf("expected gemini to support audio+video, got %+v", caps)
	}
	if !caps.Tools || caps.MaxToolRounds != MaxToolRounds {
		t.Errorf("expected tools enabled with MaxToolRounds=%d, got %+v", MaxToolRounds, caps)
	}
}

func TestDetectCapabilitiesClaudeNoAudioVideo(t *testing.T) {
	caps := DetectCapabilities("claude-sonnet-4-20250514")
	if caps.Audio || caps.Video {
		t.Errorf("expected claude to reject audio/video, got %+v", caps)
	}
	if !caps.Tools {
		t.Errorf("expected claude tools enabled")
	}
}

func TestDetectCapabilitiesReasoningModelNoTools(t *testing.T) {
	caps := DetectCapabilities("o1-preview")
	if caps.Tools {
		t.Errorf("expected o1 family to disable tools, got %+v", caps)
	}
}

func TestModelMaxTokensFallback(t *testing.T) {
	if got := modelMaxTokens("some-unknown-model"); got != 4096 {
		t.Errorf("modelMaxTokens(unknown) = %d, want 4096", got)
	}
	if got := modelMaxTokens("gemini-2.5-pro-latest"); got != 65536 {
		t.Errorf("modelMaxTokens(gemini-2.5-pro-latest) = %d, want 65536", got)
	}
}
