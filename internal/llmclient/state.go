package llmclient

import (
	"sync"

	"github.com/ThatHunky/gryag-sub007/chat"
)

// state manages message history and token usage with thread-safe operations,
// shared by every provider-specific chat implementation.
type state struct {
	mu sync.Mutex

	systemPrompt string
	messages     []chat.Message

	lastMessageUsage chat.TokenUsageDetails
	cumulativeUsage  chat.TokenUsageDetails
}

func newState(systemPrompt string, initial []chat.Message) *state {
	msgs := make([]chat.Message, len(initial))
	copy(msgs, initial)
	return &state{systemPrompt: systemPrompt, messages: msgs}
}

func (s *state) snapshot() (string, []chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := make([]chat.Message, len(s.messages))
	copy(msgs, s.messages)
	return s.systemPrompt, msgs
}

func (s *state) append(msgs []chat.Message, usage *chat.TokenUsageDetails) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msgs...)
	if usage != nil && usage.TotalTokens > 0 {
		s.lastMessageUsage = *usage
		s.cumulativeUsage.InputTokens += usage.InputTokens
		s.cumulativeUsage.OutputTokens += usage.OutputTokens
		s.cumulativeUsage.TotalTokens += usage.TotalTokens
		s.cumulativeUsage.CachedTokens += usage.CachedTokens
	}
}

func (s *state) history() (string, []chat.Message) {
	return s.snapshot()
}

func (s *state) usage() chat.TokenUsage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return chat.TokenUsage{LastMessage: s.lastMessageUsage, Cumulative: s.cumulativeUsage}
}
