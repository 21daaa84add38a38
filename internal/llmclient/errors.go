package llmclient

import (
	"errors"
	"strings"
)

// ErrLLMUnavailable is returned by Chat.Message/Client.Embed while the circuit
// breaker is open, without attempting a network call.
var ErrLLMUnavailable = errors.New("llm unavailable: circuit open")

// isNonRetryable reports whether err represents a failure that retrying
// the same request would not fix (rate limiting, quota exhaustion, auth),
// as opposed to a transient network/server error. Non-retryable failures
// still count against the circuit breaker: a provider that is rejecting
// every request is unavailable for our purposes regardless of cause.
func isNonRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"):
		return true
	case strings.Contains(msg, "resource exhausted"):
		return true
	case strings.Contains(msg, "rate limit"):
		return true
	case strings.Contains(msg, "quota"):
		return true
	case strings.Contains(msg, "401"), strings.Contains(msg, "403"), strings.Contains(msg, "unauthorized"):
		return true
	default:
		return false
	}
}
