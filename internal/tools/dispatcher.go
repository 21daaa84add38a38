package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThatHunky/gryag-sub007/internal/logging"
)

// MaxRoundTrips is the per-turn tool-call round-trip cap. The provider
// loops enforce it through internal/llmclient.MaxToolRounds, which holds
// the same value; past the cap the model's latest response is returned
// as it is.
const MaxRoundTrips = 2

// QuotaChecker is the narrow slice of the quota engine the dispatcher
// needs, satisfied by *quota.Engine.
type QuotaChecker interface {
	AllowFeature(ctx context.Context, userID int64, feature string) (bool, error)
	RecordUsage(ctx context.Context, userID int64, feature string) error
}

// Dispatcher executes function calls returned by the LLM against the
// registry, translating every failure mode into a JSON object the model
// can read rather than propagating an error up the call stack.
type Dispatcher struct {
	registry *Registry
	quota    QuotaChecker
}

// NewDispatcher builds a dispatcher over reg, gating rate-limited tools
// through quota.
func NewDispatcher(reg *Registry, quota QuotaChecker) *Dispatcher {
	return &Dispatcher{registry: reg, quota: quota}
}

// Call executes the named tool for userID with the given JSON arguments,
// always returning a JSON string: the tool's own result, or a translated
// error object for unknown tools, throttling, or a handler panic.
func (d *Dispatcher) Call(ctx context.Context, userID int64, name, argsJSON string) string {
	log := logging.Logger().With("component", "tools", "tool", name)

	e, ok := d.registry.get(name)
	if !ok {
		log.Warn("unknown tool requested")
		return errorObject("unknown_tool", fmt.Sprintf("no tool named %q is registered", name))
	}

	if e.def.RateLimitFeature != "" && d.quota != nil {
		allowed, err := d.quota.AllowFeature(ctx, userID, e.def.RateLimitFeature)
		if err != nil {
			log.Error("quota check failed", "error", err)
			return errorObject("internal_error", "rate limit check failed")
		}
		if !allowed {
			log.Info("tool call throttled", "feature", e.def.RateLimitFeature, "user_id", userID)
			return errorObject("throttled", "you've used this feature too much recently, try again later")
		}
	}

	result := d.invoke(ctx, e, argsJSON)

	if e.def.RateLimitFeature != "" && d.quota != nil {
		if err := d.quota.RecordUsage(ctx, userID, e.def.RateLimitFeature); err != nil {
			log.Warn("record usage failed", "error", err)
		}
	}

	return result
}

func (d *Dispatcher) invoke(ctx context.Context, e *entry, argsJSON string) (result string) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Logger().With("component", "tools", "tool", e.def.Name).
				Error("tool handler panicked", "recover", rec)
			result = errorObject("internal_error", "the tool failed unexpectedly")
		}
	}()
	return normalizeResult(e.tool.Call(ctx, argsJSON))
}

// normalizeResult passes a JSON object or array through unchanged and
// wraps anything else (bare strings, JSON scalars) as {"result": raw}, so
// providers can treat every tool response
// uniformly as a function_response part.
func normalizeResult(raw string) string {
	var probe json.RawMessage
	if err := json.Unmarshal([]byte(raw), &probe); err == nil {
		trimmed := len(raw) > 0 && (raw[0] == '{' || raw[0] == '[')
		if trimmed {
			return raw
		}
	}
	data, err := json.Marshal(map[string]string{"result": raw})
	if err != nil {
		return errorObject("internal_error", "failed to encode tool result")
	}
	return string(data)
}

func errorObject(kind, message string) string {
	data, _ := json.Marshal(map[string]string{"error": kind, "message": message})
	return string(data)
}
