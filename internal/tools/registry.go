// Package tools holds the in-process tool registry and dispatcher: typed
// tool declarations, per-tool feature gating against the quota engine,
// JSON-argument dispatch, and error-isolated execution. Tool
// implementations themselves (weather, web search, image generation,
// sandboxed execution) are pluggable and live outside this package.
package tools

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThatHunky/gryag-sub007/chat"
)

// Definition is the schema half of a registered tool, as advertised to
// the LLM and to callers that enumerate tools (e.g. an admin command).
type Definition struct {
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	InputSchema     json.RawMessage `json:"input_schema"`
	Enabled         bool            `json:"enabled"`
	RateLimitFeature string         `json:"rate_limit_feature,omitempty"`
}

type entry struct {
	tool    chat.Tool
	def     Definition
	enabled bool
}

// Registry holds every tool known to the orchestrator. Safe for
// concurrent use; tools may be registered while turns are in flight.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds a tool, visible to the LLM only once enabled (enabled by
// default). rateLimitFeature, if non-empty, names the quota-engine
// feature this tool is gated behind.
func (r *Registry) Register(tool chat.Tool, rateLimitFeature string) error {
	if tool == nil {
		return fmt.Errorf("register tool: nil tool")
	}
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("register tool: empty name")
	}

	var parsed struct {
		InputSchema json.RawMessage `json:"inputSchema"`
	}
	if err := json.Unmarshal([]byte(tool.MCPJsonSchema()), &parsed); err != nil {
		return fmt.Errorf("register tool %q: parse schema: %w", name, err)
	}
	if len(parsed.InputSchema) == 0 {
		return fmt.Errorf("register tool %q: missing input schema", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e := &entry{
		tool: tool,
		def: Definition{
			Name:             name,
			Description:      tool.Description(),
			InputSchema:      parsed.InputSchema,
			Enabled:          true,
			RateLimitFeature: rateLimitFeature,
		},
		enabled: true,
	}
	if _, exists := r.entries[name]; !exists {
		r.order = append(r.order, name)
	}
	r.entries[name] = e
	return nil
}

// SetEnabled toggles a tool's visibility to the LLM without removing it.
func (r *Registry) SetEnabled(name string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		e.enabled = enabled
		e.def.Enabled = enabled
	}
}

// Definitions returns every enabled tool's definition, registration order.
func (r *Registry) Definitions() []Definition {
	r.mu.Lock()
	defer r.mu.Unlock()

	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		if e := r.entries[name]; e != nil && e.enabled {
			defs = append(defs, e.def)
		}
	}
	return defs
}

// get returns the registry entry (tool plus definition) for name, if
// registered and enabled.
func (r *Registry) get(name string) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok || !e.enabled {
		return nil, false
	}
	return e, true
}
