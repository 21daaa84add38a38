package llmclient

import (
	"fmt"
	"sync"

	"github.com/ThatHunky/gryag-sub007/chat"
)

// toolSet manages per-chat tool registrations, preserving registration
// order the way providers need to present a stable function list.
type toolSet struct {
	mu    sync.RWMutex
	tools map[string]chat.Tool
	order []string
}

func newToolSet() *toolSet {
	return &toolSet{tools: make(map[string]chat.Tool)}
}

func (t *toolSet) register(tool chat.Tool) error {
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("register tool: missing name")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.tools[name]; !exists {
		t.order = append(t.order, name)
	}
	t.tools[name] = tool
	return nil
}

func (t *toolSet) deregister(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tools, name)
	for i, n := range t.order {
		if n == name {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (t *toolSet) get(name string) (chat.Tool, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tool, ok := t.tools[name]
	return tool, ok
}

func (t *toolSet) all() []chat.Tool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]chat.Tool, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.tools[name])
	}
	return out
}

func (t *toolSet) names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

func (t *toolSet) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.tools)
}
