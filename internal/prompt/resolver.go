// Package prompt resolves the active system prompt for a turn, per
// spec.md §4.11: personal -> chat -> global, first hit wins, backed by
// a 1h TTL cache invalidated on every SetPrompt/Deactivate call.
package prompt

import (
	"context"
	"database/sql"
	"strconv"
	"sync"
	"time"

	"github.com/ThatHunky/gryag-sub007/internal/store"
)

// DefaultTTL matches §4.11's literal cache lifetime.
const DefaultTTL = time.Hour

type cacheEntry struct {
	prompt    store.SystemPrompt
	found     bool
	expiresAt time.Time
}

// Resolver resolves and caches the active system prompt per scope.
type Resolver struct {
	store *store.Store
	ttl   time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// New builds a Resolver backed by st, with the default 1h TTL.
func New(st *store.Store) *Resolver {
	return &Resolver{store: st, ttl: DefaultTTL, cache: make(map[string]cacheEntry)}
}

func cacheKey(scope store.PromptScope, id sql.NullInt64) string {
	if !id.Valid {
		return string(scope) + ":global"
	}
	return string(scope) + ":" + strconv.FormatInt(id.Int64, 10)
}

// Resolve returns the text of the active prompt for a turn in chat
// chatID by user userID, trying personal -> chat -> global in order and
// returning the first scope with an active row. Returns "" if no scope
// has one.
func (r *Resolver) Resolve(ctx context.Context, chatID, userID int64) (string, error) {
	scopes := []struct {
		scope store.PromptScope
		id    sql.NullInt64
	}{
		{store.ScopePersonal, sql.NullInt64{Int64: userID, Valid: true}},
		{store.ScopeChat, sql.NullInt64{Int64: chatID, Valid: true}},
		{store.ScopeGlobal, sql.NullInt64{}},
	}

	for _, s := range scopes {
		p, found, err := r.lookup(ctx, s.scope, s.id)
		if err != nil {
			return "", err
		}
		if found {
			return p.Text, nil
		}
	}
	return "", nil
}

func (r *Resolver) lookup(ctx context.Context, scope store.PromptScope, id sql.NullInt64) (store.SystemPrompt, bool, error) {
	key := cacheKey(scope, id)

	r.mu.RLock()
	entry, ok := r.cache[key]
	r.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.prompt, entry.found, nil
	}

	p, err := r.store.Prompts().Active(ctx, scope, id)
	found := true
	if err == store.ErrNotFound {
		found = false
		err = nil
	}
	if err != nil {
		return store.SystemPrompt{}, false, err
	}

	r.mu.Lock()
	r.cache[key] = cacheEntry{prompt: p, found: found, expiresAt: time.Now().Add(r.ttl)}
	r.mu.Unlock()

	return p, found, nil
}

// SetPrompt activates a new prompt in its scope (deactivating whatever
// was active there, per store.PromptRepo.SetActive's transactional
// contract) and invalidates that scope's cache entry.
func (r *Resolver) SetPrompt(ctx context.Context, p store.SystemPrompt) (int64, error) {
	id, err := r.store.Prompts().SetActive(ctx, p)
	if err != nil {
		return 0, err
	}
	r.invalidate(p.Scope, p.ChatID)
	return id, nil
}

// DeactivatePrompt deactivates a specific prompt row and invalidates its
// scope's cache entry so the resolver falls back to the next scope.
func (r *Resolver) DeactivatePrompt(ctx context.Context, id int64, scope store.PromptScope, scopeID sql.NullInt64) error {
	if err := r.store.Prompts().Deactivate(ctx, id); err != nil {
		return err
	}
	r.invalidate(scope, scopeID)
	return nil
}

func (r *Resolver) invalidate(scope store.PromptScope, id sql.NullInt64) {
	key := cacheKey(scope, id)
	r.mu.Lock()
	delete(r.cache, key)
	r.mu.Unlock()
}
