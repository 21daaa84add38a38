// Package episode tracks per-(chat, thread) conversation windows and
// promotes the important ones to long-term "episode" memories once
// they go quiet or grow too large.
package episode

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/ThatHunky/gryag-sub007/chat"
	"github.com/ThatHunky/gryag-sub007/internal/logging"
	"github.com/ThatHunky/gryag-sub007/internal/store"
)

// Message is the minimal shape the monitor needs per tracked message.
type Message struct {
	ID          int64
	UserID      int64
	Text        string
	HasReaction bool
	Timestamp   time.Time
}

// Window is the live, in-memory state for one (chat, thread) pair.
// Windows are single-writer: only the monitor's sweep goroutine
// finalizes or discards them, though TrackMessage may be called
// concurrently from any number of turn handlers.
type Window struct {
	ChatID       int64
	ThreadID     sql.NullInt64
	Messages     []Message
	LastActivity time.Time
	Participants map[int64]bool
}

// Config tunes window lifetime and the finalize-vs-discard bar.
type Config struct {
	WindowTimeout time.Duration // finalize if idle longer than this
	WindowMax     int           // finalize once this many messages accrue
	MinMessages   int           // below this, a window is discarded, not finalized
	MinImportance float64       // below this, a window is discarded, not finalized
	SweepInterval time.Duration
}

// DefaultConfig matches the defaults implied by §4.5.
var DefaultConfig = Config{
	WindowTimeout: 20 * time.Minute,
	WindowMax:     60,
	MinMessages:   4,
	MinImportance: 0.35,
	SweepInterval: 5 * time.Minute,
}

// Embedder is the narrow embedding capability the monitor needs,
// satisfied by *llmclient.Client.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type windowKey struct {
	chatID   int64
	threadID int64
}

// Monitor owns every live window and the background sweep that
// finalizes or discards them.
type Monitor struct {
	cfg      Config
	store    *store.Store
	client   chat.Client // nil disables LLM-derived topic/summary (fallback only)
	embedder Embedder    // nil disables episode embeddings

	mu      sync.Mutex
	windows map[windowKey]*Window
}

// New builds a Monitor. client/embedder may be nil to run in
// fallback-only mode (e.g. tests or a degraded LLM backend).
func New(cfg Config, st *store.Store, client chat.Client, embedder Embedder) *Monitor {
	return &Monitor{cfg: cfg, store: st, client: client, embedder: embedder, windows: make(map[windowKey]*Window)}
}

func keyFor(chatID int64, threadID sql.NullInt64) windowKey {
	if !threadID.Valid {
		return windowKey{chatID: chatID}
	}
	return windowKey{chatID: chatID, threadID: threadID.Int64}
}

// TrackMessage appends msg to its window, creating one if needed, and
// updates last_activity/participants. Safe for concurrent use.
func (m *Monitor) TrackMessage(chatID int64, threadID sql.NullInt64, msg Message) {
	key := keyFor(chatID, threadID)

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok {
		w = &Window{ChatID: chatID, ThreadID: threadID, Participants: make(map[int64]bool)}
		m.windows[key] = w
	}
	w.Messages = append(w.Messages, msg)
	w.LastActivity = msg.Timestamp
	w.Participants[msg.UserID] = true
}

// Sweep finalizes or discards every window past its idle timeout or
// size cap. Intended to be called on Config.SweepInterval by the
// scheduler.
func (m *Monitor) Sweep(ctx context.Context, now time.Time) {
	log := logging.Logger().With("component", "episode")

	var due []windowKey
	m.mu.Lock()
	for key, w := range m.windows {
		if now.Sub(w.LastActivity) > m.cfg.WindowTimeout || len(w.Messages) >= m.cfg.WindowMax {
			due = append(due, key)
		}
	}
	m.mu.Unlock()

	for _, key := range due {
		m.mu.Lock()
		w := m.windows[key]
		delete(m.windows, key)
		m.mu.Unlock()
		if w == nil {
			continue
		}

		if len(w.Messages) < m.cfg.MinMessages {
			log.Debug("discarding window below min messages", "chat_id", w.ChatID, "messages", len(w.Messages))
			continue
		}

		importance := scoreImportance(w)
		if importance < m.cfg.MinImportance {
			log.Debug("discarding window below min importance", "chat_id", w.ChatID, "importance", importance)
			continue
		}

		if err := m.finalize(ctx, w, importance, now); err != nil {
			log.Warn("finalize episode failed", "chat_id", w.ChatID, "error", err)
		}
	}
}

// Len reports how many windows are currently live, for tests/metrics.
func (m *Monitor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}
