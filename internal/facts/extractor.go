package facts

import (
	"context"
	"time"

	"github.com/ThatHunky/gryag-sub007/chat"
	"github.com/ThatHunky/gryag-sub007/internal/logging"
	"github.com/ThatHunky/gryag-sub007/internal/store"
)

// Config tunes when the optional LLM pass runs.
type Config struct {
	// MinRuleYield is the rule-based candidate count below which the LLM
	// pass is attempted, if the chat also clears ActivityThreshold.
	MinRuleYield int
	// ActivityThreshold is the minimum window size (message count)
	// required before the LLM pass is allowed to run at all.
	ActivityThreshold int
}

// DefaultConfig matches the guarded defaults described in §4.4: only
// reach for the LLM when the cheap pass comes up mostly empty on an
// active window.
var DefaultConfig = Config{MinRuleYield: 1, ActivityThreshold: 6}

// Extractor runs the two-tier fact extraction strategy and persists
// results via store.FactRepo.Upsert.
type Extractor struct {
	cfg    Config
	store  *store.Store
	client chat.Client // nil disables the LLM pass entirely
}

// New builds an Extractor. client may be nil to run rule-based
// extraction only (e.g. in tests, or when no LLM budget is configured).
func New(cfg Config, st *store.Store, client chat.Client) *Extractor {
	return &Extractor{cfg: cfg, store: st, client: client}
}

// Extract runs both passes over w, fuses each candidate into the fact
// store, and returns the resulting facts. Extraction failures are
// logged and swallowed: a bad turn never fails the caller.
func (e *Extractor) Extract(ctx context.Context, w ConversationWindow) []store.Fact {
	log := logging.Logger().With("component", "facts", "chat_id", w.ChatID)

	candidates := extractRules(w)

	if len(candidates) < e.cfg.MinRuleYield && len(w.Messages) >= e.cfg.ActivityThreshold && e.client != nil {
		llmCandidates, err := extractLLM(ctx, e.client, w)
		if err != nil {
			log.Warn("llm fact extraction failed", "error", err)
		} else {
			candidates = append(candidates, llmCandidates...)
		}
	}

	now := time.Now()
	out := make([]store.Fact, 0, len(candidates))
	for _, c := range candidates {
		f, err := e.store.Facts().Upsert(ctx, c.ToStoreFact(now))
		if err != nil {
			log.Warn("fact upsert failed", "error", err, "category", c.Category, "key", c.Key)
			continue
		}
		out = append(out, f)
	}
	return out
}
