// Package search implements the hybrid retrieval engine of spec.md
// §4.7: keyword and semantic candidates over a chat's message history,
// fused with a recency-decay signal, feeding the "relevant" tier of the
// context manager. The engine is stateless; all state lives in
// internal/store.
package search

import (
	"context"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ThatHunky/gryag-sub007/internal/store"
)

// Snippet is one retrieved prior message, ready to drop into a prompt.
type Snippet struct {
	MessageID int64
	Role      store.MessageRole
	Content   string
	Score     float64
}

// Embedder is the narrow embedding capability the semantic pass needs,
// satisfied by *llmclient.Client.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config tunes which candidate passes run and how heavily each
// contributes; weights need not sum to 1.
type Config struct {
	EnableHybrid          bool
	EnableKeywordSearch   bool
	EnableTemporalBoosting bool
	SemanticWeight        float64
	KeywordWeight         float64
	TemporalWeight        float64
	// SemanticCandidatePool is the "3k" multiplier from §4.7: how many
	// of the most recent embedded messages are considered per query.
	SemanticCandidatePool int
}

// DefaultConfig matches §4.7's literal defaults.
var DefaultConfig = Config{
	EnableHybrid:           true,
	EnableKeywordSearch:    true,
	EnableTemporalBoosting: true,
	SemanticWeight:         1.0,
	KeywordWeight:          1.0,
	TemporalWeight:         1.0,
	SemanticCandidatePool:  3,
}

// Engine fuses keyword, semantic, and temporal signals into a ranked
// set of prior messages for a query.
type Engine struct {
	cfg      Config
	store    *store.Store
	embedder Embedder // nil disables the semantic pass
}

// New builds a search engine. embedder may be nil to run keyword-only.
func New(cfg Config, st *store.Store, embedder Embedder) *Engine {
	return &Engine{cfg: cfg, store: st, embedder: embedder}
}

// Search returns up to k ranked snippets for query in chatID. If no
// candidate is found by either pass, it falls back to the last k
// messages verbatim, per §4.7 step 4.
func (e *Engine) Search(ctx context.Context, chatID int64, query string, k int) ([]Snippet, error) {
	if k <= 0 {
		return nil, nil
	}

	now := time.Now()

	// Keyword and semantic candidates are independent reads; run them
	// concurrently and merge in a fixed keyword-then-semantic order so
	// the result is deterministic regardless of which finishes first.
	var kw, sem []Snippet
	g, gctx := errgroup.WithContext(ctx)
	if e.cfg.EnableKeywordSearch {
		g.Go(func() error {
			var err error
			kw, err = e.keywordCandidates(gctx, chatID, query, k, now)
			return err
		})
	}
	if e.cfg.EnableHybrid && e.embedder != nil {
		g.Go(func() error {
			var err error
			sem, err = e.semanticCandidates(gctx, chatID, query, k, now)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var ordered []Snippet
	seen := make(map[int64]bool)
	for _, s := range kw {
		if !seen[s.MessageID] {
			seen[s.MessageID] = true
			ordered = append(ordered, s)
		}
	}
	for _, s := range sem {
		if !seen[s.MessageID] {
			seen[s.MessageID] = true
			ordered = append(ordered, s)
		}
	}

	if len(ordered) > k {
		ordered = ordered[:k]
	}

	if len(ordered) == 0 {
		return e.fallback(ctx, chatID, k)
	}
	return ordered, nil
}

func (e *Engine) keywordCandidates(ctx context.Context, chatID int64, query string, k int, now time.Time) ([]Snippet, error) {
	msgs, err := e.store.Messages().SearchMessages(ctx, chatID, query, k)
	if err != nil {
		return nil, err
	}
	out := make([]Snippet, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Snippet{
			MessageID: m.ID,
			Role:      m.Role,
			Content:   m.Text,
			Score:     recencyScore(m.Timestamp, now) * e.cfg.KeywordWeight,
		})
	}
	return out, nil
}

func (e *Engine) semanticCandidates(ctx context.Context, chatID int64, query string, k int, now time.Time) ([]Snippet, error) {
	pool := e.cfg.SemanticCandidatePool
	if pool <= 0 {
		pool = 3
	}
	msgs, err := e.store.Messages().EmbeddedSince(ctx, chatID, pool*k)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, nil // degrade gracefully: semantic pass is best-effort
	}

	type scored struct {
		msg  store.Message
		sim  float64
	}
	var candidates []scored
	for _, m := range msgs {
		if len(m.Embedding) == 0 {
			continue
		}
		sim := cosineSimilarity(queryVec, m.Embedding)
		candidates = append(candidates, scored{msg: m, sim: sim})
	}

	// Highest cosine similarity first.
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].sim > candidates[j-1].sim; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}

	if len(candidates) > k {
		candidates = candidates[:k]
	}

	out := make([]Snippet, 0, len(candidates))
	for _, c := range candidates {
		recency := recencyScore(c.msg.Timestamp, now)
		out = append(out, Snippet{
			MessageID: c.msg.ID,
			Role:      c.msg.Role,
			Content:   c.msg.Text,
			Score:     recency * 0.5 * e.cfg.SemanticWeight,
		})
	}
	return out, nil
}

func (e *Engine) fallback(ctx context.Context, chatID int64, k int) ([]Snippet, error) {
	msgs, err := e.store.Messages().RecentMessages(ctx, chatID, nil, k)
	if err != nil {
		return nil, err
	}
	out := make([]Snippet, len(msgs))
	for i, m := range msgs {
		out[i] = Snippet{MessageID: m.ID, Role: m.Role, Content: m.Text}
	}
	return out, nil
}

// recencyScore implements s_kw = 1 / (1 + age_days/7).
func recencyScore(ts, now time.Time) float64 {
	ageDays := now.Sub(ts).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return 1 / (1 + ageDays/7)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
