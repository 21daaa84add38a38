// Package contextmgr assembles the bounded, token-budgeted multi-tier
// prompt for an addressed turn, per spec.md §4.8: immediate, recent,
// relevant, background and episodic tiers, each with its own share of
// a total token budget B.
package contextmgr

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ThatHunky/gryag-sub007/chat"
	"github.com/ThatHunky/gryag-sub007/internal/search"
	"github.com/ThatHunky/gryag-sub007/internal/store"
)

// Tier names one of the five prompt slices.
type Tier string

const (
	TierImmediate  Tier = "immediate"
	TierRecent     Tier = "recent"
	TierRelevant   Tier = "relevant"
	TierBackground Tier = "background"
	TierEpisodic   Tier = "episodic"
)

// Snippet is one piece of assembled context, tagged with the tier it
// came from and the message it's grounded on, if any (0 for
// fact/summary/episode-derived bullets).
type Snippet struct {
	Tier      Tier
	Role      chat.Role
	Content   string
	MessageID int64
}

// Config tunes the token budget and each tier's share of it, plus how
// many raw messages feed the immediate/recent tiers before truncation.
type Config struct {
	TokenBudget    int
	ImmediateCount int // N
	RecentCount    int // M, M > N
	EpisodeLimit   int

	ImmediateShare  float64
	RecentShare     float64
	RelevantShare   float64
	BackgroundShare float64
	EpisodicShare   float64
}

// DefaultConfig matches the table in §4.8.
var DefaultConfig = Config{
	TokenBudget:    8000,
	ImmediateCount: 10,
	RecentCount:    40,
	EpisodeLimit:   5,

	ImmediateShare:  0.10,
	RecentShare:     0.25,
	RelevantShare:   0.35,
	BackgroundShare: 0.15,
	EpisodicShare:   0.15,
}

// Searcher is the hybrid search capability the relevant tier needs,
// satisfied by *search.Engine.
type Searcher interface {
	Search(ctx context.Context, chatID int64, query string, k int) ([]search.Snippet, error)
}

// Manager builds assembled context for a turn.
type Manager struct {
	cfg      Config
	store    *store.Store
	searcher Searcher
}

// New builds a Manager. searcher may be nil to skip the relevant tier
// entirely (degrades gracefully, per §4.7's stateless-engine contract).
func New(cfg Config, st *store.Store, searcher Searcher) *Manager {
	return &Manager{cfg: cfg, store: st, searcher: searcher}
}

// estimateTokens implements the ceil(chars/4) estimator from §4.8.
func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + 3) / 4
}

func (c Config) tierBudgetTokens(share float64) int {
	return int(float64(c.TokenBudget) * share)
}

// Assemble builds the ordered, budgeted context for a turn addressed to
// chatID/threadID with the given user query, returning both the flat
// snippet list (for inspection/tests/`/prompt show`) and the chat
// message history ready to pass as generate's history argument.
func (m *Manager) Assemble(ctx context.Context, chatID int64, threadID *int64, userQuery string) ([]Snippet, []chat.Message, error) {
	var nullThread sql.NullInt64
	if threadID != nil {
		nullThread = sql.NullInt64{Int64: *threadID, Valid: true}
	}

	included := make(map[int64]bool)

	immediate, err := m.buildImmediate(ctx, chatID, nullThread, included)
	if err != nil {
		return nil, nil, fmt.Errorf("build immediate tier: %w", err)
	}
	recent, err := m.buildRecent(ctx, chatID, nullThread, included)
	if err != nil {
		return nil, nil, fmt.Errorf("build recent tier: %w", err)
	}
	relevant, err := m.buildRelevant(ctx, chatID, userQuery, included)
	if err != nil {
		return nil, nil, fmt.Errorf("build relevant tier: %w", err)
	}
	background, err := m.buildBackground(ctx, chatID, append(append([]Snippet{}, immediate...), recent...))
	if err != nil {
		return nil, nil, fmt.Errorf("build background tier: %w", err)
	}
	episodic, err := m.buildEpisodic(ctx, chatID, included)
	if err != nil {
		return nil, nil, fmt.Errorf("build episodic tier: %w", err)
	}

	all := make([]Snippet, 0, len(immediate)+len(recent)+len(relevant)+len(background)+len(episodic))
	all = append(all, immediate...)
	all = append(all, recent...)
	all = append(all, relevant...)
	all = append(all, background...)
	all = append(all, episodic...)

	if len(all) == 0 {
		all, err = m.fallback(ctx, chatID, nullThread)
		if err != nil {
			return nil, nil, fmt.Errorf("build fallback context: %w", err)
		}
	}

	return all, toMessages(all), nil
}

func (m *Manager) fallback(ctx context.Context, chatID int64, threadID sql.NullInt64) ([]Snippet, error) {
	var tp *int64
	if threadID.Valid {
		tp = &threadID.Int64
	}
	msgs, err := m.store.Messages().RecentMessages(ctx, chatID, tp, 1)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	m0 := msgs[0]
	return []Snippet{{Tier: TierImmediate, Role: roleOf(m0.Role), Content: m0.Text, MessageID: m0.ID}}, nil
}

// buildImmediate loads the last ImmediateCount messages (verbatim,
// chronological), greedily keeping the newest ones within budget.
func (m *Manager) buildImmediate(ctx context.Context, chatID int64, threadID sql.NullInt64, included map[int64]bool) ([]Snippet, error) {
	var tp *int64
	if threadID.Valid {
		tp = &threadID.Int64
	}
	msgs, err := m.store.Messages().RecentMessages(ctx, chatID, tp, m.cfg.ImmediateCount)
	if err != nil {
		return nil, err
	}
	budget := m.cfg.tierBudgetTokens(m.cfg.ImmediateShare)
	kept := keepNewestWithinBudget(msgs, budget)
	for _, msg := range kept {
		included[msg.ID] = true
	}
	return toSnippets(TierImmediate, kept), nil
}

// buildRecent loads the last RecentCount messages, excluding whatever
// the immediate tier already claimed, greedily keeping the newest.
func (m *Manager) buildRecent(ctx context.Context, chatID int64, threadID sql.NullInt64, included map[int64]bool) ([]Snippet, error) {
	var tp *int64
	if threadID.Valid {
		tp = &threadID.Int64
	}
	msgs, err := m.store.Messages().RecentMessages(ctx, chatID, tp, m.cfg.RecentCount)
	if err != nil {
		return nil, err
	}
	var candidates []store.Message
	for _, msg := range msgs {
		if !included[msg.ID] {
			candidates = append(candidates, msg)
		}
	}
	budget := m.cfg.tierBudgetTokens(m.cfg.RecentShare)
	kept := keepNewestWithinBudget(candidates, budget)
	for _, msg := range kept {
		included[msg.ID] = true
	}
	return toSnippets(TierRecent, kept), nil
}

// buildRelevant runs the hybrid search engine and truncates its tail
// (lowest-ranked matches) to the tier's token budget, deduplicating
// against whatever immediate/recent already included.
func (m *Manager) buildRelevant(ctx context.Context, chatID int64, query string, included map[int64]bool) ([]Snippet, error) {
	if m.searcher == nil || query == "" {
		return nil, nil
	}
	results, err := m.searcher.Search(ctx, chatID, query, m.cfg.RecentCount)
	if err != nil {
		return nil, err
	}

	budget := m.cfg.tierBudgetTokens(m.cfg.RelevantShare)
	var out []Snippet
	used := 0
	for _, r := range results {
		if included[r.MessageID] {
			continue
		}
		tokens := estimateTokens(r.Content)
		if used+tokens > budget {
			break
		}
		used += tokens
		included[r.MessageID] = true
		out = append(out, Snippet{Tier: TierRelevant, Role: roleOf(r.Role), Content: r.Content, MessageID: r.MessageID})
	}
	return out, nil
}

// buildBackground compresses facts about the turn's speakers, active
// chat-scoped facts, and the latest 7-day summary into bulletized form.
func (m *Manager) buildBackground(ctx context.Context, chatID int64, seen []Snippet) ([]Snippet, error) {
	speakers := speakerIDsOf(seen, m.store)
	var lines []string

	for _, uid := range speakers {
		facts, err := m.store.Facts().ForEntity(ctx, store.EntityUser, uid, sql.NullInt64{Int64: chatID, Valid: true})
		if err != nil {
			return nil, err
		}
		for _, f := range facts {
			lines = append(lines, fmt.Sprintf("user %d: %s %s = %s", uid, f.Category, f.Key, f.Value))
		}
	}

	chatFacts, err := m.store.Facts().ForEntity(ctx, store.EntityChat, chatID, sql.NullInt64{})
	if err != nil {
		return nil, err
	}
	for _, f := range chatFacts {
		lines = append(lines, fmt.Sprintf("chat: %s %s = %s", f.Category, f.Key, f.Value))
	}

	summary, err := m.store.Summaries().Latest(ctx, chatID, store.Summary7d)
	if err == nil {
		lines = append(lines, "last 7 days: "+summary.Text)
	} else if err != store.ErrNotFound {
		return nil, err
	}

	budget := m.cfg.tierBudgetTokens(m.cfg.BackgroundShare)
	var out []Snippet
	used := 0
	for _, line := range lines {
		tokens := estimateTokens(line)
		if used+tokens > budget {
			break
		}
		used += tokens
		out = append(out, Snippet{Tier: TierBackground, Role: chat.SystemRole, Content: line})
	}
	return out, nil
}

// buildEpisodic pulls the most-recently-accessed high-importance
// episodes, skipping any whose underlying messages are already
// represented in an earlier tier.
func (m *Manager) buildEpisodic(ctx context.Context, chatID int64, included map[int64]bool) ([]Snippet, error) {
	episodes, err := m.store.Episodes().RecentByImportance(ctx, chatID, 0, m.cfg.EpisodeLimit)
	if err != nil {
		return nil, err
	}

	budget := m.cfg.tierBudgetTokens(m.cfg.EpisodicShare)
	var out []Snippet
	used := 0
	for _, e := range episodes {
		if overlaps(e.MessageIDs, included) {
			continue
		}
		line := e.Topic + ": " + e.Summary
		tokens := estimateTokens(line)
		if used+tokens > budget {
			break
		}
		used += tokens
		out = append(out, Snippet{Tier: TierEpisodic, Role: chat.SystemRole, Content: line})
		_ = m.store.Episodes().Touch(ctx, e.ID, time.Now())
	}
	return out, nil
}

func overlaps(ids []int64, included map[int64]bool) bool {
	for _, id := range ids {
		if included[id] {
			return true
		}
	}
	return false
}

// keepNewestWithinBudget greedily accumulates msgs (newest-first, as
// RecentMessages returns them) until the token budget would be
// exceeded, then returns the kept subset in chronological order.
func keepNewestWithinBudget(msgs []store.Message, budget int) []store.Message {
	var kept []store.Message
	used := 0
	for _, m := range msgs {
		tokens := estimateTokens(m.Text)
		if used+tokens > budget {
			break
		}
		used += tokens
		kept = append(kept, m)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Timestamp.Before(kept[j].Timestamp) })
	return kept
}

func toSnippets(tier Tier, msgs []store.Message) []Snippet {
	out := make([]Snippet, len(msgs))
	for i, m := range msgs {
		out[i] = Snippet{Tier: tier, Role: roleOf(m.Role), Content: m.Text, MessageID: m.ID}
	}
	return out
}

func toMessages(snippets []Snippet) []chat.Message {
	out := make([]chat.Message, 0, len(snippets))
	for _, s := range snippets {
		if strings.TrimSpace(s.Content) == "" {
			continue
		}
		out = append(out, chat.TextMessage(s.Role, s.Content))
	}
	return out
}

func roleOf(r store.MessageRole) chat.Role {
	switch r {
	case store.RoleAssistant:
		return chat.AssistantRole
	case store.RoleTool:
		return chat.ToolRole
	case store.RoleSystem:
		return chat.SystemRole
	default:
		return chat.UserRole
	}
}

// speakerIDsOf collects the distinct user ids behind the immediate and
// recent snippets, re-fetching the owning message since Snippet itself
// doesn't carry UserID.
func speakerIDsOf(snippets []Snippet, st *store.Store) []int64 {
	seen := make(map[int64]bool)
	var out []int64
	ctx := context.Background()
	for _, s := range snippets {
		if s.MessageID == 0 {
			continue
		}
		uid, ok := lookupUserID(ctx, st, s.MessageID)
		if !ok || seen[uid] {
			continue
		}
		seen[uid] = true
		out = append(out, uid)
	}
	return out
}

func lookupUserID(ctx context.Context, st *store.Store, messageID int64) (int64, bool) {
	row := st.DB().QueryRowContext(ctx, `SELECT user_id FROM messages WHERE id = ?`, messageID)
	var uid sql.NullInt64
	if err := row.Scan(&uid); err != nil || !uid.Valid {
		return 0, false
	}
	return uid.Int64, true
}
