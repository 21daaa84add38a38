// Package config assembles the runtime configuration surface named in
// spec.md §6 into the concrete Config structs every other package
// takes, flag-first then falling back to GRYAG_* environment
// variables, in the teacher's examples/agent-cli idiom
// (flag.NewFlagSet, ContinueOnError, explicit fallback to an env var
// for secrets the flag leaves empty).
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the fully parsed, typed configuration surface. Fields map
// 1:1 onto spec.md §6's enumerated list; Go-idiomatic names and types
// replace the spec's snake_case/str|list notation.
type Config struct {
	TelegramToken string
	DBPath        string

	Model      string
	APIKeys    []string
	APIBase    string

	AdminUserIDs   []int64
	AllowedChatIDs []int64
	BlockedChatIDs []int64

	BotTriggerPatterns []string

	PerUserPerHour          int
	EnableFeatureThrottling bool
	// EnableAdaptiveThrottling names the reputation-multiplier toggle
	// from spec.md §6. The reputation policy itself (who moves
	// multipliers, and on what events) is an open question the spec
	// leaves unresolved (§9); quota.Engine.SetReputation exists as an
	// explicit admin operation, but no automatic policy reads this
	// flag yet, matching the spec's own instruction to expose the
	// policy as an explicit operation until one is defined.
	EnableAdaptiveThrottling bool

	ContextTokenBudget int
	ImmediateShare      float64
	RecentShare         float64
	RelevantShare       float64
	BackgroundShare     float64
	EpisodicShare       float64

	EnableHybridSearch     bool
	EnableKeywordSearch    bool
	EnableTemporalBoosting bool
	SemanticWeight         float64
	KeywordWeight          float64
	TemporalWeight         float64

	EnableEpisodicMemory     bool
	EpisodeMinMessages       int
	EpisodeMinImportance     float64
	EpisodeWindowTimeout     time.Duration
	EpisodeWindowMaxMessages int

	RetentionEnabled              bool
	RetentionDays                 int
	RetentionPruneIntervalSeconds int

	EnableProfileSummarization   bool
	ProfileSummarizationHour     int
	ProfileSummarizationDailyCap int

	// EnableImageGeneration is parsed and carried, but nothing in this
	// module reads it. ImageGenerationDailyLimit feeds the
	// "image_generation" entry of quota.Config.Features whenever
	// EnableFeatureThrottling is set. The tool body itself (the actual image call) is a
	// concrete tool implementation, out of the core's scope per
	// spec.md §1 ("administrative/CLI handlers... are thin callers of
	// core operations") — a deployment registers it against
	// tools.Registry and gates it on this same quota feature.
	EnableImageGeneration     bool
	ImageGenerationDailyLimit int

	// EnableWebSearch and EnableSandbox name two more tool-gating
	// toggles with no concrete tool body in this repo, for the same
	// reason as EnableImageGeneration above: a deployment wires its own
	// web-search/sandbox tool into tools.Registry and checks these
	// flags before registering it.
	EnableWebSearch bool
	EnableSandbox   bool

	// RedisURL optionally names a distributed lock/counter backend. No
	// redis client appears anywhere in the example corpus this module
	// was grounded on (see DESIGN.md), so a non-empty value is accepted
	// and carried for forward compatibility but never dialed: the
	// in-process keyed-mutex and quota engine already provide identical
	// semantics at per-process scope, which is what an empty RedisURL
	// asks for per spec.md §6.
	RedisURL string
}

// Default matches the literal defaults named across spec.md §4 and §6.
var Default = Config{
	DBPath:                   "gryag.db",
	Model:                    "gemini-2.5-flash",
	PerUserPerHour:           5,
	EnableFeatureThrottling:  true,
	EnableAdaptiveThrottling: true,

	ContextTokenBudget: 8000,
	ImmediateShare:      0.10,
	RecentShare:         0.25,
	RelevantShare:       0.35,
	BackgroundShare:     0.15,
	EpisodicShare:       0.15,

	EnableHybridSearch:     true,
	EnableKeywordSearch:    true,
	EnableTemporalBoosting: true,
	SemanticWeight:         1.0,
	KeywordWeight:          1.0,
	TemporalWeight:         1.0,

	EnableEpisodicMemory:     true,
	EpisodeMinMessages:       4,
	EpisodeMinImportance:     0.35,
	EpisodeWindowTimeout:     20 * time.Minute,
	EpisodeWindowMaxMessages: 60,

	RetentionEnabled:              true,
	RetentionDays:                 90,
	RetentionPruneIntervalSeconds: 3600,

	EnableProfileSummarization:   true,
	ProfileSummarizationHour:     3,
	ProfileSummarizationDailyCap: 1,

	EnableImageGeneration:     false,
	ImageGenerationDailyLimit: 5,

	EnableWebSearch: false,
	EnableSandbox:   false,
}

// Load parses args against the flag set, then fills the Telegram token,
// API keys, admin/allowed/blocked ID lists, trigger patterns and Redis
// URL from the matching GRYAG_* environment variable when the flag left
// them empty (API keys also fall back to GEMINI_API_KEY), matching the
// precedence the teacher's CLI uses for -api-key vs. its
// provider-specific env var. Every other setting comes only from its
// flag or from Default.
func Load(args []string, getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := Default
	fs := flag.NewFlagSet("gryag", flag.ContinueOnError)

	var apiKeysFlag, adminIDsFlag, allowedChatsFlag, blockedChatsFlag, triggersFlag string

	fs.StringVar(&cfg.TelegramToken, "telegram-token", "", "Telegram bot token")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite database file path")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "LLM model name (selects provider)")
	fs.StringVar(&apiKeysFlag, "gemini-api-keys", "", "comma-separated LLM API keys (the client dials with the first)")
	fs.StringVar(&cfg.APIBase, "api-base", "", "override API base URL (OpenAI-compatible/Ollama)")
	fs.StringVar(&adminIDsFlag, "admin-user-ids", "", "comma-separated admin user IDs")
	fs.StringVar(&allowedChatsFlag, "allowed-chat-ids", "", "comma-separated chat ID allowlist (empty: all chats)")
	fs.StringVar(&blockedChatsFlag, "blocked-chat-ids", "", "comma-separated chat ID blocklist")
	fs.StringVar(&triggersFlag, "bot-trigger-patterns", "", "comma-separated regex patterns that mark a message addressed")

	fs.IntVar(&cfg.PerUserPerHour, "per-user-per-hour", cfg.PerUserPerHour, "global per-user hourly quota")
	fs.BoolVar(&cfg.EnableFeatureThrottling, "enable-feature-throttling", cfg.EnableFeatureThrottling, "enforce per-feature quotas")
	fs.BoolVar(&cfg.EnableAdaptiveThrottling, "enable-adaptive-throttling", cfg.EnableAdaptiveThrottling, "scale quotas by reputation")

	fs.IntVar(&cfg.ContextTokenBudget, "context-token-budget", cfg.ContextTokenBudget, "total prompt token budget across all tiers")
	fs.Float64Var(&cfg.ImmediateShare, "immediate-share", cfg.ImmediateShare, "immediate tier budget share")
	fs.Float64Var(&cfg.RecentShare, "recent-share", cfg.RecentShare, "recent tier budget share")
	fs.Float64Var(&cfg.RelevantShare, "relevant-share", cfg.RelevantShare, "relevant tier budget share")
	fs.Float64Var(&cfg.BackgroundShare, "background-share", cfg.BackgroundShare, "background tier budget share")
	fs.Float64Var(&cfg.EpisodicShare, "episodic-share", cfg.EpisodicShare, "episodic tier budget share")

	fs.BoolVar(&cfg.EnableHybridSearch, "enable-hybrid-search", cfg.EnableHybridSearch, "enable the semantic search pass")
	fs.BoolVar(&cfg.EnableKeywordSearch, "enable-keyword-search", cfg.EnableKeywordSearch, "enable the keyword search pass")
	fs.BoolVar(&cfg.EnableTemporalBoosting, "enable-temporal-boosting", cfg.EnableTemporalBoosting, "boost recent messages in search ranking")
	fs.Float64Var(&cfg.SemanticWeight, "semantic-weight", cfg.SemanticWeight, "semantic pass fusion weight")
	fs.Float64Var(&cfg.KeywordWeight, "keyword-weight", cfg.KeywordWeight, "keyword pass fusion weight")
	fs.Float64Var(&cfg.TemporalWeight, "temporal-weight", cfg.TemporalWeight, "temporal decay fusion weight")

	fs.BoolVar(&cfg.EnableEpisodicMemory, "enable-episodic-memory", cfg.EnableEpisodicMemory, "finalize conversation windows into durable episodes")
	fs.IntVar(&cfg.EpisodeMinMessages, "episode-min-messages", cfg.EpisodeMinMessages, "minimum messages for a window to finalize")
	fs.Float64Var(&cfg.EpisodeMinImportance, "episode-min-importance", cfg.EpisodeMinImportance, "minimum importance for a window to finalize")
	fs.DurationVar(&cfg.EpisodeWindowTimeout, "episode-window-timeout", cfg.EpisodeWindowTimeout, "idle duration before a window is swept")
	fs.IntVar(&cfg.EpisodeWindowMaxMessages, "episode-window-max-messages", cfg.EpisodeWindowMaxMessages, "message count that forces a window to finalize")

	fs.BoolVar(&cfg.RetentionEnabled, "retention-enabled", cfg.RetentionEnabled, "prune messages/media past retention")
	fs.IntVar(&cfg.RetentionDays, "retention-days", cfg.RetentionDays, "message/media retention horizon in days")
	fs.IntVar(&cfg.RetentionPruneIntervalSeconds, "retention-prune-interval-seconds", cfg.RetentionPruneIntervalSeconds, "retention sweep cadence")

	fs.BoolVar(&cfg.EnableProfileSummarization, "enable-profile-summarization", cfg.EnableProfileSummarization, "run the daily profile/chat summarizer")
	fs.IntVar(&cfg.ProfileSummarizationHour, "profile-summarization-hour", cfg.ProfileSummarizationHour, "hour of day (0-23) the summarizer runs")
	fs.IntVar(&cfg.ProfileSummarizationDailyCap, "profile-summarization-daily-cap", cfg.ProfileSummarizationDailyCap, "max manually-triggered /profile regenerations per day")

	fs.BoolVar(&cfg.EnableImageGeneration, "enable-image-generation", cfg.EnableImageGeneration, "enable the image generation tool")
	fs.IntVar(&cfg.ImageGenerationDailyLimit, "image-generation-daily-limit", cfg.ImageGenerationDailyLimit, "per-user daily image generation cap")

	fs.BoolVar(&cfg.EnableWebSearch, "enable-web-search", cfg.EnableWebSearch, "enable the web search tool")
	fs.BoolVar(&cfg.EnableSandbox, "enable-sandbox", cfg.EnableSandbox, "enable the code sandbox tool")

	fs.StringVar(&cfg.RedisURL, "redis-url", "", "optional distributed lock/counter backend (unset: in-process)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.TelegramToken == "" {
		cfg.TelegramToken = getenv("GRYAG_TELEGRAM_TOKEN")
	}
	if apiKeysFlag == "" {
		apiKeysFlag = getenv("GRYAG_GEMINI_API_KEYS")
	}
	if apiKeysFlag == "" {
		apiKeysFlag = getenv("GEMINI_API_KEY")
	}
	cfg.APIKeys = splitNonEmpty(apiKeysFlag)

	if adminIDsFlag == "" {
		adminIDsFlag = getenv("GRYAG_ADMIN_USER_IDS")
	}
	ids, err := splitInt64s(adminIDsFlag)
	if err != nil {
		return nil, fmt.Errorf("config: admin-user-ids: %w", err)
	}
	cfg.AdminUserIDs = ids

	if allowedChatsFlag == "" {
		allowedChatsFlag = getenv("GRYAG_ALLOWED_CHAT_IDS")
	}
	if cfg.AllowedChatIDs, err = splitInt64s(allowedChatsFlag); err != nil {
		return nil, fmt.Errorf("config: allowed-chat-ids: %w", err)
	}

	if blockedChatsFlag == "" {
		blockedChatsFlag = getenv("GRYAG_BLOCKED_CHAT_IDS")
	}
	if cfg.BlockedChatIDs, err = splitInt64s(blockedChatsFlag); err != nil {
		return nil, fmt.Errorf("config: blocked-chat-ids: %w", err)
	}

	if triggersFlag == "" {
		triggersFlag = getenv("GRYAG_BOT_TRIGGER_PATTERNS")
	}
	cfg.BotTriggerPatterns = splitNonEmpty(triggersFlag)

	if cfg.RedisURL == "" {
		cfg.RedisURL = getenv("GRYAG_REDIS_URL")
	}

	return &cfg, nil
}

// AdminIDSet, AllowedChatIDSet and BlockedChatIDSet adapt the flat slices parsed above into the
// map[int64]bool shapes orchestrator.Config and quota.Config expect.

func (c *Config) AdminIDSet() map[int64]bool { return toSet(c.AdminUserIDs) }
func (c *Config) AllowedChatIDSet() map[int64]bool { return toSet(c.AllowedChatIDs) }
func (c *Config) BlockedChatIDSet() map[int64]bool { return toSet(c.BlockedChatIDs) }

func toSet(ids []int64) map[int64]bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func splitNonEmpty(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func splitInt64s(s string) ([]int64, error) {
	parts := splitNonEmpty(s)
	if len(parts) == 0 {
		return nil, nil
	}
	out := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", part, err)
		}
		out = append(out, id)
	}
	return out, nil
}
