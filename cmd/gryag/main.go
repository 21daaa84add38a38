// Command gryag wires the full turn-processing core (persistence,
// LLM client, quota engine, fact extractor, episode monitor,
// summarizer, hybrid search, context manager, prompt resolver, tool
// registry/dispatcher, turn orchestrator, background scheduler, and
// Prometheus metrics) into a runnable process, in the teacher's
// examples/agent-cli wiring style. The transport is the demo
// stdin/stdout console (internal/transport/stdio); a production
// deployment substitutes its own transport.Sender/Message adapter
// without touching anything below it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThatHunky/gryag-sub007/chat"
	"github.com/ThatHunky/gryag-sub007/internal/config"
	"github.com/ThatHunky/gryag-sub007/internal/contextmgr"
	"github.com/ThatHunky/gryag-sub007/internal/episode"
	"github.com/ThatHunky/gryag-sub007/internal/facts"
	"github.com/ThatHunky/gryag-sub007/internal/llmclient"
	"github.com/ThatHunky/gryag-sub007/internal/logging"
	"github.com/ThatHunky/gryag-sub007/internal/metrics"
	"github.com/ThatHunky/gryag-sub007/internal/orchestrator"
	"github.com/ThatHunky/gryag-sub007/internal/prompt"
	"github.com/ThatHunky/gryag-sub007/internal/quota"
	"github.com/ThatHunky/gryag-sub007/internal/scheduler"
	"github.com/ThatHunky/gryag-sub007/internal/search"
	"github.com/ThatHunky/gryag-sub007/internal/store"
	"github.com/ThatHunky/gryag-sub007/internal/summarizer"
	"github.com/ThatHunky/gryag-sub007/internal/tools"
	"github.com/ThatHunky/gryag-sub007/internal/transport/stdio"
)

func main() {
	if err := run(); err != nil {
		logging.Logger().Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	// These are typed as the narrow interface each downstream
	// constructor expects, left as a true nil interface (not a nil
	// *llmclient.Client wrapped in one) when no API key is configured,
	// so every "client == nil" guard downstream behaves correctly.
	var chatClient chat.Client
	var searchEmbedder search.Embedder
	var episodeEmbedder episode.Embedder
	var orchEmbedder orchestrator.Embedder

	if len(cfg.APIKeys) > 0 {
		llm, err := llmclient.New(llmclient.Config{
			Model:   cfg.Model,
			APIKeys: cfg.APIKeys,
			APIBase: cfg.APIBase,
		})
		if err != nil {
			return fmt.Errorf("create llm client: %w", err)
		}
		chatClient = llm
		searchEmbedder = llm
		episodeEmbedder = llm
		orchEmbedder = llm
	} else {
		logging.Logger().Warn("no LLM API key configured; the assistant will persist and retrieve memory but cannot answer turns")
	}

	var featureLimits map[string]quota.FeatureLimits
	if cfg.EnableFeatureThrottling {
		featureLimits = map[string]quota.FeatureLimits{
			"image_generation": {PerHour: cfg.ImageGenerationDailyLimit, PerDay: cfg.ImageGenerationDailyLimit},
			"profile_summary":  {PerHour: cfg.ProfileSummarizationDailyCap, PerDay: cfg.ProfileSummarizationDailyCap},
		}
	}
	q := quota.New(quota.Config{
		GlobalPerHour: cfg.PerUserPerHour,
		AdminIDs:      cfg.AdminIDSet(),
		Features:      featureLimits,
	}, st)

	searchEngine := search.New(search.Config{
		EnableHybrid:           cfg.EnableHybridSearch,
		EnableKeywordSearch:    cfg.EnableKeywordSearch,
		EnableTemporalBoosting: cfg.EnableTemporalBoosting,
		SemanticWeight:         cfg.SemanticWeight,
		KeywordWeight:          cfg.KeywordWeight,
		TemporalWeight:         cfg.TemporalWeight,
		SemanticCandidatePool:  search.DefaultConfig.SemanticCandidatePool,
	}, st, searchEmbedder)

	ctxMgr := contextmgr.New(contextmgr.Config{
		TokenBudget:     cfg.ContextTokenBudget,
		ImmediateCount:  contextmgr.DefaultConfig.ImmediateCount,
		RecentCount:     contextmgr.DefaultConfig.RecentCount,
		EpisodeLimit:    contextmgr.DefaultConfig.EpisodeLimit,
		ImmediateShare:  cfg.ImmediateShare,
		RecentShare:     cfg.RecentShare,
		RelevantShare:   cfg.RelevantShare,
		BackgroundShare: cfg.BackgroundShare,
		EpisodicShare:   cfg.EpisodicShare,
	}, st, searchEngine)

	prompts := prompt.New(st)
	extractor := facts.New(facts.DefaultConfig, st, chatClient)

	var episodeMonitor *episode.Monitor
	if cfg.EnableEpisodicMemory {
		episodeMonitor = episode.New(episode.Config{
			WindowTimeout: cfg.EpisodeWindowTimeout,
			WindowMax:     cfg.EpisodeWindowMaxMessages,
			MinMessages:   cfg.EpisodeMinMessages,
			MinImportance: cfg.EpisodeMinImportance,
			SweepInterval: episode.DefaultConfig.SweepInterval,
		}, st, chatClient, episodeEmbedder)
	}

	var chatSummarizer *summarizer.Summarizer
	if cfg.EnableProfileSummarization {
		chatSummarizer = summarizer.New(summarizer.DefaultConfig, st, chatClient)
	}

	registry := tools.NewRegistry()
	dispatcher := tools.NewDispatcher(registry, q)

	orcCfg := orchestrator.DefaultConfig
	orcCfg.TriggerPatterns = cfg.BotTriggerPatterns
	orcCfg.AdminIDs = cfg.AdminIDSet()
	orcCfg.AllowedChatIDs = cfg.AllowedChatIDSet()
	orcCfg.BlockedChatIDs = cfg.BlockedChatIDSet()

	sender := stdio.NewSender(os.Stdout)

	orc, err := orchestrator.New(orcCfg, st, q, ctxMgr, prompts, chatClient, registry, dispatcher, episodeMonitor, extractor, sender, orchEmbedder)
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}

	recorder := metrics.New(nil)
	orc.SetMetrics(recorder)

	pruneSpec := fmt.Sprintf("@every %ds", cfg.RetentionPruneIntervalSeconds)

	schedCfg := scheduler.DefaultConfig
	schedCfg.ProfileSummarizationHour = cfg.ProfileSummarizationHour
	schedCfg.RetentionEnabled = cfg.RetentionEnabled
	schedCfg.MessageRetention = time.Duration(cfg.RetentionDays) * 24 * time.Hour
	schedCfg.RetentionPruneSpec = pruneSpec
	schedCfg.MediaPruneSpec = pruneSpec

	sched, err := scheduler.New(schedCfg, scheduler.Tasks{
		Summarizer: chatSummarizer,
		Episodes:   episodeMonitor,
		Quota:      q,
		Store:      st,
		Metrics:    recorder,
		Proactive:  orc,
	})
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return stdio.Run(ctx, orc, os.Stdin, os.Stdout)
}
