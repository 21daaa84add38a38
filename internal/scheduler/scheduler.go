// Package scheduler drives every background task named in spec.md §5:
// episode window sweeps, the periodic chat summarizer, and retention
// pruning, each on its own cron schedule, with deterministic shutdown
// inside the 10s safe-checkpoint budget.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ThatHunky/gryag-sub007/internal/episode"
	"github.com/ThatHunky/gryag-sub007/internal/logging"
	"github.com/ThatHunky/gryag-sub007/internal/metrics"
	"github.com/ThatHunky/gryag-sub007/internal/quota"
	"github.com/ThatHunky/gryag-sub007/internal/store"
	"github.com/ThatHunky/gryag-sub007/internal/summarizer"
)

// ShutdownBudget bounds how long Stop waits for in-flight jobs to reach
// a safe checkpoint, per §5's "deterministic cancellation" requirement.
const ShutdownBudget = 10 * time.Second

// Config tunes every background task's cadence. Spec-surfaced cron
// expressions use robfig/cron/v3's extended syntax, including the
// "@every <duration>" shorthand for fixed-interval jobs.
type Config struct {
	// ProfileSummarizationHour is the hour (0-23) the daily summarizer
	// tick fires, per §6's profile_summarization_hour.
	ProfileSummarizationHour int
	EpisodeSweepSpec         string
	RetentionPruneSpec       string
	MediaPruneSpec           string
	MessageRetention         time.Duration
	RetentionEnabled         bool

	// ProactiveSpec ticks the optional proactive-reply extension from
	// §9. ProactiveActiveWindow bounds how recently a chat must have
	// seen activity to be considered a candidate.
	ProactiveSpec         string
	ProactiveActiveWindow time.Duration
}

// DefaultConfig matches the literal defaults implied by §4.5/§4.6/§6.
var DefaultConfig = Config{
	ProfileSummarizationHour: 3,
	EpisodeSweepSpec:         "@every 5m",
	RetentionPruneSpec:       "@every 1h",
	MediaPruneSpec:           "@every 1h",
	MessageRetention:         90 * 24 * time.Hour,
	RetentionEnabled:         true,
	ProactiveSpec:            "@every 30m",
	ProactiveActiveWindow:    2 * time.Hour,
}

// Proactive synthesizes an unsolicited reply for one chat, per §9's
// optional proactive-reply extension. Satisfied by
// *orchestrator.Orchestrator.
type Proactive interface {
	TriggerProactive(ctx context.Context, chatID int64, threadID *int64) error
}

// Tasks bundles every component the scheduler drives. Summarizer may be
// nil to skip profile summarization entirely (enable_profile_summarization
// = false).
type Tasks struct {
	Summarizer *summarizer.Summarizer
	Episodes   *episode.Monitor
	Quota      *quota.Engine
	Store      *store.Store
	Metrics    *metrics.Recorder
	// Proactive enables the proactive-reply tick when non-nil.
	Proactive Proactive
}

// Scheduler owns the cron runtime and every registered job.
type Scheduler struct {
	cfg   Config
	tasks Tasks
	cron  *cron.Cron
}

// New builds a Scheduler and registers every configured job, but does
// not start it; call Start to begin ticking.
func New(cfg Config, tasks Tasks) (*Scheduler, error) {
	s := &Scheduler{cfg: cfg, tasks: tasks, cron: cron.New()}

	if tasks.Episodes != nil {
		if err := s.addJob(cfg.EpisodeSweepSpec, "episode_sweep", s.runEpisodeSweep); err != nil {
			return nil, err
		}
	}
	if tasks.Summarizer != nil {
		spec := fmt.Sprintf("0 %d * * *", cfg.ProfileSummarizationHour)
		if err := s.addJob(spec, "summarizer", s.runSummarizer); err != nil {
			return nil, err
		}
	}
	if cfg.RetentionEnabled && tasks.Store != nil {
		if err := s.addJob(cfg.RetentionPruneSpec, "retention_prune", s.runRetentionPrune); err != nil {
			return nil, err
		}
		if err := s.addJob(cfg.MediaPruneSpec, "media_prune", s.runMediaPrune); err != nil {
			return nil, err
		}
	}
	if tasks.Quota != nil {
		if err := s.addJob(cfg.RetentionPruneSpec, "quota_prune", s.runQuotaPrune); err != nil {
			return nil, err
		}
	}
	if tasks.Proactive != nil && tasks.Store != nil {
		if err := s.addJob(cfg.ProactiveSpec, "proactive_tick", s.runProactiveTick); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Scheduler) addJob(spec, name string, run func(ctx context.Context)) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), ShutdownBudget*3)
		defer cancel()
		log := logging.Logger().With("component", "scheduler", "job", name)
		log.Debug("job starting")
		run(ctx)
		log.Debug("job finished")
		if s.tasks.Metrics != nil {
			s.tasks.Metrics.ObserveSchedulerRun(name, "ran")
		}
	})
	if err != nil {
		return fmt.Errorf("scheduler: register job %q (spec %q): %w", name, spec, err)
	}
	return nil
}

// Start begins ticking every registered job.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop signals shutdown and waits up to ShutdownBudget for any
// in-flight jobs to reach a safe checkpoint.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(ShutdownBudget):
		logging.Logger().With("component", "scheduler").Warn("shutdown budget exceeded waiting for jobs")
	}
}

func (s *Scheduler) runEpisodeSweep(ctx context.Context) {
	s.tasks.Episodes.Sweep(ctx, time.Now())
}

func (s *Scheduler) runSummarizer(ctx context.Context) {
	// Run logs its own per-chat and per-type failures; it returns nothing.
	s.tasks.Summarizer.Run(ctx, time.Now())
}

func (s *Scheduler) runRetentionPrune(ctx context.Context) {
	log := logging.Logger().With("component", "scheduler", "job", "retention_prune")
	cutoff := time.Now().Add(-s.cfg.MessageRetention)
	n, err := s.tasks.Store.Messages().PruneOlderThan(ctx, cutoff)
	if err != nil {
		log.Warn("prune messages failed", "error", err)
		return
	}
	if n > 0 {
		log.Info("pruned old messages", "count", n)
	}
}

func (s *Scheduler) runMediaPrune(ctx context.Context) {
	log := logging.Logger().With("component", "scheduler", "job", "media_prune")
	n, err := s.tasks.Store.Media().PruneExpired(ctx, time.Now())
	if err != nil {
		log.Warn("prune media cache failed", "error", err)
		return
	}
	if n > 0 {
		log.Info("pruned expired media cache entries", "count", n)
	}
}

func (s *Scheduler) runProactiveTick(ctx context.Context) {
	log := logging.Logger().With("component", "scheduler", "job", "proactive_tick")
	since := time.Now().Add(-s.cfg.ProactiveActiveWindow)
	chatIDs, err := s.tasks.Store.Messages().ActiveChatsSince(ctx, since)
	if err != nil {
		log.Warn("list active chats failed", "error", err)
		return
	}
	for _, chatID := range chatIDs {
		if err := s.tasks.Proactive.TriggerProactive(ctx, chatID, nil); err != nil {
			log.Warn("proactive trigger failed", "chat_id", chatID, "error", err)
		}
	}
}

func (s *Scheduler) runQuotaPrune(ctx context.Context) {
	log := logging.Logger().With("component", "scheduler", "job", "quota_prune")
	n, err := s.tasks.Quota.PruneHistory(ctx)
	if err != nil {
		log.Warn("prune feature usage failed", "error", err)
		return
	}
	if n > 0 {
		log.Info("pruned feature usage history", "count", n)
	}
}
