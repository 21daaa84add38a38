// Package orchestrator drives the per-message turn state machine of
// spec.md §4.10: filter, persist, decide whether the turn is addressed,
// enforce quota and bans, assemble context, call the LLM, sanitize, send,
// persist the reply, then hand off to the episode monitor and fact
// extractor.
package orchestrator

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/ThatHunky/gryag-sub007/chat"
	"github.com/ThatHunky/gryag-sub007/internal/contextmgr"
	"github.com/ThatHunky/gryag-sub007/internal/episode"
	"github.com/ThatHunky/gryag-sub007/internal/facts"
	"github.com/ThatHunky/gryag-sub007/internal/llmclient"
	"github.com/ThatHunky/gryag-sub007/internal/logging"
	"github.com/ThatHunky/gryag-sub007/internal/metrics"
	"github.com/ThatHunky/gryag-sub007/internal/prompt"
	"github.com/ThatHunky/gryag-sub007/internal/quota"
	"github.com/ThatHunky/gryag-sub007/internal/store"
	"github.com/ThatHunky/gryag-sub007/internal/tools"
	"github.com/ThatHunky/gryag-sub007/internal/transport"
)

// Embedder is the narrow embedding capability used for the
// fire-and-forget embedding computation, satisfied by *llmclient.Client.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Fallback holds the translated, user-visible text for each non-fatal
// failure mode the orchestrator can hit. Translation itself is out of
// scope (see DESIGN.md); these are plain strings for the configured
// locale.
type Fallback struct {
	LLMUnavailable string
	Quota          string
	Banned         string
}

// DefaultFallback matches §7's literal example copy.
var DefaultFallback = Fallback{
	LLMUnavailable: "I'm briefly unavailable; try again",
	Quota:          "You've hit your hourly limit with me, slow down a little.",
	Banned:         "You're banned from talking to me in this chat.",
}

// Config tunes filtering, addressing, and output shaping.
type Config struct {
	TriggerPatterns   []string
	AdminIDs          map[int64]bool
	AllowedChatIDs    map[int64]bool // empty means "all chats allowed"
	BlockedChatIDs    map[int64]bool
	MaxReplyChars     int
	BanNoticeCooldown time.Duration
	DefaultPrompt     string
	FactWindowSize    int
	Fallback          Fallback
}

// DefaultConfig provides sane values for everything except the trigger
// patterns, which are deployment-specific.
var DefaultConfig = Config{
	MaxReplyChars:     4000,
	BanNoticeCooldown: 24 * time.Hour,
	DefaultPrompt:     "You are a helpful, concise group-chat assistant.",
	FactWindowSize:    30,
	Fallback:          DefaultFallback,
}

// Orchestrator wires every component into the §4.10 state machine.
type Orchestrator struct {
	cfg      Config
	triggers []*regexp.Regexp

	store      *store.Store
	quota      *quota.Engine
	context    *contextmgr.Manager
	prompts    *prompt.Resolver
	llm        chat.Client
	registry   *tools.Registry
	dispatcher *tools.Dispatcher
	episodes   *episode.Monitor
	extractor  *facts.Extractor
	sender     transport.Sender
	embedder   Embedder
	metrics    *metrics.Recorder

	locks *keyedMutex
}

// SetMetrics attaches a metrics recorder. Calling it is optional; a
// nil recorder (the default) means turns go unobserved, which is
// fine for tests that don't care about instrumentation.
func (o *Orchestrator) SetMetrics(m *metrics.Recorder) {
	o.metrics = m
}

// New builds an Orchestrator. embedder may be nil to skip the
// fire-and-forget embedding step (e.g. in tests).
func New(
	cfg Config,
	st *store.Store,
	q *quota.Engine,
	ctxMgr *contextmgr.Manager,
	prompts *prompt.Resolver,
	llm chat.Client,
	registry *tools.Registry,
	dispatcher *tools.Dispatcher,
	episodes *episode.Monitor,
	extractor *facts.Extractor,
	sender transport.Sender,
	embedder Embedder,
) (*Orchestrator, error) {
	triggers, err := compileTriggers(cfg.TriggerPatterns)
	if err != nil {
		return nil, fmt.Errorf("compile trigger patterns: %w", err)
	}

	return &Orchestrator{
		cfg:        cfg,
		triggers:   triggers,
		store:      st,
		quota:      q,
		context:    ctxMgr,
		prompts:    prompts,
		llm:        llm,
		registry:   registry,
		dispatcher: dispatcher,
		episodes:   episodes,
		extractor:  extractor,
		sender:     sender,
		embedder:   embedder,
		locks:      newKeyedMutex(),
	}, nil
}

// HandleMessage drives msg through the full turn state machine.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg transport.Message) error {
	log := logging.Logger().With("component", "orchestrator", "chat_id", msg.ChatID)

	// FILTERED
	if msg.UserIsBot {
		return nil
	}
	if len(o.cfg.AllowedChatIDs) > 0 && !o.cfg.AllowedChatIDs[msg.ChatID] {
		return nil
	}
	if o.cfg.BlockedChatIDs[msg.ChatID] {
		return nil
	}
	if isAdminCommand(msg.Text) {
		return nil
	}

	userID := userIDOf(msg)
	unlock := o.locks.lock(lockKey(msg.ChatID, userID))
	defer unlock()

	start := time.Now()
	now := start
	addressed := false
	outcome := "ignored"
	defer func() {
		if o.metrics != nil {
			o.metrics.ObserveTurn(addressed, outcome, time.Since(start))
		}
	}()

	// PERSIST_USER
	userMsgID, err := o.persistMessage(ctx, msg, store.RoleUser, msg.Text, now)
	if err != nil {
		log.Error("persist user message failed", "error", err)
		return fmt.Errorf("persist user message: %w", err)
	}
	o.trackEpisode(msg.ChatID, msg.ThreadID, episode.Message{
		ID: userMsgID, UserID: userID, Text: msg.Text, Timestamp: now,
	})

	// ADDRESSED?
	if !isAddressed(msg, o.triggers) {
		return nil
	}
	addressed = true

	isAdmin := o.cfg.AdminIDs[userID]

	// QUOTA_OK
	if !isAdmin {
		allowed, err := o.quota.Allow(ctx, userID)
		if err != nil {
			log.Error("quota check failed", "error", err)
			outcome = "error"
			return fmt.Errorf("quota check: %w", err)
		}
		if !allowed {
			outcome = "quota_denied"
			if o.metrics != nil {
				o.metrics.IncQuotaDenial("global")
			}
			return o.sender.SendText(ctx, msg.ChatID, o.cfg.Fallback.Quota, &msg.MessageID)
		}
	}

	// BAN_OK
	if !isAdmin {
		if dropped, err := o.enforceBan(ctx, msg, now); err != nil {
			log.Error("ban check failed", "error", err)
			outcome = "error"
			return fmt.Errorf("ban check: %w", err)
		} else if dropped {
			outcome = "banned"
			if o.metrics != nil {
				o.metrics.IncBanDrop()
			}
			return nil
		}
	}

	// CONTEXT
	_, history, err := o.context.Assemble(ctx, msg.ChatID, msg.ThreadID, msg.Text)
	if err != nil {
		log.Error("context assembly failed", "error", err)
		outcome = "error"
		return fmt.Errorf("assemble context: %w", err)
	}

	// LLM
	reply, err := o.callLLM(ctx, msg, userID, history)
	if err != nil {
		log.Warn("llm call failed", "error", err)
		outcome = "llm_unavailable"
		if o.metrics != nil {
			o.metrics.IncLLMError("unavailable")
		}
		return o.sender.SendText(ctx, msg.ChatID, o.cfg.Fallback.LLMUnavailable, &msg.MessageID)
	}

	// SANITIZE
	text := sanitize(reply.GetText(), o.cfg.MaxReplyChars)
	if text == "" {
		outcome = "empty_reply"
		return nil
	}

	// SEND
	if err := o.sender.SendText(ctx, msg.ChatID, text, &msg.MessageID); err != nil {
		log.Error("send reply failed", "error", err)
		outcome = "error"
		return fmt.Errorf("send reply: %w", err)
	}
	for _, media := range reply.GetMedia() {
		if err := o.sender.SendMedia(ctx, msg.ChatID, string(media.Kind), media.Data, media.FileID, ""); err != nil {
			log.Warn("send media failed", "error", err)
		}
	}

	// PERSIST_ASSISTANT
	assistantMsgID, err := o.persistMessage(ctx, msg, store.RoleAssistant, text, time.Now())
	if err != nil {
		log.Error("persist assistant message failed", "error", err)
		outcome = "error"
		return fmt.Errorf("persist assistant message: %w", err)
	}

	// POST
	o.trackEpisode(msg.ChatID, msg.ThreadID, episode.Message{
		ID: assistantMsgID, UserID: userID, Text: text, Timestamp: time.Now(),
	})
	go o.extractFactsAsync(msg.ChatID)

	outcome = "sent"
	return nil
}

// TriggerProactive drives the optional proactive-reply path named in
// §9: the scheduler calls this directly (no inbound Message exists)
// with a synthesized trigger instead of routing through the ADDRESSED
// check. It assembles context exactly as an addressed turn would, asks
// the model whether anything is worth adding, and sends only if the
// reply is non-empty after sanitization.
func (o *Orchestrator) TriggerProactive(ctx context.Context, chatID int64, threadID *int64) error {
	log := logging.Logger().With("component", "orchestrator", "chat_id", chatID, "trigger", "proactive")

	unlock := o.locks.lock(lockKey(chatID, 0))
	defer unlock()

	start := time.Now()
	outcome := "proactive_skipped"
	defer func() {
		if o.metrics != nil {
			o.metrics.ObserveTurn(true, outcome, time.Since(start))
		}
	}()

	_, history, err := o.context.Assemble(ctx, chatID, threadID, "")
	if err != nil {
		log.Error("context assembly failed", "error", err)
		outcome = "error"
		return fmt.Errorf("assemble context: %w", err)
	}
	if len(history) == 0 {
		return nil
	}
	if o.llm == nil {
		outcome = "llm_unavailable"
		return nil
	}

	systemPrompt, err := o.prompts.Resolve(ctx, chatID, 0)
	if err != nil {
		outcome = "error"
		return fmt.Errorf("resolve system prompt: %w", err)
	}
	if systemPrompt == "" {
		systemPrompt = o.cfg.DefaultPrompt
	}
	systemPrompt += "\n\nYou may proactively add one short message to this conversation if there is something genuinely useful to contribute. If not, reply with nothing."

	session := o.llm.NewChat(systemPrompt, history...)
	reply, err := session.Message(ctx, chat.UserMessage("(proactive check: continue naturally, or send an empty reply if there's nothing worth adding)"))
	if err != nil {
		log.Warn("proactive llm call failed", "error", err)
		outcome = "llm_unavailable"
		if o.metrics != nil {
			o.metrics.IncLLMError("unavailable")
		}
		return nil
	}

	text := sanitize(reply.GetText(), o.cfg.MaxReplyChars)
	if text == "" {
		return nil
	}

	if err := o.sender.SendText(ctx, chatID, text, nil); err != nil {
		outcome = "error"
		return fmt.Errorf("send proactive reply: %w", err)
	}

	ts := time.Now()
	id, err := o.store.Messages().AppendMessage(ctx, store.Message{
		ChatID: chatID, ThreadID: nullInt64(threadID), Role: store.RoleAssistant, Text: text, Timestamp: ts,
	})
	if err != nil {
		outcome = "error"
		return fmt.Errorf("persist proactive reply: %w", err)
	}
	o.trackEpisode(chatID, threadID, episode.Message{ID: id, Text: text, Timestamp: ts})

	outcome = "proactive_sent"
	return nil
}

func (o *Orchestrator) callLLM(ctx context.Context, msg transport.Message, userID int64, history []chat.Message) (chat.Message, error) {
	if o.llm == nil {
		return chat.Message{}, fmt.Errorf("no LLM client configured")
	}

	systemPrompt, err := o.prompts.Resolve(ctx, msg.ChatID, userID)
	if err != nil {
		return chat.Message{}, fmt.Errorf("resolve system prompt: %w", err)
	}
	if systemPrompt == "" {
		systemPrompt = o.cfg.DefaultPrompt
	}

	session := o.llm.NewChat(systemPrompt, history...)
	if o.registry != nil && o.dispatcher != nil {
		for _, t := range llmclient.BridgeTools(o.registry, o.dispatcher, userID) {
			if err := session.RegisterTool(t); err != nil {
				logging.Logger().With("component", "orchestrator").Warn("register tool failed", "tool", t.Name(), "error", err)
			}
		}
	}

	return session.Message(ctx, chat.UserMessage(msg.Text))
}

func (o *Orchestrator) enforceBan(ctx context.Context, msg transport.Message, now time.Time) (dropped bool, err error) {
	userID := userIDOf(msg)
	ban, err := o.store.Bans().Get(ctx, msg.ChatID, userID)
	if err == store.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	due := !ban.LastNoticeTS.Valid || now.Sub(ban.LastNoticeTS.Time) > o.cfg.BanNoticeCooldown
	if due {
		if err := o.sender.SendText(ctx, msg.ChatID, o.cfg.Fallback.Banned, &msg.MessageID); err != nil {
			return true, err
		}
		if err := o.store.Bans().RecordNotice(ctx, msg.ChatID, userID, now); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (o *Orchestrator) persistMessage(ctx context.Context, msg transport.Message, role store.MessageRole, text string, ts time.Time) (int64, error) {
	m := store.Message{
		ChatID:    msg.ChatID,
		ThreadID:  nullInt64(msg.ThreadID),
		UserID:    nullInt64(msg.UserID),
		Role:      role,
		Text:      text,
		Media:     mediaOf(msg),
		Timestamp: ts,
	}
	if role == store.RoleUser {
		m.ExternalMessageID = strconv.FormatInt(msg.MessageID, 10)
		if msg.ReplyTo != nil {
			m.ReplyToExternalMsgID = strconv.FormatInt(*msg.ReplyTo, 10)
		}
	}

	id, err := o.store.Messages().AppendMessage(ctx, m)
	if err != nil {
		return 0, err
	}

	if o.embedder != nil && text != "" {
		go o.embedAsync(id, text)
	}
	return id, nil
}

func (o *Orchestrator) embedAsync(messageID int64, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	vec, err := o.embedder.Embed(ctx, text)
	if err != nil {
		logging.Logger().With("component", "orchestrator").Debug("embedding failed", "error", err)
		return
	}
	if err := o.store.Messages().UpdateEmbedding(ctx, messageID, vec); err != nil {
		logging.Logger().With("component", "orchestrator").Warn("store embedding failed", "error", err)
	}
}

func (o *Orchestrator) trackEpisode(chatID int64, threadID *int64, msg episode.Message) {
	if o.episodes == nil {
		return
	}
	o.episodes.TrackMessage(chatID, nullInt64(threadID), msg)
}

func (o *Orchestrator) extractFactsAsync(chatID int64) {
	if o.extractor == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	recent, err := o.store.Messages().RecentMessages(ctx, chatID, nil, o.cfg.FactWindowSize)
	if err != nil {
		logging.Logger().With("component", "orchestrator").Warn("load recent messages for extraction failed", "error", err)
		return
	}

	window := facts.ConversationWindow{ChatID: chatID}
	participants := make(map[int64]bool)
	for i := len(recent) - 1; i >= 0; i-- {
		m := recent[i]
		if !m.UserID.Valid {
			continue
		}
		window.Messages = append(window.Messages, facts.Message{ID: m.ID, UserID: m.UserID.Int64, Text: m.Text})
		participants[m.UserID.Int64] = true
	}
	for uid := range participants {
		window.Participants = append(window.Participants, uid)
	}

	extracted := o.extractor.Extract(ctx, window)
	if o.metrics != nil {
		o.metrics.IncFactsExtracted("combined", len(extracted))
	}
}

func userIDOf(msg transport.Message) int64 {
	if msg.UserID == nil {
		return 0
	}
	return *msg.UserID
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func mediaOf(msg transport.Message) []chat.MediaPart {
	var out []chat.MediaPart
	for _, p := range msg.Photo {
		out = append(out, chat.MediaPart{Kind: chat.MediaImage, MIMEType: p.MIMEType, FileID: p.FileID})
	}
	if msg.Document != nil {
		out = append(out, chat.MediaPart{Kind: chat.MediaDocument, MIMEType: msg.Document.MIMEType, FileID: msg.Document.FileID})
	}
	if msg.Audio != nil {
		out = append(out, chat.MediaPart{Kind: chat.MediaAudio, MIMEType: msg.Audio.MIMEType, FileID: msg.Audio.FileID})
	}
	if msg.Video != nil {
		out = append(out, chat.MediaPart{Kind: chat.MediaVideo, MIMEType: msg.Video.MIMEType, FileID: msg.Video.FileID})
	}
	return out
}

func lockKey(chatID, userID int64) string {
	return strconv.FormatInt(chatID, 10) + ":" + strconv.FormatInt(userID, 10)
}
