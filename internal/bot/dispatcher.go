package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/ent0n29/gemini-relay/internal/conversation"
	"github.com/ent0n29/gemini-relay/internal/observability"
	"github.com/ent0n29/gemini-relay/internal/policy"
	"github.com/ent0n29/gemini-relay/internal/reliability"
	"github.com/ent0n29/gemini-relay/internal/reply"
)

const (
	sourceTelegram = "telegram"

	greetingText = "Namaste! 👋\n\nMain Gemini powered Telegram bot hoon.\nJo bhi sawaal hai, yahan bhejo 🙂"
	helpText     = "/start – bot shuru karo\n/reset – conversation memory clear karo\nBas normal message bhejo, main Gemini se reply launga."
	resetText    = "Conversation memory clear ho gayi. Naye sire se shuru karte hain 🙂"
	refusalText  = "Sorry, this bot is private."

	defaultPollBackoff = time.Second
	pollBackoffCap     = 30 * time.Second
)

// Replier is the reply service as seen by the dispatcher.
type Replier interface {
	Generate(ctx context.Context, id conversation.ID, text string) (string, error)
	Reset(ctx context.Context, id conversation.ID) error
	Fallbacks() reply.Fallbacks
}

type Config struct {
	Concurrency   int
	PollTimeout   int
	AllowedUsers  policy.AllowList
	MaxReplyRunes int
	// PollBackoff is the first wait after a failed poll; it doubles up to 30s.
	PollBackoff time.Duration
}

// Dispatcher polls the messenger and hands updates to a bounded worker pool,
// so a slow backend call never stalls polling. Each chat has at most one
// update in flight; the rest wait in arrival order.
type Dispatcher struct {
	messenger Messenger
	replies   Replier
	cfg       Config
	metrics   *observability.Metrics
	queues    *chatQueues
	log       zerolog.Logger
}

func NewDispatcher(m Messenger, replies Replier, cfg Config, metrics *observability.Metrics) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.PollTimeout < 0 {
		cfg.PollTimeout = 0
	}
	if cfg.PollBackoff <= 0 {
		cfg.PollBackoff = defaultPollBackoff
	}
	if cfg.MaxReplyRunes <= 0 {
		cfg.MaxReplyRunes = MaxMessageRunes
	}
	return &Dispatcher{
		messenger: m,
		replies:   replies,
		cfg:       cfg,
		metrics:   metrics,
		queues:    newChatQueues(),
		log:       log.With().Str("component", "bot").Logger(),
	}
}

// Run polls until ctx is done, then waits for in-flight messages to finish.
// Messages already handed to the pool run to completion on a context that
// outlives ctx, bounded by the reply service's backend timeout.
func (d *Dispatcher) Run(ctx context.Context) error {
	p := pool.New().WithMaxGoroutines(d.cfg.Concurrency)
	defer p.Wait()

	handleCtx := context.WithoutCancel(ctx)
	offset := 0
	failures := 0
	d.log.Info().Int("concurrency", d.cfg.Concurrency).Msg("telegram polling started")
	for {
		if ctx.Err() != nil {
			d.log.Info().Msg("telegram polling stopped")
			return nil
		}
		updates, err := d.messenger.GetUpdates(ctx, offset, d.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			wait := reliability.ExponentialBackoff(failures, d.cfg.PollBackoff, pollBackoffCap)
			failures++
			d.log.Warn().Err(err).Dur("retry_in", wait).Msg("telegram poll failed")
			select {
			case <-ctx.Done():
			case <-time.After(wait):
			}
			continue
		}
		failures = 0

		for _, u := range updates {
			if u.ID >= offset {
				offset = u.ID + 1
			}
			if d.queues.push(u) {
				chatID := u.ChatID
				p.Go(func() { d.drain(handleCtx, chatID) })
			}
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context, chatID int64) {
	for {
		u, ok := d.queues.next(chatID)
		if !ok {
			return
		}
		d.handle(ctx, u)
	}
}

// handle is the outermost boundary for one update: every path that reaches
// the user ends in a presentable string.
func (d *Dispatcher) handle(ctx context.Context, u Update) {
	d.metrics.DispatchStarted()
	defer d.metrics.DispatchFinished()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().
				Err(fmt.Errorf("panic: %v", r)).
				Int64("chat_id", u.ChatID).
				Int("update_id", u.ID).
				Msg("message handler panicked")
			d.send(ctx, u.ChatID, d.replies.Fallbacks().Internal)
		}
	}()

	if u.ChatID == 0 {
		return
	}
	if u.Command == "" && strings.TrimSpace(u.Text) == "" {
		d.metrics.ObserveInbound(sourceTelegram, "ignored")
		return
	}
	if !d.allowed(u) {
		d.metrics.ObserveInbound(sourceTelegram, "refused")
		d.log.Warn().Int64("user_id", u.UserID).Str("username", u.Username).Msg("user not in allow-list")
		d.send(ctx, u.ChatID, refusalText)
		return
	}

	id := conversation.ID(strconv.FormatInt(u.ChatID, 10))
	if u.Command != "" {
		d.metrics.ObserveInbound(sourceTelegram, "command")
		d.handleCommand(ctx, id, u)
		return
	}

	d.metrics.ObserveInbound(sourceTelegram, "text")
	d.log.Info().
		Int64("user_id", u.UserID).
		Str("conversation_id", string(id)).
		Str("text", policy.ForLog(u.Text, 200)).
		Msg("inbound message")

	text, err := d.replies.Generate(ctx, id, u.Text)
	if err != nil {
		d.log.Error().Err(err).Str("conversation_id", string(id)).Msg("generate failed")
		text = d.replies.Fallbacks().Internal
	}
	d.send(ctx, u.ChatID, text)
}

func (d *Dispatcher) handleCommand(ctx context.Context, id conversation.ID, u Update) {
	switch strings.ToLower(u.Command) {
	case "start":
		d.send(ctx, u.ChatID, greetingText)
	case "reset":
		if err := d.replies.Reset(ctx, id); err != nil {
			d.log.Error().Err(err).Str("conversation_id", string(id)).Msg("reset failed")
			d.send(ctx, u.ChatID, d.replies.Fallbacks().Internal)
			return
		}
		d.metrics.ObserveReset(sourceTelegram)
		d.send(ctx, u.ChatID, resetText)
	default:
		d.send(ctx, u.ChatID, helpText)
	}
}

func (d *Dispatcher) allowed(u Update) bool {
	if d.cfg.AllowedUsers.Len() == 0 {
		return true
	}
	if d.cfg.AllowedUsers.Allows(strconv.FormatInt(u.UserID, 10)) {
		return true
	}
	return u.Username != "" && d.cfg.AllowedUsers.Allows(u.Username)
}

func (d *Dispatcher) send(ctx context.Context, chatID int64, text string) {
	for _, part := range SplitMessage(text, d.cfg.MaxReplyRunes) {
		if err := d.messenger.SendText(ctx, chatID, part); err != nil {
			d.log.Error().Err(err).Int64("chat_id", chatID).Msg("send reply failed")
			return
		}
	}
}
