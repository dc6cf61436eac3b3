package reply

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ent0n29/gemini-relay/internal/backend"
	"github.com/ent0n29/gemini-relay/internal/conversation"
	"github.com/ent0n29/gemini-relay/internal/observability"
	"github.com/ent0n29/gemini-relay/internal/reliability"
)

const (
	defaultBackendTimeout = 60 * time.Second
	recordTimeout         = 2 * time.Second
)

// HistoryStore is the per-conversation memory the service reads and writes.
type HistoryStore interface {
	Get(id conversation.ID) conversation.History
	Put(id conversation.ID, h conversation.History)
	Reset(id conversation.ID)
	Limit() int
}

// Exchange is one finished Generate call as reported to a Recorder.
type Exchange struct {
	TurnID         string
	ConversationID conversation.ID
	User           conversation.Turn
	Assistant      conversation.Turn
	Outcome        Kind
	Stored         bool
	At             time.Time
}

// Recorder receives finished exchanges, e.g. an operator transcript archive.
type Recorder interface {
	Record(ctx context.Context, ex Exchange) error
}

type Config struct {
	Model    string
	Preamble string
	// Timeout bounds a single backend call. Zero means 60s.
	Timeout time.Duration
	// ExcludeFailedTurns keeps stored history unchanged when the backend
	// produced no text, instead of recording the fallback as the assistant
	// turn.
	ExcludeFailedTurns bool
	Fallbacks          Fallbacks
}

type Option func(*Service)

func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// Service turns a user utterance into a model reply while keeping the
// conversation's bounded history up to date. Calls for the same conversation
// run one at a time; different conversations run independently.
type Service struct {
	store    HistoryStore
	backend  backend.Backend
	cfg      Config
	locks    *keyedLock
	metrics  *observability.Metrics
	recorder Recorder
	log      zerolog.Logger
}

func NewService(store HistoryStore, b backend.Backend, cfg Config, opts ...Option) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultBackendTimeout
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = backend.DefaultModel
	}
	cfg.Fallbacks = cfg.Fallbacks.withDefaults()

	s := &Service{
		store:   store,
		backend: b,
		cfg:     cfg,
		locks:   newKeyedLock(),
		log:     log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fallbacks reports the configured user-facing fallback strings.
func (s *Service) Fallbacks() Fallbacks { return s.cfg.Fallbacks }

// Generate appends text as a user turn, asks the backend for a reply, stores
// the reply as the assistant turn and returns it. Backend failures never
// surface as errors: the user gets a fallback string instead. An error means
// the call was rejected before any work happened (empty id, or ctx ended
// while waiting behind another call for the same conversation).
func (s *Service) Generate(ctx context.Context, id conversation.ID, text string) (string, error) {
	if strings.TrimSpace(string(id)) == "" {
		return "", conversation.ErrEmptyID
	}
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return "", fmt.Errorf("wait for conversation %s: %w", id, err)
	}
	defer unlock()
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("conversation %s: %w", id, err)
	}

	started := time.Now()
	turnID := uuid.NewString()
	limit := s.store.Limit()

	history := conversation.Trim(s.store.Get(id).Append(conversation.UserTurn(text)), limit)
	prompt := FormatPrompt(history)

	callStarted := time.Now()
	res := s.call(ctx, prompt)
	backendLatency := time.Since(callStarted)

	replyText := s.cfg.Fallbacks.For(res)
	stored := res.Kind == KindText || !s.cfg.ExcludeFailedTurns
	if stored {
		history = conversation.Trim(history.Append(conversation.AssistantTurn(replyText)), limit)
		s.store.Put(id, history)
	}

	s.logResult(id, turnID, res, backendLatency, len(history))
	s.metrics.ObserveGenerate(res.Kind.String(), backendLatency, time.Since(started))
	if c, ok := s.store.(interface{ Conversations() int }); ok {
		s.metrics.SetConversations(c.Conversations())
	}
	s.recordBestEffort(Exchange{
		TurnID:         turnID,
		ConversationID: id,
		User:           conversation.UserTurn(text),
		Assistant:      conversation.AssistantTurn(replyText),
		Outcome:        res.Kind,
		Stored:         stored,
		At:             time.Now().UTC(),
	})
	return replyText, nil
}

// Reset empties the conversation's history. It waits for an in-flight
// Generate on the same conversation so the reply cannot resurrect old turns.
func (s *Service) Reset(ctx context.Context, id conversation.ID) error {
	if strings.TrimSpace(string(id)) == "" {
		return conversation.ErrEmptyID
	}
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return fmt.Errorf("wait for conversation %s: %w", id, err)
	}
	defer unlock()

	s.store.Reset(id)
	s.log.Info().Str("conversation_id", string(id)).Msg("conversation history reset")
	return nil
}

// History returns a copy of the stored history for id.
func (s *Service) History(id conversation.ID) conversation.History {
	return s.store.Get(id)
}

// call runs the backend request as its own task and waits for it, the call
// deadline, or ctx, whichever comes first. A panicking client counts as a
// transport failure.
func (s *Service) call(ctx context.Context, prompt string) Result {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	type outcome struct {
		resp backend.Response
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("backend panic: %v", r)}
			}
		}()
		resp, err := s.backend.Generate(callCtx, backend.Request{
			Model:    s.cfg.Model,
			Prompt:   prompt,
			Preamble: s.cfg.Preamble,
		})
		done <- outcome{resp: resp, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return Result{Kind: KindTransportError, Err: o.err}
		}
		return Extract(o.resp)
	case <-callCtx.Done():
		return Result{Kind: KindTransportError, Err: callCtx.Err()}
	}
}

func (s *Service) logResult(id conversation.ID, turnID string, res Result, latency time.Duration, historyLen int) {
	switch res.Kind {
	case KindText:
		s.log.Info().
			Str("conversation_id", string(id)).
			Str("turn_id", turnID).
			Str("model", s.cfg.Model).
			Dur("backend_latency", latency).
			Int("history_len", historyLen).
			Msg("reply generated")
	case KindMalformed:
		s.log.Error().
			Str("conversation_id", string(id)).
			Str("turn_id", turnID).
			Str("model", s.cfg.Model).
			Dur("backend_latency", latency).
			Msg("backend response had no text")
	default:
		failure := reliability.ClassifyBackendError(res.Err)
		s.log.Error().
			Err(res.Err).
			Str("conversation_id", string(id)).
			Str("turn_id", turnID).
			Str("model", s.cfg.Model).
			Str("failure", failure.String()).
			Bool("retryable", failure.Retryable).
			Dur("backend_latency", latency).
			Msg("backend request failed")
	}
}

func (s *Service) recordBestEffort(ex Exchange) {
	if s.recorder == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := s.recorder.Record(ctx, ex); err != nil {
			s.metrics.ObserveTranscriptError()
			s.log.Warn().Err(err).Str("turn_id", ex.TurnID).Msg("transcript record failed")
		}
	}()
}
