package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/ent0n29/gemini-relay/internal/backend"
	"github.com/ent0n29/gemini-relay/internal/bot"
	"github.com/ent0n29/gemini-relay/internal/config"
	"github.com/ent0n29/gemini-relay/internal/conversation"
	"github.com/ent0n29/gemini-relay/internal/httpapi"
	"github.com/ent0n29/gemini-relay/internal/observability"
	"github.com/ent0n29/gemini-relay/internal/policy"
	"github.com/ent0n29/gemini-relay/internal/reply"
	"github.com/ent0n29/gemini-relay/internal/transcript"
)

type BuildResult struct {
	Config  config.Config
	Store   *conversation.Store
	Backend backend.Backend
	Replies *reply.Service
	Archive transcript.Archive
	API     *httpapi.Server
	Metrics *observability.Metrics

	// Dispatcher is nil unless Telegram is enabled and a messenger was built.
	Dispatcher *bot.Dispatcher

	// Cleanup should be called on shutdown to release external resources (backend client, archive DB).
	Cleanup func() error
}

// MessengerFactory builds the platform messenger. Tests swap it for a fake.
type MessengerFactory func(token string) (bot.Messenger, error)

func TelegramMessenger(token string) (bot.Messenger, error) {
	m, err := bot.NewTelegramMessenger(token)
	if err != nil {
		return nil, err
	}
	log.Info().Str("bot", m.Username()).Msg("telegram authorized")
	return m, nil
}

// Build wires config into the store, backend, reply service and the inbound
// surfaces. reg receives the Prometheus instruments; nil means the default
// registry. newMessenger is only consulted when Telegram is enabled.
func Build(ctx context.Context, cfg config.Config, reg prometheus.Registerer, newMessenger MessengerFactory) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace, reg)
	metrics.SetBackendBudget(cfg.ModelTimeout)

	archive, err := transcript.NewArchive(ctx, cfg.TranscriptDatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("transcript archive init failed: %w", err)
	}

	b, err := backend.New(ctx, backend.Config{
		Mode:          cfg.ModelProvider,
		GeminiAPIKey:  cfg.GeminiAPIKey,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		HTTPURL:       cfg.ModelHTTPURL,
		HTTPToken:     cfg.ModelHTTPAuth,
	})
	if err != nil {
		closeArchive(archive)
		return nil, fmt.Errorf("model backend init failed: %w", err)
	}

	preamble := cfg.SystemPreamble
	if strings.TrimSpace(preamble) == "" {
		preamble = reply.DefaultPreamble
	}

	store := conversation.NewStore(cfg.MemoryLimit)
	opts := []reply.Option{reply.WithMetrics(metrics)}
	if archive != nil {
		opts = append(opts, reply.WithRecorder(archive))
	}
	replies := reply.NewService(store, b, reply.Config{
		Model:              cfg.ModelName,
		Preamble:           preamble,
		Timeout:            cfg.ModelTimeout,
		ExcludeFailedTurns: !cfg.RecordFailedTurns,
		Fallbacks: reply.Fallbacks{
			Unreachable: cfg.FallbackUnreachable,
			Malformed:   cfg.FallbackMalformed,
			Internal:    cfg.FallbackInternal,
		},
	}, opts...)

	cleanup := func() error {
		var errs []error
		if err := backend.Close(b); err != nil {
			errs = append(errs, fmt.Errorf("close backend: %w", err))
		}
		if archive != nil {
			if err := archive.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close transcript archive: %w", err))
			}
		}
		return errors.Join(errs...)
	}

	var dispatcher *bot.Dispatcher
	if cfg.TelegramEnabled {
		if newMessenger == nil {
			newMessenger = TelegramMessenger
		}
		m, err := newMessenger(cfg.TelegramBotToken)
		if err != nil {
			_ = cleanup()
			return nil, fmt.Errorf("telegram init failed: %w", err)
		}
		dispatcher = bot.NewDispatcher(m, replies, bot.Config{
			Concurrency:  cfg.DispatchConcurrency,
			PollTimeout:  cfg.TelegramPollTimeout,
			AllowedUsers: policy.ParseAllowList(cfg.TelegramAllowed),
		}, metrics)
	}

	return &BuildResult{
		Config:     cfg,
		Store:      store,
		Backend:    b,
		Replies:    replies,
		Archive:    archive,
		API:        httpapi.New(cfg, replies, archive, metrics),
		Metrics:    metrics,
		Dispatcher: dispatcher,
		Cleanup:    cleanup,
	}, nil
}

func closeArchive(a transcript.Archive) {
	if a != nil {
		_ = a.Close()
	}
}
