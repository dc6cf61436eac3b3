package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ent0n29/gemini-relay/internal/bot"
	"github.com/ent0n29/gemini-relay/internal/config"
	"github.com/ent0n29/gemini-relay/internal/transcript"
)

func testConfig() config.Config {
	return config.Config{
		ModelProvider:         "echo",
		ModelName:             "test-model",
		MemoryLimit:           4,
		ModelTimeout:          5 * time.Second,
		RecordFailedTurns:     true,
		DispatchConcurrency:   2,
		MetricsNamespace:      "test_app",
		TranscriptDatabaseURL: "memory://",
	}
}

func TestBuildWiresReplyService(t *testing.T) {
	res, err := Build(context.Background(), testConfig(), prometheus.NewRegistry(), nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer res.Cleanup()

	if res.Dispatcher != nil {
		t.Fatalf("Dispatcher = %v, want nil when telegram disabled", res.Dispatcher)
	}
	if _, ok := res.Archive.(*transcript.InMemoryArchive); !ok {
		t.Fatalf("Archive = %T, want *transcript.InMemoryArchive", res.Archive)
	}

	got, err := res.Replies.Generate(context.Background(), "u1", "hi")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "echo:user: hi" {
		t.Fatalf("Generate() = %q, want %q", got, "echo:user: hi")
	}
	if n := len(res.Store.Get("u1")); n != 2 {
		t.Fatalf("stored turns = %d, want 2", n)
	}

	for _, st := range res.Metrics.SnapshotLatency().Stages {
		if st.Stage == "backend_call" && st.BudgetMS != 5000 {
			t.Fatalf("backend_call BudgetMS = %v, want 5000", st.BudgetMS)
		}
	}
}

type nopMessenger struct{}

func (nopMessenger) GetUpdates(ctx context.Context, _, _ int) ([]bot.Update, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (nopMessenger) SendText(context.Context, int64, string) error { return nil }

func TestBuildTelegramUsesMessengerFactory(t *testing.T) {
	cfg := testConfig()
	cfg.TelegramEnabled = true
	cfg.TelegramBotToken = "123:abc"

	var gotToken string
	res, err := Build(context.Background(), cfg, prometheus.NewRegistry(), func(token string) (bot.Messenger, error) {
		gotToken = token
		return nopMessenger{}, nil
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer res.Cleanup()

	if res.Dispatcher == nil {
		t.Fatalf("Dispatcher = nil, want dispatcher")
	}
	if gotToken != "123:abc" {
		t.Fatalf("token = %q, want %q", gotToken, "123:abc")
	}
}

func TestBuildMessengerFailure(t *testing.T) {
	cfg := testConfig()
	cfg.TelegramEnabled = true
	_, err := Build(context.Background(), cfg, prometheus.NewRegistry(), func(string) (bot.Messenger, error) {
		return nil, errors.New("unauthorized")
	})
	if err == nil {
		t.Fatalf("Build() error = nil, want error")
	}
}

func TestBuildUnsupportedProvider(t *testing.T) {
	cfg := testConfig()
	cfg.ModelProvider = "llama"
	if _, err := Build(context.Background(), cfg, prometheus.NewRegistry(), nil); err == nil {
		t.Fatalf("Build() error = nil, want error")
	}
}
