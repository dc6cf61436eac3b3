package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ent0n29/gemini-relay/internal/app"
	"github.com/ent0n29/gemini-relay/internal/backend"
	"github.com/ent0n29/gemini-relay/internal/conversation"
	"github.com/ent0n29/gemini-relay/internal/reply"
)

func TestRunChat(t *testing.T) {
	svc := reply.NewService(conversation.NewStore(4), backend.NewEchoBackend(), reply.Config{}, reply.WithLogger(zerolog.Nop()))
	in := strings.NewReader("hi\n/history\n/reset\n\nbye\n/exit\nnever\n")
	var out bytes.Buffer

	if err := runChat(context.Background(), svc, "console", in, &out); err != nil {
		t.Fatalf("runChat() error = %v", err)
	}

	got := out.String()
	for _, want := range []string{"echo:user: hi", "user: hi", "(memory cleared)", "echo:user: bye"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "never") {
		t.Fatalf("output continued after /exit:\n%s", got)
	}
	if n := len(svc.History("console")); n != 2 {
		t.Fatalf("history turns = %d, want 2", n)
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"serve", "chat"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("Find(%q) = %v, %v", name, cmd, err)
		}
	}
}

func TestCloseBuildLogsCleanupError(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	closeBuild(&app.BuildResult{Cleanup: func() error { return errors.New("archive busy") }})

	if got := buf.String(); !strings.Contains(got, "cleanup failed") || !strings.Contains(got, "archive busy") {
		t.Fatalf("log output = %q, want cleanup failure with cause", got)
	}
}
