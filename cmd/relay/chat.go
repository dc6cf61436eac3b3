package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ent0n29/gemini-relay/internal/app"
	"github.com/ent0n29/gemini-relay/internal/config"
	"github.com/ent0n29/gemini-relay/internal/conversation"
	"github.com/ent0n29/gemini-relay/internal/observability"
)

func newChatCommand() *cobra.Command {
	var conversationID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the model from the terminal using the same memory rules as the bot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			cfg, err := config.LoadWithOptions(config.Options{EnvFile: envFile, Console: true})
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if err := observability.SetupLogging(cfg.LogLevel, cfg.LogFormat); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res, err := app.Build(ctx, cfg, prometheus.NewRegistry(), nil)
			if err != nil {
				return err
			}
			defer closeBuild(res)

			return runChat(ctx, res.Replies, conversation.ID(conversationID), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "console", "conversation id used for memory")
	return cmd
}

type chatReplier interface {
	Generate(ctx context.Context, id conversation.ID, text string) (string, error)
	Reset(ctx context.Context, id conversation.ID) error
	History(id conversation.ID) conversation.History
}

// runChat reads one utterance per line until EOF, /exit or ctx is done.
func runChat(ctx context.Context, replies chatReplier, id conversation.ID, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	fmt.Fprintln(out, "Type a message. /reset clears memory, /history shows it, /exit quits.")
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			if err := replies.Reset(ctx, id); err != nil {
				return err
			}
			fmt.Fprintln(out, "(memory cleared)")
			continue
		case "/history":
			for _, t := range replies.History(id) {
				fmt.Fprintf(out, "%s: %s\n", t.Role, t.Content)
			}
			continue
		}

		text, err := replies.Generate(ctx, id, line)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, text)
	}
}
