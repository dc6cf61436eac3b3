package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/gemini-relay/internal/app"
	"github.com/ent0n29/gemini-relay/internal/config"
	"github.com/ent0n29/gemini-relay/internal/observability"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "relay",
		Short:         "Telegram to Gemini chat relay with per-conversation memory",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("env-file", ".env", "dotenv file read when present; process environment wins")
	root.AddCommand(newServeCommand(), newChatCommand())
	return root
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Poll Telegram and serve the HTTP API until SIGINT/SIGTERM",
		RunE: func(cmd *cobra.Command, _ []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			cfg, err := config.LoadWithOptions(config.Options{EnvFile: envFile})
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if err := observability.SetupLogging(cfg.LogLevel, cfg.LogFormat); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

// closeBuild releases the backend and archive, logging what failed.
func closeBuild(res *app.BuildResult) {
	if err := res.Cleanup(); err != nil {
		log.Warn().Err(err).Msg("cleanup failed")
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	res, err := app.Build(ctx, cfg, nil, nil)
	if err != nil {
		return err
	}
	defer closeBuild(res)

	if res.Dispatcher == nil && cfg.BindAddr == "" {
		return errors.New("nothing to run: telegram is disabled and APP_BIND_ADDR is empty")
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.BindAddr != "" {
		httpServer := &http.Server{
			Addr:              cfg.BindAddr,
			Handler:           res.API.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			log.Info().Str("addr", cfg.BindAddr).Msg("server listening")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("graceful shutdown failed")
				_ = httpServer.Close()
			}
			return nil
		})
	}

	if res.Dispatcher != nil {
		g.Go(func() error {
			return res.Dispatcher.Run(gctx)
		})
	}

	log.Info().
		Str("model_provider", cfg.ModelProvider).
		Str("model", cfg.ModelName).
		Int("memory_limit", cfg.MemoryLimit).
		Bool("telegram", res.Dispatcher != nil).
		Msg("relay started")

	err = g.Wait()
	log.Info().Msg("shutdown complete")
	return err
}
