// Onboarding dialogue server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/joho/godotenv"

	"github.com/tbxark/onboardagent/agent"
	"github.com/tbxark/onboardagent/channel/httpapi"
	"github.com/tbxark/onboardagent/config"
	"github.com/tbxark/onboardagent/gateway"
	"github.com/tbxark/onboardagent/profile"
	"github.com/tbxark/onboardagent/promptcfg"
	"github.com/tbxark/onboardagent/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := run(context.Background(), cfg); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Prompt configuration fails fast: a malformed file aborts startup
	// instead of failing mid-conversation.
	prompts, err := promptcfg.Load(cfg.PromptDir)
	if err != nil {
		return err
	}
	slog.Info("Prompt configs loaded", "prompt_types", prompts.Names())

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close store", "error", closeErr)
		}
	}()
	if err := repo.Ping(ctx); err != nil {
		return err
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.ModelName,
	})
	if err != nil {
		return err
	}

	gw := gateway.New(prompts, chatModel)
	engine := agent.NewEngine(gw, repo, repo,
		agent.WithMaxRetries(cfg.MaxRetries),
		agent.WithIdleTimeout(cfg.IdleTimeout),
		agent.WithCallTimeout(cfg.CallTimeout),
		agent.WithSynthesizer(profile.NewBuilder(gw)),
	)

	go sweepLoop(ctx, engine, cfg.IdleTimeout)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpapi.NewServer(engine).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sweepLoop periodically abandons idle sessions.
func sweepLoop(ctx context.Context, engine *agent.Engine, idleTimeout time.Duration) {
	interval := idleTimeout / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			abandoned, err := engine.SweepIdle(ctx)
			if err != nil {
				slog.Error("Idle sweep failed", "error", err)
				continue
			}
			if abandoned > 0 {
				slog.Info("Abandoned idle sessions", "count", abandoned)
			}
		}
	}
}
