// Game design team server: provides the chat API, thread history and
// live step streaming, and runs the retention loop.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codeready-toolchain/design-team/pkg/agent"
	"github.com/codeready-toolchain/design-team/pkg/api"
	"github.com/codeready-toolchain/design-team/pkg/cleanup"
	"github.com/codeready-toolchain/design-team/pkg/config"
	"github.com/codeready-toolchain/design-team/pkg/database"
	"github.com/codeready-toolchain/design-team/pkg/events"
	"github.com/codeready-toolchain/design-team/pkg/lifecycle"
	"github.com/codeready-toolchain/design-team/pkg/llm"
	"github.com/codeready-toolchain/design-team/pkg/metrics"
	"github.com/codeready-toolchain/design-team/pkg/services"
	"github.com/codeready-toolchain/design-team/pkg/sessions"
	"github.com/codeready-toolchain/design-team/pkg/team"
	"github.com/codeready-toolchain/design-team/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// Parse command-line flags
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8000")

	slog.Info("Starting design team",
		"version", version.Full(),
		"http_port", httpPort,
		"config_dir", *configDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resources := lifecycle.NewGroup()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize database
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	resources.RegisterCloser("database", dbClient.Close)
	slog.Info("Connected to database", "dialect", dbClient.Dialect())

	m := metrics.MustNew(prometheus.DefaultRegisterer)
	store := sessions.NewStore(dbClient)

	// 3. Build the team and its runner
	if cfg.LLM.APIKey == "" {
		slog.Warn("No LLM API key configured, model calls will fail until GOOGLE_API_KEY is set")
	}
	llmClient := llm.NewClient(llm.Config{
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: cfg.LLM.MaxRetries,
	}, m)

	designTeam, err := team.New(team.Config{
		WorkerModel:           cfg.Team.WorkerModel,
		DesignerModel:         cfg.Team.DesignerModel,
		MaxGameplayIterations: cfg.Team.MaxGameplayIterations,
		ThinkingBudget:        cfg.Team.ThinkingBudget,
		SynthesizePlan:        cfg.Team.SynthesizePlan,
	})
	if err != nil {
		slog.Error("Failed to build design team", "error", err)
		os.Exit(1)
	}
	runner := agent.NewRunner(cfg.AppName, designTeam.Root, store, llmClient)
	slog.Info("Design team initialized", "root_agent", designTeam.Root.Name())

	// 4. Initialize streaming infrastructure
	threadService := services.NewThreadService(dbClient, store, cfg.AppName, m)
	connManager := events.NewConnectionManager(events.NewThreadCatchupAdapter(threadService), 10*time.Second, m)
	eventPublisher := events.NewEventPublisher(connManager)
	slog.Info("Streaming infrastructure initialized")

	// 5. Chat service
	chatService := services.NewChatService(store, runner, eventPublisher, m, services.ChatConfig{
		AppName:        cfg.AppName,
		WelcomeMessage: cfg.Chat.WelcomeMessage,
		RunTimeout:     cfg.Chat.RunTimeout,
	})

	// 6. Start retention loop
	cleanupService := cleanup.NewService(cfg.Retention, store, m)
	cleanupService.Start(ctx)
	resources.Register("cleanup", func(context.Context) error {
		cleanupService.Stop()
		return nil
	})

	// 7. Create HTTP server
	httpServer := api.NewServer(cfg, dbClient, threadService, chatService, connManager, prometheus.DefaultGatherer)
	httpServer.SetEventPublisher(eventPublisher)
	resources.Register("http server", httpServer.Shutdown)
	// Released before the server so open message streams can end.
	resources.Register("chat runs", chatService.Shutdown)

	// 8. Start HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + httpPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Design team started successfully", "app_name", cfg.AppName)

	// 9. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	var received os.Signal
	select {
	case received = <-sigCh:
		slog.Info("Shutdown signal received", "signal", received)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 10. Graceful shutdown, in reverse start order
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	resources.Shutdown(shutdownCtx)
	shutdownCancel()
	cancel()

	slog.Info("Shutdown complete")

	if received != nil {
		if err := lifecycle.Redeliver(received); err != nil {
			slog.Error("Failed to re-deliver signal", "error", err)
		}
	}
}
