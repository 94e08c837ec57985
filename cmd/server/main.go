// Form filling assistant server
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ashureev/formfill/internal/assistant"
	"github.com/ashureev/formfill/internal/config"
	"github.com/ashureev/formfill/internal/store"
	"github.com/ashureev/formfill/internal/tools"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "formfill",
	Short:         "Form filling assistant API",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// app holds the dependencies shared by every command.
type app struct {
	cfg        *config.Config
	repo       store.Repository
	client     *assistant.OpenAIClient
	dispatcher *tools.Dispatcher
	assistants map[assistant.Role]assistant.Resolved
}

// setup loads configuration, opens the database and resolves the remote assistants.
// The caller must close the returned repository.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	if err := repo.Ping(ctx); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	client, err := assistant.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, slog.Default())
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("initialize assistant client: %w", err)
	}

	dispatcher := tools.NewDispatcher(slog.Default())
	dispatcher.Register(tools.NewFillFormsTool())

	catalog, err := assistant.LoadCatalog(cfg.OpenAI.AssistantsFile)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	boot := assistant.NewBootstrapper(client, repo, cfg.OpenAI.VectorStoreName, slog.Default())
	resolved, err := boot.Ensure(ctx, catalog, dispatcher.Definitions())
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("ensure assistants: %w", err)
	}

	return &app{
		cfg:        cfg,
		repo:       repo,
		client:     client,
		dispatcher: dispatcher,
		assistants: resolved,
	}, nil
}

func (rt *app) close() {
	if err := rt.repo.Close(); err != nil {
		slog.Error("Failed to close repository", "error", err)
	}
}
