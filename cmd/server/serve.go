package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/formfill/internal/api"
	"github.com/ashureev/formfill/internal/assistant"
	"github.com/ashureev/formfill/internal/middleware"
	"github.com/ashureev/formfill/internal/orchestrator"
	"github.com/ashureev/formfill/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	cfg := rt.cfg
	helper := rt.assistants[assistant.RoleHelper]
	form := rt.assistants[assistant.RoleForm]
	slog.Info("Assistants ready", "helper_id", helper.ID, "form_id", form.ID)

	orch := orchestrator.New(rt.client, rt.dispatcher, orchestrator.Options{
		PollInterval:    cfg.Run.PollInterval,
		PollTimeout:     cfg.Run.PollTimeout,
		MaxActionRounds: cfg.Run.MaxActionRounds,
	}, slog.Default())

	handler := api.NewHandler(rt.repo, rt.client, orch, api.Options{
		Helper:       api.Profile{Name: helper.Name, ID: helper.ID, Instructions: helper.RunInstructions},
		Form:         api.Profile{Name: form.Name, ID: form.ID, Instructions: form.RunInstructions},
		MaxBodyBytes: cfg.MaxRequestBodySize,
	})

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	handler.RegisterRoutes(r)

	// Runs are polled synchronously, so the write timeout must outlast RUN_POLL_TIMEOUT.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Run.PollTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	store.StartRetentionWorker(ctx, rt.repo, cfg.Retention, store.DefaultRetentionInterval)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for shutdown signal.
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server stopped successfully")
	return nil
}
