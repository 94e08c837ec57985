package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ashureev/formfill/internal/assistant"
	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <files...>",
	Short: "Upload personal documents for the form filler to search",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, path := range args {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("file %q: %w", path, err)
		}
	}

	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	form := rt.assistants[assistant.RoleForm]
	result, err := assistant.IndexDocuments(ctx, rt.client, rt.client, rt.repo,
		rt.cfg.OpenAI.VectorStoreName, form.ID, args)
	if err != nil {
		return fmt.Errorf("upload documents: %w", err)
	}

	slog.Info("Documents indexed",
		"vector_store", rt.cfg.OpenAI.VectorStoreName,
		"assistant_id", form.ID,
		"completed", result.Completed,
		"failed", result.Failed,
	)
	fmt.Fprintf(cmd.OutOrStdout(), "indexed %d file(s), %d failed\n", result.Completed, result.Failed)
	if result.Failed > 0 {
		return fmt.Errorf("%d file(s) failed to index", result.Failed)
	}
	return nil
}
