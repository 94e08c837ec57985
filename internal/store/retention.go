package store

import (
	"context"
	"log/slog"
	"time"
)

// DefaultRetentionInterval is how often the retention worker sweeps.
const DefaultRetentionInterval = 30 * time.Minute

// StartRetentionWorker runs a background goroutine that periodically prunes
// sessions unused for longer than retention. A non-positive retention
// disables the worker.
func StartRetentionWorker(ctx context.Context, repo Repository, retention, interval time.Duration) {
	if retention <= 0 {
		slog.Info("Retention worker disabled")
		return
	}
	if interval <= 0 {
		interval = DefaultRetentionInterval
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Retention worker started", "interval", interval, "retention", retention)

		for {
			select {
			case <-ticker.C:
				pruneExpired(ctx, repo, retention, time.Now())
			case <-ctx.Done():
				slog.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func pruneExpired(ctx context.Context, repo Repository, retention time.Duration, now time.Time) int64 {
	deleted, err := repo.PruneBefore(ctx, now.Add(-retention))
	if err != nil {
		if ctx.Err() != nil {
			slog.Debug("Retention worker: context canceled during prune", "error", err)
			return 0
		}
		slog.Error("Retention worker failed to prune sessions", "error", err)
		return 0
	}
	if deleted > 0 {
		slog.Info("Retention worker pruned sessions", "count", deleted)
	}
	return deleted
}
