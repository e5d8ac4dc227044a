package core

// scheduler.go runs periodic maintenance.
//
// Currently it purges import history older than the retention period. The
// scheduler is long-running and stops with its context; a failed purge is
// logged and retried at the next tick.

import (
	"context"
	"log/slog"
	"time"
)

// PurgeConfig controls the history purge.
type PurgeConfig struct {
	RetentionDays int           // entries older than this are deleted (default: 90)
	CheckInterval time.Duration // how often to run (default: 24h)
}

// StartHistoryScheduler purges old history immediately, then every
// CheckInterval, until ctx is cancelled.
func StartHistoryScheduler(ctx context.Context, h HistoryStore, cfg PurgeConfig) {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 90
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 24 * time.Hour
	}
	slog.Info("history scheduler started",
		"retention_days", cfg.RetentionDays,
		"interval", cfg.CheckInterval,
	)

	runPurgeJob(ctx, h, cfg)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("history scheduler stopped")
			return
		case <-ticker.C:
			runPurgeJob(ctx, h, cfg)
		}
	}
}

func runPurgeJob(ctx context.Context, h HistoryStore, cfg PurgeConfig) {
	start := time.Now()
	purged, err := h.Purge(ctx, time.Duration(cfg.RetentionDays)*24*time.Hour)
	if err != nil {
		slog.Error("history purge failed", "error", err)
		return
	}
	slog.Info("purged import history",
		"entries_purged", purged,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
