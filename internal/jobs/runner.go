package jobs

import (
	"context"
	"log/slog"
	"time"

	"ottie/internal/config"
	"ottie/internal/metrics"
)

// Sweeper re-enqueues preview jobs that fell out of the queue.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Runner is the scheduled safety net behind the worker: on every tick it
// sweeps for dropped jobs and, when enabled, runs retention cleanup.
type Runner struct {
	cfg     *config.Config
	sweeper Sweeper
	store   RetentionStore
	logger  *slog.Logger
}

// NewRunner constructs a Runner. store may be nil when retention is
// disabled.
func NewRunner(cfg *config.Config, sweeper Sweeper, st RetentionStore, logger *slog.Logger) *Runner {
	return &Runner{
		cfg:     cfg,
		sweeper: sweeper,
		store:   st,
		logger:  logger,
	}
}

func (r *Runner) logWarn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}

// Start runs the schedule in the current goroutine until ctx is done.
// Callers typically run this in its own goroutine.
func (r *Runner) Start(ctx context.Context) {
	pollInterval := time.Duration(r.cfg.Worker.PollIntervalMs) * time.Millisecond
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var lastCleanup time.Time
	cleanupInterval := time.Duration(r.cfg.Retention.CleanupIntervalMinutes) * time.Minute
	if cleanupInterval <= 0 {
		cleanupInterval = time.Hour
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if r.cfg.Retention.Enabled && r.store != nil {
			now := time.Now().UTC()
			if lastCleanup.IsZero() || now.Sub(lastCleanup) >= cleanupInterval {
				r.Cleanup(ctx)
				lastCleanup = now
			}
		}

		r.Tick(ctx)
	}
}

// Cleanup runs one retention pass.
func (r *Runner) Cleanup(ctx context.Context) {
	if r.store == nil {
		return
	}
	stats, err := CleanupExpiredData(ctx, r.cfg, r.store)
	if err != nil {
		r.logWarn("retention_failed", "error", err)
		return
	}
	if stats.PreviewsDeleted > 0 && r.logger != nil {
		r.logger.Info("retention_completed", "previews_deleted", stats.PreviewsDeleted)
	}
}

// Tick runs a single sweep.
func (r *Runner) Tick(ctx context.Context) {
	if r.sweeper == nil {
		return
	}
	n, err := r.sweeper.Sweep(ctx)
	if err != nil {
		r.logWarn("sweep_failed", "error", err)
		return
	}
	if n > 0 {
		metrics.RecordSweepRequeued(n)
	}
}
