package sync

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Runner periodically triggers a full refresh so a long-running process keeps
// the cache warm without user interaction.
type Runner struct {
	coordinator *Coordinator
	interval    time.Duration
	logger      *slog.Logger
}

// NewRunner builds a Runner. Interval must be positive.
func NewRunner(coordinator *Coordinator, interval time.Duration, logger *slog.Logger) *Runner {
	return &Runner{
		coordinator: coordinator,
		interval:    interval,
		logger:      logger,
	}
}

// Run performs an initial full refresh and then refreshes on every tick
// until ctx is canceled. Ticks are jittered by up to 10% of the interval so
// multiple deployments do not hammer the remote store in lockstep. A failed
// refresh is logged and retried on the next tick; prior cache state stays
// visible in between.
func (r *Runner) Run(ctx context.Context) {
	l := r.logger.With(slog.String("component", "sync-runner"))

	if err := r.coordinator.RefreshAll(ctx); err != nil {
		l.ErrorContext(ctx, "initial refresh failed", slog.Any("error", err))
	}

	for {
		jitter := time.Duration(rand.Int64N(int64(r.interval) / 10))
		select {
		case <-ctx.Done():
			l.InfoContext(ctx, "sync runner stopping")
			return
		case <-time.After(r.interval + jitter):
			if err := r.coordinator.RefreshAll(ctx); err != nil {
				l.ErrorContext(ctx, "scheduled refresh failed", slog.Any("error", err))
			}
		}
	}
}
