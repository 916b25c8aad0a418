package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// RunLoop drives ticks on a fixed interval for deployments without an
// external cron. Each tick gets the given budget as its deadline. The loop
// stops when ctx is done.
func (o *Orchestrator) RunLoop(ctx context.Context, interval, budget time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("tick loop shutting down")
			return
		case <-ticker.C:
			tickCtx, cancel := context.WithTimeout(ctx, budget)
			if _, err := o.Tick(tickCtx); err != nil {
				slog.Error("scheduled tick failed", "error", err)
			}
			cancel()
		}
	}
}
