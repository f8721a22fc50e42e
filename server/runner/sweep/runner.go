// Package sweep runs periodic housekeeping for in-memory server state.
package sweep

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper drops state idle for longer than idle and reports how much was removed.
// *middleware.RateLimiter implements it.
type Sweeper interface {
	Sweep(idle time.Duration) int
}

type Runner struct {
	name     string
	sweeper  Sweeper
	interval time.Duration
	idle     time.Duration
}

// NewRunner creates a sweep runner. Non-positive durations default to
// a five minute interval and a ten minute idle window.
func NewRunner(name string, sweeper Sweeper, interval, idle time.Duration) *Runner {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &Runner{
		name:     name,
		sweeper:  sweeper,
		interval: interval,
		idle:     idle,
	}
}

// Run starts the background task and blocks until ctx is done.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.RunOnce(ctx)
		case <-ctx.Done():
			slog.Info("sweep runner stopped", "runner", r.name)
			return
		}
	}
}

// RunOnce sweeps once.
func (r *Runner) RunOnce(ctx context.Context) {
	if removed := r.sweeper.Sweep(r.idle); removed > 0 {
		slog.DebugContext(ctx, "swept idle entries", "runner", r.name, "removed", removed)
	}
}
