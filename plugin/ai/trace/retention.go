package trace

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hrygo/verdict/store"
)

// Retention periodically removes finalized executions older than the retention period.
type Retention struct {
	store *store.Store

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	retentionPeriod time.Duration
	cleanupInterval time.Duration
}

// RetentionConfig configures trace retention.
type RetentionConfig struct {
	RetentionPeriod time.Duration // How long to keep traces (default: 30 days)
	CleanupInterval time.Duration // How often to run cleanup (default: 24 hours)
}

// DefaultRetentionConfig returns default retention configuration.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		RetentionPeriod: 30 * 24 * time.Hour,
		CleanupInterval: 24 * time.Hour,
	}
}

// NewRetention creates a new retention janitor.
func NewRetention(s *store.Store, cfg RetentionConfig) *Retention {
	defaults := DefaultRetentionConfig()
	if cfg.RetentionPeriod == 0 {
		cfg.RetentionPeriod = defaults.RetentionPeriod
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = defaults.CleanupInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Retention{
		store:           s,
		ctx:             ctx,
		cancel:          cancel,
		retentionPeriod: cfg.RetentionPeriod,
		cleanupInterval: cfg.CleanupInterval,
	}
}

// Start begins the background cleanup loop.
func (r *Retention) Start() {
	r.wg.Add(1)
	go r.cleanupLoop()
}

// Close stops the cleanup loop and waits for it to finish.
func (r *Retention) Close() {
	r.cancel()
	r.wg.Wait()
}

// Cleanup deletes executions created before now minus the retention period.
func (r *Retention) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-r.retentionPeriod)
	return r.store.DeleteExecutions(ctx, &store.DeleteExecution{BeforeTime: &cutoff})
}

func (r *Retention) cleanupLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			deleted, err := r.Cleanup(r.ctx)
			if err != nil {
				slog.Error("failed to clean up expired traces", "error", err)
				continue
			}
			if deleted > 0 {
				slog.Info("cleaned up expired traces", "deleted", deleted, "retention", r.retentionPeriod)
			}
		}
	}
}
