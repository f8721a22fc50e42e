package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultRetention is how long hourly buckets are kept in memory.
const DefaultRetention = 24 * time.Hour

// Service implements the MetricsService interface over an in-memory Aggregator.
type Service struct {
	aggregator *Aggregator
	retention  time.Duration

	pruneMu   sync.Mutex
	lastPrune time.Time
}

// NewService creates a new metrics service keeping retention worth of buckets.
func NewService(retention time.Duration) *Service {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Service{
		aggregator: NewAggregator(),
		retention:  retention,
	}
}

// RecordTier records a tier run.
func (s *Service) RecordTier(_ context.Context, tier Tier, latency time.Duration, outcome Outcome) {
	s.aggregator.RecordTier(tier, latency, outcome)
}

// RecordEvaluation records a finished pipeline run and prunes expired buckets.
func (s *Service) RecordEvaluation(_ context.Context, recommendation string, score float64, latency time.Duration) {
	s.aggregator.RecordEvaluation(recommendation, score, latency)
	s.prune()
}

// GetStats retrieves aggregated statistics for the given time range.
func (s *Service) GetStats(_ context.Context, timeRange TimeRange) (*EvaluationMetrics, error) {
	return s.aggregator.Stats(timeRange), nil
}

// prune runs at most once per hour.
func (s *Service) prune() {
	s.pruneMu.Lock()
	defer s.pruneMu.Unlock()

	now := s.aggregator.now()
	hour := truncateToHour(now)
	if !s.lastPrune.Before(hour) {
		return
	}
	s.lastPrune = hour
	if dropped := s.aggregator.Prune(truncateToHour(now.Add(-s.retention))); dropped > 0 {
		slog.Debug("pruned expired metric buckets", "count", dropped)
	}
}
