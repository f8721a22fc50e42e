package metrics

import (
	"context"
	"sync"
	"time"
)

// MockMetricsService is a mock implementation of MetricsService for testing.
type MockMetricsService struct {
	mu          sync.RWMutex
	tiers       []TierRecord
	evaluations []EvaluationRecord
}

// TierRecord is one RecordTier call.
type TierRecord struct {
	Tier      Tier
	Latency   time.Duration
	Outcome   Outcome
	Timestamp time.Time
}

// EvaluationRecord is one RecordEvaluation call.
type EvaluationRecord struct {
	Recommendation string
	Score          float64
	Latency        time.Duration
	Timestamp      time.Time
}

// NewMockMetricsService creates a new MockMetricsService.
func NewMockMetricsService() *MockMetricsService {
	return &MockMetricsService{}
}

// RecordTier records a tier run.
func (m *MockMetricsService) RecordTier(_ context.Context, tier Tier, latency time.Duration, outcome Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tiers = append(m.tiers, TierRecord{
		Tier:      tier,
		Latency:   latency,
		Outcome:   outcome,
		Timestamp: time.Now(),
	})
}

// RecordEvaluation records a finished pipeline run.
func (m *MockMetricsService) RecordEvaluation(_ context.Context, recommendation string, score float64, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.evaluations = append(m.evaluations, EvaluationRecord{
		Recommendation: recommendation,
		Score:          score,
		Latency:        latency,
		Timestamp:      time.Now(),
	})
}

// GetStats retrieves statistics data.
func (m *MockMetricsService) GetStats(_ context.Context, timeRange TimeRange) (*EvaluationMetrics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	metrics := &EvaluationMetrics{
		Recommendations: make(map[string]int64),
		TierStats:       make(map[Tier]*TierStat),
		OutcomesByTier:  make(map[Tier]OutcomeMix),
	}

	var scoreSum float64
	for _, e := range m.evaluations {
		if !timeRange.Contains(e.Timestamp) {
			continue
		}
		metrics.EvaluationCount++
		scoreSum += e.Score
		metrics.Recommendations[e.Recommendation]++
	}
	if metrics.EvaluationCount > 0 {
		metrics.AverageScore = scoreSum / float64(metrics.EvaluationCount)
	}

	for _, r := range m.tiers {
		if !timeRange.Contains(r.Timestamp) {
			continue
		}
		mix, ok := metrics.OutcomesByTier[r.Tier]
		if !ok {
			mix = make(OutcomeMix)
			metrics.OutcomesByTier[r.Tier] = mix
		}
		mix[r.Outcome]++
		stat, ok := metrics.TierStats[r.Tier]
		if !ok {
			stat = &TierStat{}
			metrics.TierStats[r.Tier] = stat
		}
		stat.Count++
	}

	return metrics, nil
}

// TierRecords returns a copy of the recorded tier runs.
func (m *MockMetricsService) TierRecords() []TierRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]TierRecord(nil), m.tiers...)
}

// EvaluationRecords returns a copy of the recorded evaluations.
func (m *MockMetricsService) EvaluationRecords() []EvaluationRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]EvaluationRecord(nil), m.evaluations...)
}

// Clear removes all recorded metrics (for testing).
func (m *MockMetricsService) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tiers = nil
	m.evaluations = nil
}

// Ensure MockMetricsService implements MetricsService
var _ MetricsService = (*MockMetricsService)(nil)
