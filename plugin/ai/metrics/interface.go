// Package metrics provides operational statistics for the evaluation pipeline:
// per tier latency and outcome counts plus recommendation distribution.
package metrics

import (
	"context"
	"time"
)

// Tier names a pipeline stage.
type Tier string

const (
	TierSimilarity Tier = "tier1_similarity"
	TierJudge      Tier = "tier2_judge"
	TierGraph      Tier = "tier3_graph"
	TierComposite  Tier = "composite"
)

// Outcome classifies how a tier finished.
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeDegraded Outcome = "degraded" // a fallback value was used
	OutcomeFailed   Outcome = "failed"
	OutcomeSkipped  Outcome = "skipped"
)

// MetricsService defines the evaluation metrics service interface.
type MetricsService interface {
	// RecordTier records one tier run.
	RecordTier(ctx context.Context, tier Tier, latency time.Duration, outcome Outcome)

	// RecordEvaluation records a finished pipeline run.
	RecordEvaluation(ctx context.Context, recommendation string, score float64, latency time.Duration)

	// GetStats retrieves statistics data.
	GetStats(ctx context.Context, timeRange TimeRange) (*EvaluationMetrics, error)
}

// TimeRange represents a time range for querying metrics.
// A zero bound is open.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls in the range.
func (r TimeRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && !t.Before(r.End) {
		return false
	}
	return true
}

// EvaluationMetrics represents aggregated pipeline metrics.
type EvaluationMetrics struct {
	EvaluationCount int64               `json:"evaluation_count"`
	AverageScore    float64             `json:"average_score"`
	LatencyP50      time.Duration       `json:"latency_p50"`
	LatencyP95      time.Duration       `json:"latency_p95"`
	Recommendations map[string]int64    `json:"recommendations"`
	TierStats       map[Tier]*TierStat  `json:"tier_stats"`
	OutcomesByTier  map[Tier]OutcomeMix `json:"outcomes_by_tier"`
}

// TierStat represents statistics for a single tier.
type TierStat struct {
	Count       int64         `json:"count"`
	SuccessRate float32       `json:"success_rate"`
	AvgLatency  time.Duration `json:"avg_latency"`
	LatencyP95  time.Duration `json:"latency_p95"`
}

// OutcomeMix counts runs per outcome.
type OutcomeMix map[Outcome]int64
