// Package composite combines the tier results into one score and recommendation.
package composite

import (
	"log/slog"
	"math"
	"sort"

	evalerrors "github.com/hrygo/verdict/internal/errors"
	"github.com/hrygo/verdict/plugin/ai/graph"
	"github.com/hrygo/verdict/plugin/ai/judge"
	"github.com/hrygo/verdict/plugin/ai/similarity"
	"github.com/hrygo/verdict/plugin/ai/trace"
)

// Metric names a composite input.
type Metric string

const (
	MetricTimeTaken           Metric = "time_taken"
	MetricTaskSuccess         Metric = "task_success"
	MetricOutputSimilarity    Metric = "output_similarity"
	MetricPlanningRationality Metric = "planning_rationality"
	MetricCoordinationQuality Metric = "coordination_quality"
	MetricToolEfficiency      Metric = "tool_efficiency"
)

// Metrics lists every metric in canonical order.
var Metrics = []Metric{
	MetricTimeTaken,
	MetricTaskSuccess,
	MetricOutputSimilarity,
	MetricPlanningRationality,
	MetricCoordinationQuality,
	MetricToolEfficiency,
}

// Recommendation is the categorical verdict.
type Recommendation string

const (
	RecommendAccept     Recommendation = "accept"
	RecommendWeakAccept Recommendation = "weak_accept"
	RecommendWeakReject Recommendation = "weak_reject"
	RecommendReject     Recommendation = "reject"
)

const weightTolerance = 1e-6

// Config holds composite weights and recommendation thresholds.
type Config struct {
	Weights map[Metric]float64 `mapstructure:"weights"`

	AcceptThreshold     float64 `mapstructure:"accept_threshold"`
	WeakAcceptThreshold float64 `mapstructure:"weak_accept_threshold"`
	WeakRejectThreshold float64 `mapstructure:"weak_reject_threshold"`
}

// DefaultConfig returns equal weights and the default thresholds.
func DefaultConfig() Config {
	weights := make(map[Metric]float64, len(Metrics))
	for _, m := range Metrics {
		weights[m] = 1.0 / float64(len(Metrics))
	}
	return Config{
		Weights:             weights,
		AcceptThreshold:     0.8,
		WeakAcceptThreshold: 0.6,
		WeakRejectThreshold: 0.4,
	}
}

// Result is the composite verdict.
type Result struct {
	Score          float64            `json:"composite_score"`
	Recommendation Recommendation     `json:"recommendation"`
	Contributions  map[Metric]float64 `json:"metric_contributions"`
	Weights        map[Metric]float64 `json:"weights_used"`
	Values         map[Metric]float64 `json:"metric_values"`

	SingleAgentMode    bool     `json:"single_agent_mode"`
	EvaluationComplete bool     `json:"evaluation_complete"`
	ExcludedMetrics    []Metric `json:"excluded_metrics,omitempty"`
}

// ToMap flattens the result for tabular export.
func (r *Result) ToMap() map[string]any {
	m := map[string]any{
		"composite_score":     r.Score,
		"recommendation":      string(r.Recommendation),
		"single_agent_mode":   r.SingleAgentMode,
		"evaluation_complete": r.EvaluationComplete,
	}
	for _, metric := range Metrics {
		if v, ok := r.Values[metric]; ok {
			m[string(metric)] = v
		}
		if w, ok := r.Weights[metric]; ok {
			m["weight_"+string(metric)] = w
		}
		if c, ok := r.Contributions[metric]; ok {
			m["contribution_"+string(metric)] = c
		}
	}
	excluded := make([]string, 0, len(r.ExcludedMetrics))
	for _, metric := range r.ExcludedMetrics {
		excluded = append(excluded, string(metric))
	}
	m["excluded_metrics"] = excluded
	return m
}

// Scorer computes composite results. It holds no mutable state.
type Scorer struct {
	config Config
}

// NewScorer creates a scorer. Missing weights default to the canonical ones
// and the weights are normalized to sum to 1.
func NewScorer(config Config) *Scorer {
	defaults := DefaultConfig()
	weights := make(map[Metric]float64, len(Metrics))
	var total float64
	for _, m := range Metrics {
		w, ok := config.Weights[m]
		if !ok || w < 0 {
			w = defaults.Weights[m]
		}
		weights[m] = w
		total += w
	}
	if total <= 0 {
		weights = defaults.Weights
		total = 1
	}
	for m := range weights {
		weights[m] /= total
	}
	config.Weights = weights

	if config.AcceptThreshold == 0 && config.WeakAcceptThreshold == 0 && config.WeakRejectThreshold == 0 {
		config.AcceptThreshold = defaults.AcceptThreshold
		config.WeakAcceptThreshold = defaults.WeakAcceptThreshold
		config.WeakRejectThreshold = defaults.WeakRejectThreshold
	}
	return &Scorer{config: config}
}

// Config returns the effective configuration.
func (s *Scorer) Config() Config {
	return s.config
}

// Calculate scores with every tier present. A missing tier is an error.
func (s *Scorer) Calculate(t1 *similarity.Result, t2 *judge.Result, t3 *graph.Result) (*Result, error) {
	var missing []string
	if t1 == nil {
		missing = append(missing, "tier1")
	}
	if t2 == nil {
		missing = append(missing, "tier2")
	}
	if t3 == nil {
		missing = append(missing, "tier3")
	}
	if len(missing) > 0 {
		return nil, evalerrors.PartialResult(missing)
	}

	values := extractValues(t1, t2, t3)
	return s.score(values, s.config.Weights, nil, false), nil
}

// CalculateWithRedistribution scores whatever tiers are present. Metrics of a
// missing tier, and coordination in a single agent execution, are excluded
// and their weight is spread evenly over the remaining metrics.
func (s *Scorer) CalculateWithRedistribution(t1 *similarity.Result, t2 *judge.Result, t3 *graph.Result, t *trace.NormalizedTrace) *Result {
	values := extractValues(t1, t2, t3)

	singleAgent := IsSingleAgent(t)
	var excluded []Metric
	for _, m := range Metrics {
		_, ok := values[m]
		switch {
		case !ok:
			excluded = append(excluded, m)
		case m == MetricCoordinationQuality && singleAgent:
			delete(values, m)
			excluded = append(excluded, m)
		}
	}

	if len(values) == 0 {
		slog.Warn("no metrics available for composite score, rejecting")
		zeros := make(map[Metric]float64, len(Metrics))
		for _, m := range Metrics {
			zeros[m] = 0
		}
		result := s.score(zeros, s.config.Weights, excluded, singleAgent)
		result.EvaluationComplete = false
		return result
	}

	return s.score(values, RedistributeWeights(s.config.Weights, excluded), excluded, singleAgent)
}

// RedistributeWeights removes excluded metrics, spreads their weight evenly
// over the rest and renormalizes to 1.
func RedistributeWeights(weights map[Metric]float64, excluded []Metric) map[Metric]float64 {
	skip := make(map[Metric]bool, len(excluded))
	var freed float64
	for _, m := range excluded {
		if !skip[m] {
			skip[m] = true
			freed += weights[m]
		}
	}

	var kept []Metric
	for _, m := range Metrics {
		if !skip[m] {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 {
		return map[Metric]float64{}
	}

	out := make(map[Metric]float64, len(kept))
	share := freed / float64(len(kept))
	var total float64
	for _, m := range kept {
		out[m] = weights[m] + share
		total += out[m]
	}
	if total > 0 {
		for m := range out {
			out[m] /= total
		}
	}
	return out
}

// IsSingleAgent reports whether t shows no coordination events and at most one
// tool calling agent. A missing trace is not single agent.
func IsSingleAgent(t *trace.NormalizedTrace) bool {
	if t == nil {
		return false
	}
	return len(t.Coordination) == 0 && len(t.ToolCallingAgents()) <= 1
}

// Recommend maps a score to a recommendation. Ties go to the higher category.
func (s *Scorer) Recommend(score float64) Recommendation {
	switch {
	case score >= s.config.AcceptThreshold:
		return RecommendAccept
	case score >= s.config.WeakAcceptThreshold:
		return RecommendWeakAccept
	case score >= s.config.WeakRejectThreshold:
		return RecommendWeakReject
	default:
		return RecommendReject
	}
}

func (s *Scorer) score(values, weights map[Metric]float64, excluded []Metric, singleAgent bool) *Result {
	result := &Result{
		Contributions:      make(map[Metric]float64, len(weights)),
		Weights:            make(map[Metric]float64, len(weights)),
		Values:             make(map[Metric]float64, len(values)),
		SingleAgentMode:    singleAgent,
		EvaluationComplete: len(excluded) == 0,
		ExcludedMetrics:    excluded,
	}

	var total float64
	for _, m := range Metrics {
		w, ok := weights[m]
		if !ok {
			continue
		}
		v := clampMetric(m, values[m])
		result.Weights[m] = w
		result.Values[m] = v
		result.Contributions[m] = w * v
		total += w * v
	}

	if sum := sumWeights(result.Weights); math.Abs(sum-1) > weightTolerance {
		slog.Error("composite weights do not sum to one", "sum", sum)
	}

	result.Score = math.Min(1, math.Max(0, total))
	result.Recommendation = s.Recommend(result.Score)
	return result
}

func extractValues(t1 *similarity.Result, t2 *judge.Result, t3 *graph.Result) map[Metric]float64 {
	values := make(map[Metric]float64, len(Metrics))
	if t1 != nil {
		values[MetricTimeTaken] = t1.TimeScore
		values[MetricTaskSuccess] = t1.TaskSuccess
		values[MetricOutputSimilarity] = t1.Similarity
	}
	if t2 != nil {
		values[MetricPlanningRationality] = t2.PlanningRationality
	}
	if t3 != nil {
		values[MetricCoordinationQuality] = t3.CoordinationCentrality
		values[MetricToolEfficiency] = t3.ToolSelectionAccuracy
	}
	return values
}

func clampMetric(m Metric, v float64) float64 {
	if v >= 0 && v <= 1 {
		return v
	}
	clamped := 0.0
	if v > 1 {
		clamped = 1
	}
	slog.Warn("metric value out of range, clamping", "metric", m, "value", v, "clamped", clamped)
	return clamped
}

func sumWeights(weights map[Metric]float64) float64 {
	keys := make([]string, 0, len(weights))
	for m := range weights {
		keys = append(keys, string(m))
	}
	sort.Strings(keys)
	var sum float64
	for _, k := range keys {
		sum += weights[Metric(k)]
	}
	return sum
}
