package v1

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/verdict/plugin/ai/metrics"
	"github.com/hrygo/verdict/server/finops"
)

// MetricsOverviewResponse represents the overview of evaluation activity.
type MetricsOverviewResponse struct {
	TotalEvaluations int64            `json:"total_evaluations"`
	AverageScore     float64          `json:"average_score"`
	P50LatencyMs     int64            `json:"p50_latency_ms"`
	P95LatencyMs     int64            `json:"p95_latency_ms"`
	Recommendations  map[string]int64 `json:"recommendations"`

	Tiers    map[metrics.Tier]*metrics.TierStat   `json:"tiers"`
	Outcomes map[metrics.Tier]metrics.OutcomeMix `json:"outcomes"`

	JudgeCost *finops.CostReport `json:"judge_cost,omitempty"`
	TimeRange string             `json:"time_range"`
}

// GetMetricsOverview returns the evaluation metrics overview.
// GET /api/v1/system/metrics/overview?range=24h
func (s *APIV1Service) GetMetricsOverview(c echo.Context) error {
	timeRange := c.QueryParam("range")
	if timeRange == "" {
		timeRange = "24h"
	}
	start, err := parseTimeRange(timeRange)
	if err != nil {
		slog.Warn("Invalid time range parameter in metrics request", "range", timeRange, "error", err)
		return badRequest(c, "invalid time range")
	}

	ctx := c.Request().Context()
	stats, err := s.Evaluation.Metrics().GetStats(ctx, metrics.TimeRange{Start: start})
	if err != nil {
		return writeError(c, err)
	}

	resp := MetricsOverviewResponse{
		TotalEvaluations: stats.EvaluationCount,
		AverageScore:     stats.AverageScore,
		P50LatencyMs:     stats.LatencyP50.Milliseconds(),
		P95LatencyMs:     stats.LatencyP95.Milliseconds(),
		Recommendations:  stats.Recommendations,
		Tiers:            stats.TierStats,
		Outcomes:         stats.OutcomesByTier,
		TimeRange:        timeRange,
	}
	if period, ok := costPeriods[timeRange]; ok {
		report, err := s.Evaluation.Costs().GetCostReport(ctx, period)
		if err != nil {
			slog.Warn("failed to build judge cost report", "period", period, "error", err)
		} else {
			resp.JudgeCost = report
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// costPeriods maps the time ranges the cost monitor can report on.
var costPeriods = map[string]string{
	"24h": "daily",
	"7d":  "weekly",
	"30d": "monthly",
}

// parseTimeRange parses time range string and returns the start time
func parseTimeRange(timeRange string) (time.Time, error) {
	now := time.Now()
	switch timeRange {
	case "1h":
		return now.Add(-1 * time.Hour), nil
	case "24h":
		return now.Add(-24 * time.Hour), nil
	case "7d":
		return now.Add(-7 * 24 * time.Hour), nil
	case "30d":
		return now.Add(-30 * 24 * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("invalid time range: %s (valid: 1h, 24h, 7d, 30d)", timeRange)
	}
}
