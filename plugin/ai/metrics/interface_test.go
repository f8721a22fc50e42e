package metrics

import (
	"context"
	"testing"
	"time"
)

// TestMetricsServiceContract runs the same checks against every implementation.
func TestMetricsServiceContract(t *testing.T) {
	implementations := map[string]func() MetricsService{
		"mock":    func() MetricsService { return NewMockMetricsService() },
		"service": func() MetricsService { return NewService(DefaultRetention) },
	}

	for name, newService := range implementations {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("RecordEvaluation_StoresData", func(t *testing.T) {
				svc := newService()
				svc.RecordEvaluation(ctx, "accept", 0.9, 100*time.Millisecond)
				svc.RecordEvaluation(ctx, "weak_reject", 0.5, 200*time.Millisecond)
				svc.RecordEvaluation(ctx, "accept", 0.85, 150*time.Millisecond)

				stats, err := svc.GetStats(ctx, TimeRange{})
				if err != nil {
					t.Fatalf("GetStats failed: %v", err)
				}
				if stats.EvaluationCount != 3 {
					t.Errorf("expected 3 evaluations, got %d", stats.EvaluationCount)
				}
				if stats.Recommendations["accept"] != 2 {
					t.Errorf("expected 2 accepts, got %d", stats.Recommendations["accept"])
				}
			})

			t.Run("RecordTier_StoresData", func(t *testing.T) {
				svc := newService()
				svc.RecordTier(ctx, TierSimilarity, 5*time.Millisecond, OutcomeOK)
				svc.RecordTier(ctx, TierJudge, 0, OutcomeSkipped)

				stats, err := svc.GetStats(ctx, TimeRange{})
				if err != nil {
					t.Fatalf("GetStats failed: %v", err)
				}
				if stats.OutcomesByTier[TierJudge][OutcomeSkipped] != 1 {
					t.Errorf("expected 1 skipped judge run, got %d", stats.OutcomesByTier[TierJudge][OutcomeSkipped])
				}
				if stats.TierStats[TierSimilarity] == nil || stats.TierStats[TierSimilarity].Count != 1 {
					t.Errorf("expected 1 similarity run")
				}
			})

			t.Run("GetStats_EmptyRange", func(t *testing.T) {
				svc := newService()
				svc.RecordEvaluation(ctx, "accept", 0.9, time.Millisecond)

				future := time.Now().Add(48 * time.Hour)
				stats, err := svc.GetStats(ctx, TimeRange{Start: future})
				if err != nil {
					t.Fatalf("GetStats failed: %v", err)
				}
				if stats.EvaluationCount != 0 {
					t.Errorf("expected 0 evaluations, got %d", stats.EvaluationCount)
				}
			})
		})
	}
}

func TestTimeRange_Contains(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	r := TimeRange{Start: base, End: base.Add(time.Hour)}

	if !r.Contains(base) {
		t.Error("start should be inclusive")
	}
	if r.Contains(base.Add(time.Hour)) {
		t.Error("end should be exclusive")
	}
	if !(TimeRange{}).Contains(base) {
		t.Error("open range should contain everything")
	}
}
