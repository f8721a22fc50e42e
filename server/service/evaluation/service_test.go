package evaluation

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	evalerrors "github.com/hrygo/verdict/internal/errors"
	"github.com/hrygo/verdict/plugin/ai/composite"
	"github.com/hrygo/verdict/plugin/ai/graph"
	"github.com/hrygo/verdict/plugin/ai/judge"
	"github.com/hrygo/verdict/plugin/ai/metrics"
	"github.com/hrygo/verdict/plugin/ai/similarity"
	"github.com/hrygo/verdict/plugin/ai/trace"
	"github.com/hrygo/verdict/server/finops"
	storetest "github.com/hrygo/verdict/store/test"
)

type fakeSimilarity struct {
	result   *similarity.Result
	err      error
	duration time.Duration
}

func (f *fakeSimilarity) Evaluate(_ context.Context, _ string, _ []string, d time.Duration) (*similarity.Result, error) {
	f.duration = d
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeJudge struct {
	available bool
	result    *judge.Result
	err       error
	calls     atomic.Int32
	input     judge.Input
}

func (f *fakeJudge) IsAvailable() bool { return f.available }

func (f *fakeJudge) Selection() judge.Selection {
	if !f.available {
		return judge.Unavailable
	}
	return judge.Selection{Provider: "openai", Model: "gpt-4o-mini", Source: judge.SourcePrimary, Available: true}
}

func (f *fakeJudge) Assess(_ context.Context, in judge.Input) (*judge.Result, error) {
	f.calls.Add(1)
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeGraph struct {
	result *graph.Result
	err    error
}

func (f *fakeGraph) Evaluate(_ context.Context, _ *trace.NormalizedTrace) (*graph.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func multiAgentTrace(id string) *trace.NormalizedTrace {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &trace.NormalizedTrace{
		ExecutionID: id,
		Interactions: []trace.Interaction{
			{From: "planner", To: "coder", Type: trace.InteractionDelegation, Timestamp: start},
			{From: "coder", To: "reviewer", Type: "message", Timestamp: start.Add(time.Second)},
		},
		ToolCalls: []trace.ToolCall{
			{AgentID: "coder", ToolName: "search", Success: true, Duration: 200 * time.Millisecond, Timestamp: start.Add(2 * time.Second)},
			{AgentID: "reviewer", ToolName: "lint", Success: false, Duration: 100 * time.Millisecond, Timestamp: start.Add(3 * time.Second)},
			{AgentID: "coder", ToolName: "write", Success: true, Duration: 300 * time.Millisecond, Timestamp: start.Add(4 * time.Second)},
		},
		Coordination: []trace.Coordination{
			{AgentID: "planner", Type: "plan", Participants: []string{"coder", "reviewer"}, Timestamp: start.Add(5 * time.Second)},
		},
		Timing: trace.Timing{Start: start, End: start.Add(4 * time.Second), Duration: 4 * time.Second},
	}
}

func healthyTiers() (*fakeSimilarity, *fakeJudge, *fakeGraph) {
	return &fakeSimilarity{result: &similarity.Result{TimeScore: 1, TaskSuccess: 1, Similarity: 0.9}},
		&fakeJudge{available: true, result: &judge.Result{
			PlanningRationality: 0.8,
			Confidence:          1,
			Provider:            "openai",
			Model:               "gpt-4o-mini",
			EstimatedCost:       0.002,
			PromptTokens:        900,
			CompletionTokens:    60,
		}},
		&fakeGraph{result: &graph.Result{CoordinationCentrality: 0.7, ToolSelectionAccuracy: 0.6}}
}

func newTestService(t *testing.T, sim SimilarityEvaluator, j QualityJudge, g GraphAnalyzer, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithSimilarity(sim), WithJudge(j), WithGraph(g)}, opts...)
	return New(context.Background(), DefaultConfig(), nil, nil, opts...)
}

func sumWeights(r *composite.Result) float64 {
	var total float64
	for _, w := range r.Weights {
		total += w
	}
	return total
}

func TestEvaluate_JudgeUsesBestReference(t *testing.T) {
	tests := []struct {
		name      string
		sim       *fakeSimilarity
		reference string
	}{
		{
			name:      "best match from tier 1",
			sim:       &fakeSimilarity{result: &similarity.Result{BestReference: 2, Similarity: 0.9}},
			reference: "third",
		},
		{
			name:      "tier 1 failed",
			sim:       &fakeSimilarity{err: errors.New("tokenizer exploded")},
			reference: "first",
		},
		{
			name:      "out of range index",
			sim:       &fakeSimilarity{result: &similarity.Result{BestReference: 7}},
			reference: "first",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, j, g := healthyTiers()
			svc := newTestService(t, tt.sim, j, g)

			_, err := svc.Evaluate(context.Background(), &Request{
				ExecutionID: "exec-ref",
				Output:      "answer",
				References:  []string{"first", "second", "third"},
			})
			require.NoError(t, err)
			assert.Equal(t, tt.reference, j.input.Reference)
		})
	}
}

func TestEvaluate_AllTiers(t *testing.T) {
	sim, j, g := healthyTiers()
	svc := newTestService(t, sim, j, g)

	report, err := svc.Evaluate(context.Background(), &Request{
		ExecutionID: "exec-1",
		Output:      "answer",
		References:  []string{"answer"},
		Trace:       multiAgentTrace("exec-1"),
	})
	require.NoError(t, err)

	assert.True(t, report.Composite.EvaluationComplete)
	assert.False(t, report.Composite.SingleAgentMode)
	assert.InDelta(t, 5.0/6.0, report.Composite.Score, 1e-9)
	assert.Equal(t, composite.RecommendAccept, report.Composite.Recommendation)
	assert.InDelta(t, 1.0, sumWeights(report.Composite), 1e-6)
	assert.Equal(t, 4*time.Second, sim.duration, "trace timing is used without explicit span")
	assert.True(t, report.JudgeSelection.Available)
	assert.Empty(t, report.UID, "no store configured")
}

func TestEvaluate_ExplicitSpanOverridesTraceTiming(t *testing.T) {
	sim, j, g := healthyTiers()
	svc := newTestService(t, sim, j, g)

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	_, err := svc.Evaluate(context.Background(), &Request{
		ExecutionID: "exec-1",
		Trace:       multiAgentTrace("exec-1"),
		StartTime:   start,
		EndTime:     start.Add(1500 * time.Millisecond),
	})
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, sim.duration)
}

func TestEvaluate_JudgeUnavailable(t *testing.T) {
	// Real engines, no credentials: the judge resolves to unavailable.
	svc := New(context.Background(), DefaultConfig(), nil, nil)
	assert.False(t, svc.JudgeSelection().Available)

	report, err := svc.Evaluate(context.Background(), &Request{
		ExecutionID: "exec-d",
		Output:      "the cache is invalidated on write",
		References:  []string{"the cache is invalidated on every write"},
		Trace:       multiAgentTrace("exec-d"),
	})
	require.NoError(t, err)

	assert.Nil(t, report.Judge)
	assert.False(t, report.Composite.EvaluationComplete)
	assert.Contains(t, report.Composite.ExcludedMetrics, composite.MetricPlanningRationality)
	assert.NotContains(t, report.Composite.Weights, composite.MetricPlanningRationality)
	assert.Len(t, report.Composite.Weights, 5)
	assert.InDelta(t, 1.0, sumWeights(report.Composite), 1e-6)
}

func TestEvaluate_AllTiersFail(t *testing.T) {
	sim := &fakeSimilarity{err: errors.New("tokenizer exploded")}
	j := &fakeJudge{available: true, err: evalerrors.Timeout("judge timed out", context.DeadlineExceeded)}
	g := &fakeGraph{result: &graph.Result{Degraded: true}}

	t.Run("non-strict returns zero reject", func(t *testing.T) {
		svc := newTestService(t, sim, j, g)
		report, err := svc.Evaluate(context.Background(), &Request{ExecutionID: "exec-e", Trace: multiAgentTrace("exec-e")})
		require.NoError(t, err)

		assert.Zero(t, report.Composite.Score)
		assert.Equal(t, composite.RecommendReject, report.Composite.Recommendation)
		assert.False(t, report.Composite.EvaluationComplete)
		assert.Nil(t, report.Similarity)
		assert.Nil(t, report.Judge)
		assert.Nil(t, report.Graph)
	})

	t.Run("strict fails", func(t *testing.T) {
		svc := newTestService(t, sim, j, g)
		_, err := svc.Evaluate(context.Background(), &Request{ExecutionID: "exec-e", Trace: multiAgentTrace("exec-e"), Strict: true})
		require.Error(t, err)
		assert.True(t, evalerrors.IsCode(err, evalerrors.ErrCodePartialResult))
	})
}

func TestEvaluate_Strict(t *testing.T) {
	t.Run("all tiers present", func(t *testing.T) {
		sim, j, g := healthyTiers()
		cfg := DefaultConfig()
		cfg.Strict = true
		svc := New(context.Background(), cfg, nil, nil, WithSimilarity(sim), WithJudge(j), WithGraph(g))

		report, err := svc.Evaluate(context.Background(), &Request{ExecutionID: "exec-s", Trace: multiAgentTrace("exec-s")})
		require.NoError(t, err)
		assert.True(t, report.Strict)
		assert.True(t, report.Composite.EvaluationComplete)
	})

	t.Run("missing trace fails", func(t *testing.T) {
		sim, j, g := healthyTiers()
		svc := newTestService(t, sim, j, g)

		_, err := svc.Evaluate(context.Background(), &Request{ExecutionID: "exec-s", Strict: true})
		require.Error(t, err)
		assert.True(t, evalerrors.IsCode(err, evalerrors.ErrCodePartialResult))
	})
}

func TestEvaluate_SingleAgentTrace(t *testing.T) {
	sim, j, g := healthyTiers()
	svc := newTestService(t, sim, j, g)

	single := &trace.NormalizedTrace{
		ExecutionID: "exec-solo",
		ToolCalls: []trace.ToolCall{
			{AgentID: "solo", ToolName: "search", Success: true},
			{AgentID: "solo", ToolName: "write", Success: true},
		},
	}
	report, err := svc.Evaluate(context.Background(), &Request{ExecutionID: "exec-solo", Trace: single})
	require.NoError(t, err)

	assert.True(t, report.Composite.SingleAgentMode)
	assert.Equal(t, []composite.Metric{composite.MetricCoordinationQuality}, report.Composite.ExcludedMetrics)
	for _, w := range report.Composite.Weights {
		assert.InDelta(t, 0.2, w, 1e-9)
	}
}

func TestEvaluate_Validation(t *testing.T) {
	sim, j, g := healthyTiers()
	svc := newTestService(t, sim, j, g)
	start := time.Now()

	broken := multiAgentTrace("exec-v")
	broken.Interactions[0].To = ""

	tests := []struct {
		name string
		req  *Request
	}{
		{name: "nil request", req: nil},
		{name: "missing execution id", req: &Request{Output: "x"}},
		{name: "end before start", req: &Request{ExecutionID: "exec-v", StartTime: start, EndTime: start.Add(-time.Second)}},
		{name: "trace of another execution", req: &Request{ExecutionID: "exec-v", Trace: multiAgentTrace("exec-other")}},
		{name: "incomplete interaction", req: &Request{ExecutionID: "exec-v", Trace: broken}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Evaluate(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, evalerrors.IsCode(err, evalerrors.ErrCodeValidation), "got %v", err)
		})
	}
	assert.Zero(t, j.calls.Load(), "no tier runs on invalid input")
}

func TestEvaluate_GraphValidationFromAnalyzer(t *testing.T) {
	sim, j, _ := healthyTiers()
	g := &fakeGraph{err: evalerrors.Validation("tool call 0 is missing agent id")}
	svc := newTestService(t, sim, j, g)

	_, err := svc.Evaluate(context.Background(), &Request{ExecutionID: "exec-v", Trace: multiAgentTrace("exec-v")})
	require.Error(t, err)
	assert.True(t, evalerrors.IsCode(err, evalerrors.ErrCodeValidation))
}

func TestEvaluate_CanceledContext(t *testing.T) {
	sim, j, g := healthyTiers()
	svc := newTestService(t, sim, j, g)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Evaluate(ctx, &Request{ExecutionID: "exec-c", Trace: multiAgentTrace("exec-c")})
	require.Error(t, err)
	assert.True(t, evalerrors.IsCode(err, evalerrors.ErrCodeContextCanceled))
}

func TestEvaluate_JudgeWithoutAnswersIsDropped(t *testing.T) {
	sim, _, g := healthyTiers()
	j := &fakeJudge{available: true, result: &judge.Result{FallbackUsed: true, Confidence: 0}}
	mock := metrics.NewMockMetricsService()
	svc := newTestService(t, sim, j, g, WithMetrics(mock))

	report, err := svc.Evaluate(context.Background(), &Request{ExecutionID: "exec-f", Trace: multiAgentTrace("exec-f")})
	require.NoError(t, err)
	assert.Nil(t, report.Judge)
	assert.Contains(t, report.Composite.ExcludedMetrics, composite.MetricPlanningRationality)

	outcomes := map[metrics.Tier]metrics.Outcome{}
	for _, r := range mock.TierRecords() {
		outcomes[r.Tier] = r.Outcome
	}
	assert.Equal(t, metrics.OutcomeFailed, outcomes[metrics.TierJudge])
	assert.Equal(t, metrics.OutcomeOK, outcomes[metrics.TierSimilarity])
	assert.Equal(t, metrics.OutcomeOK, outcomes[metrics.TierGraph])
}

func TestEvaluate_RecordsMetricsAndCost(t *testing.T) {
	sim, j, g := healthyTiers()
	mock := metrics.NewMockMetricsService()
	costs := finops.NewCostMonitor()
	svc := newTestService(t, sim, j, g, WithMetrics(mock), WithCostMonitor(costs))

	_, err := svc.Evaluate(context.Background(), &Request{ExecutionID: "exec-m"})
	require.NoError(t, err)

	outcomes := map[metrics.Tier]metrics.Outcome{}
	for _, r := range mock.TierRecords() {
		outcomes[r.Tier] = r.Outcome
	}
	assert.Equal(t, metrics.OutcomeSkipped, outcomes[metrics.TierGraph], "no trace")
	assert.Equal(t, metrics.OutcomeOK, outcomes[metrics.TierJudge])
	assert.Equal(t, metrics.OutcomeOK, outcomes[metrics.TierComposite])
	require.Len(t, mock.EvaluationRecords(), 1)

	report, err := costs.GetCostReport(context.Background(), "daily")
	require.NoError(t, err)
	assert.InDelta(t, 0.002, report.TotalCost, 1e-12)
	require.Contains(t, report.ByProvider, "openai")
	assert.Equal(t, int64(1), report.ByProvider["openai"].CallCount)
}

func TestEvaluate_DailyBudgetSkipsJudge(t *testing.T) {
	sim, j, g := healthyTiers()
	j.result.EstimatedCost = 0.01
	costs := finops.NewCostMonitor(finops.WithDailyBudget(0.005))
	svc := newTestService(t, sim, j, g, WithCostMonitor(costs))

	first, err := svc.Evaluate(context.Background(), &Request{ExecutionID: "exec-b1", Trace: multiAgentTrace("exec-b1")})
	require.NoError(t, err)
	assert.NotNil(t, first.Judge)

	second, err := svc.Evaluate(context.Background(), &Request{ExecutionID: "exec-b2", Trace: multiAgentTrace("exec-b2")})
	require.NoError(t, err)
	assert.Nil(t, second.Judge)
	assert.Equal(t, int32(1), j.calls.Load())
}

func TestEvaluate_Persistence(t *testing.T) {
	ctx := context.Background()
	st := storetest.NewTestingStore(ctx, t)
	sim, j, g := healthyTiers()
	clock := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	svc := New(ctx, DefaultConfig(), nil, st,
		WithSimilarity(sim), WithJudge(j), WithGraph(g),
		WithClock(func() time.Time { return clock }),
	)

	report, err := svc.Evaluate(ctx, &Request{ExecutionID: "exec-p", Trace: multiAgentTrace("exec-p")})
	require.NoError(t, err)
	require.NotEmpty(t, report.UID)

	latest, err := svc.Latest(ctx, "exec-p")
	require.NoError(t, err)
	assert.Equal(t, report.UID, latest.UID)
	assert.InDelta(t, report.Composite.Score, latest.Composite.Score, 1e-12)
	assert.Equal(t, report.Composite.Recommendation, latest.Composite.Recommendation)
	assert.Equal(t, report.Composite.Weights, latest.Composite.Weights)
	require.NotNil(t, latest.Judge)
	assert.Equal(t, "openai", latest.Judge.Provider)
	assert.True(t, clock.Equal(latest.CreatedAt))

	all, err := svc.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = svc.Latest(ctx, "exec-unknown")
	require.Error(t, err)
	assert.True(t, evalerrors.IsCode(err, evalerrors.ErrCodeNotFound))
}

func TestList_WithoutStore(t *testing.T) {
	sim, j, g := healthyTiers()
	svc := newTestService(t, sim, j, g)

	_, err := svc.List(context.Background(), "exec-1", 10)
	assert.ErrorIs(t, err, ErrStoreNotConfigured)
}
