// Package evaluation runs the three evaluation tiers against one execution and
// folds their results into a composite verdict.
//
// Tier 1 (similarity), Tier 2 (quality judge) and Tier 3 (graph analysis) are
// dispatched concurrently. A tier that fails or is unavailable is dropped and
// its metrics are excluded by weight redistribution, unless strict mode is
// requested, in which case any missing tier fails the evaluation.
package evaluation

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"golang.org/x/sync/errgroup"

	evalerrors "github.com/hrygo/verdict/internal/errors"
	"github.com/hrygo/verdict/plugin/ai"
	"github.com/hrygo/verdict/plugin/ai/cache"
	"github.com/hrygo/verdict/plugin/ai/composite"
	"github.com/hrygo/verdict/plugin/ai/graph"
	"github.com/hrygo/verdict/plugin/ai/judge"
	"github.com/hrygo/verdict/plugin/ai/metrics"
	"github.com/hrygo/verdict/plugin/ai/similarity"
	"github.com/hrygo/verdict/plugin/ai/timeout"
	"github.com/hrygo/verdict/plugin/ai/trace"
	"github.com/hrygo/verdict/server/finops"
	"github.com/hrygo/verdict/server/internal/observability"
	"github.com/hrygo/verdict/store"
)

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 20

// ErrStoreNotConfigured is returned by read operations of a service without a store.
var ErrStoreNotConfigured = &evalerrors.EvalError{Code: evalerrors.ErrCodeInternal, Message: "evaluation store not configured"}

// Config aggregates the per-tier engine configurations.
type Config struct {
	Similarity similarity.Config `mapstructure:"similarity"`
	Judge      judge.Config      `mapstructure:"judge"`
	Graph      graph.Config      `mapstructure:"graph"`
	Composite  composite.Config  `mapstructure:"composite"`
	// EmbeddingCache bounds the memoized embeddings used by Tier 1.
	EmbeddingCache cache.EmbeddingConfig `mapstructure:"embedding_cache"`

	// Strict makes every evaluation require all three tiers.
	Strict bool `mapstructure:"strict"`
	// Timeout bounds a whole evaluation. Zero means timeout.EvaluationTimeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// DailyJudgeBudget skips Tier 2 once the judge spend of the last day exceeds it. Zero disables the check.
	DailyJudgeBudget float64 `mapstructure:"daily_judge_budget"`
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		Similarity: similarity.DefaultConfig(),
		Judge:      judge.DefaultConfig(),
		Graph:      graph.DefaultConfig(),
		Composite:  composite.DefaultConfig(),
		Timeout:    timeout.EvaluationTimeout,

		EmbeddingCache: cache.DefaultEmbeddingConfig(),
	}
}

// Request is one evaluation input.
type Request struct {
	ExecutionID string
	Output      string
	// References are candidate reference answers; the best match is scored.
	References []string
	// Trace is optional. Without it Tier 3 is skipped.
	Trace *trace.NormalizedTrace

	// StartTime and EndTime give the wall-clock span of the task. When both are
	// zero the trace timing is used.
	StartTime time.Time
	EndTime   time.Time

	// Strict requires all tiers for this request regardless of Config.Strict.
	Strict bool
}

// Report is the stored outcome of an evaluation.
type Report struct {
	UID            string             `json:"uid,omitempty"`
	ExecutionID    string             `json:"execution_id"`
	Composite      *composite.Result  `json:"composite"`
	Similarity     *similarity.Result `json:"tier1,omitempty"`
	Judge          *judge.Result      `json:"tier2,omitempty"`
	Graph          *graph.Result      `json:"tier3,omitempty"`
	JudgeSelection judge.Selection    `json:"judge_selection"`
	Strict         bool               `json:"strict"`
	DurationMs     int64              `json:"duration_ms"`
	CreatedAt      time.Time          `json:"created_at"`
}

// SimilarityEvaluator is Tier 1. *similarity.Engine implements it.
type SimilarityEvaluator interface {
	Evaluate(ctx context.Context, output string, references []string, duration time.Duration) (*similarity.Result, error)
}

// QualityJudge is Tier 2. *judge.Engine implements it.
type QualityJudge interface {
	IsAvailable() bool
	Selection() judge.Selection
	Assess(ctx context.Context, in judge.Input) (*judge.Result, error)
}

// GraphAnalyzer is Tier 3. *graph.Engine implements it.
type GraphAnalyzer interface {
	Evaluate(ctx context.Context, t *trace.NormalizedTrace) (*graph.Result, error)
}

// Store is the subset of store operations the pipeline needs.
type Store interface {
	CreateEvaluation(ctx context.Context, create *store.Evaluation) (*store.Evaluation, error)
	ListEvaluations(ctx context.Context, find *store.FindEvaluation) ([]*store.Evaluation, error)
}

// Service runs evaluations. It is safe for concurrent use.
type Service struct {
	config Config
	store  Store

	similarity SimilarityEvaluator
	judge      QualityJudge
	graph      GraphAnalyzer
	scorer     *composite.Scorer

	metrics    metrics.MetricsService
	costs      *finops.CostMonitor
	embeddings *cache.EmbeddingCache
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithSimilarity replaces the Tier 1 engine.
func WithSimilarity(s SimilarityEvaluator) Option {
	return func(svc *Service) { svc.similarity = s }
}

// WithJudge replaces the Tier 2 engine.
func WithJudge(j QualityJudge) Option {
	return func(svc *Service) { svc.judge = j }
}

// WithGraph replaces the Tier 3 engine.
func WithGraph(g GraphAnalyzer) Option {
	return func(svc *Service) { svc.graph = g }
}

// WithMetrics sets the operational stats sink.
func WithMetrics(m metrics.MetricsService) Option {
	return func(svc *Service) { svc.metrics = m }
}

// WithCostMonitor sets the judge cost monitor.
func WithCostMonitor(m *finops.CostMonitor) Option {
	return func(svc *Service) { svc.costs = m }
}

// WithClock overrides the time source for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

// New builds the pipeline. Engines not supplied through options are built from
// config and aiCfg; a nil aiCfg leaves the judge unavailable and embeddings off.
// A nil st disables persistence.
func New(ctx context.Context, config Config, aiCfg *ai.Config, st Store, opts ...Option) *Service {
	if config.Timeout <= 0 {
		config.Timeout = timeout.EvaluationTimeout
	}
	s := &Service{
		config: config,
		store:  st,
		scorer: composite.NewScorer(config.Composite),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	var tier1 *similarity.Engine
	if s.similarity == nil || s.judge == nil {
		var simOpts []similarity.Option
		if aiCfg != nil && aiCfg.Embedding.Provider != "" {
			embedder, err := ai.NewEmbeddingService(ctx, &aiCfg.Embedding)
			if err != nil {
				slog.Warn("embedding service unavailable, semantic similarity falls back to term cosine",
					"provider", aiCfg.Embedding.Provider,
					"error", err,
				)
			} else {
				s.embeddings = cache.NewEmbeddingCache(embedder, config.EmbeddingCache)
				simOpts = append(simOpts, similarity.WithEmbedder(s.embeddings))
			}
		}
		tier1 = similarity.NewEngine(config.Similarity, simOpts...)
	}
	if s.similarity == nil {
		s.similarity = tier1
	}
	if s.judge == nil {
		var judgeCfg ai.JudgeConfig
		var creds ai.Credentials
		if aiCfg != nil {
			judgeCfg, creds = aiCfg.Judge, aiCfg.Credentials
		}
		s.judge = judge.NewEngine(ctx, config.Judge, judgeCfg, creds, tier1)
	}
	if s.graph == nil {
		s.graph = graph.NewEngine(config.Graph)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewService(metrics.DefaultRetention)
	}
	if s.costs == nil {
		s.costs = finops.NewCostMonitor(finops.WithDailyBudget(config.DailyJudgeBudget))
	}
	return s
}

// Metrics returns the operational stats sink.
func (s *Service) Metrics() metrics.MetricsService {
	return s.metrics
}

// Costs returns the judge cost monitor.
func (s *Service) Costs() *finops.CostMonitor {
	return s.costs
}

// EmbeddingCache returns the Tier 1 embedding cache, or nil when embeddings are off.
func (s *Service) EmbeddingCache() *cache.EmbeddingCache {
	return s.embeddings
}

// JudgeSelection returns the resolved Tier 2 provider.
func (s *Service) JudgeSelection() judge.Selection {
	return s.judge.Selection()
}

// Evaluate runs all tiers for req and returns the composite report.
//
// Validation errors are always returned. In strict mode a missing tier fails
// the evaluation with a PARTIAL_RESULT error; otherwise missing tiers are
// excluded and the remaining weights are redistributed.
func (s *Service) Evaluate(ctx context.Context, req *Request) (*Report, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	reqCtx := observability.FromContextOrNew(ctx, "evaluate", req.ExecutionID)
	if reqCtx.ExecutionID == "" {
		reqCtx.ExecutionID = req.ExecutionID
	}
	start := time.Now()
	strict := s.config.Strict || req.Strict

	runCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	var (
		t1 *similarity.Result
		t2 *judge.Result
		t3 *graph.Result
	)
	// Tier 1 hands its best reference to Tier 2 so both grade against the same text.
	bestReference := make(chan int, 1)
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		t1 = s.runSimilarity(gctx, reqCtx, req)
		best := 0
		if t1 != nil && t1.BestReference > 0 && t1.BestReference < len(req.References) {
			best = t1.BestReference
		}
		bestReference <- best
		return nil
	})
	g.Go(func() error {
		t2 = s.runJudge(gctx, reqCtx, req, bestReference)
		return nil
	})
	g.Go(func() error {
		var err error
		t3, err = s.runGraph(gctx, reqCtx, req)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, evalerrors.ContextCanceled(err)
	}

	var result *composite.Result
	if strict {
		var err error
		result, err = s.scorer.Calculate(t1, t2, t3)
		if err != nil {
			reqCtx.Error("strict evaluation incomplete", err,
				slog.String(observability.LogFieldErrorCode, string(evalerrors.GetCodeFromError(err, evalerrors.ErrCodeInternal))),
			)
			return nil, err
		}
	} else {
		result = s.scorer.CalculateWithRedistribution(t1, t2, t3, req.Trace)
	}

	elapsed := time.Since(start)
	s.metrics.RecordTier(ctx, metrics.TierComposite, elapsed, metrics.OutcomeOK)
	s.metrics.RecordEvaluation(ctx, string(result.Recommendation), result.Score, elapsed)

	report := &Report{
		ExecutionID:    req.ExecutionID,
		Composite:      result,
		Similarity:     t1,
		Judge:          t2,
		Graph:          t3,
		JudgeSelection: s.judge.Selection(),
		Strict:         strict,
		DurationMs:     elapsed.Milliseconds(),
		CreatedAt:      s.now(),
	}
	s.persist(ctx, reqCtx, report)

	reqCtx.Info("evaluation complete",
		slog.Float64(observability.LogFieldScore, result.Score),
		slog.String(observability.LogFieldRecommendation, string(result.Recommendation)),
		slog.Bool("evaluation_complete", result.EvaluationComplete),
		slog.Int64(observability.LogFieldDuration, report.DurationMs),
	)
	return report, nil
}

func validate(req *Request) error {
	if req == nil {
		return evalerrors.Validation("evaluation request is required")
	}
	if req.ExecutionID == "" {
		return evalerrors.Validation("execution id is required")
	}
	if !req.StartTime.IsZero() && !req.EndTime.IsZero() && req.EndTime.Before(req.StartTime) {
		return evalerrors.Validation("end time %s is before start time %s",
			req.EndTime.Format(time.RFC3339Nano), req.StartTime.Format(time.RFC3339Nano))
	}
	if req.Trace != nil {
		if req.Trace.ExecutionID != "" && req.Trace.ExecutionID != req.ExecutionID {
			return evalerrors.Validation("trace belongs to execution %q, not %q", req.Trace.ExecutionID, req.ExecutionID)
		}
		return graph.Validate(req.Trace)
	}
	return nil
}

// taskDuration prefers the explicit span and falls back to the trace timing.
func taskDuration(req *Request) time.Duration {
	if !req.StartTime.IsZero() && !req.EndTime.IsZero() {
		return req.EndTime.Sub(req.StartTime)
	}
	if req.Trace != nil {
		return req.Trace.Timing.Duration
	}
	return 0
}

func (s *Service) runSimilarity(ctx context.Context, reqCtx *observability.RequestContext, req *Request) *similarity.Result {
	start := time.Now()
	result, err := s.similarity.Evaluate(ctx, req.Output, req.References, taskDuration(req))
	if err != nil {
		s.tierFailed(ctx, reqCtx, metrics.TierSimilarity, start, err)
		return nil
	}
	s.metrics.RecordTier(ctx, metrics.TierSimilarity, time.Since(start), metrics.OutcomeOK)
	return result
}

// runJudge grades against the reference Tier 1 picked, or the first one when Tier 1 failed.
func (s *Service) runJudge(ctx context.Context, reqCtx *observability.RequestContext, req *Request, bestReference <-chan int) *judge.Result {
	if !s.judge.IsAvailable() {
		s.metrics.RecordTier(ctx, metrics.TierJudge, 0, metrics.OutcomeSkipped)
		reqCtx.Debug("judge unavailable, tier 2 skipped", slog.String(observability.LogFieldTier, string(metrics.TierJudge)))
		return nil
	}
	if s.costs.OverBudget() {
		s.metrics.RecordTier(ctx, metrics.TierJudge, 0, metrics.OutcomeSkipped)
		reqCtx.Warn("daily judge budget exceeded, tier 2 skipped", slog.String(observability.LogFieldTier, string(metrics.TierJudge)))
		return nil
	}

	reference := ""
	if len(req.References) > 0 {
		best := 0
		select {
		case best = <-bestReference:
		case <-ctx.Done():
		}
		reference = req.References[best]
	}
	start := time.Now()
	result, err := s.judge.Assess(ctx, judge.Input{Output: req.Output, Reference: reference, Trace: req.Trace})
	latency := time.Since(start)
	if err != nil {
		s.tierFailed(ctx, reqCtx, metrics.TierJudge, start, err)
		return nil
	}

	if result.Provider != "" {
		record := finops.CreateJudgeCostRecord(req.ExecutionID, result.Provider, result.Model,
			result.PromptTokens, result.CompletionTokens, result.EstimatedCost,
			latency.Milliseconds(), result.FallbackUsed)
		if err := s.costs.Record(ctx, record); err != nil {
			reqCtx.Warn("failed to record judge cost", slog.String("error", err.Error()))
		}
	}

	// No rubric answered by a provider: the tier produced nothing to score.
	if result.Confidence == 0 {
		s.metrics.RecordTier(ctx, metrics.TierJudge, latency, metrics.OutcomeFailed)
		reqCtx.Warn("no judge assessment succeeded, tier 2 dropped",
			slog.String(observability.LogFieldTier, string(metrics.TierJudge)),
			slog.Int64(observability.LogFieldDuration, latency.Milliseconds()),
		)
		return nil
	}

	outcome := metrics.OutcomeOK
	if result.FallbackUsed {
		outcome = metrics.OutcomeDegraded
	}
	s.metrics.RecordTier(ctx, metrics.TierJudge, latency, outcome)
	return result
}

// runGraph returns an error only for validation failures.
func (s *Service) runGraph(ctx context.Context, reqCtx *observability.RequestContext, req *Request) (*graph.Result, error) {
	if req.Trace == nil {
		s.metrics.RecordTier(ctx, metrics.TierGraph, 0, metrics.OutcomeSkipped)
		return nil, nil
	}

	start := time.Now()
	result, err := s.graph.Evaluate(ctx, req.Trace)
	if err != nil {
		if evalerrors.IsCode(err, evalerrors.ErrCodeValidation) {
			return nil, err
		}
		s.tierFailed(ctx, reqCtx, metrics.TierGraph, start, err)
		return nil, nil
	}
	if result.Degraded {
		s.metrics.RecordTier(ctx, metrics.TierGraph, time.Since(start), metrics.OutcomeFailed)
		reqCtx.Warn("graph analysis degraded, tier 3 dropped", slog.String(observability.LogFieldTier, string(metrics.TierGraph)))
		return nil, nil
	}
	s.metrics.RecordTier(ctx, metrics.TierGraph, time.Since(start), metrics.OutcomeOK)
	return result, nil
}

func (s *Service) tierFailed(ctx context.Context, reqCtx *observability.RequestContext, tier metrics.Tier, start time.Time, err error) {
	latency := time.Since(start)
	s.metrics.RecordTier(ctx, tier, latency, metrics.OutcomeFailed)
	reqCtx.Error("tier failed, excluding its metrics", err,
		slog.String(observability.LogFieldTier, string(tier)),
		slog.String(observability.LogFieldErrorCode, string(evalerrors.GetCodeFromError(err, evalerrors.ErrCodeInternal))),
		slog.Int64(observability.LogFieldDuration, latency.Milliseconds()),
	)
}

// persist stores the report. Failures are logged; the evaluation still succeeds.
func (s *Service) persist(ctx context.Context, reqCtx *observability.RequestContext, report *Report) {
	if s.store == nil {
		return
	}
	report.UID = shortuuid.New()
	body, err := json.Marshal(report)
	if err != nil {
		reqCtx.Error("failed to encode evaluation report", err)
		return
	}

	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout.StoreTimeout)
	defer cancel()
	_, err = s.store.CreateEvaluation(storeCtx, &store.Evaluation{
		UID:                report.UID,
		ExecutionID:        report.ExecutionID,
		CompositeScore:     report.Composite.Score,
		Recommendation:     string(report.Composite.Recommendation),
		EvaluationComplete: report.Composite.EvaluationComplete,
		SingleAgentMode:    report.Composite.SingleAgentMode,
		Result:             string(body),
		CreatedTs:          report.CreatedAt.Unix(),
	})
	if err != nil {
		reqCtx.Error("failed to persist evaluation", err)
		report.UID = ""
	}
}

// Latest returns the most recent stored report of an execution.
func (s *Service) Latest(ctx context.Context, executionID string) (*Report, error) {
	reports, err := s.List(ctx, executionID, 1)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, evalerrors.NotFound("evaluation", executionID)
	}
	return reports[0], nil
}

// List returns stored reports, most recent first. An empty executionID lists all executions.
func (s *Service) List(ctx context.Context, executionID string, limit int) ([]*Report, error) {
	if s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	find := &store.FindEvaluation{Limit: limit}
	if executionID != "" {
		find.ExecutionID = &executionID
	}
	rows, err := s.store.ListEvaluations(ctx, find)
	if err != nil {
		return nil, evalerrors.Wrap(err, evalerrors.ErrCodeInternal, "failed to list evaluations")
	}

	reports := make([]*Report, 0, len(rows))
	for _, row := range rows {
		report, err := decodeReport(row)
		if err != nil {
			slog.WarnContext(ctx, "skipping undecodable evaluation", "uid", row.UID, "error", err)
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func decodeReport(row *store.Evaluation) (*Report, error) {
	report := &Report{}
	if err := json.Unmarshal([]byte(row.Result), report); err != nil {
		return nil, err
	}
	report.UID = row.UID
	report.ExecutionID = row.ExecutionID
	if report.Composite == nil {
		report.Composite = &composite.Result{
			Score:              row.CompositeScore,
			Recommendation:     composite.Recommendation(row.Recommendation),
			EvaluationComplete: row.EvaluationComplete,
			SingleAgentMode:    row.SingleAgentMode,
		}
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Unix(row.CreatedTs, 0)
	}
	return report, nil
}
