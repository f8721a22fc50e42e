// Package judge implements the quality judge tier: rubric scoring by an
// external chat provider with per-metric local fallbacks.
package judge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	evalerrors "github.com/hrygo/verdict/internal/errors"
	"github.com/hrygo/verdict/plugin/ai"
	"github.com/hrygo/verdict/plugin/ai/timeout"
	"github.com/hrygo/verdict/plugin/ai/trace"
)

// Config holds judge settings.
type Config struct {
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	MaxSummaryLength int           `mapstructure:"max_summary_length"`
	MaxOutputLength  int           `mapstructure:"max_output_length"`
	MaxTokens        int           `mapstructure:"max_tokens"`
	Temperature      float32       `mapstructure:"temperature"`

	// RequestsPerSecond paces provider calls; zero disables pacing.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`

	AccuracyWeight         float64 `mapstructure:"accuracy_weight"`
	ConstructivenessWeight float64 `mapstructure:"constructiveness_weight"`
	PlanningWeight         float64 `mapstructure:"planning_weight"`
}

// DefaultConfig returns the default judge configuration.
func DefaultConfig() Config {
	return Config{
		RequestTimeout:         timeout.JudgeRequestTimeout,
		MaxSummaryLength:       500,
		MaxOutputLength:        8000,
		MaxTokens:              200,
		Temperature:            0,
		RequestsPerSecond:      5,
		Burst:                  3,
		AccuracyWeight:         0.4,
		ConstructivenessWeight: 0.3,
		PlanningWeight:         0.3,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}
	if c.MaxSummaryLength <= 0 {
		c.MaxSummaryLength = defaults.MaxSummaryLength
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaults.MaxTokens
	}
	if c.AccuracyWeight+c.ConstructivenessWeight+c.PlanningWeight <= 0 {
		c.AccuracyWeight = defaults.AccuracyWeight
		c.ConstructivenessWeight = defaults.ConstructivenessWeight
		c.PlanningWeight = defaults.PlanningWeight
	}
	return c
}

// Result is the outcome of a tier 2 assessment.
type Result struct {
	TechnicalAccuracy   float64 `json:"technical_accuracy"`
	Constructiveness    float64 `json:"constructiveness"`
	PlanningRationality float64 `json:"planning_rationality"`
	Overall             float64 `json:"overall_score"`

	Provider      string  `json:"provider"`
	Model         string  `json:"model"`
	EstimatedCost float64 `json:"estimated_cost_usd"`
	// Confidence is the share of assessments a provider answered.
	Confidence   float64 `json:"confidence"`
	FallbackUsed bool    `json:"fallback_used"`
	FailoverUsed bool    `json:"failover_used,omitempty"`

	AccuracyFallback         bool `json:"accuracy_fallback,omitempty"`
	ConstructivenessFallback bool `json:"constructiveness_fallback,omitempty"`
	PlanningFallback         bool `json:"planning_fallback,omitempty"`

	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Input is what the judge grades.
type Input struct {
	Output    string
	Reference string
	Trace     *trace.NormalizedTrace
}

// SemanticScorer compares two texts; *similarity.Engine implements it.
type SemanticScorer interface {
	SemanticSimilarity(ctx context.Context, a, b string) float64
}

// ProviderFactory builds a chat provider. ai.NewChatProvider is the default.
type ProviderFactory func(ctx context.Context, provider, model string, cred ai.ProviderCredential) (ai.ChatProvider, error)

// Engine grades outputs with a chat provider. It is safe for concurrent use.
type Engine struct {
	config    Config
	selection Selection
	// providers holds the selected provider and at most one failover.
	providers []ai.ChatProvider
	semantic  SemanticScorer
	pricing   *ai.PricingConfig
	limiter   *rate.Limiter
	factory   ProviderFactory
}

// Option configures an Engine.
type Option func(*Engine)

// WithProviderFactory replaces ai.NewChatProvider.
func WithProviderFactory(factory ProviderFactory) Option {
	return func(e *Engine) {
		e.factory = factory
	}
}

// WithPricing sets the pricing table used for cost estimates.
func WithPricing(pricing *ai.PricingConfig) Option {
	return func(e *Engine) {
		e.pricing = pricing
	}
}

// NewEngine resolves the judge provider once. The returned engine may be
// unavailable; check IsAvailable before calling Assess.
func NewEngine(ctx context.Context, config Config, judge ai.JudgeConfig, creds ai.Credentials, semantic SemanticScorer, opts ...Option) *Engine {
	config = config.withDefaults()
	e := &Engine{
		config:    config,
		selection: Unavailable,
		semantic:  semantic,
		pricing:   ai.DefaultPricing(),
		factory:   ai.NewChatProvider,
	}
	for _, opt := range opts {
		opt(e)
	}
	if config.RequestsPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), max(config.Burst, 1))
	}

	for _, candidate := range resolveChain(judge, creds) {
		if len(e.providers) == 2 {
			break
		}
		provider, err := e.factory(ctx, candidate.Provider, candidate.Model, creds[candidate.Provider])
		if err != nil {
			slog.Warn("judge provider could not be created",
				"provider", candidate.Provider,
				"source", candidate.Source,
				"error", err,
			)
			continue
		}
		if len(e.providers) == 0 {
			e.selection = candidate
		}
		e.providers = append(e.providers, provider)
	}

	if !e.IsAvailable() {
		slog.Info("no judge provider available, quality judge tier disabled",
			"primary", judge.PrimaryProvider,
			"fallback", judge.FallbackProvider,
		)
	}
	return e
}

// IsAvailable reports whether a provider was resolved.
func (e *Engine) IsAvailable() bool {
	return len(e.providers) > 0
}

// Selection returns the resolved provider.
func (e *Engine) Selection() Selection {
	return e.selection
}

type assessment struct {
	score      float64
	fallback   bool
	failover   bool
	completion *ai.Completion
	provider   ai.ChatProvider
}

// Assess runs the three rubric assessments concurrently.
func (e *Engine) Assess(ctx context.Context, in Input) (*Result, error) {
	if !e.IsAvailable() {
		return nil, evalerrors.ProviderUnavailable("no judge provider is configured")
	}

	output := truncate(in.Output, e.config.MaxOutputLength)
	reference := truncate(in.Reference, e.config.MaxOutputLength)
	summary := SummarizeTrace(in.Trace, e.config.MaxSummaryLength)

	var accuracy, constructiveness, planning assessment
	var g errgroup.Group
	g.Go(func() error {
		accuracy = e.assess(ctx, accuracyRubric,
			fmt.Sprintf("Reference:\n%s\n\nAnswer:\n%s", reference, output),
			func() float64 { return e.semanticFallback(ctx, output, reference) })
		return nil
	})
	g.Go(func() error {
		constructiveness = e.assess(ctx, constructivenessRubric,
			fmt.Sprintf("Feedback:\n%s", output),
			func() float64 { return ConstructivenessHeuristic(output) })
		return nil
	})
	g.Go(func() error {
		planning = e.assess(ctx, planningRubric,
			fmt.Sprintf("Execution summary:\n%s\n\nFinal answer:\n%s", summary, output),
			func() float64 { return e.semanticFallback(ctx, output, reference) })
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, evalerrors.ContextCanceled(err)
	}

	result := &Result{
		Provider: e.selection.Provider,
		Model:    e.selection.Model,
	}
	all := []*assessment{&accuracy, &constructiveness, &planning}
	var answered int
	for _, a := range all {
		if a.fallback {
			continue
		}
		answered++
		result.FailoverUsed = result.FailoverUsed || a.failover
		result.PromptTokens += a.completion.PromptTokens
		result.CompletionTokens += a.completion.CompletionTokens
		result.EstimatedCost += e.pricing.EstimateCost(a.provider.Name(), a.provider.Model(),
			a.completion.PromptTokens, a.completion.CompletionTokens)
	}

	if answered == 0 {
		slog.Warn("all judge assessments failed, returning zero confidence fallback scores",
			"provider", e.selection.Provider,
			"model", e.selection.Model,
		)
	}

	result.TechnicalAccuracy = accuracy.score
	result.Constructiveness = constructiveness.score
	result.PlanningRationality = planning.score
	result.AccuracyFallback = accuracy.fallback
	result.ConstructivenessFallback = constructiveness.fallback
	result.PlanningFallback = planning.fallback
	result.FallbackUsed = answered < len(all)
	result.Confidence = float64(answered) / float64(len(all))
	result.Overall = clamp01(e.config.AccuracyWeight*result.TechnicalAccuracy +
		e.config.ConstructivenessWeight*result.Constructiveness +
		e.config.PlanningWeight*result.PlanningRationality)
	return result, nil
}

// assess asks the selected provider, then the failover provider once, and
// finally falls back to a local score.
func (e *Engine) assess(ctx context.Context, r rubric, prompt string, fallback func() float64) assessment {
	for i, provider := range e.providers {
		score, completion, err := e.complete(ctx, provider, r, prompt)
		if err == nil {
			return assessment{score: score, completion: completion, provider: provider, failover: i > 0}
		}
		slog.Warn("judge assessment failed",
			"metric", r.metric,
			"provider", provider.Name(),
			"model", provider.Model(),
			"error", err,
		)
		if ctx.Err() != nil {
			break
		}
	}
	return assessment{score: fallback(), fallback: true}
}

func (e *Engine) complete(ctx context.Context, provider ai.ChatProvider, r rubric, prompt string) (float64, *ai.Completion, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return 0, nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.RequestTimeout)
	defer cancel()

	start := time.Now()
	completion, err := provider.Complete(ctx, ai.CompletionRequest{
		SystemPrompt: r.system,
		UserPrompt:   prompt,
		MaxTokens:    e.config.MaxTokens,
		Temperature:  e.config.Temperature,
		JSONMode:     true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, evalerrors.Timeout(fmt.Sprintf("%s assessment timed out", r.metric), err)
		}
		return 0, nil, err
	}

	score, _, err := r.parseScores(completion.Content)
	if err != nil {
		return 0, nil, fmt.Errorf("parse %s response: %w", r.metric, err)
	}

	slog.Debug("judge assessment completed",
		"metric", r.metric,
		"provider", provider.Name(),
		"score", score,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return score, completion, nil
}

func (e *Engine) semanticFallback(ctx context.Context, a, b string) float64 {
	if e.semantic == nil || b == "" {
		return 0
	}
	return clamp01(e.semantic.SemanticSimilarity(ctx, a, b))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
