package similarity

import (
	"context"
	"log/slog"
	"math"
	"time"
)

// successTolerance absorbs rounding in the blended similarity so that a
// perfect match meets a threshold of 1.0.
const successTolerance = 1e-9

// Embedder produces a dense vector for a text.
// ai.EmbeddingService satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config holds the tier 1 weights and thresholds.
type Config struct {
	CosineWeight   float64 `mapstructure:"cosine_weight"`
	JaccardWeight  float64 `mapstructure:"jaccard_weight"`
	SemanticWeight float64 `mapstructure:"semantic_weight"`

	SuccessThreshold float64 `mapstructure:"success_threshold"`

	// TimeConstant is k in min(1, k / seconds).
	TimeConstant float64       `mapstructure:"time_constant"`
	MinDuration  time.Duration `mapstructure:"min_duration"`

	SimilarityWeight float64 `mapstructure:"similarity_weight"`
	TimingWeight     float64 `mapstructure:"timing_weight"`
	SuccessWeight    float64 `mapstructure:"success_weight"`

	EnableEditDistance bool `mapstructure:"enable_edit_distance"`
}

// DefaultConfig returns the default tier 1 configuration.
func DefaultConfig() Config {
	return Config{
		CosineWeight:       0.3,
		JaccardWeight:      0.2,
		SemanticWeight:     0.5,
		SuccessThreshold:   0.7,
		TimeConstant:       1.0,
		MinDuration:        time.Millisecond,
		SimilarityWeight:   0.5,
		TimingWeight:       0.2,
		SuccessWeight:      0.3,
		EnableEditDistance: true,
	}
}

// Result is the outcome of a tier 1 evaluation.
type Result struct {
	Cosine       float64 `json:"cosine_similarity"`
	Jaccard      float64 `json:"jaccard_similarity"`
	Semantic     float64 `json:"semantic_similarity"`
	EditDistance float64 `json:"edit_distance_similarity"`

	// Similarity is the blended score of the best matching reference.
	Similarity  float64 `json:"similarity"`
	TimeScore   float64 `json:"time_score"`
	TaskSuccess float64 `json:"task_success"`
	Overall     float64 `json:"overall_score"`

	// BestReference is -1 when no reference was given.
	BestReference  int  `json:"best_reference"`
	SemanticBacked bool `json:"semantic_backed"`
}

// Engine computes traditional text metrics. It is safe for concurrent use.
type Engine struct {
	config   Config
	embedder Embedder
}

// Option configures an Engine.
type Option func(*Engine)

// WithEmbedder enables embedding-based semantic similarity.
func WithEmbedder(embedder Embedder) Option {
	return func(e *Engine) {
		e.embedder = embedder
	}
}

// NewEngine creates a tier 1 engine.
func NewEngine(config Config, opts ...Option) *Engine {
	e := &Engine{config: config}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Evaluate scores output against references and the execution duration.
// An empty reference list yields zero similarity and success.
func (e *Engine) Evaluate(ctx context.Context, output string, references []string, duration time.Duration) (*Result, error) {
	result := &Result{
		BestReference: -1,
		TimeScore:     e.TimeScore(duration),
	}

	if len(references) > 0 {
		outputTokens := Tokenize(output)
		var outputVec []float32
		if e.embedder != nil {
			vec, err := e.embedder.Embed(ctx, output)
			if err != nil {
				slog.Warn("output embedding failed, using cosine for semantic similarity", "error", err)
			} else {
				outputVec = vec
			}
		}

		best := -1.0
		for i, reference := range references {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			m := e.match(ctx, outputTokens, outputVec, reference)
			blend := e.blend(m)
			if blend > best {
				best = blend
				result.BestReference = i
				result.Cosine = m.cosine
				result.Jaccard = m.jaccard
				result.Semantic = m.semantic
				result.EditDistance = m.edit
				result.SemanticBacked = m.semanticBacked
				result.Similarity = blend
			}
		}
		if result.Similarity >= e.config.SuccessThreshold-successTolerance {
			result.TaskSuccess = 1
		}
	}

	result.Overall = clamp01(e.config.SimilarityWeight*result.Similarity +
		e.config.TimingWeight*result.TimeScore +
		e.config.SuccessWeight*result.TaskSuccess)
	return result, nil
}

type match struct {
	cosine, jaccard, semantic, edit float64
	semanticBacked                  bool
}

func (e *Engine) match(ctx context.Context, outputTokens []string, outputVec []float32, reference string) match {
	refTokens := Tokenize(reference)
	m := match{
		cosine:  TermCosine(outputTokens, refTokens),
		jaccard: JaccardSimilarity(outputTokens, refTokens),
	}
	m.semantic = m.cosine
	if e.config.EnableEditDistance {
		m.edit = EditSimilarity(outputTokens, refTokens)
	}
	if outputVec != nil {
		refVec, err := e.embedder.Embed(ctx, reference)
		if err != nil {
			slog.Warn("reference embedding failed, using cosine for semantic similarity", "error", err)
		} else if len(refVec) == len(outputVec) {
			m.semantic = CosineSimilarity(outputVec, refVec)
			m.semanticBacked = true
		}
	}
	return m
}

func (e *Engine) blend(m match) float64 {
	total := e.config.CosineWeight + e.config.JaccardWeight + e.config.SemanticWeight
	if total <= 0 {
		return 0
	}
	return clamp01((e.config.CosineWeight*m.cosine +
		e.config.JaccardWeight*m.jaccard +
		e.config.SemanticWeight*m.semantic) / total)
}

// TimeScore maps an execution duration to (0, 1]; faster is better.
func (e *Engine) TimeScore(duration time.Duration) float64 {
	minSeconds := e.config.MinDuration.Seconds()
	if minSeconds <= 0 {
		minSeconds = 0.001
	}
	seconds := math.Max(duration.Seconds(), minSeconds)
	return math.Min(1, e.config.TimeConstant/seconds)
}

// SemanticSimilarity compares two texts with the embedder when one is
// configured and falls back to term cosine otherwise.
func (e *Engine) SemanticSimilarity(ctx context.Context, a, b string) float64 {
	if e.embedder != nil {
		vecA, errA := e.embedder.Embed(ctx, a)
		vecB, errB := e.embedder.Embed(ctx, b)
		if errA == nil && errB == nil && len(vecA) == len(vecB) && len(vecA) > 0 {
			return CosineSimilarity(vecA, vecB)
		}
		slog.Debug("semantic similarity falling back to term cosine", "error_a", errA, "error_b", errB)
	}
	return TermCosine(Tokenize(a), Tokenize(b))
}
