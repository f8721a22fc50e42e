// Package timeout defines centralized timeout constants for evaluation operations.
// Package timeout 定义评估操作的集中式超时常量。
package timeout

import "time"

// Evaluation timeout constants.
// 评估超时常量。
const (
	// EvaluationTimeout bounds a whole pipeline run across all tiers.
	// EvaluationTimeout 是整个评估流水线的超时时间。
	EvaluationTimeout = 3 * time.Minute

	// JudgeRequestTimeout is the timeout for a single rubric request to a provider.
	// JudgeRequestTimeout 是单次评分请求的超时时间。
	JudgeRequestTimeout = 60 * time.Second

	// GraphOperationTimeout bounds a single graph analysis (path convergence, centrality).
	// GraphOperationTimeout 是单个图分析操作的超时时间。
	GraphOperationTimeout = 10 * time.Second

	// EmbeddingTimeout is the timeout for embedding generation.
	// EmbeddingTimeout 是向量生成的超时时间。
	EmbeddingTimeout = 30 * time.Second

	// StoreTimeout bounds trace persistence after an execution ends.
	// StoreTimeout 是追踪数据持久化的超时时间。
	StoreTimeout = 15 * time.Second

	// ExecutionIdleTimeout is how long an open execution may go without events before it is discarded.
	// ExecutionIdleTimeout 是未结束的执行在无事件时被丢弃前的最长空闲时间。
	ExecutionIdleTimeout = time.Hour

	// ShutdownTimeout is the grace period for the HTTP server to drain.
	// ShutdownTimeout 是 HTTP 服务关闭的宽限期。
	ShutdownTimeout = 10 * time.Second

	// MaxTruncateLength is the maximum length for truncating strings in logs.
	// MaxTruncateLength 是日志中字符串截断的最大长度。
	MaxTruncateLength = 200
)
