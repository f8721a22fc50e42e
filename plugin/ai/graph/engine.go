package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	evalerrors "github.com/hrygo/verdict/internal/errors"
	"github.com/hrygo/verdict/plugin/ai/trace"
)

// Engine evaluates the coordination structure of a trace.
type Engine struct {
	config Config
}

// NewEngine creates a graph engine. Zero config fields take their defaults.
func NewEngine(config Config) *Engine {
	defaults := DefaultConfig()
	if config.MaxNodes <= 0 {
		config.MaxNodes = defaults.MaxNodes
	}
	if config.MaxEdges <= 0 {
		config.MaxEdges = defaults.MaxEdges
	}
	if config.OperationTimeout <= 0 {
		config.OperationTimeout = defaults.OperationTimeout
	}
	if config.MinNodesForAnalysis <= 0 {
		config.MinNodesForAnalysis = defaults.MinNodesForAnalysis
	}
	return &Engine{config: config}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Validate checks the structural requirements of a trace.
func Validate(t *trace.NormalizedTrace) error {
	if t == nil {
		return evalerrors.Validation("trace is required")
	}
	if t.ExecutionID == "" {
		return evalerrors.Validation("execution id is required")
	}
	for i, interaction := range t.Interactions {
		if interaction.From == "" || interaction.To == "" {
			return evalerrors.Validation("interaction %d is missing from or to agent", i)
		}
	}
	for i, call := range t.ToolCalls {
		if call.AgentID == "" {
			return evalerrors.Validation("tool call %d is missing agent id", i)
		}
	}
	return nil
}

// Evaluate analyses t. Validation errors are returned; any other failure
// yields a zeroed, degraded result.
func (e *Engine) Evaluate(ctx context.Context, t *trace.NormalizedTrace) (*Result, error) {
	if err := Validate(t); err != nil {
		return nil, err
	}

	start := time.Now()
	logger := slog.With("execution_id", t.ExecutionID, "tier", 3)
	e.checkSize(logger, t)

	result, err := e.analyze(ctx, t)
	if err != nil {
		logger.Error("graph analysis failed, returning zero result", "error", err)
		return &Result{Degraded: true}, nil
	}

	logger.Debug("graph analysis complete",
		"overall", result.Overall,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (e *Engine) checkSize(logger *slog.Logger, t *trace.NormalizedTrace) {
	if size := len(t.Interactions) + len(t.ToolCalls); size > e.config.MaxNodes {
		logger.Warn("trace exceeds node ceiling, analysis may be slow",
			"size", size,
			"max_nodes", e.config.MaxNodes,
		)
	}
	if edges := projectedEdges(t); edges > e.config.MaxEdges {
		logger.Warn("trace exceeds edge ceiling, analysis may be slow",
			"edges", edges,
			"max_edges", e.config.MaxEdges,
		)
	}
}

func (e *Engine) analyze(ctx context.Context, t *trace.NormalizedTrace) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("panic in graph analysis: %v", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, evalerrors.ContextCanceled(err)
	}

	toolGraph, stats := BuildToolGraph(t)
	tools := ToolUsage(ctx, toolGraph, stats, e.config.MinNodesForAnalysis, e.config.OperationTimeout)
	if tools.TimedOut {
		slog.Warn("path convergence timed out, using fallback",
			"execution_id", t.ExecutionID,
			"fallback", ConvergenceTimeoutLoss,
			"budget", e.config.OperationTimeout,
		)
	}

	agentGraph := BuildAgentGraph(t)
	agents := AgentInteraction(ctx, agentGraph, e.config.MinNodesForAnalysis, e.config.OperationTimeout)
	if agents.TimedOut {
		slog.Warn("coordination centrality timed out, using fallback",
			"execution_id", t.ExecutionID,
			"fallback", NeutralCentrality,
			"budget", e.config.OperationTimeout,
		)
	}

	balance := TaskDistribution(activity(t))

	return &Result{
		PathConvergence:         tools.PathConvergence,
		ToolSelectionAccuracy:   tools.ToolSelectionAccuracy,
		CoordinationCentrality:  agents.CoordinationCentrality,
		TaskDistributionBalance: balance,
		CommunicationOverhead:   agents.CommunicationOverhead,
		CommunicationEfficiency: agents.CommunicationEfficiency,
		Overall: clamp01(weightConvergence*tools.PathConvergence +
			weightAccuracy*tools.ToolSelectionAccuracy +
			weightCentrality*agents.CoordinationCentrality +
			weightBalance*balance),
		ToolGraphNodes:  toolGraph.NodeCount(),
		ToolGraphEdges:  toolGraph.EdgeCount(),
		AgentGraphNodes: agentGraph.NodeCount(),
		AgentGraphEdges: agentGraph.EdgeCount(),
	}, nil
}
