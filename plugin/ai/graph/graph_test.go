package graph

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	evalerrors "github.com/hrygo/verdict/internal/errors"
	"github.com/hrygo/verdict/plugin/ai/trace"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func toolCall(agent, tool string, success bool) trace.ToolCall {
	return trace.ToolCall{AgentID: agent, ToolName: tool, Success: success, Timestamp: t0}
}

func interaction(from, to, kind string) trace.Interaction {
	return trace.Interaction{From: from, To: to, Type: kind, Timestamp: t0}
}

func TestGraph_Edges(t *testing.T) {
	g := New(true)
	g.SetEdge("a", "b", 0.5)
	g.SetEdge("a", "b", 1.0)
	g.SetEdge("b", "a", 0.5)
	g.SetEdge("c", "c", 1.0)

	assert.Equal(t, []string{"a", "b", "c"}, g.Nodes())
	assert.Equal(t, 2, g.EdgeCount())
	w, ok := g.Weight("a", "b")
	require.True(t, ok)
	assert.Equal(t, 1.0, w)
	_, ok = g.Weight("c", "c")
	assert.False(t, ok)

	u := g.Undirected()
	assert.False(t, u.Directed())
	assert.Equal(t, 3, u.NodeCount())
	assert.Equal(t, 1, u.EdgeCount())
}

func TestToolUsage_DisconnectedTwoNodes(t *testing.T) {
	g := New(true)
	g.AddNode(AgentNodePrefix + "planner")
	g.AddNode(ToolNodePrefix + "search")
	stats := map[string]ToolStats{"search": {Calls: 2, Successes: 0}}

	result := ToolUsage(context.Background(), g, stats, 2, time.Second)

	assert.Equal(t, DisconnectedPenalty, result.PathConvergence)
	assert.Equal(t, 0.0, result.ToolSelectionAccuracy)
	assert.False(t, result.TimedOut)
}

func TestToolUsage_BelowMinimum(t *testing.T) {
	g := New(true)
	g.AddNode(AgentNodePrefix + "solo")

	result := ToolUsage(context.Background(), g, nil, 2, time.Second)

	assert.Equal(t, NeutralToolScore, result.PathConvergence)
	assert.Equal(t, NeutralToolScore, result.ToolSelectionAccuracy)
}

func TestToolUsage_Accuracy(t *testing.T) {
	tr := &trace.NormalizedTrace{
		ExecutionID: "exec",
		ToolCalls: []trace.ToolCall{
			toolCall("a", "search", true),
			toolCall("a", "search", false),
			toolCall("b", "write", true),
		},
	}
	g, stats := BuildToolGraph(tr)

	w, ok := g.Weight(AgentNodePrefix+"a", ToolNodePrefix+"search")
	require.True(t, ok)
	assert.Equal(t, WeightFailure, w, "latest call decides the edge weight")

	result := ToolUsage(context.Background(), g, stats, 2, time.Second)
	assert.InDelta(t, (0.5+1.0)/2, result.ToolSelectionAccuracy, 1e-9)
	// agent:a - tool:search and agent:b - tool:write are two components.
	assert.Equal(t, DisconnectedPenalty, result.PathConvergence)
}

func TestPathConvergence(t *testing.T) {
	tests := []struct {
		name     string
		edges    [][2]string
		expected float64
	}{
		{
			name:     "two connected nodes",
			edges:    [][2]string{{"a", "b"}},
			expected: 1.0,
		},
		{
			// avg shortest path = (1+1+2)*2/6 = 4/3, n = 3
			name:     "path of three",
			edges:    [][2]string{{"a", "b"}, {"b", "c"}},
			expected: 1 - (4.0/3.0-1)/1,
		},
		{
			name:     "triangle",
			edges:    [][2]string{{"a", "b"}, {"b", "c"}, {"c", "a"}},
			expected: 1.0,
		},
		{
			// avg shortest path on a 4-path = 20/12, n = 4
			name:     "path of four",
			edges:    [][2]string{{"a", "b"}, {"b", "c"}, {"c", "d"}},
			expected: 1 - (20.0/12.0-1)/2,
		},
		{
			name:     "two components",
			edges:    [][2]string{{"a", "b"}, {"c", "d"}},
			expected: DisconnectedPenalty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(true)
			for _, e := range tt.edges {
				g.SetEdge(e[0], e[1], 1)
			}
			got, err := PathConvergence(context.Background(), g)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 1e-9)
		})
	}
}

func TestPathConvergence_Timeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := New(true)
	for i := 0; i < 50; i++ {
		g.SetEdge(fmt.Sprintf("n%d", i), fmt.Sprintf("n%d", i+1), 1)
	}

	result := ToolUsage(context.Background(), g, map[string]ToolStats{"x": {Calls: 1, Successes: 1}}, 2, time.Nanosecond)

	assert.True(t, result.TimedOut)
	assert.Equal(t, ConvergenceTimeoutLoss, result.PathConvergence)
	assert.Equal(t, 1.0, result.ToolSelectionAccuracy)
}

func TestBetweenness(t *testing.T) {
	t.Run("directed star through hub", func(t *testing.T) {
		g := New(true)
		g.SetEdge("a", "hub", 1)
		g.SetEdge("b", "hub", 1)
		g.SetEdge("hub", "c", 1)
		g.SetEdge("hub", "d", 1)

		scores, err := Betweenness(context.Background(), g)
		require.NoError(t, err)
		// hub lies on a->c, a->d, b->c, b->d: 4 / (4*3)
		assert.InDelta(t, 4.0/12.0, scores[1], 1e-9)
		assert.Zero(t, scores[0])
	})

	t.Run("directed chain", func(t *testing.T) {
		g := New(true)
		g.SetEdge("a", "b", 1)
		g.SetEdge("b", "c", 1)

		scores, err := Betweenness(context.Background(), g)
		require.NoError(t, err)
		assert.InDelta(t, 1.0/2.0, scores[1], 1e-9)
	})

	t.Run("split shortest paths", func(t *testing.T) {
		g := New(true)
		g.SetEdge("s", "x", 1)
		g.SetEdge("s", "y", 1)
		g.SetEdge("x", "t", 1)
		g.SetEdge("y", "t", 1)

		scores, err := Betweenness(context.Background(), g)
		require.NoError(t, err)
		assert.InDelta(t, 0.5/6.0, scores[1], 1e-9)
		assert.InDelta(t, 0.5/6.0, scores[2], 1e-9)
	})

	t.Run("two nodes", func(t *testing.T) {
		g := New(true)
		g.SetEdge("a", "b", 1)
		scores, err := Betweenness(context.Background(), g)
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 0}, scores)
	})
}

func TestAgentInteraction(t *testing.T) {
	t.Run("below minimum", func(t *testing.T) {
		g := New(true)
		g.AddNode("solo")
		result := AgentInteraction(context.Background(), g, 2, time.Second)
		assert.Equal(t, NeutralOverhead, result.CommunicationOverhead)
		assert.InDelta(t, 0.2, result.CommunicationEfficiency, 1e-9)
		assert.Equal(t, NeutralCentrality, result.CoordinationCentrality)
	})

	t.Run("two agents", func(t *testing.T) {
		g := New(true)
		g.SetEdge("a", "b", WeightStrong)
		result := AgentInteraction(context.Background(), g, 2, time.Second)
		assert.Equal(t, 0.0, result.CommunicationOverhead)
		assert.Equal(t, NeutralCentrality, result.CoordinationCentrality)
	})

	t.Run("hub and spokes", func(t *testing.T) {
		g := New(true)
		g.SetEdge("a", "hub", 1)
		g.SetEdge("hub", "b", 1)
		g.SetEdge("hub", "c", 1)
		result := AgentInteraction(context.Background(), g, 2, time.Second)
		assert.InDelta(t, 2.0/6.0, result.CoordinationCentrality, 1e-9)
		assert.InDelta(t, 1-result.CommunicationOverhead, result.CommunicationEfficiency, 1e-9)
	})

	t.Run("centrality timeout", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		g := New(true)
		g.SetEdge("a", "hub", 1)
		g.SetEdge("hub", "b", 1)
		result := AgentInteraction(context.Background(), g, 2, time.Nanosecond)
		assert.True(t, result.TimedOut)
		assert.Equal(t, NeutralCentrality, result.CoordinationCentrality)
	})
}

func TestCommunicationOverhead(t *testing.T) {
	tests := []struct {
		name     string
		nodes    int
		edges    int
		expected float64
	}{
		{name: "no edges", nodes: 4, edges: 0, expected: 0},
		{name: "sparser than ideal", nodes: 4, edges: 3, expected: 0},
		{name: "ideal", nodes: 4, edges: 8, expected: 0},
		{name: "denser than ideal", nodes: 4, edges: 12, expected: 1 - 8.0/12.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CommunicationOverhead(tt.nodes, tt.edges)
			assert.InDelta(t, tt.expected, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
		})
	}
}

func TestTaskDistribution(t *testing.T) {
	tests := []struct {
		name     string
		activity map[string]int
		expected float64
	}{
		{name: "no agents", activity: nil, expected: 0},
		{name: "single idle agent", activity: map[string]int{"a": 0}, expected: 0},
		{name: "single active agent", activity: map[string]int{"a": 3}, expected: 1},
		{name: "perfectly even", activity: map[string]int{"a": 2, "b": 2, "c": 2}, expected: 1},
		{name: "uneven", activity: map[string]int{"a": 3, "b": 1}, expected: 0.5},
		{name: "severely skewed", activity: map[string]int{"a": 9, "b": 0, "c": 0}, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, TaskDistribution(tt.activity), 1e-9)
		})
	}
}

func TestActivity(t *testing.T) {
	tr := &trace.NormalizedTrace{
		ExecutionID:  "exec",
		Interactions: []trace.Interaction{interaction("a", "b", "message"), interaction("a", "c", "delegation")},
		ToolCalls:    []trace.ToolCall{toolCall("b", "search", true)},
	}
	assert.Equal(t, map[string]int{"a": 2, "b": 1, "c": 0}, activity(tr))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		trace *trace.NormalizedTrace
	}{
		{name: "nil trace", trace: nil},
		{name: "missing execution id", trace: &trace.NormalizedTrace{}},
		{
			name: "interaction without target",
			trace: &trace.NormalizedTrace{
				ExecutionID:  "exec",
				Interactions: []trace.Interaction{interaction("a", "", "message")},
			},
		},
		{
			name: "tool call without agent",
			trace: &trace.NormalizedTrace{
				ExecutionID: "exec",
				ToolCalls:   []trace.ToolCall{toolCall("", "search", true)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.trace)
			require.Error(t, err)
			assert.True(t, evalerrors.IsCode(err, evalerrors.ErrCodeValidation))
		})
	}
}

func TestEngine_Evaluate(t *testing.T) {
	engine := NewEngine(Config{})
	tr := &trace.NormalizedTrace{
		ExecutionID: "exec-1",
		Interactions: []trace.Interaction{
			interaction("planner", "coder", trace.InteractionDelegation),
			interaction("coder", "reviewer", "message"),
			interaction("reviewer", "planner", trace.InteractionCoordination),
		},
		ToolCalls: []trace.ToolCall{
			toolCall("coder", "editor", true),
			toolCall("reviewer", "editor", true),
			toolCall("planner", "search", false),
			toolCall("planner", "editor", true),
		},
	}

	result, err := engine.Evaluate(context.Background(), tr)
	require.NoError(t, err)

	assert.Equal(t, 5, result.ToolGraphNodes)
	assert.Equal(t, 4, result.ToolGraphEdges)
	assert.Equal(t, 3, result.AgentGraphNodes)
	assert.Equal(t, 3, result.AgentGraphEdges)
	assert.InDelta(t, 0.5, result.ToolSelectionAccuracy, 1e-9)
	// a directed 3-cycle routes exactly one pair through each agent
	assert.InDelta(t, 0.5, result.CoordinationCentrality, 1e-9)
	assert.False(t, result.Degraded)

	expected := 0.30*result.PathConvergence + 0.25*result.ToolSelectionAccuracy +
		0.25*result.CoordinationCentrality + 0.20*result.TaskDistributionBalance
	assert.InDelta(t, expected, result.Overall, 1e-9)
	assert.InDelta(t, 1.0, result.CommunicationOverhead+result.CommunicationEfficiency, 1e-9)

	again, err := engine.Evaluate(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, result, again)
}

func TestEngine_EvaluateValidationError(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	_, err := engine.Evaluate(context.Background(), &trace.NormalizedTrace{ExecutionID: "exec"})
	require.NoError(t, err)

	_, err = engine.Evaluate(context.Background(), &trace.NormalizedTrace{
		ExecutionID: "exec",
		ToolCalls:   []trace.ToolCall{toolCall("", "search", true)},
	})
	assert.True(t, evalerrors.IsCode(err, evalerrors.ErrCodeValidation))
}

func TestEngine_NoActivity(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	result, err := engine.Evaluate(context.Background(), &trace.NormalizedTrace{
		ExecutionID:  "exec",
		Coordination: []trace.Coordination{{AgentID: "solo", Type: "plan", Timestamp: t0}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.TaskDistributionBalance)

	result, err = engine.Evaluate(context.Background(), &trace.NormalizedTrace{
		ExecutionID: "exec",
		ToolCalls:   []trace.ToolCall{toolCall("solo", "search", true)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.TaskDistributionBalance)
}

func TestEngine_CanceledContext(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := engine.Evaluate(ctx, &trace.NormalizedTrace{
		ExecutionID: "exec",
		ToolCalls:   []trace.ToolCall{toolCall("a", "search", true)},
	})
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.Zero(t, result.Overall)
}
