// Package graph implements the interaction graph analysis tier: tool usage,
// agent coordination and task distribution metrics derived from a trace.
package graph

import (
	"sort"
	"time"

	"github.com/hrygo/verdict/plugin/ai/timeout"
)

// Node id prefixes in the bipartite tool usage graph.
const (
	AgentNodePrefix = "agent:"
	ToolNodePrefix  = "tool:"
)

// Edge weights.
const (
	WeightSuccess = 1.0
	WeightFailure = 0.5
	WeightStrong  = 1.0 // delegation and coordination
	WeightWeak    = 0.5
)

// Neutral values returned when a graph is too small or an analysis is cut short.
const (
	NeutralToolScore       = 0.5
	NeutralOverhead        = 0.8
	NeutralCentrality      = 0.5
	DisconnectedPenalty    = 0.2
	ConvergenceTimeoutLoss = 0.3
)

// Overall weights.
const (
	weightConvergence = 0.30
	weightAccuracy    = 0.25
	weightCentrality  = 0.25
	weightBalance     = 0.20
)

// Config contains configuration for graph analysis.
type Config struct {
	// MaxNodes is a soft ceiling on interactions plus tool calls; exceeding it only logs.
	MaxNodes int `mapstructure:"max_nodes"`
	// MaxEdges is a soft ceiling on distinct edges; exceeding it only logs.
	MaxEdges int `mapstructure:"max_edges"`
	// OperationTimeout bounds path convergence and centrality.
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	// MinNodesForAnalysis is the node count below which neutral defaults are returned.
	MinNodesForAnalysis int `mapstructure:"min_nodes_for_analysis"`
}

// DefaultConfig returns default graph configuration.
func DefaultConfig() Config {
	return Config{
		MaxNodes:            1000,
		MaxEdges:            5000,
		OperationTimeout:    timeout.GraphOperationTimeout,
		MinNodesForAnalysis: 2,
	}
}

// Result is the outcome of a tier 3 evaluation.
type Result struct {
	PathConvergence         float64 `json:"path_convergence"`
	ToolSelectionAccuracy   float64 `json:"tool_selection_accuracy"`
	CoordinationCentrality  float64 `json:"coordination_centrality"`
	TaskDistributionBalance float64 `json:"task_distribution_balance"`
	// CommunicationOverhead and CommunicationEfficiency are reported but not scored.
	CommunicationOverhead   float64 `json:"communication_overhead"`
	CommunicationEfficiency float64 `json:"communication_efficiency"`
	Overall                 float64 `json:"overall_score"`

	ToolGraphNodes  int `json:"tool_graph_nodes"`
	ToolGraphEdges  int `json:"tool_graph_edges"`
	AgentGraphNodes int `json:"agent_graph_nodes"`
	AgentGraphEdges int `json:"agent_graph_edges"`

	// Degraded is set when the analyses failed and the result was zeroed.
	Degraded bool `json:"degraded,omitempty"`
}

// Graph is a small weighted graph with nodes kept in insertion order.
type Graph struct {
	directed bool
	nodes    []string
	index    map[string]int
	out      []map[int]float64
	edges    int
}

// New creates an empty graph.
func New(directed bool) *Graph {
	return &Graph{
		directed: directed,
		index:    make(map[string]int),
	}
}

// Directed reports whether edges are one-way.
func (g *Graph) Directed() bool {
	return g.directed
}

// AddNode adds id if missing and returns its position.
func (g *Graph) AddNode(id string) int {
	if i, ok := g.index[id]; ok {
		return i
	}
	g.index[id] = len(g.nodes)
	g.nodes = append(g.nodes, id)
	g.out = append(g.out, make(map[int]float64))
	return len(g.nodes) - 1
}

// SetEdge adds or overwrites the edge from -> to. Self loops are ignored.
func (g *Graph) SetEdge(from, to string, weight float64) {
	if from == to {
		g.AddNode(from)
		return
	}
	u, v := g.AddNode(from), g.AddNode(to)
	if _, ok := g.out[u][v]; !ok {
		g.edges++
	}
	g.out[u][v] = weight
	if !g.directed {
		g.out[v][u] = weight
	}
}

// Weight returns the weight of from -> to.
func (g *Graph) Weight(from, to string) (float64, bool) {
	u, ok := g.index[from]
	if !ok {
		return 0, false
	}
	v, ok := g.index[to]
	if !ok {
		return 0, false
	}
	w, ok := g.out[u][v]
	return w, ok
}

// Nodes returns node ids in insertion order.
func (g *Graph) Nodes() []string {
	return append([]string(nil), g.nodes...)
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of distinct edges.
func (g *Graph) EdgeCount() int {
	return g.edges
}

// Undirected returns the undirected projection of g.
func (g *Graph) Undirected() *Graph {
	u := New(false)
	for _, id := range g.nodes {
		u.AddNode(id)
	}
	for i, targets := range g.out {
		for _, j := range sortedTargets(targets) {
			if _, ok := u.out[j][i]; ok {
				continue
			}
			u.SetEdge(g.nodes[i], g.nodes[j], targets[j])
		}
	}
	return u
}

// neighbors returns the out-neighbours of node i in ascending order.
func (g *Graph) neighbors(i int) []int {
	return sortedTargets(g.out[i])
}

func sortedTargets(targets map[int]float64) []int {
	keys := make([]int, 0, len(targets))
	for k := range targets {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
