package graph

import (
	"sort"

	"github.com/hrygo/verdict/plugin/ai/trace"
)

// ToolStats counts calls to one tool.
type ToolStats struct {
	Calls     int
	Successes int
}

// SuccessRate returns successes / calls, or 0 for an unused tool.
func (s ToolStats) SuccessRate() float64 {
	if s.Calls == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Calls)
}

// BuildToolGraph builds the directed bipartite agent -> tool graph.
// The edge keeps the weight of the latest call; per tool counters are returned separately.
func BuildToolGraph(t *trace.NormalizedTrace) (*Graph, map[string]ToolStats) {
	g := New(true)
	stats := make(map[string]ToolStats)
	for _, call := range t.ToolCalls {
		weight := WeightFailure
		if call.Success {
			weight = WeightSuccess
		}
		g.SetEdge(AgentNodePrefix+call.AgentID, ToolNodePrefix+call.ToolName, weight)

		s := stats[call.ToolName]
		s.Calls++
		if call.Success {
			s.Successes++
		}
		stats[call.ToolName] = s
	}
	return g, stats
}

// BuildAgentGraph builds the directed agent interaction graph.
// Coordination events add an edge from the initiator to each participant.
func BuildAgentGraph(t *trace.NormalizedTrace) *Graph {
	g := New(true)
	for _, interaction := range t.Interactions {
		g.SetEdge(interaction.From, interaction.To, interactionWeight(interaction.Type))
	}
	for _, c := range t.Coordination {
		if c.AgentID == "" {
			continue
		}
		for _, p := range c.Participants {
			if p == "" {
				continue
			}
			g.SetEdge(c.AgentID, p, WeightStrong)
		}
	}
	return g
}

func interactionWeight(interactionType string) float64 {
	switch interactionType {
	case trace.InteractionDelegation, trace.InteractionCoordination:
		return WeightStrong
	default:
		return WeightWeak
	}
}

// projectedEdges counts the distinct edges both graphs would hold, without building them.
func projectedEdges(t *trace.NormalizedTrace) int {
	type pair struct{ from, to string }
	seen := make(map[pair]struct{})
	for _, call := range t.ToolCalls {
		seen[pair{AgentNodePrefix + call.AgentID, ToolNodePrefix + call.ToolName}] = struct{}{}
	}
	for _, i := range t.Interactions {
		if i.From != i.To {
			seen[pair{i.From, i.To}] = struct{}{}
		}
	}
	for _, c := range t.Coordination {
		for _, p := range c.Participants {
			if c.AgentID != "" && p != "" && p != c.AgentID {
				seen[pair{c.AgentID, p}] = struct{}{}
			}
		}
	}
	return len(seen)
}

// activity counts tool calls plus initiated interactions per agent.
// Every agent seen in the trace is present, idle ones with zero.
func activity(t *trace.NormalizedTrace) map[string]int {
	counts := make(map[string]int)
	for _, agent := range t.Agents() {
		counts[agent] = 0
	}
	for _, call := range t.ToolCalls {
		counts[call.AgentID]++
	}
	for _, i := range t.Interactions {
		counts[i.From]++
	}
	return counts
}

func sortedToolNames(stats map[string]ToolStats) []string {
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
