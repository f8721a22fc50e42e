package graph

import (
	"context"
	"math"
	"time"

	evalerrors "github.com/hrygo/verdict/internal/errors"
)

// ToolUsageResult holds the tool usage analysis.
type ToolUsageResult struct {
	PathConvergence       float64
	ToolSelectionAccuracy float64
	TimedOut              bool
}

// AgentInteractionResult holds the agent interaction analysis.
type AgentInteractionResult struct {
	CommunicationOverhead   float64
	CommunicationEfficiency float64
	CoordinationCentrality  float64
	TimedOut                bool
}

// ToolUsage scores a tool usage graph. Graphs below minNodes score neutral.
func ToolUsage(ctx context.Context, g *Graph, stats map[string]ToolStats, minNodes int, budget time.Duration) ToolUsageResult {
	if g.NodeCount() < minNodes {
		return ToolUsageResult{PathConvergence: NeutralToolScore, ToolSelectionAccuracy: NeutralToolScore}
	}

	result := ToolUsageResult{ToolSelectionAccuracy: meanSuccessRate(stats)}
	convergence, err := runWithDeadline(ctx, budget, func(ctx context.Context) (float64, error) {
		return PathConvergence(ctx, g)
	})
	if err != nil {
		result.PathConvergence = ConvergenceTimeoutLoss
		result.TimedOut = true
		return result
	}
	result.PathConvergence = convergence
	return result
}

func meanSuccessRate(stats map[string]ToolStats) float64 {
	if len(stats) == 0 {
		return 0
	}
	var sum float64
	for _, name := range sortedToolNames(stats) {
		sum += stats[name].SuccessRate()
	}
	return sum / float64(len(stats))
}

// PathConvergence measures how tightly the undirected projection of g is knit.
// A disconnected graph scores DisconnectedPenalty and a two node graph scores 1.
// Otherwise it is 1 - (avgShortestPath-1)/(n-2), clamped to [0, 1].
func PathConvergence(ctx context.Context, g *Graph) (float64, error) {
	u := g.Undirected()
	n := u.NodeCount()
	if n == 0 {
		return 0, nil
	}

	var total, pairs float64
	for source := 0; source < n; source++ {
		if err := checkDeadline(ctx); err != nil {
			return 0, err
		}
		dist := bfs(u, source)
		for target, d := range dist {
			if target == source {
				continue
			}
			if d < 0 {
				return DisconnectedPenalty, nil
			}
			total += float64(d)
			pairs++
		}
	}

	if n <= 2 {
		return 1, nil
	}
	avg := total / pairs
	return clamp01(1 - (avg-1)/float64(n-2)), nil
}

// bfs returns hop distances from source; unreachable nodes are -1.
func bfs(g *Graph, source int) []int {
	dist := make([]int, g.NodeCount())
	for i := range dist {
		dist[i] = -1
	}
	dist[source] = 0
	queue := []int{source}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, w := range g.neighbors(v) {
			if dist[w] < 0 {
				dist[w] = dist[v] + 1
				queue = append(queue, w)
			}
		}
	}
	return dist
}

// AgentInteraction scores an agent interaction graph. Graphs below minNodes score neutral.
func AgentInteraction(ctx context.Context, g *Graph, minNodes int, budget time.Duration) AgentInteractionResult {
	if g.NodeCount() < minNodes {
		return AgentInteractionResult{
			CommunicationOverhead:   NeutralOverhead,
			CommunicationEfficiency: 1 - NeutralOverhead,
			CoordinationCentrality:  NeutralCentrality,
		}
	}

	overhead := CommunicationOverhead(g.NodeCount(), g.EdgeCount())
	result := AgentInteractionResult{
		CommunicationOverhead:   overhead,
		CommunicationEfficiency: 1 - overhead,
		CoordinationCentrality:  NeutralCentrality,
	}
	if g.NodeCount() <= 2 {
		return result
	}

	centrality, err := runWithDeadline(ctx, budget, func(ctx context.Context) (float64, error) {
		scores, err := Betweenness(ctx, g)
		if err != nil {
			return 0, err
		}
		var best float64
		for _, s := range scores {
			best = math.Max(best, s)
		}
		return best, nil
	})
	if err != nil {
		result.TimedOut = true
		return result
	}
	result.CoordinationCentrality = clamp01(centrality)
	return result
}

// CommunicationOverhead is 1 - min(1, n*log2(n)/edges); a graph without edges has none.
func CommunicationOverhead(nodes, edges int) float64 {
	if edges == 0 || nodes == 0 {
		return 0
	}
	ideal := float64(nodes) * math.Log2(float64(nodes))
	return clamp01(1 - math.Min(1, ideal/float64(edges)))
}

// Betweenness computes normalized betweenness centrality for every node of a
// directed unweighted graph using Brandes' algorithm. Scores are scaled by
// 1/((n-1)(n-2)) and returned in node order.
func Betweenness(ctx context.Context, g *Graph) ([]float64, error) {
	n := g.NodeCount()
	centrality := make([]float64, n)
	if n <= 2 {
		return centrality, nil
	}

	for s := 0; s < n; s++ {
		if err := checkDeadline(ctx); err != nil {
			return nil, err
		}

		stack := make([]int, 0, n)
		preds := make([][]int, n)
		sigma := make([]float64, n)
		dist := make([]int, n)
		for i := range dist {
			dist[i] = -1
		}
		sigma[s] = 1
		dist[s] = 0

		queue := []int{s}
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			stack = append(stack, v)
			for _, w := range g.neighbors(v) {
				if dist[w] < 0 {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					preds[w] = append(preds[w], v)
				}
			}
		}

		delta := make([]float64, n)
		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range preds[w] {
				delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
			}
			if w != s {
				centrality[w] += delta[w]
			}
		}
	}

	// Undirected graphs count every pair twice, which their 2/((n-1)(n-2)) scale cancels.
	scale := 1 / float64((n-1)*(n-2))
	for i := range centrality {
		centrality[i] *= scale
	}
	return centrality, nil
}

// TaskDistribution scores how evenly work is spread across agents.
// No activity scores 0, a single agent scores 1, otherwise max(0, 1 - stddev/mean).
func TaskDistribution(activity map[string]int) float64 {
	if len(activity) == 0 {
		return 0
	}

	var total float64
	for _, count := range activity {
		total += float64(count)
	}
	if total == 0 {
		return 0
	}
	if len(activity) == 1 {
		return 1
	}

	n := float64(len(activity))
	mean := total / n
	var variance float64
	for _, count := range activity {
		d := float64(count) - mean
		variance += d * d
	}
	std := math.Sqrt(variance / n)
	return clamp01(1 - std/mean)
}

// runWithDeadline runs fn in a worker goroutine and waits at most budget for it.
// The worker sees a context that expires with the budget and is expected to stop on it.
func runWithDeadline[T any](ctx context.Context, budget time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(ctx)
		done <- outcome{value: v, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return zero, evalerrors.Timeout("graph analysis exceeded its time budget", out.err)
		}
		return out.value, nil
	case <-ctx.Done():
		return zero, evalerrors.Timeout("graph analysis exceeded its time budget", ctx.Err())
	}
}

// checkDeadline also compares against the deadline so an expired budget is
// observed before the context timer has fired.
func checkDeadline(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
		return context.DeadlineExceeded
	}
	return nil
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
