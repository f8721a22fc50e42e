package judge

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hrygo/verdict/plugin/ai/trace"
)

// MaxHeuristicScore caps the keyword heuristic below a neutral grade.
const MaxHeuristicScore = 0.4

// constructivePhrases are suggestion, comparative and forward-looking markers.
var constructivePhrases = []string{
	// suggestions
	"suggest", "recommend", "consider", "you could", "you might", "should", "try ",
	// comparisons
	"instead of", "rather than", "compared to", "better than", "more efficient", "alternatively",
	// forward-looking
	"next step", "in the future", "going forward", "improve", "to address", "follow up",
}

// ConstructivenessHeuristic counts constructive phrases in text.
// The score is hits/10 capped at MaxHeuristicScore.
func ConstructivenessHeuristic(text string) float64 {
	lower := strings.ToLower(text)
	var hits int
	for _, phrase := range constructivePhrases {
		hits += strings.Count(lower, phrase)
	}
	return min(float64(hits)/10, MaxHeuristicScore)
}

// SummarizeTrace renders a count-only summary of t of at most maxLen bytes.
func SummarizeTrace(t *trace.NormalizedTrace, maxLen int) string {
	if t == nil {
		return truncate("No execution trace was recorded.", maxLen)
	}

	var delegations, failures int
	for _, i := range t.Interactions {
		if i.Type == trace.InteractionDelegation {
			delegations++
		}
	}
	tools := make(map[string]struct{})
	for _, c := range t.ToolCalls {
		tools[c.ToolName] = struct{}{}
		if !c.Success {
			failures++
		}
	}

	summary := fmt.Sprintf(
		"Execution %s: %d agents, %d tool-calling agents. %d interactions (%d delegations). "+
			"%d tool calls to %d distinct tools (%d failed). %d coordination events. Duration %s.",
		t.ExecutionID,
		len(t.Agents()),
		len(t.ToolCallingAgents()),
		len(t.Interactions),
		delegations,
		len(t.ToolCalls),
		len(tools),
		failures,
		len(t.Coordination),
		t.Timing.Duration.Round(time.Millisecond),
	)
	return truncate(summary, maxLen)
}

// truncate shortens s to at most maxLen bytes without splitting a UTF-8 sequence.
func truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:runeBoundary(s, maxLen)]
	}
	return s[:runeBoundary(s, maxLen-3)] + "..."
}

// runeBoundary backs n up to the start of the rune that contains byte n.
func runeBoundary(s string, n int) int {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}
