package trace

import (
	"encoding/json"
	"sort"
	"time"
)

// EventKind classifies a recorded event.
type EventKind string

const (
	EventInteraction  EventKind = "interaction"
	EventToolCall     EventKind = "tool_call"
	EventCoordination EventKind = "coordination"
)

// Interaction types that carry full edge weight in the agent interaction graph.
const (
	InteractionDelegation   = "delegation"
	InteractionCoordination = "coordination"
)

// Event is a single immutable record of something an agent did during an execution.
type Event struct {
	Timestamp   time.Time       `json:"timestamp"`
	Kind        EventKind       `json:"kind"`
	AgentID     string          `json:"agent_id"`
	ExecutionID string          `json:"execution_id"`
	Payload     json.RawMessage `json:"payload"`
}

type interactionPayload struct {
	From string         `json:"from"`
	To   string         `json:"to"`
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

type toolCallPayload struct {
	ToolName   string         `json:"tool_name"`
	Success    bool           `json:"success"`
	DurationMs float64        `json:"duration_ms"`
	Data       map[string]any `json:"data,omitempty"`
}

type coordinationPayload struct {
	Type         string         `json:"type"`
	Participants []string       `json:"participants,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

// Interaction is a message or hand-off from one agent to another.
type Interaction struct {
	From      string         `json:"from"`
	To        string         `json:"to"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// ToolCall is a single tool invocation by an agent.
type ToolCall struct {
	AgentID   string         `json:"agent_id"`
	ToolName  string         `json:"tool_name"`
	Success   bool           `json:"success"`
	Duration  time.Duration  `json:"duration"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Coordination is an orchestration event such as a plan broadcast or a vote.
type Coordination struct {
	AgentID      string         `json:"agent_id"`
	Type         string         `json:"type"`
	Participants []string       `json:"participants,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	Data         map[string]any `json:"data,omitempty"`
}

// Timing is the wall-clock span of an execution.
type Timing struct {
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Duration time.Duration `json:"duration"`
}

// NormalizedTrace is the time-ordered view of an execution consumed by the evaluation tiers.
type NormalizedTrace struct {
	ExecutionID  string         `json:"execution_id"`
	Interactions []Interaction  `json:"agent_interactions"`
	ToolCalls    []ToolCall     `json:"tool_calls"`
	Coordination []Coordination `json:"coordination_events"`
	Timing       Timing         `json:"timing"`
}

// EventCount returns the number of events the trace was built from.
func (t *NormalizedTrace) EventCount() int {
	return len(t.Interactions) + len(t.ToolCalls) + len(t.Coordination)
}

// Agents returns the sorted distinct agent ids seen anywhere in the trace.
func (t *NormalizedTrace) Agents() []string {
	seen := make(map[string]struct{})
	add := func(id string) {
		if id != "" {
			seen[id] = struct{}{}
		}
	}
	for _, i := range t.Interactions {
		add(i.From)
		add(i.To)
	}
	for _, c := range t.ToolCalls {
		add(c.AgentID)
	}
	for _, c := range t.Coordination {
		add(c.AgentID)
		for _, p := range c.Participants {
			add(p)
		}
	}
	return sortedKeys(seen)
}

// ToolCallingAgents returns the sorted distinct agent ids that made at least one tool call.
func (t *NormalizedTrace) ToolCallingAgents() []string {
	seen := make(map[string]struct{})
	for _, c := range t.ToolCalls {
		if c.AgentID != "" {
			seen[c.AgentID] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
