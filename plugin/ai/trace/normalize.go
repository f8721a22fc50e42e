package trace

import (
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	evalerrors "github.com/hrygo/verdict/internal/errors"
)

// ErrEmptyTrace is returned when an execution without any events is finalized.
var ErrEmptyTrace = evalerrors.Validation("trace has no events")

// Normalize orders events by timestamp and derives the typed trace view.
// Events with undecodable payloads are skipped with a warning.
func Normalize(executionID string, events []Event) (*NormalizedTrace, error) {
	if len(events) == 0 {
		return nil, ErrEmptyTrace
	}

	ordered := make([]Event, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	trace := &NormalizedTrace{
		ExecutionID:  executionID,
		Interactions: []Interaction{},
		ToolCalls:    []ToolCall{},
		Coordination: []Coordination{},
	}
	for _, event := range ordered {
		if err := trace.append(event); err != nil {
			slog.Warn("skipping malformed trace event",
				"execution_id", executionID,
				"kind", event.Kind,
				"agent_id", event.AgentID,
				"error", err,
			)
		}
	}

	start, end := ordered[0].Timestamp, ordered[len(ordered)-1].Timestamp
	trace.Timing = Timing{Start: start, End: end, Duration: end.Sub(start)}
	return trace, nil
}

func (t *NormalizedTrace) append(event Event) error {
	switch event.Kind {
	case EventInteraction:
		var p interactionPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return err
		}
		t.Interactions = append(t.Interactions, Interaction{
			From: p.From, To: p.To, Type: p.Type, Timestamp: event.Timestamp, Data: p.Data,
		})
	case EventToolCall:
		var p toolCallPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return err
		}
		t.ToolCalls = append(t.ToolCalls, ToolCall{
			AgentID:   event.AgentID,
			ToolName:  p.ToolName,
			Success:   p.Success,
			Duration:  time.Duration(p.DurationMs * float64(time.Millisecond)),
			Timestamp: event.Timestamp,
			Data:      p.Data,
		})
	case EventCoordination:
		var p coordinationPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return err
		}
		t.Coordination = append(t.Coordination, Coordination{
			AgentID: event.AgentID, Type: p.Type, Participants: p.Participants, Timestamp: event.Timestamp, Data: p.Data,
		})
	default:
		return evalerrors.Validation("unknown event kind %q", event.Kind)
	}
	return nil
}
