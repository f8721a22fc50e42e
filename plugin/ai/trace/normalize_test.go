package trace

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	evalerrors "github.com/hrygo/verdict/internal/errors"
)

func mustPayload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return body
}

func TestNormalize_Empty(t *testing.T) {
	trace, err := Normalize("exec-1", nil)
	assert.Nil(t, trace)
	assert.ErrorIs(t, err, ErrEmptyTrace)
	assert.True(t, evalerrors.IsCode(err, evalerrors.ErrCodeValidation))
}

func TestNormalize_OrdersByTimestamp(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	events := []Event{
		{Timestamp: base.Add(3 * time.Second), Kind: EventToolCall, AgentID: "writer",
			Payload: mustPayload(t, toolCallPayload{ToolName: "search", Success: true, DurationMs: 250})},
		{Timestamp: base, Kind: EventInteraction, AgentID: "manager",
			Payload: mustPayload(t, interactionPayload{From: "manager", To: "writer", Type: InteractionDelegation})},
		{Timestamp: base.Add(time.Second), Kind: EventCoordination, AgentID: "manager",
			Payload: mustPayload(t, coordinationPayload{Type: "plan", Participants: []string{"writer", "critic"}})},
		{Timestamp: base.Add(2 * time.Second), Kind: EventToolCall, AgentID: "critic",
			Payload: mustPayload(t, toolCallPayload{ToolName: "lint", Success: false})},
	}

	trace, err := Normalize("exec-1", events)
	require.NoError(t, err)

	assert.Equal(t, "exec-1", trace.ExecutionID)
	require.Len(t, trace.Interactions, 1)
	assert.Equal(t, "writer", trace.Interactions[0].To)
	require.Len(t, trace.ToolCalls, 2)
	assert.Equal(t, "lint", trace.ToolCalls[0].ToolName)
	assert.Equal(t, "search", trace.ToolCalls[1].ToolName)
	assert.Equal(t, 250*time.Millisecond, trace.ToolCalls[1].Duration)
	require.Len(t, trace.Coordination, 1)
	assert.Equal(t, []string{"writer", "critic"}, trace.Coordination[0].Participants)

	assert.Equal(t, base, trace.Timing.Start)
	assert.Equal(t, base.Add(3*time.Second), trace.Timing.End)
	assert.Equal(t, 3*time.Second, trace.Timing.Duration)
	assert.Equal(t, 4, trace.EventCount())

	assert.Equal(t, []string{"critic", "manager", "writer"}, trace.Agents())
	assert.Equal(t, []string{"critic", "writer"}, trace.ToolCallingAgents())
}

func TestNormalize_StableForEqualTimestamps(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	events := []Event{
		{Timestamp: ts, Kind: EventToolCall, AgentID: "a", Payload: mustPayload(t, toolCallPayload{ToolName: "first"})},
		{Timestamp: ts, Kind: EventToolCall, AgentID: "a", Payload: mustPayload(t, toolCallPayload{ToolName: "second"})},
	}

	trace, err := Normalize("exec-1", events)
	require.NoError(t, err)
	assert.Equal(t, "first", trace.ToolCalls[0].ToolName)
	assert.Equal(t, "second", trace.ToolCalls[1].ToolName)
}

func TestNormalize_SkipsMalformedEvents(t *testing.T) {
	ts := time.Now()
	events := []Event{
		{Timestamp: ts, Kind: EventToolCall, AgentID: "a", Payload: json.RawMessage(`not json`)},
		{Timestamp: ts, Kind: "unknown", AgentID: "a", Payload: json.RawMessage(`{}`)},
		{Timestamp: ts, Kind: EventInteraction, AgentID: "a", Payload: mustPayload(t, interactionPayload{From: "a", To: "b"})},
	}

	trace, err := Normalize("exec-1", events)
	require.NoError(t, err)
	assert.Empty(t, trace.ToolCalls)
	assert.Len(t, trace.Interactions, 1)
}
