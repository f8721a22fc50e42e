package trace

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	evalerrors "github.com/hrygo/verdict/internal/errors"
	"github.com/hrygo/verdict/store"
)

var (
	// ErrNoActiveExecution is returned by EndExecution when no session is open.
	ErrNoActiveExecution = &evalerrors.EvalError{Code: evalerrors.ErrCodeNotFound, Message: "no active execution"}
	// ErrStoreNotConfigured is returned by read operations of a memory-only recorder.
	ErrStoreNotConfigured = errors.New("trace store not configured")
)

// Recorder captures the events of one execution at a time and persists the
// finalized trace. Each Recorder is independent; run one per concurrent execution.
type Recorder struct {
	store *store.Store
	now   func() time.Time

	mu     sync.Mutex
	active *session
}

type session struct {
	executionID string
	startedAt   time.Time
	events      []Event
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClock overrides the time source used to stamp events.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		r.now = now
	}
}

// NewRecorder creates a recorder backed by s. A nil store keeps traces in memory only.
func NewRecorder(s *store.Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store: s,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// BeginExecution opens a session for executionID, replacing any open session.
func (r *Recorder) BeginExecution(executionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		slog.Warn("discarding unfinished execution",
			"execution_id", r.active.executionID,
			"events", len(r.active.events),
			"replaced_by", executionID,
		)
	}
	r.active = &session{
		executionID: executionID,
		startedAt:   r.now(),
	}
}

// ActiveExecutionID returns the id of the open session, or "" if none.
func (r *Recorder) ActiveExecutionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return ""
	}
	return r.active.executionID
}

// lastActivity returns the time of the latest event of the open session,
// or its start when nothing was recorded yet.
func (r *Recorder) lastActivity() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return time.Time{}, false
	}
	if n := len(r.active.events); n > 0 {
		return r.active.events[n-1].Timestamp, true
	}
	return r.active.startedAt, true
}

// discard drops the open session without persisting it.
func (r *Recorder) discard() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return 0
	}
	n := len(r.active.events)
	r.active = nil
	return n
}

// RecordInteraction records a message or hand-off between two agents.
func (r *Recorder) RecordInteraction(fromAgent, toAgent, interactionType string, data map[string]any) {
	r.record(EventInteraction, fromAgent, func() any {
		return interactionPayload{From: fromAgent, To: toAgent, Type: interactionType, Data: data}
	})
}

// RecordToolCall records a tool invocation by an agent.
func (r *Recorder) RecordToolCall(agentID, toolName string, success bool, duration time.Duration, data map[string]any) {
	r.record(EventToolCall, agentID, func() any {
		return toolCallPayload{
			ToolName:   toolName,
			Success:    success,
			DurationMs: float64(duration) / float64(time.Millisecond),
			Data:       data,
		}
	})
}

// RecordCoordination records an orchestration event initiated by agentID.
func (r *Recorder) RecordCoordination(agentID, coordinationType string, participants []string, data map[string]any) {
	r.record(EventCoordination, agentID, func() any {
		return coordinationPayload{Type: coordinationType, Participants: participants, Data: data}
	})
}

func (r *Recorder) record(kind EventKind, agentID string, payload func() any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active == nil {
		return
	}

	body, err := json.Marshal(payload())
	if err != nil {
		// Arbitrary caller data may not be encodable; keep the event without it.
		slog.Warn("dropping unencodable event data",
			"execution_id", r.active.executionID,
			"kind", kind,
			"error", err,
		)
		body, _ = json.Marshal(stripData(payload()))
	}

	r.active.events = append(r.active.events, Event{
		Timestamp:   r.now(),
		Kind:        kind,
		AgentID:     agentID,
		ExecutionID: r.active.executionID,
		Payload:     body,
	})
}

func stripData(payload any) any {
	switch p := payload.(type) {
	case interactionPayload:
		p.Data = nil
		return p
	case toolCallPayload:
		p.Data = nil
		return p
	case coordinationPayload:
		p.Data = nil
		return p
	}
	return payload
}

// EndExecution finalizes the open session, persists it and returns the normalized trace.
// Persistence failures are logged and do not fail the call.
func (r *Recorder) EndExecution(ctx context.Context) (*NormalizedTrace, error) {
	r.mu.Lock()
	active := r.active
	r.active = nil
	endedAt := r.now()
	r.mu.Unlock()

	if active == nil {
		return nil, ErrNoActiveExecution
	}

	trace, err := Normalize(active.executionID, active.events)
	if err != nil {
		return nil, err
	}
	trace.Timing = Timing{
		Start:    active.startedAt,
		End:      endedAt,
		Duration: endedAt.Sub(active.startedAt),
	}

	if r.store != nil {
		if err := r.persist(ctx, trace, active.events); err != nil {
			slog.ErrorContext(ctx, "failed to persist execution trace",
				"execution_id", trace.ExecutionID,
				"events", len(active.events),
				"error", err,
			)
		}
	}
	return trace, nil
}

func (r *Recorder) persist(ctx context.Context, trace *NormalizedTrace, events []Event) error {
	rows := make([]*store.TraceEvent, 0, len(events))
	for _, event := range events {
		rows = append(rows, &store.TraceEvent{
			ExecutionID: event.ExecutionID,
			Timestamp:   event.Timestamp,
			Kind:        string(event.Kind),
			AgentID:     event.AgentID,
			Payload:     string(event.Payload),
		})
	}
	return r.store.UpsertExecutionTrace(ctx, Summarize(trace), rows)
}

// Summarize builds the execution summary row for a trace.
func Summarize(trace *NormalizedTrace) *store.Execution {
	var toolTotal time.Duration
	for _, call := range trace.ToolCalls {
		toolTotal += call.Duration
	}
	avgToolMs := 0.0
	if len(trace.ToolCalls) > 0 {
		avgToolMs = float64(toolTotal) / float64(len(trace.ToolCalls)) / float64(time.Millisecond)
	}

	return &store.Execution{
		ID:                trace.ExecutionID,
		StartedAt:         trace.Timing.Start,
		EndedAt:           trace.Timing.End,
		AgentCount:        len(trace.Agents()),
		InteractionCount:  len(trace.Interactions),
		ToolCallCount:     len(trace.ToolCalls),
		CoordinationCount: len(trace.Coordination),
		TotalDurationMs:   trace.Timing.Duration.Milliseconds(),
		AvgToolDurationMs: avgToolMs,
	}
}

// LoadTrace rebuilds the normalized trace of a finalized execution from the store.
func (r *Recorder) LoadTrace(ctx context.Context, executionID string) (*NormalizedTrace, error) {
	if r.store == nil {
		return nil, ErrStoreNotConfigured
	}

	execution, err := r.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, evalerrors.Wrap(err, evalerrors.ErrCodeInternal, "failed to load execution")
	}
	if execution == nil {
		return nil, evalerrors.NotFound("execution", executionID)
	}

	rows, err := r.store.ListTraceEvents(ctx, &store.FindTraceEvent{ExecutionID: &executionID})
	if err != nil {
		return nil, evalerrors.Wrap(err, evalerrors.ErrCodeInternal, "failed to load trace events")
	}
	if len(rows) == 0 {
		return nil, evalerrors.NotFound("trace events", executionID)
	}

	events := make([]Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, Event{
			Timestamp:   row.Timestamp,
			Kind:        EventKind(row.Kind),
			AgentID:     row.AgentID,
			ExecutionID: row.ExecutionID,
			Payload:     json.RawMessage(row.Payload),
		})
	}

	trace, err := Normalize(executionID, events)
	if err != nil {
		return nil, err
	}
	if !execution.StartedAt.IsZero() && !execution.EndedAt.IsZero() {
		trace.Timing = Timing{
			Start:    execution.StartedAt,
			End:      execution.EndedAt,
			Duration: execution.EndedAt.Sub(execution.StartedAt),
		}
	}
	return trace, nil
}

// ListExecutions returns finalized executions, most recent first.
func (r *Recorder) ListExecutions(ctx context.Context, limit int) ([]*store.Execution, error) {
	if r.store == nil {
		return nil, ErrStoreNotConfigured
	}
	return r.store.ListExecutions(ctx, &store.FindExecution{Limit: limit})
}
