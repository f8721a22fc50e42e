package v1

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hrygo/verdict/plugin/ai/timeout"
	"github.com/hrygo/verdict/plugin/ai/trace"
	"github.com/hrygo/verdict/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// BeginExecutionRequest opens a recording session. An empty id is generated.
type BeginExecutionRequest struct {
	ExecutionID string `json:"execution_id"`
}

// BeginExecutionResponse carries the id of the opened session.
type BeginExecutionResponse struct {
	ExecutionID string `json:"execution_id"`
}

// EventRequest is one event reported by a remote agent.
type EventRequest struct {
	Kind    trace.EventKind `json:"kind"`
	AgentID string          `json:"agent_id"`

	// interaction
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
	// interaction or coordination type
	Type string `json:"type,omitempty"`

	// tool_call
	ToolName   string  `json:"tool_name,omitempty"`
	Success    bool    `json:"success,omitempty"`
	DurationMs float64 `json:"duration_ms,omitempty"`

	// coordination
	Participants []string `json:"participants,omitempty"`

	Data map[string]any `json:"data,omitempty"`
}

// RecordEventsRequest is a batch of events for one open execution.
type RecordEventsRequest struct {
	Events []EventRequest `json:"events"`
}

// RecordEventsResponse reports how many events were accepted.
type RecordEventsResponse struct {
	Recorded int `json:"recorded"`
}

// ExecutionSummary is the API view of a finalized execution.
type ExecutionSummary struct {
	ID                string    `json:"execution_id"`
	StartedAt         time.Time `json:"started_at"`
	EndedAt           time.Time `json:"ended_at"`
	AgentCount        int       `json:"agent_count"`
	InteractionCount  int       `json:"interaction_count"`
	ToolCallCount     int       `json:"tool_call_count"`
	CoordinationCount int       `json:"coordination_count"`
	TotalDurationMs   int64     `json:"total_duration_ms"`
	AvgToolDurationMs float64   `json:"avg_tool_duration_ms"`
}

// BeginExecution opens a recording session.
// POST /api/v1/executions
func (s *APIV1Service) BeginExecution(c echo.Context) error {
	var req BeginExecutionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.ExecutionID == "" {
		req.ExecutionID = uuid.NewString()
	}
	s.Recorders.Begin(req.ExecutionID)
	return c.JSON(http.StatusCreated, BeginExecutionResponse{ExecutionID: req.ExecutionID})
}

// ListActiveExecutions lists open recording sessions.
// GET /api/v1/executions/active
func (s *APIV1Service) ListActiveExecutions(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]string{"execution_ids": s.Recorders.Active()})
}

// RecordEvents appends events to an open execution.
// POST /api/v1/executions/:id/events
func (s *APIV1Service) RecordEvents(c echo.Context) error {
	id := c.Param("id")
	var req RecordEventsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	for i, event := range req.Events {
		if err := validateEvent(event); err != nil {
			return badRequest(c, fmt.Sprintf("event %d: %v", i, err))
		}
	}

	rec, ok := s.Recorders.Recorder(id)
	if !ok {
		return c.JSON(http.StatusNotFound, errorResponse{Code: "NOT_FOUND", Message: "no active execution: " + id})
	}
	for _, event := range req.Events {
		recordEvent(rec, event)
	}
	return c.JSON(http.StatusOK, RecordEventsResponse{Recorded: len(req.Events)})
}

func validateEvent(e EventRequest) error {
	switch e.Kind {
	case trace.EventInteraction:
		if interactionFrom(e) == "" || e.To == "" {
			return fmt.Errorf("interaction requires from and to")
		}
	case trace.EventToolCall:
		if e.AgentID == "" || e.ToolName == "" {
			return fmt.Errorf("tool_call requires agent_id and tool_name")
		}
		if e.DurationMs < 0 {
			return fmt.Errorf("duration_ms must not be negative")
		}
	case trace.EventCoordination:
		if e.AgentID == "" {
			return fmt.Errorf("coordination requires agent_id")
		}
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return nil
}

func interactionFrom(e EventRequest) string {
	if e.From != "" {
		return e.From
	}
	return e.AgentID
}

func recordEvent(rec *trace.Recorder, e EventRequest) {
	switch e.Kind {
	case trace.EventInteraction:
		rec.RecordInteraction(interactionFrom(e), e.To, e.Type, e.Data)
	case trace.EventToolCall:
		duration := time.Duration(e.DurationMs * float64(time.Millisecond))
		rec.RecordToolCall(e.AgentID, e.ToolName, e.Success, duration, e.Data)
	case trace.EventCoordination:
		rec.RecordCoordination(e.AgentID, e.Type, e.Participants, e.Data)
	}
}

// EndExecution finalizes an open execution and returns its trace.
// POST /api/v1/executions/:id/end
func (s *APIV1Service) EndExecution(c echo.Context) error {
	// Survives client disconnects.
	ctx, cancel := timeoutContext(c, timeout.StoreTimeout)
	defer cancel()

	t, err := s.Recorders.End(ctx, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// ListExecutions lists finalized executions, most recent first.
// GET /api/v1/executions?limit=20
func (s *APIV1Service) ListExecutions(c echo.Context) error {
	limit, err := parseLimit(c.QueryParam("limit"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	executions, err := s.Recorders.ListExecutions(c.Request().Context(), limit)
	if err != nil {
		return writeError(c, err)
	}
	summaries := make([]ExecutionSummary, 0, len(executions))
	for _, e := range executions {
		summaries = append(summaries, NewExecutionSummary(e))
	}
	return c.JSON(http.StatusOK, map[string][]ExecutionSummary{"executions": summaries})
}

// GetTrace returns the normalized trace of a finalized execution.
// GET /api/v1/executions/:id/trace
func (s *APIV1Service) GetTrace(c echo.Context) error {
	t, err := s.Recorders.LoadTrace(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// NewExecutionSummary converts a stored execution row.
func NewExecutionSummary(e *store.Execution) ExecutionSummary {
	return ExecutionSummary{
		ID:                e.ID,
		StartedAt:         e.StartedAt,
		EndedAt:           e.EndedAt,
		AgentCount:        e.AgentCount,
		InteractionCount:  e.InteractionCount,
		ToolCallCount:     e.ToolCallCount,
		CoordinationCount: e.CoordinationCount,
		TotalDurationMs:   e.TotalDurationMs,
		AvgToolDurationMs: e.AvgToolDurationMs,
	}
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultListLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit: %s", raw)
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, nil
}
