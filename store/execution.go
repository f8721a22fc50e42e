package store

import "time"

// Execution is the summary row written when a recorded execution is finalized.
type Execution struct {
	ID                string
	StartedAt         time.Time
	EndedAt           time.Time
	AgentCount        int
	InteractionCount  int
	ToolCallCount     int
	CoordinationCount int
	TotalDurationMs   int64
	AvgToolDurationMs float64
	CreatedTs         int64
}

// TraceEvent is a single recorded event of an execution.
type TraceEvent struct {
	ID          int64
	ExecutionID string
	Timestamp   time.Time
	Kind        string
	AgentID     string
	// Payload is the JSON encoded kind-specific body.
	Payload string
}

// FindExecution specifies the conditions for finding executions.
type FindExecution struct {
	ID    *string
	Limit int
}

// DeleteExecution specifies the conditions for deleting executions.
// Trace events and evaluations of the matched executions are removed with them.
type DeleteExecution struct {
	BeforeTime *time.Time // Delete executions created before this time
}

// FindTraceEvent specifies the conditions for finding trace events.
// Time bounds are inclusive.
type FindTraceEvent struct {
	ExecutionID *string
	Kind        *string
	FromTime    *time.Time
	ToTime      *time.Time
}
