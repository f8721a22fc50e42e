package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// Execution trace related methods.
	// UpsertExecutionTrace atomically replaces the summary row and all events of an execution.
	UpsertExecutionTrace(ctx context.Context, execution *Execution, events []*TraceEvent) error
	ListExecutions(ctx context.Context, find *FindExecution) ([]*Execution, error)
	DeleteExecutions(ctx context.Context, delete *DeleteExecution) (int64, error)
	ListTraceEvents(ctx context.Context, find *FindTraceEvent) ([]*TraceEvent, error)

	// Evaluation related methods.
	CreateEvaluation(ctx context.Context, create *Evaluation) (*Evaluation, error)
	ListEvaluations(ctx context.Context, find *FindEvaluation) ([]*Evaluation, error)
}
