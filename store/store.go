package store

import (
	"context"

	"github.com/hrygo/verdict/internal/profile"
)

// Store provides database access to executions, trace events and evaluations.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) UpsertExecutionTrace(ctx context.Context, execution *Execution, events []*TraceEvent) error {
	return s.driver.UpsertExecutionTrace(ctx, execution, events)
}

func (s *Store) ListExecutions(ctx context.Context, find *FindExecution) ([]*Execution, error) {
	return s.driver.ListExecutions(ctx, find)
}

// GetExecution returns the execution with the given id, or nil if it does not exist.
func (s *Store) GetExecution(ctx context.Context, id string) (*Execution, error) {
	list, err := s.driver.ListExecutions(ctx, &FindExecution{ID: &id, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) DeleteExecutions(ctx context.Context, delete *DeleteExecution) (int64, error) {
	return s.driver.DeleteExecutions(ctx, delete)
}

func (s *Store) ListTraceEvents(ctx context.Context, find *FindTraceEvent) ([]*TraceEvent, error) {
	return s.driver.ListTraceEvents(ctx, find)
}

func (s *Store) CreateEvaluation(ctx context.Context, create *Evaluation) (*Evaluation, error) {
	return s.driver.CreateEvaluation(ctx, create)
}

func (s *Store) ListEvaluations(ctx context.Context, find *FindEvaluation) ([]*Evaluation, error) {
	return s.driver.ListEvaluations(ctx, find)
}

// GetLatestEvaluation returns the most recent evaluation of an execution, or nil if none exists.
func (s *Store) GetLatestEvaluation(ctx context.Context, executionID string) (*Evaluation, error) {
	list, err := s.driver.ListEvaluations(ctx, &FindEvaluation{ExecutionID: &executionID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}
