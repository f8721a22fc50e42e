package store

// Evaluation is a persisted composite evaluation of an execution.
type Evaluation struct {
	ID                 int64
	UID                string
	ExecutionID        string
	CompositeScore     float64
	Recommendation     string
	EvaluationComplete bool
	SingleAgentMode    bool
	// Result is the JSON encoded evaluation outcome, including per-tier results.
	Result    string
	CreatedTs int64
}

// FindEvaluation specifies the conditions for finding evaluations.
type FindEvaluation struct {
	UID         *string
	ExecutionID *string
	Limit       int
}
