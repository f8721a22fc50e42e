package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/verdict/store"
)

func (d *DB) CreateEvaluation(ctx context.Context, create *store.Evaluation) (*store.Evaluation, error) {
	if create == nil {
		return nil, errors.New("create parameter cannot be nil")
	}
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	result := create.Result
	if result == "" {
		result = "{}"
	}

	fields := []string{"uid", "execution_id", "composite_score", "recommendation", "evaluation_complete", "single_agent_mode", "result", "created_ts"}
	args := []any{create.UID, create.ExecutionID, create.CompositeScore, create.Recommendation, create.EvaluationComplete, create.SingleAgentMode, result, create.CreatedTs}
	stmt := "INSERT INTO evaluation (" + strings.Join(fields, ", ") + ") VALUES (" + placeholders(len(args)) + ") RETURNING id"
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create evaluation")
	}
	create.Result = result
	return create, nil
}

func (d *DB) ListEvaluations(ctx context.Context, find *store.FindEvaluation) ([]*store.Evaluation, error) {
	if find == nil {
		return nil, errors.New("find parameter cannot be nil")
	}

	where, args := []string{"1 = 1"}, []any{}
	if find.UID != nil {
		where, args = append(where, "uid = ?"), append(args, *find.UID)
	}
	if find.ExecutionID != nil {
		where, args = append(where, "execution_id = ?"), append(args, *find.ExecutionID)
	}

	query := fmt.Sprintf(`
		SELECT id, uid, execution_id, composite_score, recommendation, evaluation_complete, single_agent_mode, result, created_ts
		FROM evaluation
		WHERE %s
		ORDER BY created_ts DESC, id DESC
	`, strings.Join(where, " AND "))
	if limit := clampLimit(find.Limit); limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list evaluations")
	}
	defer rows.Close()

	list := []*store.Evaluation{}
	for rows.Next() {
		var evaluation store.Evaluation
		if err := rows.Scan(
			&evaluation.ID, &evaluation.UID, &evaluation.ExecutionID, &evaluation.CompositeScore, &evaluation.Recommendation,
			&evaluation.EvaluationComplete, &evaluation.SingleAgentMode, &evaluation.Result, &evaluation.CreatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan evaluation")
		}
		list = append(list, &evaluation)
	}
	return list, rows.Err()
}
