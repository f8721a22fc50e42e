package postgres

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
	if create.Result == "" {
		create.Result = "{}"
	}

	query := `
		INSERT INTO evaluation (uid, execution_id, composite_score, recommendation, evaluation_complete, single_agent_mode, result, created_ts)
		VALUES (` + placeholders(8) + `)
		RETURNING id
	`
	if err := d.db.QueryRowContext(ctx, query,
		create.UID, create.ExecutionID, create.CompositeScore, create.Recommendation,
		create.EvaluationComplete, create.SingleAgentMode, create.Result, create.CreatedTs,
	).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create evaluation")
	}
	return create, nil
}

func (d *DB) ListEvaluations(ctx context.Context, find *store.FindEvaluation) ([]*store.Evaluation, error) {
	if find == nil {
		return nil, errors.New("find parameter cannot be nil")
	}

	where, args := []string{"1 = 1"}, []any{}
	argIndex := 1
	if find.UID != nil {
		where = append(where, fmt.Sprintf("uid = %s", placeholder(argIndex)))
		args = append(args, *find.UID)
		argIndex++
	}
	if find.ExecutionID != nil {
		where = append(where, fmt.Sprintf("execution_id = %s", placeholder(argIndex)))
		args = append(args, *find.ExecutionID)
		argIndex++
	}

	query := fmt.Sprintf(`
		SELECT id, uid, execution_id, composite_score, recommendation, evaluation_complete, single_agent_mode, result::TEXT, created_ts
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
