package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/verdict/store"
)

func (d *DB) UpsertExecutionTrace(ctx context.Context, execution *store.Execution, events []*store.TraceEvent) error {
	if execution == nil {
		return errors.New("execution cannot be nil")
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM trace_event WHERE execution_id = ?", execution.ID); err != nil {
		return errors.Wrap(err, "failed to delete previous trace events")
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM execution WHERE id = ?", execution.ID); err != nil {
		return errors.Wrap(err, "failed to delete previous execution")
	}

	createdTs := execution.CreatedTs
	if createdTs == 0 {
		createdTs = time.Now().Unix()
	}
	fields := []string{"id", "start_ts", "end_ts", "agent_count", "interaction_count", "tool_call_count", "coordination_count", "total_duration_ms", "avg_tool_duration_ms", "created_ts"}
	args := []any{
		execution.ID, toMicros(execution.StartedAt), toMicros(execution.EndedAt),
		execution.AgentCount, execution.InteractionCount, execution.ToolCallCount, execution.CoordinationCount,
		execution.TotalDurationMs, execution.AvgToolDurationMs, createdTs,
	}
	stmt := "INSERT INTO execution (" + strings.Join(fields, ", ") + ") VALUES (" + placeholders(len(args)) + ")"
	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrap(err, "failed to insert execution")
	}

	insertEvent, err := tx.PrepareContext(ctx, "INSERT INTO trace_event (execution_id, event_ts, kind, agent_id, payload) VALUES ("+placeholders(5)+")")
	if err != nil {
		return errors.Wrap(err, "failed to prepare trace event insert")
	}
	defer insertEvent.Close()
	for _, event := range events {
		payload := event.Payload
		if payload == "" {
			payload = "{}"
		}
		if _, err := insertEvent.ExecContext(ctx, execution.ID, toMicros(event.Timestamp), event.Kind, event.AgentID, payload); err != nil {
			return errors.Wrap(err, "failed to insert trace event")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit execution trace")
	}
	execution.CreatedTs = createdTs
	return nil
}

func (d *DB) ListExecutions(ctx context.Context, find *store.FindExecution) ([]*store.Execution, error) {
	if find == nil {
		return nil, errors.New("find parameter cannot be nil")
	}

	where, args := []string{"1 = 1"}, []any{}
	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}

	query := fmt.Sprintf(`
		SELECT id, start_ts, end_ts, agent_count, interaction_count, tool_call_count, coordination_count, total_duration_ms, avg_tool_duration_ms, created_ts
		FROM execution
		WHERE %s
		ORDER BY created_ts DESC, start_ts DESC
	`, strings.Join(where, " AND "))
	if limit := clampLimit(find.Limit); limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list executions")
	}
	defer rows.Close()

	list := []*store.Execution{}
	for rows.Next() {
		var execution store.Execution
		var startTs, endTs int64
		if err := rows.Scan(
			&execution.ID, &startTs, &endTs,
			&execution.AgentCount, &execution.InteractionCount, &execution.ToolCallCount, &execution.CoordinationCount,
			&execution.TotalDurationMs, &execution.AvgToolDurationMs, &execution.CreatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan execution")
		}
		execution.StartedAt, execution.EndedAt = fromMicros(startTs), fromMicros(endTs)
		list = append(list, &execution)
	}
	return list, rows.Err()
}

func (d *DB) DeleteExecutions(ctx context.Context, delete *store.DeleteExecution) (int64, error) {
	if delete == nil || delete.BeforeTime == nil {
		return 0, errors.New("before_time is required for deletion")
	}
	before := delete.BeforeTime.Unix()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM trace_event WHERE execution_id IN (SELECT id FROM execution WHERE created_ts < ?)", before); err != nil {
		return 0, errors.Wrap(err, "failed to delete trace events")
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM evaluation WHERE execution_id IN (SELECT id FROM execution WHERE created_ts < ?)", before); err != nil {
		return 0, errors.Wrap(err, "failed to delete evaluations")
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM execution WHERE created_ts < ?", before)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete executions")
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count deleted executions")
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "failed to commit deletion")
	}
	return deleted, nil
}

func (d *DB) ListTraceEvents(ctx context.Context, find *store.FindTraceEvent) ([]*store.TraceEvent, error) {
	if find == nil {
		return nil, errors.New("find parameter cannot be nil")
	}

	where, args := []string{"1 = 1"}, []any{}
	if find.ExecutionID != nil {
		where, args = append(where, "execution_id = ?"), append(args, *find.ExecutionID)
	}
	if find.Kind != nil {
		where, args = append(where, "kind = ?"), append(args, *find.Kind)
	}
	if find.FromTime != nil {
		where, args = append(where, "event_ts >= ?"), append(args, toMicros(*find.FromTime))
	}
	if find.ToTime != nil {
		where, args = append(where, "event_ts <= ?"), append(args, toMicros(*find.ToTime))
	}

	query := fmt.Sprintf(`
		SELECT id, execution_id, event_ts, kind, agent_id, payload
		FROM trace_event
		WHERE %s
		ORDER BY event_ts ASC, id ASC
	`, strings.Join(where, " AND "))
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list trace events")
	}
	defer rows.Close()

	list := []*store.TraceEvent{}
	for rows.Next() {
		var event store.TraceEvent
		var eventTs int64
		if err := rows.Scan(&event.ID, &event.ExecutionID, &eventTs, &event.Kind, &event.AgentID, &event.Payload); err != nil {
			return nil, errors.Wrap(err, "failed to scan trace event")
		}
		event.Timestamp = fromMicros(eventTs)
		list = append(list, &event)
	}
	return list, rows.Err()
}
