package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/arklim/deadline-jail/internal/core/domain"
	"github.com/arklim/deadline-jail/internal/repository"
)

// ExecutionLog implements port.ExecutionLog using PostgreSQL.
type ExecutionLog struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewExecutionLog constructs the append-only execution log.
func NewExecutionLog(exec pgExecutor) *ExecutionLog {
	return &ExecutionLog{exec: exec, builder: statementBuilder()}
}

// Append records an execution with its consequence snapshot (jsonb).
func (l *ExecutionLog) Append(ctx context.Context, execution domain.ConsequenceExecution) error {
	snapshot, err := repository.EncodeSnapshot(execution.Snapshot)
	if err != nil {
		return err
	}

	stmt, args, err := l.builder.Insert("jail.consequence_executions").
		Columns("id", "user_id", "consequence_id", "task_id", "snapshot", "executed_at").
		Values(
			execution.ID,
			execution.UserID,
			execution.ConsequenceID,
			execution.TaskID,
			snapshot,
			execution.ExecutedAt.UTC(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert execution sql: %w", err)
	}

	if _, err := l.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("append execution: %w", err)
	}
	return nil
}

// ListByUser returns the user's executions newest first.
func (l *ExecutionLog) ListByUser(ctx context.Context, userID string) ([]domain.ConsequenceExecution, error) {
	stmt, args, err := l.builder.
		Select("id", "user_id", "consequence_id", "task_id", "snapshot", "executed_at").
		From("jail.consequence_executions").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("seq DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list executions sql: %w", err)
	}

	rows, err := l.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ConsequenceExecution, 0)
	for rows.Next() {
		var (
			execution domain.ConsequenceExecution
			snapshot  []byte
		)
		if err := rows.Scan(
			&execution.ID,
			&execution.UserID,
			&execution.ConsequenceID,
			&execution.TaskID,
			&snapshot,
			&execution.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		decoded, err := repository.DecodeSnapshot(snapshot)
		if err != nil {
			return nil, fmt.Errorf("execution %s: %w", execution.ID, err)
		}
		execution.Snapshot = decoded
		execution.ExecutedAt = execution.ExecutedAt.UTC()
		out = append(out, execution)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executions: %w", err)
	}
	return out, nil
}
