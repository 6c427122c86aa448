package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/arklim/deadline-jail/internal/core/domain"
	"github.com/arklim/deadline-jail/internal/repository"
)

// ExecutionLog implements port.ExecutionLog. Rows are never updated or deleted
// except through the owning user's cascade.
type ExecutionLog struct {
	db *sqlx.DB
}

type executionRow struct {
	ID            string         `db:"id"`
	UserID        string         `db:"user_id"`
	ConsequenceID string         `db:"consequence_id"`
	TaskID        sql.NullString `db:"task_id"`
	Snapshot      string         `db:"snapshot"`
	ExecutedAt    int64          `db:"executed_at"`
}

// Append records an execution together with its consequence snapshot.
func (l *ExecutionLog) Append(ctx context.Context, execution domain.ConsequenceExecution) error {
	snapshot, err := repository.EncodeSnapshot(execution.Snapshot)
	if err != nil {
		return err
	}
	err = withBusyRetry(ctx, func() error {
		_, err := l.db.ExecContext(ctx, `
			INSERT INTO consequence_executions (id, user_id, consequence_id, task_id, snapshot, executed_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			execution.ID, execution.UserID, execution.ConsequenceID,
			nullableString(execution.TaskID), string(snapshot), toMicros(execution.ExecutedAt),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("append execution: %w", err)
	}
	return nil
}

// ListByUser returns the user's executions newest first.
func (l *ExecutionLog) ListByUser(ctx context.Context, userID string) ([]domain.ConsequenceExecution, error) {
	var rows []executionRow
	err := l.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, consequence_id, task_id, snapshot, executed_at
		FROM consequence_executions
		WHERE user_id = ?
		ORDER BY seq DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}

	out := make([]domain.ConsequenceExecution, 0, len(rows))
	for _, row := range rows {
		snapshot, err := repository.DecodeSnapshot([]byte(row.Snapshot))
		if err != nil {
			return nil, fmt.Errorf("execution %s: %w", row.ID, err)
		}
		out = append(out, domain.ConsequenceExecution{
			ID:            row.ID,
			UserID:        row.UserID,
			ConsequenceID: row.ConsequenceID,
			TaskID:        stringPtr(row.TaskID),
			Snapshot:      snapshot,
			ExecutedAt:    fromMicros(row.ExecutedAt),
		})
	}
	return out, nil
}
