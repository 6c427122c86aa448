package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/arklim/deadline-jail/internal/core/domain"
	"github.com/arklim/deadline-jail/internal/repository"
)

// TaskRepository implements port.TaskRepository.
type TaskRepository struct {
	db *sqlx.DB
}

type taskRow struct {
	ID              string         `db:"id"`
	UserID          string         `db:"user_id"`
	Title           string         `db:"title"`
	Description     string         `db:"description"`
	Deadline        int64          `db:"deadline"`
	DurationHours   int            `db:"duration_hours"`
	DurationMinutes int            `db:"duration_minutes"`
	ConsequenceID   sql.NullString `db:"consequence_id"`
	Status          string         `db:"status"`
	CreatedAt       int64          `db:"created_at"`
	CompletedAt     sql.NullInt64  `db:"completed_at"`
	FailedAt        sql.NullInt64  `db:"failed_at"`
}

func (r taskRow) toDomain() domain.Task {
	return domain.Task{
		ID:            r.ID,
		UserID:        r.UserID,
		Title:         r.Title,
		Description:   r.Description,
		Deadline:      fromMicros(r.Deadline),
		Duration:      domain.Duration{Hours: r.DurationHours, Minutes: r.DurationMinutes},
		ConsequenceID: stringPtr(r.ConsequenceID),
		Status:        domain.TaskStatus(r.Status),
		CreatedAt:     fromMicros(r.CreatedAt),
		CompletedAt:   timePtr(r.CompletedAt),
		FailedAt:      timePtr(r.FailedAt),
	}
}

const taskColumns = `id, user_id, title, description, deadline, duration_hours, duration_minutes,
	consequence_id, status, created_at, completed_at, failed_at`

// Create inserts a task. The autoincrement seq column keeps insertion order.
func (r *TaskRepository) Create(ctx context.Context, task domain.Task) error {
	err := withBusyRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			task.ID, task.UserID, task.Title, task.Description, toMicros(task.Deadline),
			task.Duration.Hours, task.Duration.Minutes, nullableString(task.ConsequenceID),
			string(task.Status), toMicros(task.CreatedAt),
			nullableMicros(task.CompletedAt), nullableMicros(task.FailedAt),
		)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetByID retrieves a task by identifier.
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	var row taskRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select task: %w", err)
	}
	task := row.toDomain()
	return &task, nil
}

// ListByUser returns the user's tasks in insertion order, optionally filtered by status.
func (r *TaskRepository) ListByUser(ctx context.Context, userID string, filter domain.TaskFilter) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = ?`
	args := []any{userID}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY seq ASC`

	var rows []taskRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	tasks := make([]domain.Task, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, row.toDomain())
	}
	return tasks, nil
}

// Update overwrites the mutable columns of a task that is still active. The status guard
// makes terminal transitions compare-and-set, so two racing transitions cannot both land.
func (r *TaskRepository) Update(ctx context.Context, task domain.Task) error {
	var result sql.Result
	err := withBusyRetry(ctx, func() error {
		var err error
		result, err = r.db.ExecContext(ctx, `
			UPDATE tasks SET
				title = ?, description = ?, deadline = ?,
				duration_hours = ?, duration_minutes = ?, consequence_id = ?,
				status = ?, completed_at = ?, failed_at = ?
			WHERE id = ? AND status = ?`,
			task.Title, task.Description, toMicros(task.Deadline),
			task.Duration.Hours, task.Duration.Minutes, nullableString(task.ConsequenceID),
			string(task.Status), nullableMicros(task.CompletedAt), nullableMicros(task.FailedAt),
			task.ID, string(domain.TaskStatusActive),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return r.missingOrConflict(ctx, task.ID)
	}
	return nil
}

// missingOrConflict explains a guarded update that touched no rows.
func (r *TaskRepository) missingOrConflict(ctx context.Context, id string) error {
	var status string
	if err := r.db.GetContext(ctx, &status, `SELECT status FROM tasks WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("select task status: %w", err)
	}
	return repository.ErrConflict
}

// Delete removes the task owned by userID. Missing rows are not an error.
func (r *TaskRepository) Delete(ctx context.Context, userID, id string) error {
	err := withBusyRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND user_id = ?`, id, userID)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}
