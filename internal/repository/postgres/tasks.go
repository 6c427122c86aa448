package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/deadline-jail/internal/core/domain"
	"github.com/arklim/deadline-jail/internal/repository"
)

var taskColumns = []string{
	"id",
	"user_id",
	"title",
	"description",
	"deadline",
	"duration_hours",
	"duration_minutes",
	"consequence_id",
	"status",
	"created_at",
	"completed_at",
	"failed_at",
}

// TaskRepository implements port.TaskRepository using PostgreSQL.
type TaskRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewTaskRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewTaskRepository(exec pgExecutor) *TaskRepository {
	return &TaskRepository{exec: exec, builder: statementBuilder()}
}

// WithTx returns a repository instance that executes statements within the supplied transaction.
func (r *TaskRepository) WithTx(tx pgx.Tx) *TaskRepository {
	if tx == nil {
		return r
	}
	return &TaskRepository{exec: tx, builder: r.builder}
}

// Create inserts a task. The seq column (bigserial) records insertion order.
func (r *TaskRepository) Create(ctx context.Context, task domain.Task) error {
	stmt, args, err := r.builder.Insert("jail.tasks").
		Columns(taskColumns...).
		Values(
			task.ID,
			task.UserID,
			task.Title,
			task.Description,
			task.Deadline.UTC(),
			task.Duration.Hours,
			task.Duration.Minutes,
			task.ConsequenceID,
			string(task.Status),
			task.CreatedAt.UTC(),
			utcPtr(task.CompletedAt),
			utcPtr(task.FailedAt),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert task sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetByID retrieves a task by identifier.
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	stmt, args, err := r.builder.Select(taskColumns...).
		From("jail.tasks").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select task sql: %w", err)
	}

	task, err := scanTask(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	return &task, nil
}

// ListByUser returns the user's tasks in insertion order.
func (r *TaskRepository) ListByUser(ctx context.Context, userID string, filter domain.TaskFilter) ([]domain.Task, error) {
	query := r.builder.Select(taskColumns...).
		From("jail.tasks").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("seq ASC")
	if filter.Status != "" {
		query = query.Where(squirrel.Eq{"status": string(filter.Status)})
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list tasks sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]domain.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// Update overwrites the mutable columns of a task that is still active.
func (r *TaskRepository) Update(ctx context.Context, task domain.Task) error {
	stmt, args, err := r.builder.Update("jail.tasks").
		Set("title", task.Title).
		Set("description", task.Description).
		Set("deadline", task.Deadline.UTC()).
		Set("duration_hours", task.Duration.Hours).
		Set("duration_minutes", task.Duration.Minutes).
		Set("consequence_id", task.ConsequenceID).
		Set("status", string(task.Status)).
		Set("completed_at", utcPtr(task.CompletedAt)).
		Set("failed_at", utcPtr(task.FailedAt)).
		Where(squirrel.Eq{"id": task.ID, "status": string(domain.TaskStatusActive)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update task sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrConflict(ctx, task.ID)
	}
	return nil
}

// missingOrConflict explains a guarded update that touched no rows.
func (r *TaskRepository) missingOrConflict(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Select("status").
		From("jail.tasks").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build select task status sql: %w", err)
	}

	var status string
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("select task status: %w", err)
	}
	return repository.ErrConflict
}

// Delete removes the task owned by userID. Missing rows are not an error.
func (r *TaskRepository) Delete(ctx context.Context, userID, id string) error {
	stmt, args, err := r.builder.Delete("jail.tasks").
		Where(squirrel.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete task sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

func scanTask(row pgx.Row) (domain.Task, error) {
	var (
		task   domain.Task
		status string
	)
	if err := row.Scan(
		&task.ID,
		&task.UserID,
		&task.Title,
		&task.Description,
		&task.Deadline,
		&task.Duration.Hours,
		&task.Duration.Minutes,
		&task.ConsequenceID,
		&status,
		&task.CreatedAt,
		&task.CompletedAt,
		&task.FailedAt,
	); err != nil {
		return domain.Task{}, err
	}
	task.Status = domain.TaskStatus(status)
	task.Deadline = task.Deadline.UTC()
	task.CreatedAt = task.CreatedAt.UTC()
	task.CompletedAt = utcPtr(task.CompletedAt)
	task.FailedAt = utcPtr(task.FailedAt)
	return task, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
