package port

import (
	"context"

	"github.com/arklim/deadline-jail/internal/core/domain"
)

// TaskRepository persists tasks scoped to their owning user.
type TaskRepository interface {
	Create(ctx context.Context, task domain.Task) error
	GetByID(ctx context.Context, id string) (*domain.Task, error)
	// ListByUser returns the user's tasks in insertion order.
	ListByUser(ctx context.Context, userID string, filter domain.TaskFilter) ([]domain.Task, error)
	// Update overwrites a task that is still active in storage. It returns
	// repository.ErrConflict when the stored task is no longer active and
	// repository.ErrNotFound when it is missing.
	Update(ctx context.Context, task domain.Task) error
	// Delete removes the task owned by userID. Missing rows are not an error.
	Delete(ctx context.Context, userID, id string) error
}
