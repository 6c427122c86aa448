package port

import (
	"context"
	"time"

	"github.com/arklim/deadline-jail/internal/core/domain"
)

// ConsequenceRepository persists consequence definitions.
type ConsequenceRepository interface {
	Create(ctx context.Context, consequence domain.Consequence) error
	GetByID(ctx context.Context, id string) (*domain.Consequence, error)
	ListByUser(ctx context.Context, userID string, filter domain.ConsequenceFilter) ([]domain.Consequence, error)
	Update(ctx context.Context, consequence domain.Consequence) error
	Delete(ctx context.Context, userID, id string) error
	MarkExecuted(ctx context.Context, id string, at time.Time) error
}

// ExecutionLog is the append-only record of triggered consequences.
type ExecutionLog interface {
	Append(ctx context.Context, execution domain.ConsequenceExecution) error
	// ListByUser returns executions newest first.
	ListByUser(ctx context.Context, userID string) ([]domain.ConsequenceExecution, error)
}
