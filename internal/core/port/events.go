package port

import (
	"context"

	"github.com/arklim/deadline-jail/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error
	PublishTaskCompleted(ctx context.Context, event domain.TaskCompletedEvent) error
	PublishTaskFailed(ctx context.Context, event domain.TaskFailedEvent) error
	PublishConsequenceExecuted(ctx context.Context, event domain.ConsequenceExecutedEvent) error
}
