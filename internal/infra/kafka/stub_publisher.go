package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/deadline-jail/internal/core/domain"
	"github.com/arklim/deadline-jail/internal/core/port"
	"github.com/arklim/deadline-jail/internal/infra/logger"
)

// StubPublisher logs events instead of sending them to Kafka. Used when no brokers are configured.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a logging event publisher.
func NewStubPublisher(log *zap.Logger) *StubPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &StubPublisher{logger: log}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, fields ...zap.Field) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	base := []zap.Field{
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
	}
	p.logger.Info("stub event published", append(base, fields...)...)
}

// PublishUserRegistered logs jail.user.registered events.
func (p *StubPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	p.logEvent(EventUserRegistered, event.UserID, event.RegisteredAt,
		zap.String("email", logger.MaskEmail(event.Email)),
	)
	return nil
}

// PublishTaskCompleted logs jail.task.completed events.
func (p *StubPublisher) PublishTaskCompleted(_ context.Context, event domain.TaskCompletedEvent) error {
	p.logEvent(EventTaskCompleted, event.UserID, event.CompletedAt,
		zap.String("task_id", event.TaskID),
		zap.Bool("overdue", event.Overdue),
	)
	return nil
}

// PublishTaskFailed logs jail.task.failed events.
func (p *StubPublisher) PublishTaskFailed(_ context.Context, event domain.TaskFailedEvent) error {
	fields := []zap.Field{
		zap.String("task_id", event.TaskID),
		zap.Bool("random_pick", event.RandomPick),
	}
	if event.ConsequenceID != nil {
		fields = append(fields, zap.String("consequence_id", *event.ConsequenceID))
	}
	p.logEvent(EventTaskFailed, event.UserID, event.FailedAt, fields...)
	return nil
}

// PublishConsequenceExecuted logs jail.consequence.executed events.
func (p *StubPublisher) PublishConsequenceExecuted(_ context.Context, event domain.ConsequenceExecutedEvent) error {
	p.logEvent(EventConsequenceExecuted, event.UserID, event.ExecutedAt,
		zap.String("execution_id", event.ExecutionID),
		zap.String("consequence_id", event.ConsequenceID),
		zap.String("consequence_type", string(event.ConsequenceType)),
		zap.String("severity", string(event.Severity)),
	)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
