package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/deadline-jail/internal/core/domain"
	"github.com/arklim/deadline-jail/internal/core/port"
	"github.com/arklim/deadline-jail/internal/infra/logger"
	"github.com/arklim/deadline-jail/internal/repository"
)

const (
	selectionExplicit = "explicit"
	selectionRandom   = "random"

	tracerName = "github.com/arklim/deadline-jail/internal/usecase"
)

// FailureOutcome reports what happened when a task was failed.
type FailureOutcome struct {
	Task domain.Task
	// Consequence is the executed consequence, nil when none was available or the call was a no-op.
	Consequence *domain.Consequence
	// Random is true when the consequence was picked at random rather than assigned.
	Random bool
}

type nopLifecycleMetrics struct{}

func (nopLifecycleMetrics) TaskTransitioned(domain.TaskStatus) {}

func (nopLifecycleMetrics) ConsequenceExecuted(domain.ConsequenceType, string) {}

// LifecycleController drives the task state machine and triggers consequences on failure.
type LifecycleController struct {
	tasks        port.TaskRepository
	consequences *ConsequenceService
	events       port.EventPublisher
	metrics      port.LifecycleMetrics
	tracer       trace.Tracer
	logger       *zap.Logger
	now          func() time.Time
}

// NewLifecycleController constructs a LifecycleController.
func NewLifecycleController(tasks port.TaskRepository, consequences *ConsequenceService, logger *zap.Logger) *LifecycleController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleController{
		tasks:        tasks,
		consequences: consequences,
		metrics:      nopLifecycleMetrics{},
		tracer:       otel.Tracer(tracerName),
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithEventPublisher publishes TaskCompleted and TaskFailed events.
func (c *LifecycleController) WithEventPublisher(events port.EventPublisher) *LifecycleController {
	c.events = events
	return c
}

// WithMetrics records transitions and executions.
func (c *LifecycleController) WithMetrics(metrics port.LifecycleMetrics) *LifecycleController {
	if metrics != nil {
		c.metrics = metrics
	}
	return c
}

// WithTracer overrides the tracer used for transition spans.
func (c *LifecycleController) WithTracer(tracer trace.Tracer) *LifecycleController {
	if tracer != nil {
		c.tracer = tracer
	}
	return c
}

// WithClock overrides the internal clock for deterministic tests.
func (c *LifecycleController) WithClock(clock func() time.Time) *LifecycleController {
	if clock != nil {
		c.now = clock
	}
	return c
}

func (c *LifecycleController) loadTask(ctx context.Context, userID, taskID string) (domain.Task, error) {
	task, err := c.tasks.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Task{}, ErrTaskNotFound
		}
		return domain.Task{}, fmt.Errorf("get task: %w", err)
	}
	if task.UserID != userID {
		return domain.Task{}, ErrTaskNotFound
	}
	return *task, nil
}

// settleLostTransition resolves a guarded write that found the task already terminal.
// Landing in the wanted state is a no-op; any other terminal state is an invalid transition.
func (c *LifecycleController) settleLostTransition(ctx context.Context, userID, taskID string, target domain.TaskStatus) (domain.Task, error) {
	current, err := c.loadTask(ctx, userID, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if current.Status == target {
		return current, nil
	}
	return domain.Task{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, target)
}

// Complete moves an active task to completed. Completing a completed task is a no-op.
func (c *LifecycleController) Complete(ctx context.Context, userID, taskID string) (domain.Task, error) {
	ctx, span := c.tracer.Start(ctx, "lifecycle.complete", trace.WithAttributes(
		attribute.String("task.id", taskID),
	))
	defer span.End()

	task, err := c.loadTask(ctx, userID, taskID)
	if err != nil {
		recordSpanError(span, err)
		return domain.Task{}, err
	}

	now := c.now()
	overdue := task.IsOverdue(now)
	changed, err := task.Complete(now)
	if err != nil {
		recordSpanError(span, err)
		return domain.Task{}, err
	}
	span.SetAttributes(attribute.Bool("task.changed", changed))
	if !changed {
		return task, nil
	}

	if err := c.tasks.Update(ctx, task); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			settled, err := c.settleLostTransition(ctx, userID, taskID, domain.TaskStatusCompleted)
			if err != nil {
				recordSpanError(span, err)
				return domain.Task{}, err
			}
			span.SetAttributes(attribute.Bool("task.changed", false))
			return settled, nil
		}
		recordSpanError(span, err)
		return domain.Task{}, fmt.Errorf("update task: %w", err)
	}
	c.metrics.TaskTransitioned(domain.TaskStatusCompleted)

	log := logger.WithContext(ctx).With(zap.String("user_id", userID), zap.String("task_id", task.ID))
	log.Info("task completed", zap.Bool("overdue", overdue))

	if c.events != nil {
		event := domain.TaskCompletedEvent{
			EventID:     uuid.NewString(),
			UserID:      userID,
			TaskID:      task.ID,
			Title:       task.Title,
			CompletedAt: *task.CompletedAt,
			Overdue:     overdue,
		}
		if err := c.events.PublishTaskCompleted(ctx, event); err != nil {
			log.Warn("publish task completed event failed", zap.Error(err))
		}
	}

	return task, nil
}

// Fail moves an active task to failed. The assigned consequence is executed, or a random
// enabled one when none is assigned or the assignment no longer resolves. The status write
// lands first, so only the caller that wins the transition executes anything. Consequence
// problems never block the transition. Failing a failed task is a no-op and executes nothing.
func (c *LifecycleController) Fail(ctx context.Context, userID, taskID string) (FailureOutcome, error) {
	ctx, span := c.tracer.Start(ctx, "lifecycle.fail", trace.WithAttributes(
		attribute.String("task.id", taskID),
	))
	defer span.End()

	task, err := c.loadTask(ctx, userID, taskID)
	if err != nil {
		recordSpanError(span, err)
		return FailureOutcome{}, err
	}

	switch task.Status {
	case domain.TaskStatusFailed:
		span.SetAttributes(attribute.Bool("task.changed", false))
		return FailureOutcome{Task: task}, nil
	case domain.TaskStatusActive:
	default:
		err := fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, task.Status, domain.TaskStatusFailed)
		recordSpanError(span, err)
		return FailureOutcome{}, err
	}

	if _, err := task.Fail(c.now()); err != nil {
		recordSpanError(span, err)
		return FailureOutcome{}, err
	}
	if err := c.tasks.Update(ctx, task); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			settled, err := c.settleLostTransition(ctx, userID, taskID, domain.TaskStatusFailed)
			if err != nil {
				recordSpanError(span, err)
				return FailureOutcome{}, err
			}
			span.SetAttributes(attribute.Bool("task.changed", false))
			return FailureOutcome{Task: settled}, nil
		}
		recordSpanError(span, err)
		return FailureOutcome{}, fmt.Errorf("update task: %w", err)
	}
	c.metrics.TaskTransitioned(domain.TaskStatusFailed)
	span.SetAttributes(attribute.Bool("task.changed", true))

	log := logger.WithContext(ctx).With(zap.String("user_id", userID), zap.String("task_id", task.ID))

	consequence, random := c.selectConsequence(ctx, userID, task, log)
	if consequence != nil {
		taskRef := task.ID
		execution, err := c.consequences.RecordExecution(ctx, userID, consequence.ID, &taskRef)
		switch {
		case err != nil:
			log.Warn("record consequence execution failed", zap.String("consequence_id", consequence.ID), zap.Error(err))
		case execution != nil:
			selection := selectionExplicit
			if random {
				selection = selectionRandom
			}
			c.metrics.ConsequenceExecuted(consequence.Type, selection)
			span.SetAttributes(
				attribute.String("consequence.id", consequence.ID),
				attribute.String("consequence.selection", selection),
			)
		}
	}

	log.Info("task failed", zap.Bool("consequence_executed", consequence != nil), zap.Bool("random", random))

	if c.events != nil {
		event := domain.TaskFailedEvent{
			EventID:    uuid.NewString(),
			UserID:     userID,
			TaskID:     task.ID,
			Title:      task.Title,
			FailedAt:   *task.FailedAt,
			RandomPick: random,
		}
		if consequence != nil {
			id := consequence.ID
			event.ConsequenceID = &id
		}
		if err := c.events.PublishTaskFailed(ctx, event); err != nil {
			log.Warn("publish task failed event failed", zap.Error(err))
		}
	}

	return FailureOutcome{Task: task, Consequence: consequence, Random: random}, nil
}

// selectConsequence resolves the assigned consequence, falling back to a random pick.
// Lookup errors are logged and treated as "nothing to execute".
func (c *LifecycleController) selectConsequence(ctx context.Context, userID string, task domain.Task, log *zap.Logger) (*domain.Consequence, bool) {
	if c.consequences == nil {
		return nil, false
	}

	if task.HasConsequence() {
		assigned, err := c.consequences.enabledOwned(ctx, userID, *task.ConsequenceID)
		if err == nil {
			return assigned, false
		}
		if !errors.Is(err, ErrNotFound) {
			log.Warn("lookup assigned consequence failed", zap.String("consequence_id", *task.ConsequenceID), zap.Error(err))
			return nil, false
		}
		log.Info("assigned consequence unavailable, choosing at random", zap.String("consequence_id", *task.ConsequenceID))
	}

	picked, err := c.consequences.SelectRandom(ctx, userID)
	if err != nil {
		log.Warn("random consequence selection failed", zap.Error(err))
		return nil, false
	}
	return picked, picked != nil
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
