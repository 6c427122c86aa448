package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/deadline-jail/internal/core/domain"
	"github.com/arklim/deadline-jail/internal/core/port"
	"github.com/arklim/deadline-jail/internal/infra/logger"
	"github.com/arklim/deadline-jail/internal/repository"
)

// TaskService implements task CRUD scoped to the acting user.
type TaskService struct {
	tasks        port.TaskRepository
	consequences *ConsequenceService
	lifecycle    *LifecycleController
	logger       *zap.Logger
	now          func() time.Time
}

// NewTaskService constructs a TaskService. Status changes requested through UpdateTask are
// delegated to lifecycle.
func NewTaskService(tasks port.TaskRepository, consequences *ConsequenceService, lifecycle *LifecycleController, logger *zap.Logger) *TaskService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskService{
		tasks:        tasks,
		consequences: consequences,
		lifecycle:    lifecycle,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *TaskService) WithClock(clock func() time.Time) *TaskService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// CreateTask validates input and stores a new active task.
func (s *TaskService) CreateTask(ctx context.Context, userID string, input domain.TaskInput) (domain.TaskView, error) {
	now := s.now()

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return domain.TaskView{}, domain.NewValidationError("title", "title is required")
	}
	description := strings.TrimSpace(input.Description)
	if description == "" {
		return domain.TaskView{}, domain.NewValidationError("description", "description is required")
	}
	if input.Deadline == nil || input.Deadline.IsZero() {
		return domain.TaskView{}, domain.NewValidationError("deadline", "deadline is required")
	}
	if err := validateDeadline(*input.Deadline, now); err != nil {
		return domain.TaskView{}, err
	}
	if err := input.Duration.Validate(); err != nil {
		return domain.TaskView{}, err
	}

	consequenceID, err := s.resolveConsequenceRef(ctx, userID, input.ConsequenceID)
	if err != nil {
		return domain.TaskView{}, err
	}

	task := domain.Task{
		ID:            uuid.NewString(),
		UserID:        userID,
		Title:         title,
		Description:   description,
		Deadline:      input.Deadline.UTC(),
		Duration:      input.Duration,
		ConsequenceID: consequenceID,
		Status:        domain.TaskStatusActive,
		CreatedAt:     now,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return domain.TaskView{}, fmt.Errorf("create task: %w", err)
	}

	logger.WithContext(ctx).Info("task created",
		zap.String("user_id", userID),
		zap.String("task_id", task.ID),
		zap.Time("deadline", task.Deadline),
	)

	return domain.NewTaskView(task, now), nil
}

// ListTasks returns the user's tasks in creation order with derived overdue flags.
func (s *TaskService) ListTasks(ctx context.Context, userID string, filter domain.TaskFilter) ([]domain.TaskView, error) {
	tasks, err := s.tasks.ListByUser(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	now := s.now()
	views := make([]domain.TaskView, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, domain.NewTaskView(task, now))
	}
	return views, nil
}

// GetTask returns one task owned by userID.
func (s *TaskService) GetTask(ctx context.Context, userID, id string) (domain.TaskView, error) {
	task, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return domain.TaskView{}, err
	}
	return domain.NewTaskView(task, s.now()), nil
}

// UpdateTask applies a partial update. Field edits require an active task. A status in the
// patch is applied after the field edits through the lifecycle controller, so failing via
// update executes a consequence exactly like Fail does.
func (s *TaskService) UpdateTask(ctx context.Context, userID, id string, patch domain.TaskPatch) (domain.TaskView, error) {
	task, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return domain.TaskView{}, err
	}
	if patch.IsEmpty() {
		return domain.NewTaskView(task, s.now()), nil
	}

	if patch.HasFieldEdits() {
		if task.Status != domain.TaskStatusActive {
			return domain.TaskView{}, fmt.Errorf("%w: cannot edit %s task", domain.ErrInvalidTransition, task.Status)
		}
		if err := s.applyFieldEdits(ctx, userID, &task, patch); err != nil {
			return domain.TaskView{}, err
		}
		if err := s.tasks.Update(ctx, task); err != nil {
			switch {
			case errors.Is(err, repository.ErrNotFound):
				return domain.TaskView{}, ErrTaskNotFound
			case errors.Is(err, repository.ErrConflict):
				return domain.TaskView{}, fmt.Errorf("%w: task left the active state during edit", domain.ErrInvalidTransition)
			}
			return domain.TaskView{}, fmt.Errorf("update task: %w", err)
		}
	}

	if patch.Status != nil {
		switch *patch.Status {
		case domain.TaskStatusActive:
			if task.Status != domain.TaskStatusActive {
				return domain.TaskView{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, task.Status, domain.TaskStatusActive)
			}
		case domain.TaskStatusCompleted:
			if task, err = s.lifecycle.Complete(ctx, userID, id); err != nil {
				return domain.TaskView{}, err
			}
		case domain.TaskStatusFailed:
			outcome, err := s.lifecycle.Fail(ctx, userID, id)
			if err != nil {
				return domain.TaskView{}, err
			}
			task = outcome.Task
		default:
			return domain.TaskView{}, domain.NewValidationError("status", fmt.Sprintf("unknown status %q", *patch.Status))
		}
	}

	return domain.NewTaskView(task, s.now()), nil
}

func (s *TaskService) applyFieldEdits(ctx context.Context, userID string, task *domain.Task, patch domain.TaskPatch) error {
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return domain.NewValidationError("title", "title cannot be empty")
		}
		task.Title = title
	}
	if patch.Description != nil {
		description := strings.TrimSpace(*patch.Description)
		if description == "" {
			return domain.NewValidationError("description", "description cannot be empty")
		}
		task.Description = description
	}
	if patch.Deadline != nil {
		if err := validateDeadline(*patch.Deadline, s.now()); err != nil {
			return err
		}
		task.Deadline = patch.Deadline.UTC()
	}

	duration := task.Duration
	if patch.DurationHours != nil {
		duration.Hours = *patch.DurationHours
	}
	if patch.DurationMinutes != nil {
		duration.Minutes = *patch.DurationMinutes
	}
	if patch.DurationHours != nil || patch.DurationMinutes != nil {
		if err := duration.Validate(); err != nil {
			return err
		}
		task.Duration = duration
	}

	switch {
	case patch.ClearConsequence:
		task.ConsequenceID = nil
	case patch.ConsequenceID != nil:
		ref, err := s.resolveConsequenceRef(ctx, userID, patch.ConsequenceID)
		if err != nil {
			return err
		}
		task.ConsequenceID = ref
	}
	return nil
}

// DeleteTask removes the task. Absent ids succeed.
func (s *TaskService) DeleteTask(ctx context.Context, userID, id string) error {
	if err := s.tasks.Delete(ctx, userID, id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

func (s *TaskService) getOwned(ctx context.Context, userID, id string) (domain.Task, error) {
	task, err := s.tasks.GetByID(ctx, id)
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

// resolveConsequenceRef accepts nil or empty as "no assignment"; anything else must name an
// enabled consequence owned by userID.
func (s *TaskService) resolveConsequenceRef(ctx context.Context, userID string, ref *string) (*string, error) {
	if ref == nil || strings.TrimSpace(*ref) == "" {
		return nil, nil
	}
	id := strings.TrimSpace(*ref)
	if s.consequences == nil {
		return nil, domain.NewValidationError("consequence", "consequences are not available")
	}
	if _, err := s.consequences.enabledOwned(ctx, userID, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, domain.NewValidationError("consequence", "consequence does not exist or is disabled")
		}
		return nil, err
	}
	return &id, nil
}

// latestDeadline is the last instant RFC 3339 can represent with a four digit year.
var latestDeadline = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

func validateDeadline(deadline, now time.Time) error {
	if !deadline.After(now) {
		return domain.NewValidationError("deadline", "deadline must be in the future")
	}
	if deadline.After(latestDeadline) {
		return domain.NewValidationError("deadline", "deadline must be before the year 10000")
	}
	return nil
}
