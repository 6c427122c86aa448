package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/arklim/deadline-jail/internal/core/domain"
	"github.com/arklim/deadline-jail/internal/core/port"
)

// HistoryService builds the read-only timeline and dashboard counters.
type HistoryService struct {
	tasks      port.TaskRepository
	executions port.ExecutionLog
	now        func() time.Time
}

// NewHistoryService constructs a HistoryService.
func NewHistoryService(tasks port.TaskRepository, executions port.ExecutionLog) *HistoryService {
	return &HistoryService{
		tasks:      tasks,
		executions: executions,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *HistoryService) WithClock(clock func() time.Time) *HistoryService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Timeline merges finished tasks and consequence executions, newest first.
func (s *HistoryService) Timeline(ctx context.Context, userID string) ([]domain.TimelineEvent, error) {
	tasks, err := s.tasks.ListByUser(ctx, userID, domain.TaskFilter{})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	executions, err := s.executions.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}

	events := make([]domain.TimelineEvent, 0, len(tasks)+len(executions))
	for i := range tasks {
		task := tasks[i]
		switch {
		case task.Status == domain.TaskStatusCompleted && task.CompletedAt != nil:
			events = append(events, domain.TimelineEvent{Kind: domain.TimelineCompleted, At: *task.CompletedAt, Task: &task})
		case task.Status == domain.TaskStatusFailed && task.FailedAt != nil:
			events = append(events, domain.TimelineEvent{Kind: domain.TimelineFailed, At: *task.FailedAt, Task: &task})
		}
	}
	for i := range executions {
		execution := executions[i]
		events = append(events, domain.TimelineEvent{Kind: domain.TimelineConsequence, At: execution.ExecutedAt, Execution: &execution})
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].At.After(events[j].At)
	})
	return events, nil
}

// Stats counts the user's tasks by status, overdue tasks, and executions.
func (s *HistoryService) Stats(ctx context.Context, userID string) (domain.TaskStats, error) {
	tasks, err := s.tasks.ListByUser(ctx, userID, domain.TaskFilter{})
	if err != nil {
		return domain.TaskStats{}, fmt.Errorf("list tasks: %w", err)
	}
	executions, err := s.executions.ListByUser(ctx, userID)
	if err != nil {
		return domain.TaskStats{}, fmt.Errorf("list executions: %w", err)
	}

	now := s.now()
	stats := domain.TaskStats{Executions: len(executions)}
	for _, task := range tasks {
		switch task.Status {
		case domain.TaskStatusActive:
			stats.Active++
			if task.IsOverdue(now) {
				stats.Overdue++
			}
		case domain.TaskStatusCompleted:
			stats.Completed++
		case domain.TaskStatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}
