package domain

import (
	"fmt"
	"strings"
	"time"
)

// TaskStatus enumerates the lifecycle states of a task.
type TaskStatus string

const (
	TaskStatusActive    TaskStatus = "active"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// ParseTaskStatus normalises user supplied status strings ("FAILED", " failed ").
func ParseTaskStatus(raw string) (TaskStatus, error) {
	switch TaskStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case TaskStatusActive:
		return TaskStatusActive, nil
	case TaskStatusCompleted:
		return TaskStatusCompleted, nil
	case TaskStatusFailed:
		return TaskStatusFailed, nil
	default:
		return "", NewValidationError("status", fmt.Sprintf("unknown status %q", raw))
	}
}

// IsTerminal reports whether no further transitions are allowed out of the status.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Duration is the user's time estimate for a task.
type Duration struct {
	Hours   int
	Minutes int
}

// Validate enforces hours >= 0, minutes in [0,59] and a non-zero total.
func (d Duration) Validate() error {
	if d.Hours < 0 {
		return NewValidationError("duration.hours", "hours cannot be negative")
	}
	if d.Minutes < 0 || d.Minutes > 59 {
		return NewValidationError("duration.minutes", "minutes must be between 0 and 59")
	}
	if d.Hours == 0 && d.Minutes == 0 {
		return NewValidationError("duration", "duration must be greater than zero")
	}
	return nil
}

// Task is a user-owned unit of work with a deadline and a consequence on failure.
type Task struct {
	ID            string
	UserID        string
	Title         string
	Description   string
	Deadline      time.Time
	Duration      Duration
	ConsequenceID *string
	Status        TaskStatus
	CreatedAt     time.Time
	CompletedAt   *time.Time
	FailedAt      *time.Time
}

// IsOverdue is a read-time view: the task is still active and its deadline has passed.
func (t Task) IsOverdue(now time.Time) bool {
	return t.Status == TaskStatusActive && now.After(t.Deadline)
}

// HasConsequence reports whether a specific consequence was assigned.
func (t Task) HasConsequence() bool {
	return t.ConsequenceID != nil && *t.ConsequenceID != ""
}

// Complete moves the task to completed. It returns false when the task was already completed.
func (t *Task) Complete(now time.Time) (bool, error) {
	return t.transition(TaskStatusCompleted, now)
}

// Fail moves the task to failed. It returns false when the task was already failed.
func (t *Task) Fail(now time.Time) (bool, error) {
	return t.transition(TaskStatusFailed, now)
}

func (t *Task) transition(target TaskStatus, now time.Time) (bool, error) {
	if t.Status == target {
		return false, nil
	}
	if t.Status != TaskStatusActive {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, target)
	}

	at := now.UTC()
	t.Status = target
	switch target {
	case TaskStatusCompleted:
		t.CompletedAt = &at
		t.FailedAt = nil
	case TaskStatusFailed:
		t.FailedAt = &at
		t.CompletedAt = nil
	}
	return true, nil
}

// TaskInput carries the fields supplied when creating a task.
type TaskInput struct {
	Title         string
	Description   string
	Deadline      *time.Time
	Duration      Duration
	ConsequenceID *string
}

// TaskPatch describes a partial update. Nil fields are left untouched.
type TaskPatch struct {
	Title           *string
	Description     *string
	Deadline        *time.Time
	DurationHours   *int
	DurationMinutes *int
	ConsequenceID   *string
	// ClearConsequence resets the reference so a random consequence is chosen on failure.
	ClearConsequence bool
	Status           *TaskStatus
}

// HasFieldEdits reports whether the patch touches anything besides status.
func (p TaskPatch) HasFieldEdits() bool {
	return p.Title != nil ||
		p.Description != nil ||
		p.Deadline != nil ||
		p.DurationHours != nil ||
		p.DurationMinutes != nil ||
		p.ConsequenceID != nil ||
		p.ClearConsequence
}

// IsEmpty reports whether the patch carries no changes at all.
func (p TaskPatch) IsEmpty() bool {
	return !p.HasFieldEdits() && p.Status == nil
}

// TaskFilter narrows task listings.
type TaskFilter struct {
	Status TaskStatus
}

// TaskView is a task together with its read-time derived flags.
type TaskView struct {
	Task
	Overdue bool
}

// NewTaskView computes the derived flags against now.
func NewTaskView(task Task, now time.Time) TaskView {
	return TaskView{Task: task, Overdue: task.IsOverdue(now)}
}
