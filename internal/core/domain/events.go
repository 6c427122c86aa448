package domain

import "time"

// UserRegisteredEvent represents the payload for jail.user.registered messages.
type UserRegisteredEvent struct {
	EventID      string
	UserID       string
	Email        string
	RegisteredAt time.Time
}

// TaskCompletedEvent represents the payload for jail.task.completed messages.
type TaskCompletedEvent struct {
	EventID     string
	UserID      string
	TaskID      string
	Title       string
	CompletedAt time.Time
	Overdue     bool
}

// TaskFailedEvent represents the payload for jail.task.failed messages.
type TaskFailedEvent struct {
	EventID       string
	UserID        string
	TaskID        string
	Title         string
	FailedAt      time.Time
	ConsequenceID *string
	RandomPick    bool
}

// ConsequenceExecutedEvent represents the payload for jail.consequence.executed messages.
type ConsequenceExecutedEvent struct {
	EventID         string
	UserID          string
	ExecutionID     string
	ConsequenceID   string
	ConsequenceType ConsequenceType
	Severity        Severity
	TaskID          *string
	ExecutedAt      time.Time
	Config          map[string]any
}
