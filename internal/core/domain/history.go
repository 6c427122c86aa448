package domain

import "time"

// TimelineKind labels an entry on the history timeline.
type TimelineKind string

const (
	TimelineCompleted   TimelineKind = "completed"
	TimelineFailed      TimelineKind = "failed"
	TimelineConsequence TimelineKind = "consequence"
)

// TimelineEvent is one entry of the merged task/consequence history.
type TimelineEvent struct {
	Kind      TimelineKind
	At        time.Time
	Task      *Task
	Execution *ConsequenceExecution
}

// TaskStats summarises a user's tasks for the dashboard.
type TaskStats struct {
	Active     int
	Completed  int
	Failed     int
	Overdue    int
	Executions int
}
