package port

import "github.com/arklim/deadline-jail/internal/core/domain"

// LifecycleMetrics records task transitions and consequence executions.
type LifecycleMetrics interface {
	TaskTransitioned(status domain.TaskStatus)
	// ConsequenceExecuted is called once per recorded execution. selection is "explicit" or "random".
	ConsequenceExecuted(kind domain.ConsequenceType, selection string)
}
