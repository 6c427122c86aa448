package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/arklim/deadline-jail/internal/core/domain"
	"github.com/arklim/deadline-jail/internal/core/port"
)

func TestFailRecordsExecutionOfOnlyEnabledConsequence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	c := env.addConsequence(t, "user-1", "Tweet")
	task := env.createTask(t, "user-1", nil)

	outcome, err := env.lifecycle.Fail(ctx, "user-1", task.ID)
	if err != nil {
		t.Fatalf("Fail returned error: %v", err)
	}

	if outcome.Task.Status != domain.TaskStatusFailed {
		t.Fatalf("expected failed status, got %s", outcome.Task.Status)
	}
	if outcome.Task.FailedAt == nil {
		t.Fatal("expected failedAt to be set")
	}
	if outcome.Consequence == nil || outcome.Consequence.ID != c.ID {
		t.Fatalf("expected consequence %s, got %+v", c.ID, outcome.Consequence)
	}
	if !outcome.Random {
		t.Fatal("expected random selection for task without assignment")
	}

	executions, err := env.consequences.ListExecutions(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListExecutions returned error: %v", err)
	}
	if len(executions) != 1 {
		t.Fatalf("expected 1 execution, got %d", len(executions))
	}
	if executions[0].ConsequenceID != c.ID {
		t.Fatalf("execution references %s, want %s", executions[0].ConsequenceID, c.ID)
	}
	if executions[0].TaskID == nil || *executions[0].TaskID != task.ID {
		t.Fatalf("execution should reference task %s", task.ID)
	}

	stored, err := env.repos.Tasks.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	assertTimestampInvariant(t, *stored)
}

func TestFailTwiceIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addConsequence(t, "user-1", "Tweet")
	task := env.createTask(t, "user-1", nil)

	first, err := env.lifecycle.Fail(ctx, "user-1", task.ID)
	if err != nil {
		t.Fatalf("first Fail returned error: %v", err)
	}

	env.clock.Advance(time.Minute)
	second, err := env.lifecycle.Fail(ctx, "user-1", task.ID)
	if err != nil {
		t.Fatalf("second Fail returned error: %v", err)
	}

	if !second.Task.FailedAt.Equal(*first.Task.FailedAt) {
		t.Fatalf("failedAt changed: %s -> %s", first.Task.FailedAt, second.Task.FailedAt)
	}
	if second.Consequence != nil {
		t.Fatal("no-op fail should not report a consequence")
	}

	executions, _ := env.consequences.ListExecutions(ctx, "user-1")
	if len(executions) != 1 {
		t.Fatalf("expected a single execution entry, got %d", len(executions))
	}
	if env.metrics.transitions[domain.TaskStatusFailed] != 1 {
		t.Fatalf("expected one failed transition metric, got %d", env.metrics.transitions[domain.TaskStatusFailed])
	}
	if len(env.publisher.failed) != 1 {
		t.Fatalf("expected one task failed event, got %d", len(env.publisher.failed))
	}
}

func TestTerminalStatesRejectCrossTransitions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	failedTask := env.createTask(t, "user-1", nil)
	if _, err := env.lifecycle.Fail(ctx, "user-1", failedTask.ID); err != nil {
		t.Fatalf("Fail returned error: %v", err)
	}
	if _, err := env.lifecycle.Complete(ctx, "user-1", failedTask.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition completing a failed task, got %v", err)
	}

	env.addConsequence(t, "user-1", "Tweet")
	completedTask := env.createTask(t, "user-1", nil)
	if _, err := env.lifecycle.Complete(ctx, "user-1", completedTask.ID); err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if _, err := env.lifecycle.Fail(ctx, "user-1", completedTask.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition failing a completed task, got %v", err)
	}

	executions, _ := env.consequences.ListExecutions(ctx, "user-1")
	if len(executions) != 0 {
		t.Fatalf("rejected transition must not execute consequences, got %d", len(executions))
	}

	stored, _ := env.repos.Tasks.GetByID(ctx, completedTask.ID)
	if stored.Status != domain.TaskStatusCompleted {
		t.Fatalf("completed task changed to %s", stored.Status)
	}
	assertTimestampInvariant(t, *stored)
}

func TestConcurrentCompleteAndFailHaveOneWinner(t *testing.T) {
	for i := 0; i < 20; i++ {
		env := newTestEnv(t)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		env.addConsequence(t, "user-1", "Tweet")
		task := env.createTask(t, "user-1", nil)

		lifecycle := NewLifecycleController(newRendezvousTaskRepository(env.repos.Tasks, 2), env.consequences, zaptest.NewLogger(t)).
			WithClock(env.clock.Now).
			WithEventPublisher(env.publisher)

		var (
			wg          sync.WaitGroup
			completeErr error
			failErr     error
			outcome     FailureOutcome
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, completeErr = lifecycle.Complete(ctx, "user-1", task.ID)
		}()
		go func() {
			defer wg.Done()
			outcome, failErr = lifecycle.Fail(ctx, "user-1", task.ID)
		}()
		wg.Wait()
		cancel()

		if (completeErr == nil) == (failErr == nil) {
			t.Fatalf("expected exactly one winner, complete=%v fail=%v", completeErr, failErr)
		}
		loser := completeErr
		if loser == nil {
			loser = failErr
		}
		if !errors.Is(loser, domain.ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition for the losing call, got %v", loser)
		}

		stored, err := env.repos.Tasks.GetByID(context.Background(), task.ID)
		if err != nil {
			t.Fatalf("GetByID returned error: %v", err)
		}
		assertTimestampInvariant(t, *stored)

		executions, _ := env.consequences.ListExecutions(context.Background(), "user-1")
		switch stored.Status {
		case domain.TaskStatusCompleted:
			if len(executions) != 0 {
				t.Fatalf("completed task must not execute consequences, got %d", len(executions))
			}
		case domain.TaskStatusFailed:
			if len(executions) != 1 || outcome.Consequence == nil {
				t.Fatalf("failed task must execute exactly one consequence, got %d", len(executions))
			}
		default:
			t.Fatalf("unexpected final status %s", stored.Status)
		}

		if events := len(env.publisher.completed) + len(env.publisher.failed); events != 1 {
			t.Fatalf("expected a single transition event, got %d", events)
		}
	}
}

func TestConcurrentFailsExecuteOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	env.addConsequence(t, "user-1", "Tweet")
	task := env.createTask(t, "user-1", nil)

	lifecycle := NewLifecycleController(newRendezvousTaskRepository(env.repos.Tasks, 2), env.consequences, zaptest.NewLogger(t)).
		WithClock(env.clock.Now)

	outcomes := make([]FailureOutcome, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = lifecycle.Fail(ctx, "user-1", task.ID)
		}(i)
	}
	wg.Wait()

	executed := 0
	for i := range outcomes {
		if errs[i] != nil {
			t.Fatalf("Fail %d returned error: %v", i, errs[i])
		}
		if outcomes[i].Task.Status != domain.TaskStatusFailed {
			t.Fatalf("Fail %d reported status %s", i, outcomes[i].Task.Status)
		}
		if outcomes[i].Consequence != nil {
			executed++
		}
	}
	if executed != 1 {
		t.Fatalf("expected one caller to report a consequence, got %d", executed)
	}

	executions, _ := env.consequences.ListExecutions(context.Background(), "user-1")
	if len(executions) != 1 {
		t.Fatalf("expected a single execution entry, got %d", len(executions))
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	task := env.createTask(t, "user-1", nil)
	first, err := env.lifecycle.Complete(ctx, "user-1", task.ID)
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	env.clock.Advance(time.Minute)
	second, err := env.lifecycle.Complete(ctx, "user-1", task.ID)
	if err != nil {
		t.Fatalf("second Complete returned error: %v", err)
	}
	if !second.CompletedAt.Equal(*first.CompletedAt) {
		t.Fatal("completedAt must not move on a repeated complete")
	}
	if len(env.publisher.completed) != 1 {
		t.Fatalf("expected one completed event, got %d", len(env.publisher.completed))
	}
	if env.metrics.transitions[domain.TaskStatusCompleted] != 1 {
		t.Fatalf("expected one completed transition metric, got %d", env.metrics.transitions[domain.TaskStatusCompleted])
	}
}

func TestCompleteReportsOverdueInEvent(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, "user-1", nil)

	env.clock.Advance(2 * time.Hour)
	if _, err := env.lifecycle.Complete(context.Background(), "user-1", task.ID); err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if len(env.publisher.completed) != 1 || !env.publisher.completed[0].Overdue {
		t.Fatalf("expected overdue completion event, got %+v", env.publisher.completed)
	}
}

func TestFailUsesAssignedConsequence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addConsequence(t, "user-1", "Other")
	assigned := env.addConsequence(t, "user-1", "Assigned")
	env.addConsequence(t, "user-1", "Third")
	task := env.createTask(t, "user-1", strPtr(assigned.ID))

	outcome, err := env.lifecycle.Fail(ctx, "user-1", task.ID)
	if err != nil {
		t.Fatalf("Fail returned error: %v", err)
	}
	if outcome.Random {
		t.Fatal("assigned consequence must not be reported as random")
	}
	if outcome.Consequence == nil || outcome.Consequence.ID != assigned.ID {
		t.Fatalf("expected assigned consequence, got %+v", outcome.Consequence)
	}
	if env.metrics.executions["social/explicit"] != 1 {
		t.Fatalf("expected explicit execution metric, got %+v", env.metrics.executions)
	}
	if len(env.publisher.failed) != 1 || env.publisher.failed[0].ConsequenceID == nil || *env.publisher.failed[0].ConsequenceID != assigned.ID {
		t.Fatalf("unexpected failed events %+v", env.publisher.failed)
	}
	if len(env.publisher.executed) != 1 {
		t.Fatalf("expected one consequence executed event, got %d", len(env.publisher.executed))
	}

	stored, _ := env.repos.Consequences.GetByID(ctx, assigned.ID)
	if stored.LastExecutedAt == nil {
		t.Fatal("expected lastExecutedAt to be stamped on the definition")
	}
}

func TestFailFallsBackToRandomForDanglingAssignment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	assigned := env.addConsequence(t, "user-1", "Assigned")
	fallback := env.addConsequence(t, "user-1", "Fallback")
	task := env.createTask(t, "user-1", strPtr(assigned.ID))

	if err := env.consequences.DeleteConsequence(ctx, "user-1", assigned.ID); err != nil {
		t.Fatalf("DeleteConsequence returned error: %v", err)
	}

	outcome, err := env.lifecycle.Fail(ctx, "user-1", task.ID)
	if err != nil {
		t.Fatalf("Fail returned error: %v", err)
	}
	if !outcome.Random {
		t.Fatal("dangling assignment should fall back to a random pick")
	}
	if outcome.Consequence == nil || outcome.Consequence.ID != fallback.ID {
		t.Fatalf("expected fallback consequence, got %+v", outcome.Consequence)
	}
}

func TestFailFallsBackToRandomForDisabledAssignment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	assigned := env.addConsequence(t, "user-1", "Assigned")
	task := env.createTask(t, "user-1", strPtr(assigned.ID))

	disabled := false
	if _, err := env.consequences.UpdateConsequence(ctx, "user-1", assigned.ID, domain.ConsequencePatch{Enabled: &disabled}); err != nil {
		t.Fatalf("UpdateConsequence returned error: %v", err)
	}

	outcome, err := env.lifecycle.Fail(ctx, "user-1", task.ID)
	if err != nil {
		t.Fatalf("Fail returned error: %v", err)
	}
	if outcome.Consequence != nil {
		t.Fatalf("no enabled consequence should be executed, got %+v", outcome.Consequence)
	}
	if outcome.Task.Status != domain.TaskStatusFailed {
		t.Fatalf("task must still fail, got %s", outcome.Task.Status)
	}
}

func TestFailWithoutConsequencesStillFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	task := env.createTask(t, "user-1", nil)
	outcome, err := env.lifecycle.Fail(ctx, "user-1", task.ID)
	if err != nil {
		t.Fatalf("Fail returned error: %v", err)
	}
	if outcome.Task.Status != domain.TaskStatusFailed || outcome.Task.FailedAt == nil {
		t.Fatalf("expected failed task, got %+v", outcome.Task)
	}
	if outcome.Consequence != nil || outcome.Random {
		t.Fatalf("unexpected consequence outcome %+v", outcome)
	}
	if len(env.publisher.executed) != 0 {
		t.Fatal("no execution event expected")
	}
}

func TestFailSwallowsConsequenceLookupErrors(t *testing.T) {
	var failing *failingConsequenceRepository
	env := newTestEnvWithConsequenceRepo(t, func(inner port.ConsequenceRepository) port.ConsequenceRepository {
		failing = &failingConsequenceRepository{ConsequenceRepository: inner}
		return failing
	})
	ctx := context.Background()

	env.addConsequence(t, "user-1", "Tweet")
	task := env.createTask(t, "user-1", nil)

	failing.listErr = errStorageDown
	outcome, err := env.lifecycle.Fail(ctx, "user-1", task.ID)
	if err != nil {
		t.Fatalf("Fail must not surface consequence errors, got %v", err)
	}
	if outcome.Task.Status != domain.TaskStatusFailed {
		t.Fatalf("expected failed task, got %s", outcome.Task.Status)
	}
	if outcome.Consequence != nil {
		t.Fatal("no consequence should be executed when selection fails")
	}
}

func TestLifecycleScopesTasksToOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	task := env.createTask(t, "owner", nil)
	if _, err := env.lifecycle.Complete(ctx, "intruder", task.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
	if _, err := env.lifecycle.Fail(ctx, "intruder", task.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := env.lifecycle.Fail(ctx, "owner", "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound for unknown id, got %v", err)
	}
}

func TestFailSurvivesPublisherErrors(t *testing.T) {
	env := newTestEnv(t)
	env.publisher.err = errors.New("broker unavailable")

	env.addConsequence(t, "user-1", "Tweet")
	task := env.createTask(t, "user-1", nil)
	if _, err := env.lifecycle.Fail(context.Background(), "user-1", task.ID); err != nil {
		t.Fatalf("publish errors must be swallowed, got %v", err)
	}
}
