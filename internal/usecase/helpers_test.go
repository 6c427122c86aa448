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
	"github.com/arklim/deadline-jail/internal/infra/security"
	"github.com/arklim/deadline-jail/internal/repository/memory"
)

const strongPassword = "Sup3r!SecurePass#7890"

var testKeys = func() security.KeyProvider {
	provider, err := security.NewEphemeralKeyProvider(2048)
	if err != nil {
		panic(err)
	}
	return provider
}()

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu         sync.Mutex
	err        error
	registered []domain.UserRegisteredEvent
	completed  []domain.TaskCompletedEvent
	failed     []domain.TaskFailedEvent
	executed   []domain.ConsequenceExecutedEvent
}

func (p *recordingPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registered = append(p.registered, event)
	return p.err
}

func (p *recordingPublisher) PublishTaskCompleted(_ context.Context, event domain.TaskCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = append(p.completed, event)
	return p.err
}

func (p *recordingPublisher) PublishTaskFailed(_ context.Context, event domain.TaskFailedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, event)
	return p.err
}

func (p *recordingPublisher) PublishConsequenceExecuted(_ context.Context, event domain.ConsequenceExecutedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.executed = append(p.executed, event)
	return p.err
}

type recordingMetrics struct {
	mu          sync.Mutex
	transitions map[domain.TaskStatus]int
	executions  map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		transitions: make(map[domain.TaskStatus]int),
		executions:  make(map[string]int),
	}
}

func (m *recordingMetrics) TaskTransitioned(status domain.TaskStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions[status]++
}

func (m *recordingMetrics) ConsequenceExecuted(kind domain.ConsequenceType, selection string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions[string(kind)+"/"+selection]++
}

type sequenceRandomizer struct {
	picks []int
	calls int
}

func (r *sequenceRandomizer) IntN(n int) int {
	pick := 0
	if len(r.picks) > 0 {
		pick = r.picks[r.calls%len(r.picks)]
	}
	r.calls++
	return pick % n
}

// failingConsequenceRepository wraps a real repository and injects errors on selected calls.
type failingConsequenceRepository struct {
	port.ConsequenceRepository
	listErr error
	getErr  error
}

func (r *failingConsequenceRepository) ListByUser(ctx context.Context, userID string, filter domain.ConsequenceFilter) ([]domain.Consequence, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.ConsequenceRepository.ListByUser(ctx, userID, filter)
}

func (r *failingConsequenceRepository) GetByID(ctx context.Context, id string) (*domain.Consequence, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.ConsequenceRepository.GetByID(ctx, id)
}

// rendezvousTaskRepository holds the first `parties` GetByID callers until all of them have
// read the task, so concurrent transitions start from the same stored state.
type rendezvousTaskRepository struct {
	port.TaskRepository
	parties  int
	mu       sync.Mutex
	arrivals int
	release  chan struct{}
}

func newRendezvousTaskRepository(inner port.TaskRepository, parties int) *rendezvousTaskRepository {
	return &rendezvousTaskRepository{TaskRepository: inner, parties: parties, release: make(chan struct{})}
}

func (r *rendezvousTaskRepository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	task, err := r.TaskRepository.GetByID(ctx, id)

	r.mu.Lock()
	r.arrivals++
	arrival := r.arrivals
	if arrival == r.parties {
		close(r.release)
	}
	r.mu.Unlock()

	if arrival <= r.parties {
		select {
		case <-r.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return task, err
}

var errStorageDown = errors.New("storage down")

type testEnv struct {
	clock        *fixedClock
	repos        *memory.Repositories
	publisher    *recordingPublisher
	metrics      *recordingMetrics
	consequences *ConsequenceService
	lifecycle    *LifecycleController
	tasks        *TaskService
	history      *HistoryService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithConsequenceRepo(t, nil)
}

func newTestEnvWithConsequenceRepo(t *testing.T, wrap func(port.ConsequenceRepository) port.ConsequenceRepository) *testEnv {
	t.Helper()

	log := zaptest.NewLogger(t)
	clock := newFixedClock()
	repos := memory.NewRepositories(memory.NewStore())
	publisher := &recordingPublisher{}
	metrics := newRecordingMetrics()

	var consequenceRepo port.ConsequenceRepository = repos.Consequences
	if wrap != nil {
		consequenceRepo = wrap(consequenceRepo)
	}

	consequences := NewConsequenceService(consequenceRepo, repos.Executions, log).
		WithClock(clock.Now).
		WithEventPublisher(publisher)
	lifecycle := NewLifecycleController(repos.Tasks, consequences, log).
		WithClock(clock.Now).
		WithEventPublisher(publisher).
		WithMetrics(metrics)
	tasks := NewTaskService(repos.Tasks, consequences, lifecycle, log).WithClock(clock.Now)
	history := NewHistoryService(repos.Tasks, repos.Executions).WithClock(clock.Now)

	return &testEnv{
		clock:        clock,
		repos:        repos,
		publisher:    publisher,
		metrics:      metrics,
		consequences: consequences,
		lifecycle:    lifecycle,
		tasks:        tasks,
		history:      history,
	}
}

func (e *testEnv) addConsequence(t *testing.T, userID, name string) domain.Consequence {
	t.Helper()
	consequence, err := e.consequences.AddConsequence(context.Background(), userID, domain.ConsequenceInput{
		Type:   domain.ConsequenceTypeSocial,
		Name:   name,
		Config: map[string]any{"message": "I missed " + name},
	})
	if err != nil {
		t.Fatalf("AddConsequence(%s) returned error: %v", name, err)
	}
	return consequence
}

func (e *testEnv) createTask(t *testing.T, userID string, consequenceID *string) domain.TaskView {
	t.Helper()
	deadline := e.clock.Now().Add(time.Hour)
	view, err := e.tasks.CreateTask(context.Background(), userID, domain.TaskInput{
		Title:         "Write report",
		Description:   "Quarterly numbers",
		Deadline:      &deadline,
		Duration:      domain.Duration{Hours: 1},
		ConsequenceID: consequenceID,
	})
	if err != nil {
		t.Fatalf("CreateTask returned error: %v", err)
	}
	return view
}

func strPtr(s string) *string {
	return &s
}

func assertTimestampInvariant(t *testing.T, task domain.Task) {
	t.Helper()
	switch task.Status {
	case domain.TaskStatusCompleted:
		if task.CompletedAt == nil || task.FailedAt != nil {
			t.Fatalf("completed task must carry only completedAt: %+v", task)
		}
	case domain.TaskStatusFailed:
		if task.FailedAt == nil || task.CompletedAt != nil {
			t.Fatalf("failed task must carry only failedAt: %+v", task)
		}
	case domain.TaskStatusActive:
		if task.CompletedAt != nil || task.FailedAt != nil {
			t.Fatalf("active task must not carry terminal timestamps: %+v", task)
		}
	}
}
