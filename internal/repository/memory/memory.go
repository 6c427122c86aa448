package memory

import (
	"context"
	"sync"
	"time"

	"github.com/arklim/deadline-jail/internal/core/domain"
	"github.com/arklim/deadline-jail/internal/repository"
)

// Store keeps every entity in process memory, keyed by id. Insertion order is tracked
// separately so listings are deterministic.
type Store struct {
	mu sync.RWMutex

	users      map[string]domain.User
	userEmails map[string]string

	tasks     map[string]domain.Task
	taskOrder []string

	consequences     map[string]domain.Consequence
	consequenceOrder []string

	executions []domain.ConsequenceExecution
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		users:        make(map[string]domain.User),
		userEmails:   make(map[string]string),
		tasks:        make(map[string]domain.Task),
		consequences: make(map[string]domain.Consequence),
	}
}

// Ping satisfies readiness checks.
func (s *Store) Ping(context.Context) error {
	return nil
}

// Close is a no-op kept for parity with the SQL backends.
func (s *Store) Close() error {
	return nil
}

// Repositories groups the in-memory repository views over a single Store.
type Repositories struct {
	Users        *UserRepository
	Tasks        *TaskRepository
	Consequences *ConsequenceRepository
	Executions   *ExecutionLog
}

// NewRepositories wires all repositories backed by the provided store.
func NewRepositories(store *Store) *Repositories {
	return &Repositories{
		Users:        &UserRepository{store: store},
		Tasks:        &TaskRepository{store: store},
		Consequences: &ConsequenceRepository{store: store},
		Executions:   &ExecutionLog{store: store},
	}
}

// UserRepository implements port.UserRepository in memory.
type UserRepository struct {
	store *Store
}

// Create inserts a user, enforcing email uniqueness.
func (r *UserRepository) Create(_ context.Context, user domain.User) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.userEmails[user.Email]; exists {
		return repository.ErrDuplicate
	}
	if _, exists := s.users[user.ID]; exists {
		return repository.ErrDuplicate
	}
	s.users[user.ID] = user
	s.userEmails[user.Email] = user.ID
	return nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

// GetByEmail retrieves a user by normalized email.
func (r *UserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.userEmails[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	user := s.users[id]
	return &user, nil
}

// TaskRepository implements port.TaskRepository in memory.
type TaskRepository struct {
	store *Store
}

// Create inserts a task.
func (r *TaskRepository) Create(_ context.Context, task domain.Task) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return repository.ErrDuplicate
	}
	s.tasks[task.ID] = copyTask(task)
	s.taskOrder = append(s.taskOrder, task.ID)
	return nil
}

// GetByID retrieves a task by identifier.
func (r *TaskRepository) GetByID(_ context.Context, id string) (*domain.Task, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := copyTask(task)
	return &out, nil
}

// ListByUser returns the user's tasks in insertion order.
func (r *TaskRepository) ListByUser(_ context.Context, userID string, filter domain.TaskFilter) ([]domain.Task, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Task, 0)
	for _, id := range s.taskOrder {
		task, ok := s.tasks[id]
		if !ok || task.UserID != userID {
			continue
		}
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		out = append(out, copyTask(task))
	}
	return out, nil
}

// Update replaces an existing task while it is still active.
func (r *TaskRepository) Update(_ context.Context, task domain.Task) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.tasks[task.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Status != domain.TaskStatusActive {
		return repository.ErrConflict
	}
	s.tasks[task.ID] = copyTask(task)
	return nil
}

// Delete removes the task if it exists and belongs to userID.
func (r *TaskRepository) Delete(_ context.Context, userID, id string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok || task.UserID != userID {
		return nil
	}
	delete(s.tasks, id)
	s.taskOrder = removeID(s.taskOrder, id)
	return nil
}

// ConsequenceRepository implements port.ConsequenceRepository in memory.
type ConsequenceRepository struct {
	store *Store
}

// Create inserts a consequence definition.
func (r *ConsequenceRepository) Create(_ context.Context, consequence domain.Consequence) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.consequences[consequence.ID]; exists {
		return repository.ErrDuplicate
	}
	s.consequences[consequence.ID] = consequence.Clone()
	s.consequenceOrder = append(s.consequenceOrder, consequence.ID)
	return nil
}

// GetByID retrieves a consequence by identifier.
func (r *ConsequenceRepository) GetByID(_ context.Context, id string) (*domain.Consequence, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	consequence, ok := s.consequences[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := consequence.Clone()
	return &out, nil
}

// ListByUser returns the user's consequences in insertion order.
func (r *ConsequenceRepository) ListByUser(_ context.Context, userID string, filter domain.ConsequenceFilter) ([]domain.Consequence, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Consequence, 0)
	for _, id := range s.consequenceOrder {
		consequence, ok := s.consequences[id]
		if !ok || consequence.UserID != userID || !filter.Matches(consequence) {
			continue
		}
		out = append(out, consequence.Clone())
	}
	return out, nil
}

// Update replaces an existing consequence definition.
func (r *ConsequenceRepository) Update(_ context.Context, consequence domain.Consequence) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.consequences[consequence.ID]; !ok {
		return repository.ErrNotFound
	}
	s.consequences[consequence.ID] = consequence.Clone()
	return nil
}

// Delete removes the consequence if it exists and belongs to userID.
func (r *ConsequenceRepository) Delete(_ context.Context, userID, id string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	consequence, ok := s.consequences[id]
	if !ok || consequence.UserID != userID {
		return nil
	}
	delete(s.consequences, id)
	s.consequenceOrder = removeID(s.consequenceOrder, id)
	return nil
}

// MarkExecuted stamps the last execution time on the definition.
func (r *ConsequenceRepository) MarkExecuted(_ context.Context, id string, at time.Time) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	consequence, ok := s.consequences[id]
	if !ok {
		return repository.ErrNotFound
	}
	executedAt := at.UTC()
	consequence.LastExecutedAt = &executedAt
	s.consequences[id] = consequence
	return nil
}

// ExecutionLog implements port.ExecutionLog in memory.
type ExecutionLog struct {
	store *Store
}

// Append records an execution.
func (l *ExecutionLog) Append(_ context.Context, execution domain.ConsequenceExecution) error {
	s := l.store
	s.mu.Lock()
	defer s.mu.Unlock()

	execution.Snapshot = execution.Snapshot.Clone()
	s.executions = append(s.executions, execution)
	return nil
}

// ListByUser returns the user's executions newest first.
func (l *ExecutionLog) ListByUser(_ context.Context, userID string) ([]domain.ConsequenceExecution, error) {
	s := l.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ConsequenceExecution, 0)
	for i := len(s.executions) - 1; i >= 0; i-- {
		execution := s.executions[i]
		if execution.UserID != userID {
			continue
		}
		execution.Snapshot = execution.Snapshot.Clone()
		out = append(out, execution)
	}
	return out, nil
}

func copyTask(task domain.Task) domain.Task {
	if task.ConsequenceID != nil {
		id := *task.ConsequenceID
		task.ConsequenceID = &id
	}
	if task.CompletedAt != nil {
		at := *task.CompletedAt
		task.CompletedAt = &at
	}
	if task.FailedAt != nil {
		at := *task.FailedAt
		task.FailedAt = &at
	}
	return task
}

func removeID(ids []string, id string) []string {
	for i, candidate := range ids {
		if candidate == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}
