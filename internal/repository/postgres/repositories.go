package postgres

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Users        *UserRepository
	Tasks        *TaskRepository
	Consequences *ConsequenceRepository
	Executions   *ExecutionLog
}

// NewRepositories wires all repositories backed by the provided executor (usually the pool).
func NewRepositories(exec pgExecutor) *Repositories {
	return &Repositories{
		Users:        NewUserRepository(exec),
		Tasks:        NewTaskRepository(exec),
		Consequences: NewConsequenceRepository(exec),
		Executions:   NewExecutionLog(exec),
	}
}
