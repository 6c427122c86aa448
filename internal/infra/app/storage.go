package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/arklim/deadline-jail/internal/core/port"
	"github.com/arklim/deadline-jail/internal/infra/config"
	"github.com/arklim/deadline-jail/internal/infra/database"
	"github.com/arklim/deadline-jail/internal/repository/memory"
	postgresrepo "github.com/arklim/deadline-jail/internal/repository/postgres"
	sqliterepo "github.com/arklim/deadline-jail/internal/repository/sqlite"
)

// storage is the backend-independent view of the configured task store.
type storage struct {
	Users        port.UserRepository
	Tasks        port.TaskRepository
	Consequences port.ConsequenceRepository
	Executions   port.ExecutionLog

	ping  func(ctx context.Context) error
	close func() error
}

func (s *storage) Ping(ctx context.Context) error {
	return s.ping(ctx)
}

func (s *storage) Close() error {
	return s.close()
}

// openStorage connects to the configured driver and applies pending migrations.
func openStorage(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (*storage, error) {
	switch cfg.Storage.Driver {
	case config.StorageSQLite:
		db, err := database.NewSQLiteDB(ctx, cfg.Storage.SQLitePath, log)
		if err != nil {
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
		if err := sqliterepo.Migrate(ctx, db, log); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		store := sqliterepo.NewStore(db)
		repos := sqliterepo.NewRepositories(store)
		return &storage{
			Users:        repos.Users,
			Tasks:        repos.Tasks,
			Consequences: repos.Consequences,
			Executions:   repos.Executions,
			ping:         store.Ping,
			close:        store.Close,
		}, nil

	case config.StoragePostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		if err := postgresrepo.Migrate(ctx, pool, log); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		store := postgresrepo.NewStore(pool)
		repos := postgresrepo.NewRepositories(pool)
		return &storage{
			Users:        repos.Users,
			Tasks:        repos.Tasks,
			Consequences: repos.Consequences,
			Executions:   repos.Executions,
			ping:         store.Ping,
			close:        store.Close,
		}, nil

	case config.StorageMemory:
		log.Warn("using in-memory storage, data is lost on restart")
		store := memory.NewStore()
		repos := memory.NewRepositories(store)
		return &storage{
			Users:        repos.Users,
			Tasks:        repos.Tasks,
			Consequences: repos.Consequences,
			Executions:   repos.Executions,
			ping:         store.Ping,
			close:        store.Close,
		}, nil
	}

	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}
