// Package sqlite implements the repository ports on an embedded SQLite database
// (modernc.org/sqlite through sqlx). Timestamps are stored as UTC unix nanoseconds.
package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store owns the database handle shared by the repositories.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an opened database. Callers run Migrate before serving traffic.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for tooling.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Repositories groups the SQLite-backed repositories.
type Repositories struct {
	Users        *UserRepository
	Tasks        *TaskRepository
	Consequences *ConsequenceRepository
	Executions   *ExecutionLog
}

// NewRepositories wires every repository over the store.
func NewRepositories(store *Store) *Repositories {
	return &Repositories{
		Users:        &UserRepository{db: store.db},
		Tasks:        &TaskRepository{db: store.db},
		Consequences: &ConsequenceRepository{db: store.db},
		Executions:   &ExecutionLog{db: store.db},
	}
}

// Timestamps are stored as Unix microseconds, the same precision Postgres keeps.
// Nanoseconds would overflow int64 past the year 2262.
func toMicros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromMicros(n int64) time.Time {
	return time.UnixMicro(n).UTC()
}

func nullableMicros(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMicros(*t), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMicros(n.Int64)
	return &t
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
