package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/deadline-jail/internal/core/domain"
	"github.com/arklim/deadline-jail/internal/repository"
)

var userColumns = []string{"id", "email", "password_hash", "password_algo", "created_at"}

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository wires a PostgreSQL-backed user repository.
func NewUserRepository(exec pgExecutor) *UserRepository {
	return &UserRepository{exec: exec, builder: statementBuilder()}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	if tx == nil {
		return r
	}
	return &UserRepository{exec: tx, builder: r.builder}
}

// Create inserts a new user row. A taken email yields repository.ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	algo := user.PasswordAlgo
	if algo == "" {
		algo = domain.PasswordAlgoArgon2id
	}

	stmt, args, err := r.builder.Insert("jail.users").
		Columns(userColumns...).
		Values(user.ID, user.Email, user.PasswordHash, algo, user.CreatedAt.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetByEmail retrieves a user by normalized email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"email": email})
}

func (r *UserRepository) getOne(ctx context.Context, where squirrel.Eq) (*domain.User, error) {
	stmt, args, err := r.builder.Select(userColumns...).From("jail.users").Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	var user domain.User
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.PasswordAlgo,
		&user.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}
