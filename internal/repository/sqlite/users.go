package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/arklim/deadline-jail/internal/core/domain"
	"github.com/arklim/deadline-jail/internal/repository"
)

// UserRepository implements port.UserRepository.
type UserRepository struct {
	db *sqlx.DB
}

type userRow struct {
	ID           string `db:"id"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
	PasswordAlgo string `db:"password_algo"`
	CreatedAt    int64  `db:"created_at"`
}

func (r userRow) toDomain() *domain.User {
	return &domain.User{
		ID:           r.ID,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		PasswordAlgo: r.PasswordAlgo,
		CreatedAt:    fromMicros(r.CreatedAt),
	}
}

const userColumns = `id, email, password_hash, password_algo, created_at`

// Create inserts a user. A taken email yields repository.ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	algo := user.PasswordAlgo
	if algo == "" {
		algo = domain.PasswordAlgoArgon2id
	}
	err := withBusyRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?)`,
			user.ID, user.Email, user.PasswordHash, algo, toMicros(user.CreatedAt),
		)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetByEmail retrieves a user by normalized email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	var row userRow
	if err := r.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	return row.toDomain(), nil
}
