package port

import (
	"context"

	"github.com/arklim/deadline-jail/internal/core/domain"
)

// UserRepository exposes persistence behavior for users.
// Create returns repository.ErrDuplicate when the email is already registered.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}
