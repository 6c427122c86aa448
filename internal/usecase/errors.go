package usecase

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the root of every "referenced entity is absent" error.
	ErrNotFound = errors.New("not found")
	// ErrUserNotFound indicates the user does not exist.
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)
	// ErrTaskNotFound indicates the task does not exist or belongs to someone else.
	ErrTaskNotFound = fmt.Errorf("task %w", ErrNotFound)
	// ErrConsequenceNotFound indicates the consequence does not exist or belongs to someone else.
	ErrConsequenceNotFound = fmt.Errorf("consequence %w", ErrNotFound)

	// ErrDuplicateEmail indicates an account with the email already exists.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrInvalidCredentials is returned for both unknown emails and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated indicates a missing, malformed, or expired access token.
	ErrUnauthenticated = errors.New("unauthenticated")
)
