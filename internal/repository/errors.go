package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicate indicates a unique constraint (e.g. user email) was violated.
	ErrDuplicate = errors.New("repository: duplicate record")
	// ErrConflict indicates the stored record no longer matches the state the write assumed.
	ErrConflict = errors.New("repository: record changed concurrently")
)
