package domain

import (
	"strings"
	"time"
)

// PasswordAlgoArgon2id labels credentials produced by the Argon2id hasher.
const PasswordAlgoArgon2id = "argon2id"

// User mirrors the persisted representation in the users table.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	PasswordAlgo string
	CreatedAt    time.Time
}

// Sanitized returns a copy of the user without credential material.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	return u
}

// NormalizeEmail folds an email address into its stored form (trimmed, lower-cased).
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Session is the bearer credential issued after a successful login or registration.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      User
}
