package sqlite

import (
	"context"
	"errors"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	busyRetries     = 5
	busyInitialWait = 50 * time.Millisecond
)

// IsBusyError reports whether err is SQLITE_BUSY or SQLITE_LOCKED, including extended codes.
func IsBusyError(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		primary := sqliteErr.Code() & 0xff
		return primary == sqlite3.SQLITE_BUSY || primary == sqlite3.SQLITE_LOCKED
	}
	return false
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT &&
		strings.Contains(sqliteErr.Error(), "UNIQUE constraint failed")
}

// withBusyRetry runs fn, backing off while the database reports it is busy.
func withBusyRetry(ctx context.Context, fn func() error) error {
	wait := busyInitialWait
	var err error
	for attempt := 0; attempt < busyRetries; attempt++ {
		err = fn()
		if err == nil || !IsBusyError(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return err
}
