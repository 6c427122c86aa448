package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const (
	sqliteBusyTimeoutMillis = 5000
	sqliteMaxOpenConns      = 4
)

// NewSQLiteDB opens (or creates) the SQLite database at path. WAL journaling, foreign
// keys and the busy timeout are set through the DSN. ":memory:" is pinned to a single
// connection so every query sees the same database.
func NewSQLiteDB(ctx context.Context, path string, log *zap.Logger) (*sqlx.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}

	inMemory := path == ":memory:" || strings.Contains(path, "mode=memory")
	if !inMemory {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
	}

	db, err := sqlx.Open("sqlite", sqliteDSN(path, inMemory))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if inMemory {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(sqliteMaxOpenConns)
	}
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	log.Info("opened sqlite database", zap.String("path", path))
	return db, nil
}

// sqliteDSN attaches the connection pragmas so every pooled connection gets them.
func sqliteDSN(path string, inMemory bool) string {
	pragmas := fmt.Sprintf("_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", sqliteBusyTimeoutMillis)
	if !inMemory {
		pragmas += "&_pragma=journal_mode(WAL)"
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	if strings.HasPrefix(path, "file:") {
		return path + sep + pragmas
	}
	return "file:" + path + sep + pragmas
}
