package sqlite

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migration is one versioned schema change with its up and down SQL.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// loadMigrations parses the embedded NNNN_name.{up,down}.sql files, sorted by version.
func loadMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	byVersion := make(map[int]*Migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, direction, err := parseMigrationFilename(entry.Name())
		if err != nil {
			return nil, fmt.Errorf("invalid migration filename %q: %w", entry.Name(), err)
		}
		content, err := fs.ReadFile(migrationsFS, "migrations/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &Migration{Version: version, Name: name}
			byVersion[version] = m
		}
		switch direction {
		case "up":
			if m.UpSQL != "" {
				return nil, fmt.Errorf("duplicate up migration for version %04d", version)
			}
			m.UpSQL = string(content)
		case "down":
			if m.DownSQL != "" {
				return nil, fmt.Errorf("duplicate down migration for version %04d", version)
			}
			m.DownSQL = string(content)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpSQL == "" || m.DownSQL == "" {
			return nil, fmt.Errorf("migration %04d is missing its up or down file", m.Version)
		}
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

func parseMigrationFilename(filename string) (int, string, string, error) {
	var direction string
	switch {
	case strings.HasSuffix(filename, ".up.sql"):
		direction = "up"
		filename = strings.TrimSuffix(filename, ".up.sql")
	case strings.HasSuffix(filename, ".down.sql"):
		direction = "down"
		filename = strings.TrimSuffix(filename, ".down.sql")
	default:
		return 0, "", "", fmt.Errorf("expected .up.sql or .down.sql suffix")
	}

	parts := strings.SplitN(filename, "_", 2)
	if len(parts) != 2 || parts[1] == "" {
		return 0, "", "", fmt.Errorf("expected format NNNN_name.{up,down}.sql")
	}
	version, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", "", fmt.Errorf("version %q is not an integer: %w", parts[0], err)
	}
	if version <= 0 {
		return 0, "", "", fmt.Errorf("version must be positive, got %d", version)
	}
	return version, parts[1], direction, nil
}

// Migrate applies every pending up migration in version order.
func Migrate(ctx context.Context, db *sqlx.DB, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	migrations, err := loadMigrations()
	if err != nil {
		return err
	}
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return err
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		log.Info("applying migration", zap.Int("version", m.Version), zap.String("name", m.Name))
		if err := runMigration(ctx, db, m.UpSQL, func(tx *sqlx.Tx) error {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
				m.Version, m.Name, time.Now().UnixMicro(),
			)
			return err
		}); err != nil {
			return fmt.Errorf("migration %04d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// MigrateDown reverts the last n applied migrations, newest first.
func MigrateDown(ctx context.Context, db *sqlx.DB, n int, log *zap.Logger) error {
	if n <= 0 {
		return fmt.Errorf("n must be positive, got %d", n)
	}
	if log == nil {
		log = zap.NewNop()
	}
	migrations, err := loadMigrations()
	if err != nil {
		return err
	}
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return err
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	var toRevert []Migration
	for i := len(migrations) - 1; i >= 0; i-- {
		if applied[migrations[i].Version] {
			toRevert = append(toRevert, migrations[i])
		}
	}
	if n > len(toRevert) {
		return fmt.Errorf("requested %d down migrations but only %d are applied", n, len(toRevert))
	}

	for _, m := range toRevert[:n] {
		log.Info("reverting migration", zap.Int("version", m.Version), zap.String("name", m.Name))
		if err := runMigration(ctx, db, m.DownSQL, func(tx *sqlx.Tx) error {
			_, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", m.Version)
			return err
		}); err != nil {
			return fmt.Errorf("revert migration %04d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// SchemaVersion reports the highest applied migration, 0 for a fresh database.
func SchemaVersion(ctx context.Context, db *sqlx.DB) (int, error) {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return 0, err
	}
	var version int
	if err := db.GetContext(ctx, &version, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations"); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func ensureMigrationsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sqlx.DB) (map[int]bool, error) {
	var versions []int
	if err := db.SelectContext(ctx, &versions, "SELECT version FROM schema_migrations"); err != nil {
		return nil, fmt.Errorf("query applied versions: %w", err)
	}
	applied := make(map[int]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

// runMigration executes the migration SQL and its bookkeeping in one transaction.
func runMigration(ctx context.Context, db *sqlx.DB, stmt string, record func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("execute sql: %w", err)
	}
	if err := record(tx); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}
