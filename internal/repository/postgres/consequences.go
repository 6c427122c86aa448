package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/deadline-jail/internal/core/domain"
	"github.com/arklim/deadline-jail/internal/repository"
)

var consequenceColumns = []string{
	"id",
	"user_id",
	"type",
	"name",
	"description",
	"severity",
	"enabled",
	"config",
	"last_executed_at",
	"created_at",
	"updated_at",
}

// ConsequenceRepository implements port.ConsequenceRepository using PostgreSQL.
type ConsequenceRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewConsequenceRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewConsequenceRepository(exec pgExecutor) *ConsequenceRepository {
	return &ConsequenceRepository{exec: exec, builder: statementBuilder()}
}

// Create inserts a consequence definition. config is stored as jsonb.
func (r *ConsequenceRepository) Create(ctx context.Context, c domain.Consequence) error {
	cfg, err := repository.EncodeConfig(c.Config)
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Insert("jail.consequences").
		Columns(consequenceColumns...).
		Values(
			c.ID,
			c.UserID,
			string(c.Type),
			c.Name,
			c.Description,
			string(c.Severity),
			c.Enabled,
			cfg,
			utcPtr(c.LastExecutedAt),
			c.CreatedAt.UTC(),
			c.UpdatedAt.UTC(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert consequence sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert consequence: %w", err)
	}
	return nil
}

// GetByID retrieves a consequence by identifier.
func (r *ConsequenceRepository) GetByID(ctx context.Context, id string) (*domain.Consequence, error) {
	stmt, args, err := r.builder.Select(consequenceColumns...).
		From("jail.consequences").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select consequence sql: %w", err)
	}

	c, err := scanConsequence(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan consequence: %w", err)
	}
	return &c, nil
}

// ListByUser returns the user's consequences in insertion order.
func (r *ConsequenceRepository) ListByUser(ctx context.Context, userID string, filter domain.ConsequenceFilter) ([]domain.Consequence, error) {
	query := r.builder.Select(consequenceColumns...).
		From("jail.consequences").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("seq ASC")
	if filter.Type != "" {
		query = query.Where(squirrel.Eq{"type": string(filter.Type)})
	}
	if filter.EnabledOnly {
		query = query.Where(squirrel.Eq{"enabled": true})
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list consequences sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list consequences: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Consequence, 0)
	for rows.Next() {
		c, err := scanConsequence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consequence: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consequences: %w", err)
	}
	return out, nil
}

// Update overwrites the mutable columns of an existing definition.
func (r *ConsequenceRepository) Update(ctx context.Context, c domain.Consequence) error {
	cfg, err := repository.EncodeConfig(c.Config)
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Update("jail.consequences").
		Set("type", string(c.Type)).
		Set("name", c.Name).
		Set("description", c.Description).
		Set("severity", string(c.Severity)).
		Set("enabled", c.Enabled).
		Set("config", cfg).
		Set("last_executed_at", utcPtr(c.LastExecutedAt)).
		Set("updated_at", c.UpdatedAt.UTC()).
		Where(squirrel.Eq{"id": c.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update consequence sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update consequence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes the consequence owned by userID. Missing rows are not an error.
func (r *ConsequenceRepository) Delete(ctx context.Context, userID, id string) error {
	stmt, args, err := r.builder.Delete("jail.consequences").
		Where(squirrel.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete consequence sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete consequence: %w", err)
	}
	return nil
}

// MarkExecuted stamps last_executed_at.
func (r *ConsequenceRepository) MarkExecuted(ctx context.Context, id string, at time.Time) error {
	stmt, args, err := r.builder.Update("jail.consequences").
		Set("last_executed_at", at.UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark executed sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("mark consequence executed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanConsequence(row pgx.Row) (domain.Consequence, error) {
	var (
		c        domain.Consequence
		kind     string
		severity string
		config   []byte
	)
	if err := row.Scan(
		&c.ID,
		&c.UserID,
		&kind,
		&c.Name,
		&c.Description,
		&severity,
		&c.Enabled,
		&config,
		&c.LastExecutedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return domain.Consequence{}, err
	}

	cfg, err := repository.DecodeConfig(config)
	if err != nil {
		return domain.Consequence{}, err
	}
	c.Type = domain.ConsequenceType(kind)
	c.Severity = domain.Severity(severity)
	c.Config = cfg
	c.LastExecutedAt = utcPtr(c.LastExecutedAt)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}
