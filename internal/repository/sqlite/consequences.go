package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/arklim/deadline-jail/internal/core/domain"
	"github.com/arklim/deadline-jail/internal/repository"
)

// ConsequenceRepository implements port.ConsequenceRepository.
type ConsequenceRepository struct {
	db *sqlx.DB
}

type consequenceRow struct {
	ID             string        `db:"id"`
	UserID         string        `db:"user_id"`
	Type           string        `db:"type"`
	Name           string        `db:"name"`
	Description    string        `db:"description"`
	Severity       string        `db:"severity"`
	Enabled        bool          `db:"enabled"`
	Config         string        `db:"config"`
	LastExecutedAt sql.NullInt64 `db:"last_executed_at"`
	CreatedAt      int64         `db:"created_at"`
	UpdatedAt      int64         `db:"updated_at"`
}

func (r consequenceRow) toDomain() (domain.Consequence, error) {
	cfg, err := repository.DecodeConfig([]byte(r.Config))
	if err != nil {
		return domain.Consequence{}, fmt.Errorf("consequence %s: %w", r.ID, err)
	}
	return domain.Consequence{
		ID:             r.ID,
		UserID:         r.UserID,
		Type:           domain.ConsequenceType(r.Type),
		Name:           r.Name,
		Description:    r.Description,
		Severity:       domain.Severity(r.Severity),
		Enabled:        r.Enabled,
		Config:         cfg,
		LastExecutedAt: timePtr(r.LastExecutedAt),
		CreatedAt:      fromMicros(r.CreatedAt),
		UpdatedAt:      fromMicros(r.UpdatedAt),
	}, nil
}

const consequenceColumns = `id, user_id, type, name, description, severity, enabled, config,
	last_executed_at, created_at, updated_at`

// Create inserts a consequence definition.
func (r *ConsequenceRepository) Create(ctx context.Context, c domain.Consequence) error {
	cfg, err := repository.EncodeConfig(c.Config)
	if err != nil {
		return err
	}
	err = withBusyRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO consequences (`+consequenceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.UserID, string(c.Type), c.Name, c.Description, string(c.Severity), c.Enabled,
			string(cfg), nullableMicros(c.LastExecutedAt), toMicros(c.CreatedAt), toMicros(c.UpdatedAt),
		)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert consequence: %w", err)
	}
	return nil
}

// GetByID retrieves a consequence by identifier.
func (r *ConsequenceRepository) GetByID(ctx context.Context, id string) (*domain.Consequence, error) {
	var row consequenceRow
	err := r.db.GetContext(ctx, &row, `SELECT `+consequenceColumns+` FROM consequences WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select consequence: %w", err)
	}
	c, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListByUser returns the user's consequences in insertion order.
func (r *ConsequenceRepository) ListByUser(ctx context.Context, userID string, filter domain.ConsequenceFilter) ([]domain.Consequence, error) {
	query := `SELECT ` + consequenceColumns + ` FROM consequences WHERE user_id = ?`
	args := []any{userID}
	if filter.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(filter.Type))
	}
	if filter.EnabledOnly {
		query += ` AND enabled = 1`
	}
	query += ` ORDER BY seq ASC`

	var rows []consequenceRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list consequences: %w", err)
	}
	out := make([]domain.Consequence, 0, len(rows))
	for _, row := range rows {
		c, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Update overwrites the mutable columns of an existing definition.
func (r *ConsequenceRepository) Update(ctx context.Context, c domain.Consequence) error {
	cfg, err := repository.EncodeConfig(c.Config)
	if err != nil {
		return err
	}
	var result sql.Result
	err = withBusyRetry(ctx, func() error {
		var err error
		result, err = r.db.ExecContext(ctx, `
			UPDATE consequences SET
				type = ?, name = ?, description = ?, severity = ?, enabled = ?,
				config = ?, last_executed_at = ?, updated_at = ?
			WHERE id = ?`,
			string(c.Type), c.Name, c.Description, string(c.Severity), c.Enabled,
			string(cfg), nullableMicros(c.LastExecutedAt), toMicros(c.UpdatedAt),
			c.ID,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("update consequence: %w", err)
	}
	return requireAffected(result)
}

// Delete removes the consequence owned by userID. Missing rows are not an error.
// Tasks keep their (now dangling) reference and fall back to random selection.
func (r *ConsequenceRepository) Delete(ctx context.Context, userID, id string) error {
	err := withBusyRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx, `DELETE FROM consequences WHERE id = ? AND user_id = ?`, id, userID)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete consequence: %w", err)
	}
	return nil
}

// MarkExecuted stamps last_executed_at.
func (r *ConsequenceRepository) MarkExecuted(ctx context.Context, id string, at time.Time) error {
	var result sql.Result
	err := withBusyRetry(ctx, func() error {
		var err error
		result, err = r.db.ExecContext(ctx,
			`UPDATE consequences SET last_executed_at = ? WHERE id = ?`, toMicros(at), id)
		return err
	})
	if err != nil {
		return fmt.Errorf("mark consequence executed: %w", err)
	}
	return requireAffected(result)
}
