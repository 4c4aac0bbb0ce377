package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/models"
)

const userColumns = `id, telegram_id, username, full_name, role, is_active, is_blocked, created_at, last_active`

// UserRepository persists principals.
type UserRepository struct {
	q sqlx.ExtContext
}

// GetByTelegramID returns nil when the user is unknown.
func (r *UserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*models.Principal, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`
	var p models.Principal
	if err := sqlx.GetContext(ctx, r.q, &p, query, telegramID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by telegram id: %w", err)
	}
	return &p, nil
}

// GetByID returns nil when no user has the id.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.Principal, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	var p models.Principal
	if err := sqlx.GetContext(ctx, r.q, &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return &p, nil
}

type ensuredUser struct {
	models.Principal
	Inserted bool `db:"inserted"`
}

// Ensure inserts p unless its telegram id is already known. An existing row
// keeps its role and name; only username and last_active are refreshed.
// created reports whether a new row was written.
func (r *UserRepository) Ensure(ctx context.Context, p models.Principal) (*models.Principal, bool, error) {
	query := `INSERT INTO users (telegram_id, username, full_name, role)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (telegram_id) DO UPDATE
	SET username = COALESCE(EXCLUDED.username, users.username), last_active = NOW()
	RETURNING ` + userColumns + `, (xmax = 0) AS inserted`
	var out ensuredUser
	if err := sqlx.GetContext(ctx, r.q, &out, query, p.TelegramID, p.Username, p.FullName, p.Role); err != nil {
		return nil, false, fmt.Errorf("ensure user: %w", err)
	}
	return &out.Principal, out.Inserted, nil
}

// SetFullName replaces the display name.
func (r *UserRepository) SetFullName(ctx context.Context, id int64, name string) error {
	if _, err := r.q.ExecContext(ctx, `UPDATE users SET full_name = $2 WHERE id = $1`, id, name); err != nil {
		return fmt.Errorf("set user name: %w", err)
	}
	return nil
}

// SetBlocked flips the blocked flag. Owners are never changed; ok is false
// when no row matched.
func (r *UserRepository) SetBlocked(ctx context.Context, id int64, blocked bool) (bool, error) {
	res, err := r.q.ExecContext(ctx, `UPDATE users SET is_blocked = $2 WHERE id = $1 AND role <> 'owner'`, id, blocked)
	if err != nil {
		return false, fmt.Errorf("set user blocked: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check user blocked rows: %w", err)
	}
	return affected > 0, nil
}
