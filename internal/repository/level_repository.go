package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/models"
)

// LevelRepository reads academic levels.
type LevelRepository struct {
	q sqlx.ExtContext
}

// ListActive returns active levels ordered by number.
func (r *LevelRepository) ListActive(ctx context.Context) ([]models.AcademicLevel, error) {
	const query = `SELECT id, name, number, is_active, created_at FROM academic_levels WHERE is_active ORDER BY number`
	var levels []models.AcademicLevel
	if err := sqlx.SelectContext(ctx, r.q, &levels, query); err != nil {
		return nil, fmt.Errorf("list academic levels: %w", err)
	}
	return levels, nil
}

// GetActive returns the level when it exists and is active, nil otherwise.
func (r *LevelRepository) GetActive(ctx context.Context, id int64) (*models.AcademicLevel, error) {
	const query = `SELECT id, name, number, is_active, created_at FROM academic_levels WHERE id = $1 AND is_active`
	var level models.AcademicLevel
	if err := sqlx.GetContext(ctx, r.q, &level, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get academic level: %w", err)
	}
	return &level, nil
}
