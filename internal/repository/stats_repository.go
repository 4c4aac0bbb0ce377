package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/models"
)

// StatsRepository computes dashboard counters.
type StatsRepository struct {
	q sqlx.ExtContext
}

const overallStatsQuery = `SELECT
	(SELECT COUNT(*) FROM sections WHERE is_active) AS active_sections,
	(SELECT COUNT(*) FROM student_sections ss JOIN sections s ON s.id = ss.section_id
		WHERE ss.status = 'approved' AND ss.is_active AND s.is_active) AS approved_students,
	(SELECT COUNT(*) FROM student_sections ss JOIN sections s ON s.id = ss.section_id
		WHERE ss.status = 'pending' AND s.is_active) AS pending_requests,
	(SELECT COUNT(*) FROM assignments WHERE is_active) AS active_assignments,
	(SELECT COUNT(*) FROM users WHERE role = 'admin' AND is_active) AS active_admins`

const adminStatsQuery = `SELECT
	(SELECT COUNT(*) FROM sections WHERE is_active AND admin_id = $1) AS active_sections,
	(SELECT COUNT(*) FROM student_sections ss JOIN sections s ON s.id = ss.section_id
		WHERE ss.status = 'approved' AND ss.is_active AND s.is_active AND s.admin_id = $1) AS approved_students,
	(SELECT COUNT(*) FROM student_sections ss JOIN sections s ON s.id = ss.section_id
		WHERE ss.status = 'pending' AND s.is_active AND s.admin_id = $1) AS pending_requests,
	(SELECT COUNT(*) FROM assignments a JOIN sections s ON s.id = a.section_id
		WHERE a.is_active AND s.admin_id = $1) AS active_assignments,
	0 AS active_admins`

// Overall returns system wide counters.
func (r *StatsRepository) Overall(ctx context.Context) (models.Statistics, error) {
	var st models.Statistics
	if err := sqlx.GetContext(ctx, r.q, &st, overallStatsQuery); err != nil {
		return models.Statistics{}, fmt.Errorf("overall statistics: %w", err)
	}
	return st, nil
}

// ForAdmin returns counters restricted to the admin's sections.
func (r *StatsRepository) ForAdmin(ctx context.Context, adminID int64) (models.Statistics, error) {
	var st models.Statistics
	if err := sqlx.GetContext(ctx, r.q, &st, adminStatsQuery, adminID); err != nil {
		return models.Statistics{}, fmt.Errorf("admin statistics: %w", err)
	}
	return st, nil
}
