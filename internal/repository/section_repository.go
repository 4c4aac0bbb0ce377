package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/models"
)

const sectionSelect = `SELECT s.id, s.name, s.level_id, l.name AS level_name, s.study_type, s.division,
       s.admin_id, s.join_code, s.max_students, s.is_active, s.created_at
FROM sections s JOIN academic_levels l ON l.id = s.level_id`

// SectionRepository persists sections and join codes.
type SectionRepository struct {
	q sqlx.ExtContext
}

func (r *SectionRepository) getOne(ctx context.Context, op, where string, args ...interface{}) (*models.Section, error) {
	var s models.Section
	if err := sqlx.GetContext(ctx, r.q, &s, sectionSelect+" WHERE "+where, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &s, nil
}

// GetByID returns nil when the section does not exist.
func (r *SectionRepository) GetByID(ctx context.Context, id int64) (*models.Section, error) {
	return r.getOne(ctx, "get section", "s.id = $1", id)
}

// GetByJoinCode returns the section regardless of its active flag.
func (r *SectionRepository) GetByJoinCode(ctx context.Context, code string) (*models.Section, error) {
	return r.getOne(ctx, "get section by join code", "s.join_code = $1", code)
}

// GetApprovedForStudent returns the active section the student is approved in.
func (r *SectionRepository) GetApprovedForStudent(ctx context.Context, studentID int64) (*models.Section, error) {
	return r.getOne(ctx, "get student section",
		`s.is_active AND s.id = (SELECT ss.section_id FROM student_sections ss
		WHERE ss.student_id = $1 AND ss.status = 'approved' AND ss.is_active
		ORDER BY ss.approved_at DESC NULLS LAST LIMIT 1)`, studentID)
}

// ListActive returns every active section; adminID > 0 narrows to that admin.
func (r *SectionRepository) ListActive(ctx context.Context, adminID int64) ([]models.Section, error) {
	query := sectionSelect + ` WHERE s.is_active`
	args := []interface{}{}
	if adminID > 0 {
		query += ` AND s.admin_id = $1`
		args = append(args, adminID)
	}
	query += ` ORDER BY l.number, s.study_type, s.division`
	var sections []models.Section
	if err := sqlx.SelectContext(ctx, r.q, &sections, query, args...); err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	return sections, nil
}

// JoinCodeExists reports whether any section, active or not, already uses code.
func (r *SectionRepository) JoinCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	if err := sqlx.GetContext(ctx, r.q, &exists, `SELECT EXISTS (SELECT 1 FROM sections WHERE join_code = $1)`, code); err != nil {
		return false, fmt.Errorf("check join code: %w", err)
	}
	return exists, nil
}

// Create inserts s and fills its id and created_at.
func (r *SectionRepository) Create(ctx context.Context, s *models.Section) error {
	const query = `INSERT INTO sections (name, level_id, study_type, division, admin_id, join_code, max_students)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id, is_active, created_at`
	row := r.q.QueryRowxContext(ctx, query, s.Name, s.LevelID, s.StudyType, s.Division, s.AdminID, s.JoinCode, s.MaxStudents)
	if err := row.Scan(&s.ID, &s.Active, &s.CreatedAt); err != nil {
		return fmt.Errorf("create section: %w", err)
	}
	return nil
}
