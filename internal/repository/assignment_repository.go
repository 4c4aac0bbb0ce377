package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/models"
)

const assignmentSelect = `SELECT a.id, a.section_id, s.name AS section_name, a.subject_id, sub.name AS subject_name,
       a.title, a.description, a.deadline, a.created_by, a.is_active, a.is_edited, a.created_at, a.updated_at
FROM assignments a
JOIN sections s ON s.id = a.section_id
JOIN subjects sub ON sub.id = a.subject_id`

// AssignmentRepository persists assignments, their subjects and edit history.
type AssignmentRepository struct {
	q sqlx.ExtContext
}

// UpsertSubject returns the id of the subject called name, creating it if needed.
func (r *AssignmentRepository) UpsertSubject(ctx context.Context, name string) (int64, error) {
	const query = `INSERT INTO subjects (name) VALUES ($1)
	ON CONFLICT (name) DO UPDATE SET is_active = TRUE
	RETURNING id`
	var id int64
	if err := sqlx.GetContext(ctx, r.q, &id, query, strings.TrimSpace(name)); err != nil {
		return 0, fmt.Errorf("upsert subject: %w", err)
	}
	return id, nil
}

// Create inserts a and fills its id and timestamps.
func (r *AssignmentRepository) Create(ctx context.Context, a *models.Assignment) error {
	const query = `INSERT INTO assignments (section_id, subject_id, title, description, deadline, created_by)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING id, is_active, created_at, updated_at`
	row := r.q.QueryRowxContext(ctx, query, a.SectionID, a.SubjectID, a.Title, a.Description, a.Deadline, a.CreatedBy)
	if err := row.Scan(&a.ID, &a.Active, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// GetByID returns the assignment even when soft deleted; nil when unknown.
func (r *AssignmentRepository) GetByID(ctx context.Context, id int64) (*models.Assignment, error) {
	var a models.Assignment
	if err := sqlx.GetContext(ctx, r.q, &a, assignmentSelect+` WHERE a.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return &a, nil
}

// ListActiveBySection returns live assignments of a section by deadline.
func (r *AssignmentRepository) ListActiveBySection(ctx context.Context, sectionID int64) ([]models.Assignment, error) {
	var out []models.Assignment
	query := assignmentSelect + ` WHERE a.section_id = $1 AND a.is_active ORDER BY a.deadline`
	if err := sqlx.SelectContext(ctx, r.q, &out, query, sectionID); err != nil {
		return nil, fmt.Errorf("list section assignments: %w", err)
	}
	return out, nil
}

// ListActiveForAdmin returns live assignments of the admin's sections;
// adminID 0 lists every section.
func (r *AssignmentRepository) ListActiveForAdmin(ctx context.Context, adminID int64) ([]models.Assignment, error) {
	query := assignmentSelect + ` WHERE a.is_active AND s.is_active`
	args := []interface{}{}
	if adminID > 0 {
		query += ` AND s.admin_id = $1`
		args = append(args, adminID)
	}
	query += ` ORDER BY a.deadline`
	var out []models.Assignment
	if err := sqlx.SelectContext(ctx, r.q, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list admin assignments: %w", err)
	}
	return out, nil
}

// RecordEdit stores the values an edit is about to replace.
func (r *AssignmentRepository) RecordEdit(ctx context.Context, prev *models.Assignment, editedBy int64) error {
	const query = `INSERT INTO assignment_edits (assignment_id, old_title, old_description, old_deadline, edited_by)
	VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.q.ExecContext(ctx, query, prev.ID, prev.Title, prev.Description, prev.Deadline, editedBy); err != nil {
		return fmt.Errorf("record assignment edit: %w", err)
	}
	return nil
}

// Update overwrites the editable fields and marks the assignment edited.
func (r *AssignmentRepository) Update(ctx context.Context, id int64, title, description string, deadline time.Time) (bool, error) {
	const query = `UPDATE assignments
	SET title = $2, description = $3, deadline = $4, is_edited = TRUE, updated_at = NOW()
	WHERE id = $1 AND is_active`
	res, err := r.q.ExecContext(ctx, query, id, title, description, deadline)
	if err != nil {
		return false, fmt.Errorf("update assignment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check assignment update rows: %w", err)
	}
	return affected > 0, nil
}

// SoftDelete deactivates an assignment. ok is false when it was already gone.
func (r *AssignmentRepository) SoftDelete(ctx context.Context, id int64) (bool, error) {
	res, err := r.q.ExecContext(ctx, `UPDATE assignments SET is_active = FALSE, updated_at = NOW() WHERE id = $1 AND is_active`, id)
	if err != nil {
		return false, fmt.Errorf("soft delete assignment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check assignment delete rows: %w", err)
	}
	return affected > 0, nil
}
