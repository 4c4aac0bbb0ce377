package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/models"
)

const membershipColumns = `id, student_id, section_id, status, registered_at, approved_at, approved_by, is_active`

// MembershipRepository persists student_sections rows.
type MembershipRepository struct {
	q sqlx.ExtContext
}

// Get returns the membership of a student in a section, nil when absent.
func (r *MembershipRepository) Get(ctx context.Context, studentID, sectionID int64) (*models.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM student_sections WHERE student_id = $1 AND section_id = $2`
	var m models.Membership
	if err := sqlx.GetContext(ctx, r.q, &m, query, studentID, sectionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return &m, nil
}

// CountApproved counts active approved members of a section.
func (r *MembershipRepository) CountApproved(ctx context.Context, sectionID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM student_sections WHERE section_id = $1 AND status = 'approved' AND is_active`
	var n int
	if err := sqlx.GetContext(ctx, r.q, &n, query, sectionID); err != nil {
		return 0, fmt.Errorf("count approved members: %w", err)
	}
	return n, nil
}

// CreatePending inserts a pending membership.
func (r *MembershipRepository) CreatePending(ctx context.Context, studentID, sectionID int64) (*models.Membership, error) {
	query := `INSERT INTO student_sections (student_id, section_id, status)
	VALUES ($1, $2, 'pending')
	RETURNING ` + membershipColumns
	var m models.Membership
	if err := sqlx.GetContext(ctx, r.q, &m, query, studentID, sectionID); err != nil {
		return nil, fmt.Errorf("create membership: %w", err)
	}
	return &m, nil
}

// Decide moves a pending membership to status. ok is false when the row was
// not pending anymore, which makes a repeated decision a no-op.
func (r *MembershipRepository) Decide(ctx context.Context, studentID, sectionID int64, status models.MembershipStatus, decidedBy int64) (bool, error) {
	const query = `UPDATE student_sections
	SET status = $3, approved_at = NOW(), approved_by = $4
	WHERE student_id = $1 AND section_id = $2 AND status = 'pending'`
	res, err := r.q.ExecContext(ctx, query, studentID, sectionID, status, decidedBy)
	if err != nil {
		return false, fmt.Errorf("decide membership: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check membership rows: %w", err)
	}
	return affected > 0, nil
}

// ListPending returns pending requests, oldest first. adminID > 0 restricts
// the list to sections managed by that admin.
func (r *MembershipRepository) ListPending(ctx context.Context, adminID int64) ([]models.PendingRequest, error) {
	query := `SELECT ss.id, ss.student_id, ss.section_id, ss.status, ss.registered_at, ss.approved_at, ss.approved_by, ss.is_active,
       u.telegram_id AS student_telegram_id, u.full_name AS student_name, s.name AS section_name
FROM student_sections ss
JOIN users u ON u.id = ss.student_id
JOIN sections s ON s.id = ss.section_id
WHERE ss.status = 'pending' AND s.is_active`
	args := []interface{}{}
	if adminID > 0 {
		query += ` AND s.admin_id = $1`
		args = append(args, adminID)
	}
	query += ` ORDER BY ss.registered_at`
	var out []models.PendingRequest
	if err := sqlx.SelectContext(ctx, r.q, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list pending memberships: %w", err)
	}
	return out, nil
}

// Recipients lists approved, active and unblocked members of a section.
func (r *MembershipRepository) Recipients(ctx context.Context, sectionID int64) ([]models.Recipient, error) {
	const query = `SELECT u.id, u.telegram_id, u.full_name
FROM student_sections ss JOIN users u ON u.id = ss.student_id
WHERE ss.section_id = $1 AND ss.status = 'approved' AND ss.is_active AND u.is_active AND NOT u.is_blocked
ORDER BY u.id`
	var out []models.Recipient
	if err := sqlx.SelectContext(ctx, r.q, &out, query, sectionID); err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	return out, nil
}
