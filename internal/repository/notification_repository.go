package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/models"
)

// NotificationRepository appends delivery records. Rows are never updated.
type NotificationRepository struct {
	q sqlx.ExtContext
}

// Insert appends one delivery attempt and fills rec.ID and rec.SentAt.
func (r *NotificationRepository) Insert(ctx context.Context, rec *models.NotificationRecord) error {
	const query = `INSERT INTO assignment_notifications (assignment_id, student_id, kind, status)
	VALUES ($1, $2, $3, $4)
	RETURNING id, sent_at`
	row := r.q.QueryRowxContext(ctx, query, rec.AssignmentID, rec.StudentID, rec.Kind, rec.Status)
	if err := row.Scan(&rec.ID, &rec.SentAt); err != nil {
		return fmt.Errorf("insert notification record: %w", err)
	}
	return nil
}

// StatsForAssignment counts every recorded attempt for an assignment by status.
func (r *NotificationRepository) StatsForAssignment(ctx context.Context, assignmentID int64) (models.DispatchStats, error) {
	const query = `SELECT
	COUNT(*) FILTER (WHERE status = 'sent') AS sent,
	COUNT(*) FILTER (WHERE status = 'failed') AS failed,
	COUNT(*) FILTER (WHERE status = 'blocked') AS blocked
FROM assignment_notifications WHERE assignment_id = $1`
	var stats models.DispatchStats
	if err := sqlx.GetContext(ctx, r.q, &stats, query, assignmentID); err != nil {
		return models.DispatchStats{}, fmt.Errorf("notification stats: %w", err)
	}
	return stats, nil
}
