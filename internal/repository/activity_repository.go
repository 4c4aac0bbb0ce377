package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/models"
)

// ActivityRepository appends audit entries.
type ActivityRepository struct {
	q sqlx.ExtContext
}

// Log appends entry.
func (r *ActivityRepository) Log(ctx context.Context, entry models.ActivityLog) error {
	const query = `INSERT INTO activity_logs (user_id, action, details, target_type, target_id)
	VALUES (:user_id, :action, :details, :target_type, :target_id)`
	if _, err := sqlx.NamedExecContext(ctx, r.q, query, entry); err != nil {
		return fmt.Errorf("log activity: %w", err)
	}
	return nil
}
