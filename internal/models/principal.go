package models

import "time"

// Role is the fixed role of a principal. It never changes after creation.
type Role string

// Supported roles, strongest first.
const (
	RoleOwner   Role = "owner"
	RoleAdmin   Role = "admin"
	RoleStudent Role = "student"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleStudent:
		return true
	}
	return false
}

// Principal is a Telegram user known to the bot.
type Principal struct {
	ID         int64     `db:"id" json:"id"`
	TelegramID int64     `db:"telegram_id" json:"telegram_id"`
	Username   *string   `db:"username" json:"username,omitempty"`
	FullName   string    `db:"full_name" json:"full_name"`
	Role       Role      `db:"role" json:"role"`
	Active     bool      `db:"is_active" json:"is_active"`
	Blocked    bool      `db:"is_blocked" json:"is_blocked"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	LastActive time.Time `db:"last_active" json:"last_active"`
}

// IsOwner is a shorthand used by permission checks.
func (p *Principal) IsOwner() bool { return p != nil && p.Role == RoleOwner }

// ActivityLog is one audit row describing a mutation.
type ActivityLog struct {
	ID         int64     `db:"id" json:"id"`
	UserID     *int64    `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Details    string    `db:"details" json:"details"`
	TargetType string    `db:"target_type" json:"target_type"`
	TargetID   *int64    `db:"target_id" json:"target_id,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Activity actions written to activity_logs.
const (
	ActionSectionCreated        = "section_created"
	ActionAdminProvisioned      = "admin_provisioned"
	ActionRegistrationRequested = "registration_requested"
	ActionRegistrationApproved  = "registration_approved"
	ActionRegistrationRejected  = "registration_rejected"
	ActionUserBlocked           = "user_blocked"
	ActionUserUnblocked         = "user_unblocked"
	ActionAssignmentCreated     = "assignment_created"
	ActionAssignmentEdited      = "assignment_edited"
	ActionAssignmentDeleted     = "assignment_deleted"
)
