package models

import "time"

// MembershipStatus is the enrollment decision state.
type MembershipStatus string

// Status values; approved and rejected are terminal.
const (
	MembershipPending  MembershipStatus = "pending"
	MembershipApproved MembershipStatus = "approved"
	MembershipRejected MembershipStatus = "rejected"
)

// Membership is a student's enrollment request against one section.
type Membership struct {
	ID           int64            `db:"id" json:"id"`
	StudentID    int64            `db:"student_id" json:"student_id"`
	SectionID    int64            `db:"section_id" json:"section_id"`
	Status       MembershipStatus `db:"status" json:"status"`
	RegisteredAt time.Time        `db:"registered_at" json:"registered_at"`
	ApprovedAt   *time.Time       `db:"approved_at" json:"approved_at,omitempty"`
	ApprovedBy   *int64           `db:"approved_by" json:"approved_by,omitempty"`
	Active       bool             `db:"is_active" json:"is_active"`
}

// PendingRequest enriches a pending membership for the admin review list.
type PendingRequest struct {
	Membership
	StudentTelegramID int64  `db:"student_telegram_id" json:"student_telegram_id"`
	StudentName       string `db:"student_name" json:"student_name"`
	SectionName       string `db:"section_name" json:"section_name"`
}

// Recipient is an approved, active, unblocked member of a section.
type Recipient struct {
	PrincipalID int64  `db:"id"`
	TelegramID  int64  `db:"telegram_id"`
	FullName    string `db:"full_name"`
}
