package models

import "time"

// NotificationKind selects the message template of a dispatch.
type NotificationKind string

// Kinds accepted by assignment_notifications.
const (
	NotifyNew      NotificationKind = "new"
	NotifyEdit     NotificationKind = "edit"
	NotifyDelete   NotificationKind = "delete"
	NotifyReminder NotificationKind = "reminder"
)

// DeliveryStatus is the outcome of one delivery attempt.
type DeliveryStatus string

// Delivery outcomes.
const (
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
	DeliveryBlocked DeliveryStatus = "blocked"
)

// NotificationRecord is the append-only audit row of one delivery attempt.
type NotificationRecord struct {
	ID           int64            `db:"id" json:"id"`
	AssignmentID int64            `db:"assignment_id" json:"assignment_id"`
	StudentID    int64            `db:"student_id" json:"student_id"`
	Kind         NotificationKind `db:"kind" json:"kind"`
	Status       DeliveryStatus   `db:"status" json:"status"`
	SentAt       time.Time        `db:"sent_at" json:"sent_at"`
}

// DispatchStats counts the outcomes of one dispatch run.
type DispatchStats struct {
	Sent    int `db:"sent" json:"sent"`
	Failed  int `db:"failed" json:"failed"`
	Blocked int `db:"blocked" json:"blocked"`
}

// Total is the number of attempts.
func (s DispatchStats) Total() int { return s.Sent + s.Failed + s.Blocked }

// Add counts one attempt with the given status.
func (s *DispatchStats) Add(status DeliveryStatus) {
	switch status {
	case DeliverySent:
		s.Sent++
	case DeliveryBlocked:
		s.Blocked++
	default:
		s.Failed++
	}
}
