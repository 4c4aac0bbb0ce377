package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/models"
)

// DeadlineLayout renders deadlines as "2026-10-20 at 23:59".
const DeadlineLayout = "2006-01-02 at 15:04"

// FormatDeadline renders t in loc.
func FormatDeadline(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(DeadlineLayout)
}

// RemainingTime describes the time left until deadline in words.
func RemainingTime(now, deadline time.Time) string {
	if now.After(deadline) {
		return "deadline passed"
	}
	diff := deadline.Sub(now)
	days := int(diff / (24 * time.Hour))
	hours := int(diff%(24*time.Hour)) / int(time.Hour)
	minutes := int(diff%time.Hour) / int(time.Minute)

	var parts []string
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 && days == 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if len(parts) == 0 {
		return "less than a minute"
	}
	return strings.Join(parts, " and ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// AssignmentText renders the message students receive for kind. Kinds
// without a template of their own use the new assignment text.
func AssignmentText(kind models.NotificationKind, a *models.Assignment, now time.Time, loc *time.Location) string {
	switch kind {
	case models.NotifyEdit:
		return "⚠️ An assignment was edited\n\n" + newAssignmentText(a, now, loc)
	case models.NotifyDelete:
		return fmt.Sprintf("🗑️ The assignment %q in %s was cancelled.", a.Title, a.SubjectName)
	default:
		return newAssignmentText(a, now, loc)
	}
}

func newAssignmentText(a *models.Assignment, now time.Time, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📚 New assignment - %s\n\n", a.SubjectName)
	fmt.Fprintf(&b, "📌 Title: %s\n\n", a.Title)
	if desc := strings.TrimSpace(a.Description); desc != "" {
		fmt.Fprintf(&b, "📝 Details:\n%s\n\n", desc)
	}
	fmt.Fprintf(&b, "⏰ Deadline: %s\n", FormatDeadline(a.Deadline, loc))
	fmt.Fprintf(&b, "⏳ Remaining: %s\n\n", RemainingTime(now, a.Deadline))
	b.WriteString("🔔 Don't forget to submit!")
	return b.String()
}

// DispatchSummary is the report an admin receives after a dispatch run.
func DispatchSummary(kind models.NotificationKind, title string, s models.DispatchStats) string {
	return fmt.Sprintf("📣 Notifications for %q (%s)\n\n✅ Sent: %d\n❌ Failed: %d\n🚫 Blocked: %d",
		title, kind, s.Sent, s.Failed, s.Blocked)
}
