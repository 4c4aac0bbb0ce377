package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/models"
)

func TestRemainingTime(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		in   time.Duration
		want string
	}{
		{-time.Minute, "deadline passed"},
		{30 * time.Second, "less than a minute"},
		{45 * time.Minute, "45 minutes"},
		{time.Hour + time.Minute, "1 hour and 1 minute"},
		{26*time.Hour + 30*time.Minute, "1 day and 2 hours"},
		{72 * time.Hour, "3 days"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, RemainingTime(now, now.Add(tc.in)), tc.in.String())
	}
}

func TestAssignmentText(t *testing.T) {
	loc := time.FixedZone("AST", 3*3600)
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	a := &models.Assignment{
		SubjectName: "Physics",
		Title:       "Lab report",
		Description: "Measure g",
		Deadline:    time.Date(2026, 10, 20, 20, 59, 0, 0, time.UTC),
	}

	text := AssignmentText(models.NotifyNew, a, now, loc)
	assert.Contains(t, text, "📚 New assignment - Physics")
	assert.Contains(t, text, "📝 Details:\nMeasure g")
	assert.Contains(t, text, "2026-10-20 at 23:59")

	edited := AssignmentText(models.NotifyEdit, a, now, loc)
	assert.Contains(t, edited, "⚠️ An assignment was edited")
	assert.Contains(t, edited, "Lab report")

	deleted := AssignmentText(models.NotifyDelete, a, now, loc)
	assert.Equal(t, "🗑️ The assignment \"Lab report\" in Physics was cancelled.", deleted)

	assert.Equal(t, text, AssignmentText(models.NotifyReminder, a, now, loc))
}

func TestDispatchSummary(t *testing.T) {
	got := DispatchSummary(models.NotifyEdit, "Lab report", models.DispatchStats{Sent: 4, Failed: 1, Blocked: 2})
	assert.Contains(t, got, "(edit)")
	assert.Contains(t, got, "Sent: 4")
	assert.Contains(t, got, "Failed: 1")
	assert.Contains(t, got, "Blocked: 2")
}
