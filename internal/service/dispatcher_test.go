package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/jobs"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/models"
)

type dispatchFixture struct {
	h          *harness
	dispatcher *NotificationDispatcher
	sec        *models.Section
	assignment *models.Assignment
	students   []*models.Principal
}

func newDispatchFixture(t *testing.T, students int, delay time.Duration) *dispatchFixture {
	t.Helper()
	h := newHarness(t)
	admin := h.db.addUser(2000, models.RoleAdmin, "Admin")
	sec := h.db.addSection("S1", admin, 50)
	f := &dispatchFixture{h: h, sec: sec}
	for i := 0; i < students; i++ {
		st := h.db.addUser(int64(3000+i), models.RoleStudent, fmt.Sprintf("Student %d", i))
		h.db.addMembership(st, sec, models.MembershipApproved)
		f.students = append(f.students, st)
	}
	a := &models.Assignment{
		SectionID:   sec.ID,
		SubjectName: "Physics",
		Title:       "Lab report",
		Deadline:    h.now.Add(50 * time.Hour),
	}
	repos, _ := h.db.repos()
	require.NoError(t, repos.Assignments.Create(context.Background(), a))
	f.assignment = a
	f.dispatcher = NewNotificationDispatcher(repos, h.notifier, h.obs, DispatcherOptions{
		Delay:    delay,
		Location: time.UTC,
		Now:      func() time.Time { return h.now },
	})
	return f
}

func TestDispatchCountsEveryRecipientOnce(t *testing.T) {
	f := newDispatchFixture(t, 5, -1)
	f.h.notifier.fail[3001] = fmt.Errorf("send: %w", ErrRecipientBlocked)
	f.h.notifier.fail[3002] = errors.New("telegram: bad gateway")

	stats, err := f.dispatcher.Dispatch(context.Background(), f.assignment.ID, f.sec.ID, models.NotifyNew)
	require.NoError(t, err)
	assert.Equal(t, models.DispatchStats{Sent: 3, Failed: 1, Blocked: 1}, stats)
	assert.Equal(t, 5, stats.Total())

	require.Len(t, f.h.db.records, 5)
	perStudent := map[int64]models.DeliveryStatus{}
	for _, r := range f.h.db.records {
		assert.Equal(t, f.assignment.ID, r.AssignmentID)
		assert.Equal(t, models.NotifyNew, r.Kind)
		_, dup := perStudent[r.StudentID]
		assert.False(t, dup, "one record per recipient")
		perStudent[r.StudentID] = r.Status
	}
	assert.Equal(t, models.DeliveryBlocked, perStudent[f.students[1].ID])
	assert.Equal(t, models.DeliveryFailed, perStudent[f.students[2].ID])

	assert.Equal(t, 3, f.h.obs.notifications["new/sent"])
	assert.Equal(t, 1, f.h.obs.dispatches)

	msgs := f.h.notifier.messages(3000)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "Lab report")
	assert.Contains(t, msgs[0].Text, "2 days and 2 hours")
}

func TestDispatchSkipsIneligibleMembers(t *testing.T) {
	f := newDispatchFixture(t, 2, -1)
	f.students[1].Blocked = true
	pending := f.h.db.addUser(4000, models.RoleStudent, "Pending")
	f.h.db.addMembership(pending, f.sec, models.MembershipPending)

	stats, err := f.dispatcher.Dispatch(context.Background(), f.assignment.ID, f.sec.ID, models.NotifyNew)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total())
	assert.Empty(t, f.h.notifier.messages(4000))
	assert.Empty(t, f.h.notifier.messages(3001))
}

func TestDispatchDeleteUsesCancellationText(t *testing.T) {
	f := newDispatchFixture(t, 1, -1)

	_, err := f.dispatcher.Dispatch(context.Background(), f.assignment.ID, f.sec.ID, models.NotifyDelete)
	require.NoError(t, err)
	msgs := f.h.notifier.messages(3000)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "cancelled")
	assert.NotContains(t, msgs[0].Text, "Deadline")
	assert.Equal(t, models.NotifyDelete, f.h.db.records[0].Kind)
}

func TestDispatchUnknownKindFallsBackToNew(t *testing.T) {
	f := newDispatchFixture(t, 1, -1)

	_, err := f.dispatcher.Dispatch(context.Background(), f.assignment.ID, f.sec.ID, "weird")
	require.NoError(t, err)
	msgs := f.h.notifier.messages(3000)
	require.Len(t, msgs, 1)
	assert.True(t, strings.HasPrefix(msgs[0].Text, "📚 New assignment"))
	assert.Equal(t, models.NotifyNew, f.h.db.records[0].Kind)
}

func TestDispatchMissingAssignmentOrRecipients(t *testing.T) {
	f := newDispatchFixture(t, 0, -1)

	stats, err := f.dispatcher.Dispatch(context.Background(), 9999, f.sec.ID, models.NotifyNew)
	require.NoError(t, err)
	assert.Zero(t, stats.Total())

	stats, err = f.dispatcher.Dispatch(context.Background(), f.assignment.ID, f.sec.ID, models.NotifyNew)
	require.NoError(t, err)
	assert.Zero(t, stats.Total())
	assert.Empty(t, f.h.db.records)
}

func TestDispatchPacesSends(t *testing.T) {
	f := newDispatchFixture(t, 4, 20*time.Millisecond)

	start := time.Now()
	stats, err := f.dispatcher.Dispatch(context.Background(), f.assignment.ID, f.sec.ID, models.NotifyNew)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Sent)
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestDispatchIgnoresCallerCancellation(t *testing.T) {
	f := newDispatchFixture(t, 3, -1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := f.dispatcher.Dispatch(ctx, f.assignment.ID, f.sec.ID, models.NotifyEdit)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Sent)
}

func TestDispatchHandlerReportsSummary(t *testing.T) {
	f := newDispatchFixture(t, 2, -1)
	handler := DispatchHandler(f.dispatcher, f.h.notifier)

	err := handler(context.Background(), jobs.Job{
		ID:   "job-1",
		Type: JobDispatch,
		Payload: DispatchJob{
			AssignmentID: f.assignment.ID,
			SectionID:    f.sec.ID,
			Kind:         models.NotifyNew,
			Title:        f.assignment.Title,
			ReportTo:     2000,
		},
	})
	require.NoError(t, err)
	msgs := f.h.notifier.messages(2000)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "Sent: 2")

	err = handler(context.Background(), jobs.Job{ID: "job-2", Payload: "nope"})
	assert.Error(t, err)
}
