package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/apperr"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/action"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/conversation"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/models"
)

var studentKey = conversation.Key{UserID: 3000, ChatID: 3000}

func registrationFixture(t *testing.T, capacity int) (*harness, *models.Principal, *models.Section) {
	t.Helper()
	h := newHarness(t)
	admin := h.db.addUser(2000, models.RoleAdmin, "Admin")
	sec := h.db.addSection("Level 1 - Morning - Division A", admin, capacity)
	return h, admin, sec
}

func TestRegistrationHappyPath(t *testing.T) {
	h, admin, sec := registrationFixture(t, 50)
	ctx := context.Background()

	reply, err := h.registration.Start(ctx, studentKey, sec.JoinCode, "@ali")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, sec.Name)
	assert.Equal(t, StateRegistrationName, h.current(t, studentKey))

	reply, err = h.send(t, studentKey, conversation.Input{Text: "  Ali Hassan  "})
	require.NoError(t, err)
	assert.True(t, reply.Done)
	assert.Contains(t, reply.Text, sec.Name)

	student := h.db.userByTG(3000)
	require.NotNil(t, student)
	assert.Equal(t, models.RoleStudent, student.Role)
	assert.Equal(t, "Ali Hassan", student.FullName)
	require.NotNil(t, student.Username)
	assert.Equal(t, "ali", *student.Username)
	assert.Equal(t, 1, h.db.countMemberships(student.ID, sec.ID))

	msgs := h.notifier.messages(admin.TelegramID)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "Ali Hassan")
	require.Len(t, msgs[0].Buttons, 1)
	assert.Equal(t, action.Decision(true, 3000, sec.ID), msgs[0].Buttons[0][0].Data)
	assert.Equal(t, action.Decision(false, 3000, sec.ID), msgs[0].Buttons[0][1].Data)
	assert.Equal(t, 1, h.obs.registrations[outcomePending])
}

func TestRegistrationInvalidCodeStartsNoSession(t *testing.T) {
	h, _, sec := registrationFixture(t, 50)
	ctx := context.Background()

	for _, code := range []string{"hello", "SEC_ZZZZZZZZZZZZ"} {
		_, err := h.registration.Start(ctx, studentKey, code, "")
		assert.ErrorIs(t, err, ErrInvalidJoinCode, code)
		assert.False(t, h.conversations.InProgress(ctx, studentKey))
	}

	h.db.sections[sec.ID].Active = false
	_, err := h.registration.Start(ctx, studentKey, sec.JoinCode, "")
	assert.ErrorIs(t, err, ErrInvalidJoinCode)
	assert.False(t, h.conversations.InProgress(ctx, studentKey))
	assert.Nil(t, h.db.userByTG(3000))
}

func TestRegistrationRefusesStaff(t *testing.T) {
	h, _, sec := registrationFixture(t, 50)

	_, err := h.registration.Start(context.Background(), ownerKey, sec.JoinCode, "")
	assert.ErrorIs(t, err, ErrStaffCannotRegister)
	assert.False(t, h.conversations.InProgress(context.Background(), ownerKey))

	_, _, err = h.registration.Register(context.Background(), RegisterRequest{
		TelegramID: 2000, FullName: "Admin Person", JoinCode: sec.JoinCode,
	})
	assert.ErrorIs(t, err, ErrStaffCannotRegister)
}

func TestRegistrationNameValidationKeepsState(t *testing.T) {
	h, _, sec := registrationFixture(t, 50)
	_, err := h.registration.Start(context.Background(), studentKey, sec.JoinCode, "")
	require.NoError(t, err)

	_, err = h.send(t, studentKey, conversation.Input{Text: "Al"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, StateRegistrationName, h.current(t, studentKey))
	assert.Nil(t, h.db.userByTG(3000))
}

func TestRegistrationSectionFull(t *testing.T) {
	h, _, sec := registrationFixture(t, 1)
	enrolled := h.db.addUser(3001, models.RoleStudent, "Enrolled")
	h.db.addMembership(enrolled, sec, models.MembershipApproved)

	_, _, err := h.registration.Register(context.Background(), RegisterRequest{
		TelegramID: 3000, FullName: "Late Student", JoinCode: sec.JoinCode,
	})
	assert.ErrorIs(t, err, ErrSectionFull)
	assert.Len(t, h.db.memberships, 1)
	assert.Equal(t, 1, h.obs.registrations[outcomeRefused])
}

func TestRegistrationExistingMembershipRefusals(t *testing.T) {
	cases := []struct {
		status models.MembershipStatus
		want   error
	}{
		{models.MembershipPending, ErrAlreadyPending},
		{models.MembershipApproved, ErrAlreadyEnrolled},
		{models.MembershipRejected, ErrPreviouslyRejected},
	}
	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			h, _, sec := registrationFixture(t, 50)
			student := h.db.addUser(3000, models.RoleStudent, "Student")
			h.db.addMembership(student, sec, tc.status)

			_, err := h.registration.Start(context.Background(), studentKey, sec.JoinCode, "")
			assert.ErrorIs(t, err, tc.want)
			assert.False(t, h.conversations.InProgress(context.Background(), studentKey))

			_, _, err = h.registration.Register(context.Background(), RegisterRequest{
				TelegramID: 3000, FullName: "Student", JoinCode: sec.JoinCode,
			})
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, 1, h.db.countMemberships(student.ID, sec.ID))
		})
	}
}

func TestDecideApproveOnce(t *testing.T) {
	h, _, sec := registrationFixture(t, 50)
	ctx := context.Background()
	_, _, err := h.registration.Register(ctx, RegisterRequest{TelegramID: 3000, FullName: "Ali Hassan", JoinCode: sec.JoinCode})
	require.NoError(t, err)

	reply, err := h.registration.Decide(ctx, 2000, 3000, sec.ID, true)
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Approved")

	student := h.db.userByTG(3000)
	m := h.db.membership(student.ID, sec.ID)
	require.NotNil(t, m)
	assert.Equal(t, models.MembershipApproved, m.Status)

	_, err = h.registration.Decide(ctx, 2000, 3000, sec.ID, false)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.Equal(t, models.MembershipApproved, h.db.membership(student.ID, sec.ID).Status)

	msgs := h.notifier.messages(3000)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "approved")
	assert.Equal(t, 1, h.obs.registrations[outcomeApproved])
}

func TestDecideReject(t *testing.T) {
	h, _, sec := registrationFixture(t, 50)
	ctx := context.Background()
	_, _, err := h.registration.Register(ctx, RegisterRequest{TelegramID: 3000, FullName: "Ali Hassan", JoinCode: sec.JoinCode})
	require.NoError(t, err)

	_, err = h.registration.Decide(ctx, 1000, 3000, sec.ID, false)
	require.NoError(t, err, "the owner may decide for any section")

	student := h.db.userByTG(3000)
	assert.Equal(t, models.MembershipRejected, h.db.membership(student.ID, sec.ID).Status)
	assert.Contains(t, h.db.actions(), models.ActionRegistrationRejected)
	msgs := h.notifier.messages(3000)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "rejected")
}

func TestDecideRequiresSectionAdmin(t *testing.T) {
	h, _, sec := registrationFixture(t, 50)
	ctx := context.Background()
	h.db.addUser(2001, models.RoleAdmin, "Other admin")
	_, _, err := h.registration.Register(ctx, RegisterRequest{TelegramID: 3000, FullName: "Ali Hassan", JoinCode: sec.JoinCode})
	require.NoError(t, err)

	_, err = h.registration.Decide(ctx, 2001, 3000, sec.ID, true)
	assert.ErrorIs(t, err, ErrNotSectionAdmin)
	student := h.db.userByTG(3000)
	assert.Equal(t, models.MembershipPending, h.db.membership(student.ID, sec.ID).Status)
}

func TestRegistrationNotifyFailureIsNotFatal(t *testing.T) {
	h, admin, sec := registrationFixture(t, 50)
	h.notifier.fail[admin.TelegramID] = ErrRecipientBlocked

	m, _, err := h.registration.Register(context.Background(), RegisterRequest{
		TelegramID: 3000, FullName: "Ali Hassan", JoinCode: sec.JoinCode,
	})
	require.NoError(t, err)
	assert.Equal(t, models.MembershipPending, m.Status)
}

func TestPendingListsOnlyOwnSections(t *testing.T) {
	h, _, sec := registrationFixture(t, 50)
	ctx := context.Background()
	other := h.db.addUser(2001, models.RoleAdmin, "Other admin")
	otherSec := h.db.addSection("Level 2 - Evening - Division B", other, 50)
	_, _, err := h.registration.Register(ctx, RegisterRequest{TelegramID: 3000, FullName: "Ali Hassan", JoinCode: sec.JoinCode})
	require.NoError(t, err)
	_, _, err = h.registration.Register(ctx, RegisterRequest{TelegramID: 3001, FullName: "Sara Omar", JoinCode: otherSec.JoinCode})
	require.NoError(t, err)

	mine, err := h.registration.Pending(ctx, 2000)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Contains(t, mine[0].Text, "Ali Hassan")

	all, err := h.registration.Pending(ctx, 1000)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = h.registration.Pending(ctx, 3000)
	assert.True(t, apperr.Is(err, apperr.KindPermission))
}
