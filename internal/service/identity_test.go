package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/apperr"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/models"
)

func TestEnsureOwnerIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p, err := h.identity.EnsureOwner(ctx, 1000)
	require.NoError(t, err)
	assert.Equal(t, h.owner.ID, p.ID)

	fresh, err := h.identity.EnsureOwner(ctx, 7000)
	require.NoError(t, err)
	assert.Equal(t, models.RoleOwner, fresh.Role)

	h.db.addUser(2000, models.RoleAdmin, "Admin")
	_, err = h.identity.EnsureOwner(ctx, 2000)
	assert.Error(t, err)
	_, err = h.identity.EnsureOwner(ctx, 0)
	assert.Error(t, err)
}

func TestSetBlocked(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.db.addUser(2000, models.RoleAdmin, "Admin")
	h.db.addUser(2001, models.RoleAdmin, "Other admin")
	h.db.addUser(3000, models.RoleStudent, "Student")

	p, err := h.identity.SetBlocked(ctx, 2000, 3000, true)
	require.NoError(t, err)
	assert.True(t, p.Blocked)
	assert.True(t, h.db.userByTG(3000).Blocked)
	assert.Contains(t, h.db.actions(), models.ActionUserBlocked)

	_, err = h.gate.Authorize(ctx, 3000, models.RoleStudent)
	assert.ErrorIs(t, err, ErrBlocked)

	_, err = h.identity.SetBlocked(ctx, 2000, 3000, false)
	require.NoError(t, err)
	assert.False(t, h.db.userByTG(3000).Blocked)

	_, err = h.identity.SetBlocked(ctx, 2000, 2001, true)
	assert.True(t, apperr.Is(err, apperr.KindPermission), "admins only block students")

	_, err = h.identity.SetBlocked(ctx, 1000, 2001, true)
	assert.NoError(t, err, "the owner may block admins")

	_, err = h.identity.SetBlocked(ctx, 2000, 1000, true)
	assert.True(t, apperr.Is(err, apperr.KindPermission))

	_, err = h.identity.SetBlocked(ctx, 2000, 2000, true)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = h.identity.SetBlocked(ctx, 2000, 9999, true)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = h.identity.SetBlocked(ctx, 3000, 2000, true)
	assert.True(t, apperr.Is(err, apperr.KindPermission), "students cannot block")
}
