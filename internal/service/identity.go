package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/apperr"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/logger"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/models"
)

// IdentityService is the IdentityStore seen from the handlers.
type IdentityService struct {
	repos Repos
	tx    TxFunc
	gate  *PermissionGate
}

// NewIdentityService wires the service.
func NewIdentityService(repos Repos, tx TxFunc, gate *PermissionGate) *IdentityService {
	return &IdentityService{repos: repos, tx: tx, gate: gate}
}

// GetUserByTelegramID returns the principal or nil when unknown.
func (s *IdentityService) GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.Principal, error) {
	p, err := s.repos.Users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return p, nil
}

// EnsureOwner makes telegramID the owner principal. It is idempotent and
// refuses an id already registered under another role.
func (s *IdentityService) EnsureOwner(ctx context.Context, telegramID int64) (*models.Principal, error) {
	if telegramID <= 0 {
		return nil, fmt.Errorf("identity: owner id must be positive")
	}
	p, created, err := s.repos.Users.Ensure(ctx, models.Principal{
		TelegramID: telegramID,
		FullName:   "Owner",
		Role:       models.RoleOwner,
	})
	if err != nil {
		return nil, fmt.Errorf("identity: ensure owner: %w", err)
	}
	if p.Role != models.RoleOwner {
		return nil, fmt.Errorf("identity: telegram id %d is already registered as %s", telegramID, p.Role)
	}
	logger.Info(ctx, logger.CompIdentity, "owner.ensure",
		slog.Int64("principal_id", p.ID),
		slog.Bool("created", created),
	)
	return p, nil
}

// SetBlocked blocks or unblocks target on behalf of actor. Owners can never
// be blocked and admins may only block students.
func (s *IdentityService) SetBlocked(ctx context.Context, actorTelegramID, targetTelegramID int64, blocked bool) (*models.Principal, error) {
	actor, err := s.gate.Authorize(ctx, actorTelegramID, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if targetTelegramID == actorTelegramID {
		return nil, apperr.Validation("you cannot block or unblock yourself")
	}
	target, err := s.repos.Users.GetByTelegramID(ctx, targetTelegramID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	switch {
	case target == nil:
		return nil, apperr.NotFound("user not found")
	case target.IsOwner():
		return nil, apperr.Permission("the owner cannot be blocked")
	case !actor.IsOwner() && target.Role != models.RoleStudent:
		return nil, apperr.Permission("admins can only block students")
	}

	act := models.ActionUserUnblocked
	if blocked {
		act = models.ActionUserBlocked
	}
	err = s.tx(ctx, func(tx Repos) error {
		ok, err := tx.Users.SetBlocked(ctx, target.ID, blocked)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFound("user not found")
		}
		return logActivity(ctx, tx.Activity, actor.ID, act, fmt.Sprintf("telegram id %d", targetTelegramID), "user", target.ID)
	})
	if err != nil {
		return nil, asAppErr(err)
	}
	target.Blocked = blocked
	logger.Info(ctx, logger.CompIdentity, "user.blocked",
		slog.Int64("target_id", target.ID),
		slog.Bool("blocked", blocked),
	)
	return target, nil
}
