package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/apperr"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/logger"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/models"
)

// Refusal reasons returned by the gate. Each one is shown to the user as is.
var (
	ErrUnknownPrincipal = apperr.NotFound("you are not registered with the bot, send /start first")
	ErrInactive         = apperr.Permission("your account is not active")
	ErrBlocked          = apperr.Permission("you are blocked from using the bot")
	ErrUnknownSection   = apperr.NotFound("section not found")
	ErrNotSectionAdmin  = apperr.Permission("you are not the admin of this section")
)

// PermissionGate answers whether a principal may act. It only reads.
type PermissionGate struct {
	users    userStore
	sections sectionStore
}

// NewPermissionGate builds a gate over the identity and section stores.
func NewPermissionGate(repos Repos) *PermissionGate {
	return &PermissionGate{users: repos.Users, sections: repos.Sections}
}

// Authorize returns the principal when it holds role. Owners pass every
// check; other roles must match exactly.
func (g *PermissionGate) Authorize(ctx context.Context, telegramID int64, role models.Role) (*models.Principal, error) {
	p, err := g.usable(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if p.IsOwner() || p.Role == role {
		return p, nil
	}
	logger.Debug(ctx, logger.CompIdentity, "role.denied",
		slog.String("role", string(p.Role)),
		slog.String("required", string(role)),
	)
	return nil, apperr.Newf(apperr.KindPermission, "this action requires the %s role", role)
}

// CheckRole is Authorize for callers that only need the verdict.
func (g *PermissionGate) CheckRole(ctx context.Context, telegramID int64, role string) error {
	r := models.Role(role)
	if !r.Valid() {
		return apperr.Internal(fmt.Errorf("permission: unknown role %q", role))
	}
	_, err := g.Authorize(ctx, telegramID, r)
	return err
}

// CheckSectionAdmin passes owners and the admin assigned to the section. An
// unknown principal or section is reported apart from a wrong admin.
func (g *PermissionGate) CheckSectionAdmin(ctx context.Context, telegramID, sectionID int64) (*models.Principal, *models.Section, error) {
	p, err := g.usable(ctx, telegramID)
	if err != nil {
		return nil, nil, err
	}
	sec, err := g.sections.GetByID(ctx, sectionID)
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}
	if sec == nil {
		return nil, nil, ErrUnknownSection
	}
	if p.IsOwner() {
		return p, sec, nil
	}
	if p.Role != models.RoleAdmin || sec.AdminID == nil || *sec.AdminID != p.ID {
		logger.Debug(ctx, logger.CompIdentity, "section_admin.denied",
			slog.Int64("section_id", sectionID),
		)
		return nil, nil, ErrNotSectionAdmin
	}
	return p, sec, nil
}

func (g *PermissionGate) usable(ctx context.Context, telegramID int64) (*models.Principal, error) {
	p, err := g.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	switch {
	case p == nil:
		return nil, ErrUnknownPrincipal
	case !p.Active:
		return nil, ErrInactive
	case p.Blocked:
		return nil, ErrBlocked
	}
	return p, nil
}
