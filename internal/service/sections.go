package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/apperr"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/logger"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/models"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/repository"
)

// AcademicOptions carries the section policy taken from configuration.
type AcademicOptions struct {
	BotUsername      string
	MaxMembers       int
	StudyTypes       []models.StudyType
	Divisions        []string
	JoinCodeAttempts int
}

func (o AcademicOptions) withDefaults() AcademicOptions {
	if o.MaxMembers <= 0 {
		o.MaxMembers = 50
	}
	if len(o.StudyTypes) == 0 {
		o.StudyTypes = []models.StudyType{models.StudyMorning, models.StudyEvening}
	}
	if len(o.Divisions) == 0 {
		o.Divisions = []string{"A", "B"}
	}
	if o.JoinCodeAttempts <= 0 {
		o.JoinCodeAttempts = DefaultJoinCodeAttempts
	}
	return o
}

func (o AcademicOptions) allowsStudyType(v models.StudyType) bool {
	for _, st := range o.StudyTypes {
		if st == v {
			return true
		}
	}
	return false
}

func (o AcademicOptions) allowsDivision(v string) bool {
	for _, d := range o.Divisions {
		if d == v {
			return true
		}
	}
	return false
}

// ErrSectionExists is the refusal for a second active section on the same
// level, study type and division.
var ErrSectionExists = apperr.Conflict("an active section with this level, study type and division already exists")

// SectionService is the SectionRegistry: it creates sections, issues their
// join codes and answers listing queries.
type SectionService struct {
	repos Repos
	tx    TxFunc
	gate  *PermissionGate
	opts  AcademicOptions
	codes codeSource
}

// NewSectionService wires the registry.
func NewSectionService(repos Repos, tx TxFunc, gate *PermissionGate, opts AcademicOptions) *SectionService {
	return &SectionService{
		repos: repos,
		tx:    tx,
		gate:  gate,
		opts:  opts.withDefaults(),
		codes: randomJoinCode,
	}
}

// Options exposes the effective policy.
func (s *SectionService) Options() AcademicOptions { return s.opts }

// Levels lists the selectable academic levels.
func (s *SectionService) Levels(ctx context.Context) ([]models.AcademicLevel, error) {
	levels, err := s.repos.Levels.ListActive(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return levels, nil
}

// Level returns an active level or a validation error.
func (s *SectionService) Level(ctx context.Context, id int64) (*models.AcademicLevel, error) {
	lvl, err := s.repos.Levels.GetActive(ctx, id)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if lvl == nil {
		return nil, apperr.Validation("this academic level is not available")
	}
	return lvl, nil
}

// ProvisionAdmin resolves the principal that will manage a new section,
// creating an admin named Admin_<id> when the Telegram id is unknown. The
// row is written immediately and survives a later cancel of the wizard.
func (s *SectionService) ProvisionAdmin(ctx context.Context, owner *models.Principal, adminTelegramID int64) (*models.Principal, bool, error) {
	if adminTelegramID <= 0 {
		return nil, false, apperr.Validation("the admin id must be a positive number")
	}
	if owner != nil && adminTelegramID == owner.TelegramID {
		return nil, false, apperr.Validation("you cannot assign yourself as the section admin")
	}
	var (
		admin   *models.Principal
		created bool
	)
	err := s.tx(ctx, func(tx Repos) error {
		var err error
		admin, created, err = tx.Users.Ensure(ctx, models.Principal{
			TelegramID: adminTelegramID,
			FullName:   "Admin_" + strconv.FormatInt(adminTelegramID, 10),
			Role:       models.RoleAdmin,
		})
		if err != nil {
			return err
		}
		if !created {
			return nil
		}
		var ownerID int64
		if owner != nil {
			ownerID = owner.ID
		}
		return logActivity(ctx, tx.Activity, ownerID, models.ActionAdminProvisioned,
			fmt.Sprintf("provisioned admin %d", adminTelegramID), "user", admin.ID)
	})
	if err != nil {
		return nil, false, apperr.Internal(err)
	}
	switch {
	case admin.Role != models.RoleAdmin:
		return nil, false, apperr.Validation("this user is registered as a " + string(admin.Role) + " and cannot manage a section")
	case admin.Blocked || !admin.Active:
		return nil, false, apperr.Validation("this user is blocked or inactive and cannot manage a section")
	}
	if created {
		logger.Info(ctx, logger.CompSections, "admin.provisioned",
			slog.Int64("admin_telegram_id", adminTelegramID),
			slog.Int64("admin_id", admin.ID),
		)
	}
	return admin, created, nil
}

// Create registers a section for the owner behind ownerTelegramID.
func (s *SectionService) Create(ctx context.Context, ownerTelegramID int64, in models.NewSection) (*models.Section, error) {
	owner, err := s.gate.Authorize(ctx, ownerTelegramID, models.RoleOwner)
	if err != nil {
		return nil, err
	}
	if !s.opts.allowsStudyType(in.StudyType) {
		return nil, apperr.Validation("unknown study type")
	}
	if !s.opts.allowsDivision(in.Division) {
		return nil, apperr.Validation("unknown division")
	}
	if in.AdminID <= 0 {
		return nil, apperr.Validation("the section needs an admin")
	}
	if in.MaxStudents <= 0 {
		in.MaxStudents = s.opts.MaxMembers
	}

	sec := &models.Section{
		Name:        models.SectionName(in.LevelName, in.StudyType, in.Division),
		LevelID:     in.LevelID,
		LevelName:   in.LevelName,
		StudyType:   in.StudyType,
		Division:    in.Division,
		AdminID:     &in.AdminID,
		MaxStudents: in.MaxStudents,
	}
	err = s.tx(ctx, func(tx Repos) error {
		code, err := issueJoinCode(ctx, tx.Sections, s.codes, s.opts.JoinCodeAttempts)
		if err != nil {
			return err
		}
		sec.JoinCode = code
		if err := tx.Sections.Create(ctx, sec); err != nil {
			return err
		}
		return logActivity(ctx, tx.Activity, owner.ID, models.ActionSectionCreated, sec.Name, "section", sec.ID)
	})
	if err != nil {
		logger.Warn(ctx, logger.CompSections, "section.create",
			slog.String("status", logger.Status(err)),
			slog.String("err", err.Error()),
		)
		return nil, classifySectionError(err)
	}
	logger.Info(ctx, logger.CompSections, "section.create",
		slog.String("status", logger.Status(nil)),
		slog.Int64("section_id", sec.ID),
		slog.Int64("admin_id", in.AdminID),
	)
	return sec, nil
}

func classifySectionError(err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	if constraint, ok := repository.UniqueViolation(err); ok {
		if constraint == repository.ConstraintSectionJoinCode {
			return ErrJoinCodeExhausted
		}
		return ErrSectionExists
	}
	return apperr.Internal(err)
}

// JoinLink builds the registration deep link of sec.
func (s *SectionService) JoinLink(sec *models.Section) string {
	if sec == nil {
		return ""
	}
	return models.JoinLink(s.opts.BotUsername, sec.JoinCode)
}

// ListSections returns every active section to the owner and the admin's
// own sections to an admin.
func (s *SectionService) ListSections(ctx context.Context, telegramID int64) ([]models.Section, error) {
	p, err := s.gate.Authorize(ctx, telegramID, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	var adminID int64
	if !p.IsOwner() {
		adminID = p.ID
	}
	secs, err := s.repos.Sections.ListActive(ctx, adminID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return secs, nil
}

// StudentSection returns the section a student is approved in.
func (s *SectionService) StudentSection(ctx context.Context, telegramID int64) (*models.Section, error) {
	p, err := s.gate.Authorize(ctx, telegramID, models.RoleStudent)
	if err != nil {
		return nil, err
	}
	sec, err := s.repos.Sections.GetApprovedForStudent(ctx, p.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if sec == nil {
		return nil, apperr.NotFound("you are not enrolled in any section yet")
	}
	return sec, nil
}
