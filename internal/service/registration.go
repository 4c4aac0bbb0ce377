package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/apperr"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/logger"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram/format"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram/state"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/action"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/conversation"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/models"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/repository"
)

// StateRegistrationName waits for the student's full name.
const StateRegistrationName state.State = "registration.name"

const effectRegister = "register"

const (
	keySectionCode  = "section_code"
	keySectionID    = "section_id"
	keySectionLabel = "section_label"
	keyUsername     = "username"
	keyFullName     = "full_name"
)

// Registration refusals.
var (
	ErrStaffCannotRegister = apperr.Permission("owners and admins cannot register as students")
	ErrInvalidJoinCode     = apperr.NotFound("this registration link is invalid or the section is no longer active")
	ErrSectionFull         = apperr.Conflict("this section is full, contact the section admin")
	ErrAlreadyPending      = apperr.Conflict("your registration request is already waiting for approval")
	ErrAlreadyEnrolled     = apperr.Conflict("you are already enrolled in this section")
	ErrPreviouslyRejected  = apperr.Permission("your registration in this section was rejected, please contact the section admin")
	ErrAlreadyProcessed    = apperr.Conflict("request not found or already processed")
)

// Registration outcomes for the registrations_total counter.
const (
	outcomePending  = "pending"
	outcomeRefused  = "refused"
	outcomeApproved = "approved"
	outcomeRejected = "rejected"
)

// RegisterRequest is the input of RegistrationFlow.Register.
type RegisterRequest struct {
	TelegramID int64
	Username   string
	FullName   string
	JoinCode   string
}

// RegistrationFlow turns a join code and a name into a pending membership
// and carries the admin's decision back to the student.
type RegistrationFlow struct {
	engine   *conversation.Engine
	gate     *PermissionGate
	repos    Repos
	tx       TxFunc
	notifier Notifier
	obs      Observer
	validate *validator.Validate
}

// NewRegistrationFlow wires the registration wizard.
func NewRegistrationFlow(engine *conversation.Engine, gate *PermissionGate, repos Repos, tx TxFunc, notifier Notifier, obs Observer, validate *validator.Validate) *RegistrationFlow {
	if validate == nil {
		validate = validator.New()
	}
	return &RegistrationFlow{
		engine:   engine,
		gate:     gate,
		repos:    repos,
		tx:       tx,
		notifier: notifier,
		obs:      observerOr(obs),
		validate: validate,
	}
}

// Start handles a deep-link join code. Refusals return an error and never
// leave a session behind.
func (f *RegistrationFlow) Start(ctx context.Context, key conversation.Key, code, username string) (Reply, error) {
	if !IsJoinCode(code) {
		return Reply{}, ErrInvalidJoinCode
	}
	p, err := f.repos.Users.GetByTelegramID(ctx, key.UserID)
	if err != nil {
		return Reply{}, apperr.Internal(err)
	}
	if p != nil {
		if p.Role != models.RoleStudent {
			f.obs.ObserveRegistration(outcomeRefused)
			return Reply{}, ErrStaffCannotRegister
		}
		if p.Blocked {
			return Reply{}, ErrBlocked
		}
	}
	sec, err := f.repos.Sections.GetByJoinCode(ctx, code)
	if err != nil {
		return Reply{}, apperr.Internal(err)
	}
	if sec == nil || !sec.Active {
		logger.Info(ctx, logger.CompRegistration, "join_code.rejected", slog.String("code", code))
		return Reply{}, ErrInvalidJoinCode
	}
	if p != nil {
		m, err := f.repos.Memberships.Get(ctx, p.ID, sec.ID)
		if err != nil {
			return Reply{}, apperr.Internal(err)
		}
		if refusal := membershipRefusal(m); refusal != nil {
			f.obs.ObserveRegistration(outcomeRefused)
			return Reply{}, refusal
		}
	}
	data := map[string]string{
		keySectionCode:  sec.JoinCode,
		keySectionID:    strconv.FormatInt(sec.ID, 10),
		keySectionLabel: sec.Name,
		keyUsername:     username,
	}
	return startSession(ctx, f.engine, f, key, StateRegistrationName, data)
}

func membershipRefusal(m *models.Membership) error {
	if m == nil {
		return nil
	}
	switch m.Status {
	case models.MembershipPending:
		return ErrAlreadyPending
	case models.MembershipApproved:
		return ErrAlreadyEnrolled
	case models.MembershipRejected:
		return ErrPreviouslyRejected
	}
	return nil
}

func (f *RegistrationFlow) flow() conversation.Flow {
	return conversation.Flow{
		Name:  "registration",
		Steps: map[state.State]conversation.Step{StateRegistrationName: f.stepName},
	}
}

func (f *RegistrationFlow) stepName(_ context.Context, _ map[string]string, in conversation.Input) (conversation.Transition, error) {
	if in.Action != "" {
		return conversation.Transition{}, apperr.Validation("please type your full name")
	}
	name, err := f.normalizeName(in.Text)
	if err != nil {
		return conversation.Transition{}, err
	}
	return conversation.Transition{
		Next:   state.StateIdle,
		Put:    map[string]string{keyFullName: name},
		Effect: effectRegister,
	}, nil
}

func (f *RegistrationFlow) normalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if err := f.validate.Var(name, "required,min=3,max=100"); err != nil {
		return "", apperr.Validation("the name must be between 3 and 100 characters, please send your full name again")
	}
	return name, nil
}

func (f *RegistrationFlow) prompt(_ context.Context, st state.State, data map[string]string) (Reply, error) {
	if st != StateRegistrationName {
		return Reply{}, apperr.Internal(fmt.Errorf("registration: no prompt for %q", st))
	}
	return Reply{Text: fmt.Sprintf("👋 Welcome!\n\nYou are registering in:\n📚 %s\n\nPlease send your full name:", data[keySectionLabel])}, nil
}

func (f *RegistrationFlow) complete(ctx context.Context, key conversation.Key, eff *conversation.Effect) (Reply, error) {
	if eff.Name != effectRegister {
		return Reply{}, apperr.Internal(fmt.Errorf("registration: unknown effect %q", eff.Name))
	}
	_, sec, err := f.Register(ctx, RegisterRequest{
		TelegramID: key.UserID,
		Username:   eff.Data[keyUsername],
		FullName:   eff.Data[keyFullName],
		JoinCode:   eff.Data[keySectionCode],
	})
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: fmt.Sprintf("✅ Your request to join %s was sent.\n\n⏳ Please wait for the section admin to approve it.", sec.Name)}, nil
}

// Register inserts a pending membership and tells the section admin. Every
// refusal is returned as an apperr with the reason for the student.
func (f *RegistrationFlow) Register(ctx context.Context, req RegisterRequest) (*models.Membership, *models.Section, error) {
	name, err := f.normalizeName(req.FullName)
	if err != nil {
		return nil, nil, err
	}
	var (
		member  *models.Membership
		sec     *models.Section
		student *models.Principal
	)
	err = f.tx(ctx, func(tx Repos) error {
		var err error
		sec, err = tx.Sections.GetByJoinCode(ctx, req.JoinCode)
		if err != nil {
			return err
		}
		if sec == nil || !sec.Active {
			return ErrInvalidJoinCode
		}
		p := models.Principal{TelegramID: req.TelegramID, FullName: name, Role: models.RoleStudent}
		if u := strings.TrimPrefix(strings.TrimSpace(req.Username), "@"); u != "" {
			p.Username = &u
		}
		student, _, err = tx.Users.Ensure(ctx, p)
		if err != nil {
			return err
		}
		if student.Role != models.RoleStudent {
			return ErrStaffCannotRegister
		}
		if student.Blocked {
			return ErrBlocked
		}
		if err := tx.Users.SetFullName(ctx, student.ID, name); err != nil {
			return err
		}
		student.FullName = name

		approved, err := tx.Memberships.CountApproved(ctx, sec.ID)
		if err != nil {
			return err
		}
		if approved >= sec.MaxStudents {
			return ErrSectionFull
		}
		existing, err := tx.Memberships.Get(ctx, student.ID, sec.ID)
		if err != nil {
			return err
		}
		if refusal := membershipRefusal(existing); refusal != nil {
			return refusal
		}
		member, err = tx.Memberships.CreatePending(ctx, student.ID, sec.ID)
		if err != nil {
			if _, dup := repository.UniqueViolation(err); dup {
				return ErrAlreadyPending
			}
			return err
		}
		return logActivity(ctx, tx.Activity, student.ID, models.ActionRegistrationRequested,
			fmt.Sprintf("%s requested %s", name, sec.Name), "section", sec.ID)
	})
	if err != nil {
		var ae *apperr.Error
		if !errors.As(err, &ae) {
			err = apperr.Internal(err)
		}
		f.obs.ObserveRegistration(outcomeRefused)
		logger.Info(ctx, logger.CompRegistration, "membership.request",
			slog.String("status", logger.Status(err)),
			slog.String("reason", apperr.Message(err)),
		)
		return nil, nil, err
	}
	f.obs.ObserveRegistration(outcomePending)
	logger.Info(ctx, logger.CompRegistration, "membership.request",
		slog.String("status", logger.Status(nil)),
		slog.Int64("section_id", sec.ID),
		slog.Int64("student_id", student.ID),
	)
	f.notifyAdmin(ctx, sec, student)
	return member, sec, nil
}

func (f *RegistrationFlow) notifyAdmin(ctx context.Context, sec *models.Section, student *models.Principal) {
	if f.notifier == nil || sec.AdminID == nil {
		return
	}
	admin, err := f.repos.Users.GetByID(ctx, *sec.AdminID)
	if err != nil || admin == nil {
		logger.Warn(ctx, logger.CompRegistration, "admin.lookup",
			slog.Int64("section_id", sec.ID),
			slog.String("status", "skip"),
		)
		return
	}
	if err := f.notifier.Notify(ctx, admin.TelegramID, PendingRequestMessage(student, sec.Name, sec.ID)); err != nil {
		logger.Warn(ctx, logger.CompRegistration, "admin.notify",
			slog.Int64("section_id", sec.ID),
			slog.String("status", logger.Status(err)),
			slog.String("err", err.Error()),
		)
	}
}

// PendingRequestMessage renders a registration request with its decision
// buttons.
func PendingRequestMessage(student *models.Principal, sectionName string, sectionID int64) Message {
	username := "no username"
	if u := format.DerefString(student.Username, ""); u != "" {
		username = "@" + u
	}
	return Message{
		Text: fmt.Sprintf("🆕 New registration request\n\n👤 %s\n🆔 %s (%d)\n📚 %s",
			student.FullName, username, student.TelegramID, sectionName),
		Buttons: [][]Button{{
			{Text: "✅ Approve", Data: action.Decision(true, student.TelegramID, sectionID)},
			{Text: "❌ Reject", Data: action.Decision(false, student.TelegramID, sectionID)},
		}},
	}
}

// Decide applies an approve or reject tap. Only the section admin or the
// owner may decide, and only a pending membership changes.
func (f *RegistrationFlow) Decide(ctx context.Context, adminTelegramID, studentTelegramID, sectionID int64, approve bool) (Reply, error) {
	admin, sec, err := f.gate.CheckSectionAdmin(ctx, adminTelegramID, sectionID)
	if err != nil {
		return Reply{}, err
	}
	student, err := f.repos.Users.GetByTelegramID(ctx, studentTelegramID)
	if err != nil {
		return Reply{}, apperr.Internal(err)
	}
	if student == nil {
		return Reply{}, apperr.NotFound("student not found")
	}

	status, act, outcome := models.MembershipRejected, models.ActionRegistrationRejected, outcomeRejected
	if approve {
		status, act, outcome = models.MembershipApproved, models.ActionRegistrationApproved, outcomeApproved
	}
	err = f.tx(ctx, func(tx Repos) error {
		ok, err := tx.Memberships.Decide(ctx, student.ID, sec.ID, status, admin.ID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyProcessed
		}
		return logActivity(ctx, tx.Activity, admin.ID, act,
			fmt.Sprintf("%s %s in %s", outcome, student.FullName, sec.Name), "user", student.ID)
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyProcessed) {
			return Reply{}, ErrAlreadyProcessed
		}
		return Reply{}, apperr.Internal(err)
	}
	f.obs.ObserveRegistration(outcome)
	logger.Info(ctx, logger.CompRegistration, "membership.decide",
		slog.String("status", logger.Status(nil)),
		slog.String("decision", outcome),
		slog.Int64("section_id", sec.ID),
		slog.Int64("student_id", student.ID),
	)

	text := fmt.Sprintf("✅ Your registration in %s was approved.\nYou will now receive the section's assignments.", sec.Name)
	reply := fmt.Sprintf("✅ Approved\n\n👤 %s\n📚 %s", student.FullName, sec.Name)
	if !approve {
		text = fmt.Sprintf("❌ Your registration in %s was rejected.\nContact the section admin for details.", sec.Name)
		reply = fmt.Sprintf("❌ Rejected\n\n👤 %s\n📚 %s", student.FullName, sec.Name)
	}
	if f.notifier != nil {
		if err := f.notifier.Notify(ctx, student.TelegramID, Message{Text: text}); err != nil {
			logger.Warn(ctx, logger.CompRegistration, "student.notify",
				slog.String("status", logger.Status(err)),
				slog.String("err", err.Error()),
			)
		}
	}
	return Reply{Text: reply, Done: true}, nil
}

// Pending lists the pending requests visible to an admin, or all of them
// for the owner.
func (f *RegistrationFlow) Pending(ctx context.Context, telegramID int64) ([]Message, error) {
	p, err := f.gate.Authorize(ctx, telegramID, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	var adminID int64
	if !p.IsOwner() {
		adminID = p.ID
	}
	reqs, err := f.repos.Memberships.ListPending(ctx, adminID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	out := make([]Message, 0, len(reqs))
	for _, r := range reqs {
		student := &models.Principal{TelegramID: r.StudentTelegramID, FullName: r.StudentName}
		out = append(out, PendingRequestMessage(student, r.SectionName, r.SectionID))
	}
	return out, nil
}
