package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/apperr"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/jobs"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/logger"
	tghelpers "github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram/helpers"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/models"
)

// JobDispatch is the job type carrying a DispatchJob payload.
const JobDispatch = "notify.dispatch"

// maxDeadlineAhead bounds how far in the future a deadline may be.
const maxDeadlineAhead = 365 * 24 * time.Hour

// DispatchJob asks the notification queue to run one dispatch and report
// the counts to ReportTo.
type DispatchJob struct {
	AssignmentID int64
	SectionID    int64
	Kind         models.NotificationKind
	Title        string
	ReportTo     int64
}

// Enqueuer accepts background jobs. *jobs.Queue implements it.
type Enqueuer interface {
	Enqueue(job jobs.Job) (string, error)
}

// DispatchHandler runs DispatchJob payloads on a job queue.
func DispatchHandler(d *NotificationDispatcher, notifier Notifier) jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		p, ok := job.Payload.(DispatchJob)
		if !ok {
			return fmt.Errorf("dispatch job %s: unexpected payload %T", job.ID, job.Payload)
		}
		stats, err := d.Dispatch(ctx, p.AssignmentID, p.SectionID, p.Kind)
		if err != nil {
			return err
		}
		if p.ReportTo == 0 || notifier == nil {
			return nil
		}
		if err := notifier.Notify(ctx, p.ReportTo, Message{Text: DispatchSummary(p.Kind, p.Title, stats)}); err != nil {
			logger.Warn(ctx, logger.CompNotify, "summary.notify",
				slog.String("job_id", job.ID),
				slog.String("err", err.Error()),
			)
		}
		return nil
	}
}

// AssignmentOptions configures AssignmentService.
type AssignmentOptions struct {
	Location *time.Location
	Now      func() time.Time
}

// AssignmentService publishes, edits and removes assignments and queues
// their notifications.
type AssignmentService struct {
	repos    Repos
	tx       TxFunc
	gate     *PermissionGate
	queue    Enqueuer
	validate *validator.Validate
	loc      *time.Location
	now      func() time.Time
}

// NewAssignmentService wires the service.
func NewAssignmentService(repos Repos, tx TxFunc, gate *PermissionGate, queue Enqueuer, validate *validator.Validate, opts AssignmentOptions) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &AssignmentService{repos: repos, tx: tx, gate: gate, queue: queue, validate: validate, loc: loc, now: now}
}

// Location is the timezone deadlines are read and shown in.
func (s *AssignmentService) Location() *time.Location { return s.loc }

// Sections lists the sections an admin may publish to; the owner sees all.
func (s *AssignmentService) Sections(ctx context.Context, telegramID int64) ([]models.Section, error) {
	p, err := s.gate.Authorize(ctx, telegramID, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	secs, err := s.repos.Sections.ListActive(ctx, adminScope(p))
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return secs, nil
}

func adminScope(p *models.Principal) int64 {
	if p.IsOwner() {
		return 0
	}
	return p.ID
}

// ParseDeadline reads a deadline typed by an admin and checks its range.
func (s *AssignmentService) ParseDeadline(text string) (time.Time, error) {
	t, ok := tghelpers.ParseFlexibleDateIn(text, s.loc)
	if !ok {
		return time.Time{}, apperr.Validation("unrecognised date, use YYYY-MM-DD HH:MM or DD.MM.YYYY")
	}
	if err := s.checkDeadline(t); err != nil {
		return time.Time{}, err
	}
	return t, nil
}

func (s *AssignmentService) checkDeadline(t time.Time) error {
	now := s.now()
	if !t.After(now) {
		return apperr.Validation("the deadline must be in the future")
	}
	if t.Sub(now) > maxDeadlineAhead {
		return apperr.Validation("the deadline cannot be more than a year away")
	}
	return nil
}

// ValidateField checks one edited value and returns it normalized.
func (s *AssignmentService) ValidateField(field models.AssignmentField, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch field {
	case models.FieldTitle:
		if n := utf8.RuneCountInString(value); n < 3 || n > 200 {
			return "", apperr.Validation("the title must be between 3 and 200 characters")
		}
	case models.FieldDescription:
		if value == "-" {
			value = ""
		}
		if utf8.RuneCountInString(value) > 2000 {
			return "", apperr.Validation("the description cannot exceed 2000 characters")
		}
	case models.FieldDeadline:
		t, err := s.ParseDeadline(value)
		if err != nil {
			return "", err
		}
		value = t.Format(time.RFC3339)
	default:
		return "", apperr.Validation("this field cannot be edited")
	}
	return value, nil
}

// Create stores a new assignment and queues the "new" notification. queued
// is false when the notification could not be scheduled.
func (s *AssignmentService) Create(ctx context.Context, actorTelegramID int64, in models.NewAssignment) (*models.Assignment, bool, error) {
	in.Subject = strings.TrimSpace(in.Subject)
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := s.validate.Struct(in); err != nil {
		return nil, false, validationError(err)
	}
	if err := s.checkDeadline(in.Deadline); err != nil {
		return nil, false, err
	}
	actor, sec, err := s.gate.CheckSectionAdmin(ctx, actorTelegramID, in.SectionID)
	if err != nil {
		return nil, false, err
	}
	a := &models.Assignment{
		SectionID:   sec.ID,
		SectionName: sec.Name,
		SubjectName: in.Subject,
		Title:       in.Title,
		Description: in.Description,
		Deadline:    in.Deadline,
		CreatedBy:   actor.ID,
	}
	err = s.tx(ctx, func(tx Repos) error {
		subjectID, err := tx.Assignments.UpsertSubject(ctx, in.Subject)
		if err != nil {
			return err
		}
		a.SubjectID = subjectID
		if err := tx.Assignments.Create(ctx, a); err != nil {
			return err
		}
		return logActivity(ctx, tx.Activity, actor.ID, models.ActionAssignmentCreated, a.Title, "assignment", a.ID)
	})
	if err != nil {
		return nil, false, apperr.Internal(err)
	}
	logger.Info(ctx, logger.CompAssignments, "assignment.create",
		slog.Int64("assignment_id", a.ID),
		slog.Int64("section_id", a.SectionID),
	)
	return a, s.enqueue(ctx, a, models.NotifyNew, actorTelegramID), nil
}

// editable loads a live assignment the actor administers.
func (s *AssignmentService) editable(ctx context.Context, actorTelegramID, id int64) (*models.Principal, *models.Assignment, error) {
	a, err := s.repos.Assignments.GetByID(ctx, id)
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}
	if a == nil || !a.Active {
		return nil, nil, apperr.NotFound("assignment not found")
	}
	actor, _, err := s.gate.CheckSectionAdmin(ctx, actorTelegramID, a.SectionID)
	if err != nil {
		return nil, nil, err
	}
	return actor, a, nil
}

// Editable is the access check run before an edit conversation starts.
func (s *AssignmentService) Editable(ctx context.Context, actorTelegramID, id int64) (*models.Assignment, error) {
	_, a, err := s.editable(ctx, actorTelegramID, id)
	return a, err
}

// Edit replaces one field, keeps the previous values in the edit history
// and queues the "edit" notification.
func (s *AssignmentService) Edit(ctx context.Context, actorTelegramID, id int64, field models.AssignmentField, value string) (*models.Assignment, bool, error) {
	actor, a, err := s.editable(ctx, actorTelegramID, id)
	if err != nil {
		return nil, false, err
	}
	value, err = s.ValidateField(field, value)
	if err != nil {
		return nil, false, err
	}
	prev := *a
	switch field {
	case models.FieldTitle:
		a.Title = value
	case models.FieldDescription:
		a.Description = value
	case models.FieldDeadline:
		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return nil, false, apperr.Internal(err)
		}
		a.Deadline = t
	}
	err = s.tx(ctx, func(tx Repos) error {
		if err := tx.Assignments.RecordEdit(ctx, &prev, actor.ID); err != nil {
			return err
		}
		ok, err := tx.Assignments.Update(ctx, a.ID, a.Title, a.Description, a.Deadline)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFound("assignment not found")
		}
		return logActivity(ctx, tx.Activity, actor.ID, models.ActionAssignmentEdited, string(field), "assignment", a.ID)
	})
	if err != nil {
		return nil, false, asAppErr(err)
	}
	a.Edited = true
	logger.Info(ctx, logger.CompAssignments, "assignment.edit",
		slog.Int64("assignment_id", a.ID),
		slog.String("field", string(field)),
	)
	return a, s.enqueue(ctx, a, models.NotifyEdit, actorTelegramID), nil
}

// Delete deactivates an assignment and queues the "delete" notification.
func (s *AssignmentService) Delete(ctx context.Context, actorTelegramID, id int64) (*models.Assignment, bool, error) {
	actor, a, err := s.editable(ctx, actorTelegramID, id)
	if err != nil {
		return nil, false, err
	}
	err = s.tx(ctx, func(tx Repos) error {
		ok, err := tx.Assignments.SoftDelete(ctx, a.ID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFound("assignment not found")
		}
		return logActivity(ctx, tx.Activity, actor.ID, models.ActionAssignmentDeleted, a.Title, "assignment", a.ID)
	})
	if err != nil {
		return nil, false, asAppErr(err)
	}
	a.Active = false
	logger.Info(ctx, logger.CompAssignments, "assignment.delete", slog.Int64("assignment_id", a.ID))
	return a, s.enqueue(ctx, a, models.NotifyDelete, actorTelegramID), nil
}

// ListForAdmin returns live assignments of the actor's sections.
func (s *AssignmentService) ListForAdmin(ctx context.Context, telegramID int64) ([]models.Assignment, error) {
	p, err := s.gate.Authorize(ctx, telegramID, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	out, err := s.repos.Assignments.ListActiveForAdmin(ctx, adminScope(p))
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return out, nil
}

// ListForStudent returns the live assignments of the student's section.
func (s *AssignmentService) ListForStudent(ctx context.Context, telegramID int64) (*models.Section, []models.Assignment, error) {
	p, err := s.gate.Authorize(ctx, telegramID, models.RoleStudent)
	if err != nil {
		return nil, nil, err
	}
	sec, err := s.repos.Sections.GetApprovedForStudent(ctx, p.ID)
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}
	if sec == nil {
		return nil, nil, apperr.NotFound("you are not enrolled in any section yet")
	}
	out, err := s.repos.Assignments.ListActiveBySection(ctx, sec.ID)
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}
	return sec, out, nil
}

func (s *AssignmentService) enqueue(ctx context.Context, a *models.Assignment, kind models.NotificationKind, reportTo int64) bool {
	if s.queue == nil {
		return false
	}
	id, err := s.queue.Enqueue(jobs.Job{
		Type: JobDispatch,
		Payload: DispatchJob{
			AssignmentID: a.ID,
			SectionID:    a.SectionID,
			Kind:         kind,
			Title:        a.Title,
			ReportTo:     reportTo,
		},
	})
	if err != nil {
		logger.Error(ctx, logger.CompAssignments, "dispatch.enqueue",
			slog.Int64("assignment_id", a.ID),
			slog.String("kind", string(kind)),
			slog.String("err", err.Error()),
		)
		return false
	}
	logger.Debug(ctx, logger.CompAssignments, "dispatch.enqueue",
		slog.String("job_id", id),
		slog.Int64("assignment_id", a.ID),
	)
	return true
}

func asAppErr(err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	return apperr.Internal(err)
}

// validationError turns validator output into a readable refusal.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Internal(err)
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return apperr.Validation(field + " is required")
	case "min":
		return apperr.Validation(fmt.Sprintf("%s must be at least %s characters", field, fe.Param()))
	case "max":
		return apperr.Validation(fmt.Sprintf("%s cannot exceed %s characters", field, fe.Param()))
	}
	return apperr.Validation(field + " is invalid")
}
