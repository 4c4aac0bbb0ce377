package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/apperr"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram/state"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/action"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/conversation"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/models"
)

// Assignment wizard states.
const (
	StateAssignSection     state.State = "assignment.section"
	StateAssignSubject     state.State = "assignment.subject"
	StateAssignTitle       state.State = "assignment.title"
	StateAssignDescription state.State = "assignment.description"
	StateAssignDeadline    state.State = "assignment.deadline"
	StateAssignConfirm     state.State = "assignment.confirm"

	StateEditField state.State = "assignment_edit.field"
	StateEditValue state.State = "assignment_edit.value"
)

const (
	effectCreateAssignment = "create_assignment"
	effectEditAssignment   = "edit_assignment"
)

const (
	keySubject      = "subject"
	keyTitle        = "title"
	keyDescription  = "description"
	keyDeadline     = "deadline"
	keyAssignmentID = "assignment_id"
	keyField        = "field"
	keyValue        = "value"
	keyActorTG      = "actor_tg"
)

var cancelAssignmentButton = Button{Text: "❌ Cancel", Data: string(action.AssignCancel)}

// AssignmentCreationFlow collects section, subject, title, description and
// deadline, then publishes the assignment.
type AssignmentCreationFlow struct {
	engine      *conversation.Engine
	assignments *AssignmentService
}

// NewAssignmentCreationFlow builds the wizard.
func NewAssignmentCreationFlow(engine *conversation.Engine, assignments *AssignmentService) *AssignmentCreationFlow {
	return &AssignmentCreationFlow{engine: engine, assignments: assignments}
}

// Start opens the wizard. With a single section the section step is skipped.
func (f *AssignmentCreationFlow) Start(ctx context.Context, key conversation.Key) (Reply, error) {
	secs, err := f.assignments.Sections(ctx, key.UserID)
	if err != nil {
		return Reply{}, err
	}
	switch len(secs) {
	case 0:
		return Reply{}, apperr.NotFound("you have no active sections")
	case 1:
		data := map[string]string{
			keyActorTG:      strconv.FormatInt(key.UserID, 10),
			keySectionID:    strconv.FormatInt(secs[0].ID, 10),
			keySectionLabel: secs[0].Name,
		}
		return startSession(ctx, f.engine, f, key, StateAssignSubject, data)
	}
	data := map[string]string{keyActorTG: strconv.FormatInt(key.UserID, 10)}
	return startSession(ctx, f.engine, f, key, StateAssignSection, data)
}

func (f *AssignmentCreationFlow) flow() conversation.Flow {
	return conversation.Flow{
		Name: "assignment_creation",
		Steps: map[state.State]conversation.Step{
			StateAssignSection:     f.stepSection,
			StateAssignSubject:     textStep(StateAssignTitle, keySubject, 2, 100),
			StateAssignTitle:       textStep(StateAssignDescription, keyTitle, 3, 200),
			StateAssignDescription: f.stepDescription,
			StateAssignDeadline:    f.stepDeadline,
			StateAssignConfirm:     f.stepConfirm,
		},
	}
}

func (f *AssignmentCreationFlow) stepSection(ctx context.Context, data map[string]string, in conversation.Input) (conversation.Transition, error) {
	a, err := expectAction(in, action.AssignSection, "please choose a section using the buttons")
	if err != nil {
		return conversation.Transition{}, err
	}
	secs, err := f.assignments.Sections(ctx, parseInt64(data[keyActorTG]))
	if err != nil {
		return conversation.Transition{}, err
	}
	for _, s := range secs {
		if s.ID == a.SectionID {
			return conversation.Transition{
				Next: StateAssignSubject,
				Put:  map[string]string{keySectionID: strconv.FormatInt(s.ID, 10), keySectionLabel: s.Name},
			}, nil
		}
	}
	return conversation.Transition{}, apperr.Validation("this section is not available to you")
}

// textStep stores trimmed free text of [lo, hi] runes under key.
func textStep(next state.State, key string, lo, hi int) conversation.Step {
	return func(_ context.Context, _ map[string]string, in conversation.Input) (conversation.Transition, error) {
		if in.Action != "" {
			return conversation.Transition{}, apperr.Validation("please type the " + key)
		}
		v := strings.TrimSpace(in.Text)
		if n := len([]rune(v)); n < lo || n > hi {
			return conversation.Transition{}, apperr.Validation(fmt.Sprintf("the %s must be between %d and %d characters", key, lo, hi))
		}
		return conversation.Transition{Next: next, Put: map[string]string{key: v}}, nil
	}
}

func (f *AssignmentCreationFlow) stepDescription(_ context.Context, _ map[string]string, in conversation.Input) (conversation.Transition, error) {
	if in.Action != "" {
		return conversation.Transition{}, apperr.Validation("please type the description or - to skip it")
	}
	v, err := f.assignments.ValidateField(models.FieldDescription, in.Text)
	if err != nil {
		return conversation.Transition{}, err
	}
	return conversation.Transition{Next: StateAssignDeadline, Put: map[string]string{keyDescription: v}}, nil
}

func (f *AssignmentCreationFlow) stepDeadline(_ context.Context, _ map[string]string, in conversation.Input) (conversation.Transition, error) {
	if in.Action != "" {
		return conversation.Transition{}, apperr.Validation("please type the deadline")
	}
	v, err := f.assignments.ValidateField(models.FieldDeadline, in.Text)
	if err != nil {
		return conversation.Transition{}, err
	}
	return conversation.Transition{Next: StateAssignConfirm, Put: map[string]string{keyDeadline: v}}, nil
}

func (f *AssignmentCreationFlow) stepConfirm(_ context.Context, _ map[string]string, in conversation.Input) (conversation.Transition, error) {
	if _, err := expectAction(in, action.AssignConfirm, "please confirm or cancel using the buttons"); err != nil {
		return conversation.Transition{}, err
	}
	return conversation.Transition{Next: state.StateIdle, Effect: effectCreateAssignment}, nil
}

func (f *AssignmentCreationFlow) prompt(ctx context.Context, st state.State, data map[string]string) (Reply, error) {
	cancel := [][]Button{{cancelAssignmentButton}}
	switch st {
	case StateAssignSection:
		secs, err := f.assignments.Sections(ctx, parseInt64(data[keyActorTG]))
		if err != nil {
			return Reply{}, err
		}
		return f.sectionPrompt(secs), nil
	case StateAssignSubject:
		return Reply{Text: fmt.Sprintf("📚 Section: %s\n\n📖 Send the subject name:", data[keySectionLabel]), Buttons: cancel}, nil
	case StateAssignTitle:
		return Reply{Text: "📌 Send the assignment title:", Buttons: cancel}, nil
	case StateAssignDescription:
		return Reply{Text: "📝 Send the details, or - to leave them empty:", Buttons: cancel}, nil
	case StateAssignDeadline:
		return Reply{Text: "⏰ Send the deadline (YYYY-MM-DD HH:MM or DD.MM.YYYY):", Buttons: cancel}, nil
	case StateAssignConfirm:
		deadline, _ := time.Parse(time.RFC3339, data[keyDeadline])
		preview := &models.Assignment{
			SubjectName: data[keySubject],
			Title:       data[keyTitle],
			Description: data[keyDescription],
			Deadline:    deadline,
		}
		return Reply{
			Text: "👀 Preview\n\n" + AssignmentText(models.NotifyNew, preview, f.assignments.now(), f.assignments.Location()) + "\n\nPublish it?",
			Buttons: [][]Button{{
				{Text: "✅ Publish", Data: string(action.AssignConfirm)},
				cancelAssignmentButton,
			}},
		}, nil
	}
	return Reply{}, apperr.Internal(fmt.Errorf("assignment flow: no prompt for %q", st))
}

func (f *AssignmentCreationFlow) sectionPrompt(secs []models.Section) Reply {
	rows := make([][]Button, 0, len(secs)+1)
	for _, s := range secs {
		rows = append(rows, []Button{{Text: s.Name, Data: action.AssignmentSection(s.ID)}})
	}
	rows = append(rows, []Button{cancelAssignmentButton})
	return Reply{Text: "📚 Choose the section:", Buttons: rows}
}

func (f *AssignmentCreationFlow) complete(ctx context.Context, key conversation.Key, eff *conversation.Effect) (Reply, error) {
	if eff.Name != effectCreateAssignment {
		return Reply{}, apperr.Internal(fmt.Errorf("assignment flow: unknown effect %q", eff.Name))
	}
	d := eff.Data
	deadline, err := time.Parse(time.RFC3339, d[keyDeadline])
	if err != nil {
		return Reply{}, apperr.Internal(err)
	}
	a, queued, err := f.assignments.Create(ctx, key.UserID, models.NewAssignment{
		SectionID:   parseInt64(d[keySectionID]),
		Subject:     d[keySubject],
		Title:       d[keyTitle],
		Description: d[keyDescription],
		Deadline:    deadline,
	})
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: publishedText("✅ Assignment published", a, queued)}, nil
}

func publishedText(head string, a *models.Assignment, queued bool) string {
	text := fmt.Sprintf("%s\n\n📌 %s\n📚 %s", head, a.Title, a.SectionName)
	if queued {
		return text + "\n\n📣 Students are being notified, you will get a summary."
	}
	return text + "\n\n⚠️ Notifications could not be scheduled."
}

// AssignmentEditFlow asks which field to change and its new value.
type AssignmentEditFlow struct {
	engine      *conversation.Engine
	assignments *AssignmentService
}

// NewAssignmentEditFlow builds the edit wizard.
func NewAssignmentEditFlow(engine *conversation.Engine, assignments *AssignmentService) *AssignmentEditFlow {
	return &AssignmentEditFlow{engine: engine, assignments: assignments}
}

// Start opens the edit wizard for one assignment.
func (f *AssignmentEditFlow) Start(ctx context.Context, key conversation.Key, assignmentID int64) (Reply, error) {
	a, err := f.assignments.Editable(ctx, key.UserID, assignmentID)
	if err != nil {
		return Reply{}, err
	}
	data := map[string]string{
		keyAssignmentID: strconv.FormatInt(a.ID, 10),
		keyTitle:        a.Title,
	}
	return startSession(ctx, f.engine, f, key, StateEditField, data)
}

func (f *AssignmentEditFlow) flow() conversation.Flow {
	return conversation.Flow{
		Name: "assignment_edit",
		Steps: map[state.State]conversation.Step{
			StateEditField: f.stepField,
			StateEditValue: f.stepValue,
		},
	}
}

func (f *AssignmentEditFlow) stepField(_ context.Context, _ map[string]string, in conversation.Input) (conversation.Transition, error) {
	a, err := expectAction(in, action.AssignEditField, "please choose the field using the buttons")
	if err != nil {
		return conversation.Transition{}, err
	}
	return conversation.Transition{Next: StateEditValue, Put: map[string]string{keyField: a.Value}}, nil
}

func (f *AssignmentEditFlow) stepValue(_ context.Context, data map[string]string, in conversation.Input) (conversation.Transition, error) {
	if in.Action != "" {
		return conversation.Transition{}, apperr.Validation("please type the new value")
	}
	if _, err := f.assignments.ValidateField(models.AssignmentField(data[keyField]), in.Text); err != nil {
		return conversation.Transition{}, err
	}
	return conversation.Transition{
		Next:   state.StateIdle,
		Put:    map[string]string{keyValue: strings.TrimSpace(in.Text)},
		Effect: effectEditAssignment,
	}, nil
}

func (f *AssignmentEditFlow) prompt(_ context.Context, st state.State, data map[string]string) (Reply, error) {
	switch st {
	case StateEditField:
		return Reply{
			Text: fmt.Sprintf("✏️ Editing %q\n\nWhat do you want to change?", data[keyTitle]),
			Buttons: [][]Button{
				{{Text: "📌 Title", Data: action.EditField(models.FieldTitle)}},
				{{Text: "📝 Details", Data: action.EditField(models.FieldDescription)}},
				{{Text: "⏰ Deadline", Data: action.EditField(models.FieldDeadline)}},
				{cancelAssignmentButton},
			},
		}, nil
	case StateEditValue:
		hint := "Send the new value:"
		if models.AssignmentField(data[keyField]) == models.FieldDeadline {
			hint = "Send the new deadline (YYYY-MM-DD HH:MM or DD.MM.YYYY):"
		}
		return Reply{Text: hint, Buttons: [][]Button{{cancelAssignmentButton}}}, nil
	}
	return Reply{}, apperr.Internal(fmt.Errorf("assignment edit: no prompt for %q", st))
}

func (f *AssignmentEditFlow) complete(ctx context.Context, key conversation.Key, eff *conversation.Effect) (Reply, error) {
	if eff.Name != effectEditAssignment {
		return Reply{}, apperr.Internal(fmt.Errorf("assignment edit: unknown effect %q", eff.Name))
	}
	d := eff.Data
	a, queued, err := f.assignments.Edit(ctx, key.UserID, parseInt64(d[keyAssignmentID]), models.AssignmentField(d[keyField]), d[keyValue])
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: publishedText("✅ Assignment updated", a, queued)}, nil
}
