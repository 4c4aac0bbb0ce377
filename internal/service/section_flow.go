package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/apperr"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/logger"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram/state"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/action"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/conversation"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/models"
)

// Section wizard states.
const (
	StateSectionLevel     state.State = "section.level"
	StateSectionStudyType state.State = "section.study_type"
	StateSectionDivision  state.State = "section.division"
	StateSectionAdmin     state.State = "section.admin_id"
	StateSectionConfirm   state.State = "section.confirm"
)

const effectCreateSection = "create_section"

// Session data keys of the section wizard.
const (
	keyOwnerTG    = "owner_tg"
	keyOwnerID    = "owner_id"
	keyLevelID    = "level_id"
	keyLevelName  = "level_name"
	keyStudyType  = "study_type"
	keyDivision   = "division"
	keyAdminID    = "admin_id"
	keyAdminTG    = "admin_tg"
	keyAdminName  = "admin_name"
	keyAdminIsNew = "admin_new"
)

var cancelSectionButton = Button{Text: "❌ Cancel", Data: string(action.SectionCancel)}

// SectionCreationFlow is the owner wizard level, study type, division,
// admin id, confirm.
type SectionCreationFlow struct {
	engine   *conversation.Engine
	gate     *PermissionGate
	sections *SectionService
}

// NewSectionCreationFlow builds the wizard; register it with NewConversations.
func NewSectionCreationFlow(engine *conversation.Engine, gate *PermissionGate, sections *SectionService) *SectionCreationFlow {
	return &SectionCreationFlow{engine: engine, gate: gate, sections: sections}
}

// Start opens the wizard for an owner.
func (f *SectionCreationFlow) Start(ctx context.Context, key conversation.Key) (Reply, error) {
	owner, err := f.gate.Authorize(ctx, key.UserID, models.RoleOwner)
	if err != nil {
		return Reply{}, err
	}
	data := map[string]string{
		keyOwnerTG: strconv.FormatInt(owner.TelegramID, 10),
		keyOwnerID: strconv.FormatInt(owner.ID, 10),
	}
	return startSession(ctx, f.engine, f, key, StateSectionLevel, data)
}

func (f *SectionCreationFlow) flow() conversation.Flow {
	return conversation.Flow{
		Name: "section_creation",
		Steps: map[state.State]conversation.Step{
			StateSectionLevel:     f.stepLevel,
			StateSectionStudyType: f.stepStudyType,
			StateSectionDivision:  f.stepDivision,
			StateSectionAdmin:     f.stepAdmin,
			StateSectionConfirm:   f.stepConfirm,
		},
	}
}

func expectAction(in conversation.Input, kind action.Kind, hint string) (action.Action, error) {
	if in.Action == "" {
		return action.Action{}, apperr.Validation(hint)
	}
	a, err := action.Parse(in.Action)
	if err != nil {
		return action.Action{}, err
	}
	if a.Kind != kind {
		return action.Action{}, apperr.Validation(hint)
	}
	return a, nil
}

func (f *SectionCreationFlow) stepLevel(ctx context.Context, _ map[string]string, in conversation.Input) (conversation.Transition, error) {
	a, err := expectAction(in, action.SectionLevel, "please choose a level using the buttons")
	if err != nil {
		return conversation.Transition{}, err
	}
	lvl, err := f.sections.Level(ctx, a.LevelID)
	if err != nil {
		return conversation.Transition{}, err
	}
	return conversation.Transition{
		Next: StateSectionStudyType,
		Put:  map[string]string{keyLevelID: strconv.FormatInt(lvl.ID, 10), keyLevelName: lvl.Name},
	}, nil
}

func (f *SectionCreationFlow) stepStudyType(_ context.Context, _ map[string]string, in conversation.Input) (conversation.Transition, error) {
	a, err := expectAction(in, action.SectionType, "please choose the study type using the buttons")
	if err != nil {
		return conversation.Transition{}, err
	}
	if !f.sections.Options().allowsStudyType(models.StudyType(a.Value)) {
		return conversation.Transition{}, apperr.Validation("unknown study type")
	}
	return conversation.Transition{
		Next: StateSectionDivision,
		Put:  map[string]string{keyStudyType: a.Value},
	}, nil
}

func (f *SectionCreationFlow) stepDivision(_ context.Context, _ map[string]string, in conversation.Input) (conversation.Transition, error) {
	a, err := expectAction(in, action.SectionDivision, "please choose the division using the buttons")
	if err != nil {
		return conversation.Transition{}, err
	}
	if !f.sections.Options().allowsDivision(a.Value) {
		return conversation.Transition{}, apperr.Validation("unknown division")
	}
	return conversation.Transition{
		Next: StateSectionAdmin,
		Put:  map[string]string{keyDivision: a.Value},
	}, nil
}

func (f *SectionCreationFlow) stepAdmin(ctx context.Context, data map[string]string, in conversation.Input) (conversation.Transition, error) {
	if in.Action != "" {
		return conversation.Transition{}, apperr.Validation("please send the admin's Telegram id as a number")
	}
	id, err := strconv.ParseInt(strings.TrimSpace(in.Text), 10, 64)
	if err != nil || id <= 0 {
		return conversation.Transition{}, apperr.Validation("the admin id must be a positive number")
	}
	owner := &models.Principal{
		ID:         parseInt64(data[keyOwnerID]),
		TelegramID: parseInt64(data[keyOwnerTG]),
		Role:       models.RoleOwner,
	}
	admin, created, err := f.sections.ProvisionAdmin(ctx, owner, id)
	if err != nil {
		return conversation.Transition{}, err
	}
	isNew := "0"
	if created {
		isNew = "1"
	}
	return conversation.Transition{
		Next: StateSectionConfirm,
		Put: map[string]string{
			keyAdminID:    strconv.FormatInt(admin.ID, 10),
			keyAdminTG:    strconv.FormatInt(admin.TelegramID, 10),
			keyAdminName:  admin.FullName,
			keyAdminIsNew: isNew,
		},
	}, nil
}

func (f *SectionCreationFlow) stepConfirm(_ context.Context, _ map[string]string, in conversation.Input) (conversation.Transition, error) {
	if _, err := expectAction(in, action.SectionConfirm, "please confirm or cancel using the buttons"); err != nil {
		return conversation.Transition{}, err
	}
	return conversation.Transition{Next: state.StateIdle, Effect: effectCreateSection}, nil
}

func (f *SectionCreationFlow) prompt(ctx context.Context, st state.State, data map[string]string) (Reply, error) {
	switch st {
	case StateSectionLevel:
		levels, err := f.sections.Levels(ctx)
		if err != nil {
			return Reply{}, err
		}
		if len(levels) == 0 {
			return Reply{}, apperr.NotFound("there are no academic levels configured")
		}
		rows := make([][]Button, 0, len(levels)+1)
		for _, l := range levels {
			rows = append(rows, []Button{{Text: l.Name, Data: action.Level(l.ID)}})
		}
		rows = append(rows, []Button{cancelSectionButton})
		return Reply{Text: "📚 Choose the academic level:", Buttons: rows}, nil
	case StateSectionStudyType:
		var row []Button
		for _, t := range f.sections.Options().StudyTypes {
			row = append(row, Button{Text: t.Label(), Data: action.StudyType(t)})
		}
		return Reply{
			Text:    fmt.Sprintf("Level: %s\n\n🕐 Choose the study type:", data[keyLevelName]),
			Buttons: [][]Button{row, {cancelSectionButton}},
		}, nil
	case StateSectionDivision:
		var row []Button
		for _, d := range f.sections.Options().Divisions {
			row = append(row, Button{Text: "Division " + d, Data: action.Division(d)})
		}
		return Reply{
			Text:    "🔤 Choose the division:",
			Buttons: [][]Button{row, {cancelSectionButton}},
		}, nil
	case StateSectionAdmin:
		return Reply{
			Text:    "👤 Send the Telegram id of the section admin.\nSend /cancel to stop.",
			Buttons: [][]Button{{cancelSectionButton}},
		}, nil
	case StateSectionConfirm:
		name := models.SectionName(data[keyLevelName], models.StudyType(data[keyStudyType]), data[keyDivision])
		text := fmt.Sprintf("📋 New section\n\n🏷️ %s\n👨‍💼 Admin: %s (%s)\n👥 Capacity: %d students\n\nCreate it?",
			name, data[keyAdminName], data[keyAdminTG], f.sections.Options().MaxMembers)
		return Reply{
			Text: text,
			Buttons: [][]Button{{
				{Text: "✅ Confirm", Data: string(action.SectionConfirm)},
				cancelSectionButton,
			}},
		}, nil
	}
	return Reply{}, apperr.Internal(fmt.Errorf("section flow: no prompt for %q", st))
}

func (f *SectionCreationFlow) complete(ctx context.Context, _ conversation.Key, eff *conversation.Effect) (Reply, error) {
	if eff.Name != effectCreateSection {
		return Reply{}, apperr.Internal(fmt.Errorf("section flow: unknown effect %q", eff.Name))
	}
	d := eff.Data
	sec, err := f.sections.Create(ctx, parseInt64(d[keyOwnerTG]), models.NewSection{
		LevelID:   parseInt64(d[keyLevelID]),
		LevelName: d[keyLevelName],
		StudyType: models.StudyType(d[keyStudyType]),
		Division:  d[keyDivision],
		AdminID:   parseInt64(d[keyAdminID]),
		CreatedBy: parseInt64(d[keyOwnerID]),
	})
	if err != nil {
		return Reply{}, err
	}
	text := fmt.Sprintf("✅ Section created\n\n🏷️ %s\n👨‍💼 Admin: %s\n🔑 Code: %s\n🔗 Registration link:\n%s",
		sec.Name, d[keyAdminName], sec.JoinCode, f.sections.JoinLink(sec))
	return Reply{Text: text}, nil
}

func (f *SectionCreationFlow) cancelled(ctx context.Context, data map[string]string) {
	if data[keyAdminIsNew] != "1" {
		return
	}
	logger.Warn(ctx, logger.CompSections, "orphan_admin_possible",
		slog.String("admin_tg", data[keyAdminTG]),
		slog.String("admin_id", data[keyAdminID]),
	)
}

func parseInt64(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
