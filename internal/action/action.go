// Package action encodes and parses inline button callback data.
//
// Wire shapes:
//
//	approve_<studentTelegramID>_<sectionID>
//	reject_<studentTelegramID>_<sectionID>
//	create_sec_level_<levelID>
//	create_sec_type_<studyType>
//	create_sec_div_<division>
//	confirm_create_section
//	create_sec_cancel
//	asg_sec_<sectionID>
//	asg_confirm
//	asg_cancel
//	asg_edit_<assignmentID>
//	asg_field_<title|description|deadline>
//	asg_del_<assignmentID>
package action

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/apperr"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/models"
)

// Kind is the parsed action tag. It doubles as the callback registry key.
type Kind string

// Known kinds.
const (
	Approve         Kind = "approve"
	Reject          Kind = "reject"
	SectionLevel    Kind = "create_sec_level"
	SectionType     Kind = "create_sec_type"
	SectionDivision Kind = "create_sec_div"
	SectionConfirm  Kind = "confirm_create_section"
	SectionCancel   Kind = "create_sec_cancel"
	AssignSection   Kind = "asg_sec"
	AssignConfirm   Kind = "asg_confirm"
	AssignCancel    Kind = "asg_cancel"
	AssignEdit      Kind = "asg_edit"
	AssignEditField Kind = "asg_field"
	AssignDelete    Kind = "asg_del"
	Invalid         Kind = "invalid"
)

// Action is a parsed callback. Only the fields relevant to Kind are set.
type Action struct {
	Kind Kind

	StudentID    int64
	SectionID    int64
	LevelID      int64
	AssignmentID int64
	Value        string
}

// ErrMalformed is the user-facing refusal for data that matches no shape.
var ErrMalformed = apperr.Validation("this button is no longer valid")

type parser struct {
	prefix string
	kind   Kind
	parse  func(rest string, a *Action) bool
}

// Longer prefixes first so create_sec_level_ never matches a shorter tag.
var parsers = []parser{
	{"approve_", Approve, parsePair},
	{"reject_", Reject, parsePair},
	{"create_sec_level_", SectionLevel, func(rest string, a *Action) bool { return parseID(rest, &a.LevelID) }},
	{"create_sec_type_", SectionType, parseToken},
	{"create_sec_div_", SectionDivision, parseToken},
	{"asg_sec_", AssignSection, func(rest string, a *Action) bool { return parseID(rest, &a.SectionID) }},
	{"asg_edit_", AssignEdit, func(rest string, a *Action) bool { return parseID(rest, &a.AssignmentID) }},
	{"asg_field_", AssignEditField, func(rest string, a *Action) bool {
		if !models.AssignmentField(rest).Valid() {
			return false
		}
		a.Value = rest
		return true
	}},
	{"asg_del_", AssignDelete, func(rest string, a *Action) bool { return parseID(rest, &a.AssignmentID) }},
}

var exact = map[string]Kind{
	string(SectionConfirm): SectionConfirm,
	string(SectionCancel):  SectionCancel,
	string(AssignConfirm):  AssignConfirm,
	string(AssignCancel):   AssignCancel,
}

// Parse decodes data. Unknown or malformed data yields ErrMalformed.
func Parse(data string) (Action, error) {
	data = strings.TrimSpace(data)
	if k, ok := exact[data]; ok {
		return Action{Kind: k}, nil
	}
	for _, p := range parsers {
		rest, ok := strings.CutPrefix(data, p.prefix)
		if !ok {
			continue
		}
		a := Action{Kind: p.kind}
		if !p.parse(rest, &a) {
			return Action{Kind: Invalid}, ErrMalformed
		}
		return a, nil
	}
	return Action{Kind: Invalid}, ErrMalformed
}

// KeyOf returns the registry key for data; malformed data maps to Invalid.
func KeyOf(data string) string {
	a, _ := Parse(data)
	return string(a.Kind)
}

// String encodes a back into wire form.
func (a Action) String() string {
	switch a.Kind {
	case Approve, Reject:
		return fmt.Sprintf("%s_%d_%d", a.Kind, a.StudentID, a.SectionID)
	case SectionLevel:
		return fmt.Sprintf("%s_%d", a.Kind, a.LevelID)
	case SectionType, SectionDivision, AssignEditField:
		return fmt.Sprintf("%s_%s", a.Kind, a.Value)
	case AssignSection:
		return fmt.Sprintf("%s_%d", a.Kind, a.SectionID)
	case AssignEdit, AssignDelete:
		return fmt.Sprintf("%s_%d", a.Kind, a.AssignmentID)
	}
	return string(a.Kind)
}

// Decision builds approve_/reject_ data.
func Decision(approve bool, studentTelegramID, sectionID int64) string {
	k := Reject
	if approve {
		k = Approve
	}
	return Action{Kind: k, StudentID: studentTelegramID, SectionID: sectionID}.String()
}

// Level builds create_sec_level_ data.
func Level(levelID int64) string { return Action{Kind: SectionLevel, LevelID: levelID}.String() }

// StudyType builds create_sec_type_ data.
func StudyType(v models.StudyType) string {
	return Action{Kind: SectionType, Value: string(v)}.String()
}

// Division builds create_sec_div_ data.
func Division(v string) string { return Action{Kind: SectionDivision, Value: v}.String() }

// AssignmentSection builds asg_sec_ data.
func AssignmentSection(sectionID int64) string {
	return Action{Kind: AssignSection, SectionID: sectionID}.String()
}

// EditAssignment builds asg_edit_ data.
func EditAssignment(id int64) string { return Action{Kind: AssignEdit, AssignmentID: id}.String() }

// EditField builds asg_field_ data.
func EditField(f models.AssignmentField) string {
	return Action{Kind: AssignEditField, Value: string(f)}.String()
}

// DeleteAssignment builds asg_del_ data.
func DeleteAssignment(id int64) string { return Action{Kind: AssignDelete, AssignmentID: id}.String() }

func parseID(s string, dst *int64) bool {
	if s == "" || s[0] == '+' {
		return false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return false
	}
	*dst = v
	return true
}

func parsePair(rest string, a *Action) bool {
	left, right, ok := strings.Cut(rest, "_")
	return ok && parseID(left, &a.StudentID) && parseID(right, &a.SectionID)
}

func parseToken(rest string, a *Action) bool {
	if rest == "" || len(rest) > 32 {
		return false
	}
	for _, r := range rest {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	a.Value = rest
	return true
}
