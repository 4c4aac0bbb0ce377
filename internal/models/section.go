package models

import (
	"fmt"
	"time"
)

// StudyType is the shift a section studies in.
type StudyType string

// Allowed study types.
const (
	StudyMorning StudyType = "morning"
	StudyEvening StudyType = "evening"
)

// Label is the human readable form shown on buttons and section names.
func (s StudyType) Label() string {
	switch s {
	case StudyMorning:
		return "Morning"
	case StudyEvening:
		return "Evening"
	}
	return string(s)
}

// AcademicLevel is a selectable study stage (Level 1..4).
type AcademicLevel struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Number    int       `db:"number" json:"number"`
	Active    bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Section is an academic class with one responsible admin and a capped roster.
type Section struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	LevelID     int64     `db:"level_id" json:"level_id"`
	LevelName   string    `db:"level_name" json:"level_name"`
	StudyType   StudyType `db:"study_type" json:"study_type"`
	Division    string    `db:"division" json:"division"`
	AdminID     *int64    `db:"admin_id" json:"admin_id,omitempty"`
	JoinCode    string    `db:"join_code" json:"join_code"`
	MaxStudents int       `db:"max_students" json:"max_students"`
	Active      bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// SectionName builds the display label stored on a section.
func SectionName(levelName string, studyType StudyType, division string) string {
	return fmt.Sprintf("%s - %s - Division %s", levelName, studyType.Label(), division)
}

// JoinLink is the deep link students open to register into a section.
func JoinLink(botUsername, joinCode string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", botUsername, joinCode)
}

// NewSection carries everything SectionRegistry needs to create a section.
type NewSection struct {
	LevelID     int64
	LevelName   string
	StudyType   StudyType
	Division    string
	AdminID     int64
	MaxStudents int
	CreatedBy   int64
}

// Statistics aggregates counters for /stats. Admin scoped runs leave
// ActiveAdmins at zero.
type Statistics struct {
	ActiveSections    int `db:"active_sections" json:"active_sections"`
	ApprovedStudents  int `db:"approved_students" json:"approved_students"`
	PendingRequests   int `db:"pending_requests" json:"pending_requests"`
	ActiveAssignments int `db:"active_assignments" json:"active_assignments"`
	ActiveAdmins      int `db:"active_admins" json:"active_admins"`
}
