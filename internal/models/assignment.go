package models

import "time"

// Subject groups assignments by course name.
type Subject struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Active    bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Assignment is homework published to a section.
type Assignment struct {
	ID          int64     `db:"id" json:"id"`
	SectionID   int64     `db:"section_id" json:"section_id"`
	SectionName string    `db:"section_name" json:"section_name"`
	SubjectID   int64     `db:"subject_id" json:"subject_id"`
	SubjectName string    `db:"subject_name" json:"subject_name"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	Deadline    time.Time `db:"deadline" json:"deadline"`
	CreatedBy   int64     `db:"created_by" json:"created_by"`
	Active      bool      `db:"is_active" json:"is_active"`
	Edited      bool      `db:"is_edited" json:"is_edited"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// AssignmentField names an editable assignment attribute.
type AssignmentField string

// Editable fields.
const (
	FieldTitle       AssignmentField = "title"
	FieldDescription AssignmentField = "description"
	FieldDeadline    AssignmentField = "deadline"
)

// Valid reports whether f is editable.
func (f AssignmentField) Valid() bool {
	switch f {
	case FieldTitle, FieldDescription, FieldDeadline:
		return true
	}
	return false
}

// NewAssignment is the validated input of AssignmentService.Create.
type NewAssignment struct {
	SectionID   int64     `validate:"required,gt=0"`
	Subject     string    `validate:"required,min=2,max=100"`
	Title       string    `validate:"required,min=3,max=200"`
	Description string    `validate:"max=2000"`
	Deadline    time.Time `validate:"required"`
}
