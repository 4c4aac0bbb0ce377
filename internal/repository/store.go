// Package repository is the PostgreSQL access layer of the bot.
package repository

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/database"
)

// Store bundles the repositories that share one connection or transaction.
type Store struct {
	db *sqlx.DB

	Users         *UserRepository
	Levels        *LevelRepository
	Sections      *SectionRepository
	Memberships   *MembershipRepository
	Assignments   *AssignmentRepository
	Notifications *NotificationRepository
	Activity      *ActivityRepository
	Stats         *StatsRepository
}

// NewStore builds repositories over db.
func NewStore(db *sqlx.DB) *Store {
	s := bind(db)
	s.db = db
	return s
}

func bind(q sqlx.ExtContext) *Store {
	return &Store{
		Users:         &UserRepository{q: q},
		Levels:        &LevelRepository{q: q},
		Sections:      &SectionRepository{q: q},
		Memberships:   &MembershipRepository{q: q},
		Assignments:   &AssignmentRepository{q: q},
		Notifications: &NotificationRepository{q: q},
		Activity:      &ActivityRepository{q: q},
		Stats:         &StatsRepository{q: q},
	}
}

// InTx runs fn with repositories bound to a single transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	return database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		return fn(bind(tx))
	})
}

// UniqueViolation reports the constraint name when err is a PostgreSQL
// unique violation.
func UniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return pqErr.Constraint, true
	}
	return "", false
}

// Constraint names referenced by services.
const (
	ConstraintSectionTriple   = "uq_sections_active_triple"
	ConstraintSectionJoinCode = "sections_join_code_key"
	ConstraintMembershipPair  = "student_sections_student_id_section_id_key"
)
