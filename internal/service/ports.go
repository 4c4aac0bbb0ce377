// Package service holds the bot's domain logic: permission checks, the
// conversation flows, the notification dispatcher and the read models
// behind the slash commands. It never imports the Telegram client; replies
// and outbound messages are plain values converted by internal/bot.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/models"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/repository"
)

type userStore interface {
	GetByTelegramID(ctx context.Context, telegramID int64) (*models.Principal, error)
	GetByID(ctx context.Context, id int64) (*models.Principal, error)
	Ensure(ctx context.Context, p models.Principal) (*models.Principal, bool, error)
	SetFullName(ctx context.Context, id int64, name string) error
	SetBlocked(ctx context.Context, id int64, blocked bool) (bool, error)
}

type levelStore interface {
	ListActive(ctx context.Context) ([]models.AcademicLevel, error)
	GetActive(ctx context.Context, id int64) (*models.AcademicLevel, error)
}

type sectionStore interface {
	GetByID(ctx context.Context, id int64) (*models.Section, error)
	GetByJoinCode(ctx context.Context, code string) (*models.Section, error)
	GetApprovedForStudent(ctx context.Context, studentID int64) (*models.Section, error)
	ListActive(ctx context.Context, adminID int64) ([]models.Section, error)
	JoinCodeExists(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, s *models.Section) error
}

type membershipStore interface {
	Get(ctx context.Context, studentID, sectionID int64) (*models.Membership, error)
	CountApproved(ctx context.Context, sectionID int64) (int, error)
	CreatePending(ctx context.Context, studentID, sectionID int64) (*models.Membership, error)
	Decide(ctx context.Context, studentID, sectionID int64, status models.MembershipStatus, decidedBy int64) (bool, error)
	ListPending(ctx context.Context, adminID int64) ([]models.PendingRequest, error)
	Recipients(ctx context.Context, sectionID int64) ([]models.Recipient, error)
}

type assignmentStore interface {
	UpsertSubject(ctx context.Context, name string) (int64, error)
	Create(ctx context.Context, a *models.Assignment) error
	GetByID(ctx context.Context, id int64) (*models.Assignment, error)
	ListActiveBySection(ctx context.Context, sectionID int64) ([]models.Assignment, error)
	ListActiveForAdmin(ctx context.Context, adminID int64) ([]models.Assignment, error)
	RecordEdit(ctx context.Context, prev *models.Assignment, editedBy int64) error
	Update(ctx context.Context, id int64, title, description string, deadline time.Time) (bool, error)
	SoftDelete(ctx context.Context, id int64) (bool, error)
}

type notificationStore interface {
	Insert(ctx context.Context, rec *models.NotificationRecord) error
	StatsForAssignment(ctx context.Context, assignmentID int64) (models.DispatchStats, error)
}

type activityStore interface {
	Log(ctx context.Context, entry models.ActivityLog) error
}

type statsStore interface {
	Overall(ctx context.Context) (models.Statistics, error)
	ForAdmin(ctx context.Context, adminID int64) (models.Statistics, error)
}

// Repos is the set of stores a service works with. Inside a transaction
// every field is bound to the same tx.
type Repos struct {
	Users         userStore
	Levels        levelStore
	Sections      sectionStore
	Memberships   membershipStore
	Assignments   assignmentStore
	Notifications notificationStore
	Activity      activityStore
	Stats         statsStore
}

// TxFunc runs fn with Repos bound to one transaction.
type TxFunc func(ctx context.Context, fn func(tx Repos) error) error

// NewRepos adapts a repository.Store.
func NewRepos(store *repository.Store) (Repos, TxFunc) {
	tx := func(ctx context.Context, fn func(tx Repos) error) error {
		return store.InTx(ctx, func(s *repository.Store) error {
			return fn(reposOf(s))
		})
	}
	return reposOf(store), tx
}

func reposOf(s *repository.Store) Repos {
	return Repos{
		Users:         s.Users,
		Levels:        s.Levels,
		Sections:      s.Sections,
		Memberships:   s.Memberships,
		Assignments:   s.Assignments,
		Notifications: s.Notifications,
		Activity:      s.Activity,
		Stats:         s.Stats,
	}
}

// Button is one inline button; Data is callback data in internal/action form.
type Button struct {
	Text string
	Data string
}

// Message is an outbound text with an optional inline keyboard.
type Message struct {
	Text    string
	Buttons [][]Button
}

// Reply is what a flow wants shown to the user who triggered it.
type Reply struct {
	Text    string
	Buttons [][]Button
	// Done is set when the conversation ended with this reply.
	Done bool
	// Menu asks for the main menu of the user's role to come with Text.
	Menu bool
}

// ErrRecipientBlocked marks a delivery refused because the recipient blocked
// the bot or cannot be messaged any more.
var ErrRecipientBlocked = errors.New("recipient blocked the bot")

// Notifier delivers a message to a Telegram user outside the current update.
type Notifier interface {
	Notify(ctx context.Context, telegramID int64, msg Message) error
}

// Observer receives service level counters. *metrics.Metrics implements it.
type Observer interface {
	ObserveNotification(kind, status string)
	ObserveDispatch(d time.Duration)
	ObserveRegistration(outcome string)
}

type nopObserver struct{}

func (nopObserver) ObserveNotification(string, string) {}
func (nopObserver) ObserveDispatch(time.Duration)      {}
func (nopObserver) ObserveRegistration(string)         {}

func observerOr(o Observer) Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}

// logActivity writes an audit row; target is the affected row id.
func logActivity(ctx context.Context, store activityStore, actorID int64, act, details, targetType string, target int64) error {
	entry := models.ActivityLog{Action: act, Details: details, TargetType: targetType}
	if actorID > 0 {
		entry.UserID = &actorID
	}
	if target > 0 {
		entry.TargetID = &target
	}
	return store.Log(ctx, entry)
}
