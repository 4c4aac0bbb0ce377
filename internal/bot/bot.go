// Package bot binds the chat surface to the services: commands, inline
// buttons, free text of running conversations and outbound notifications.
package bot

import (
	"context"
	"time"

	tele "gopkg.in/telebot.v4"

	tg "github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram/middleware"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram/router"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram/state"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram/ui"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/action"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/conversation"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/models"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/service"
)

type identity interface {
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.Principal, error)
	SetBlocked(ctx context.Context, actorTelegramID, targetTelegramID int64, blocked bool) (*models.Principal, error)
}

type sections interface {
	ListSections(ctx context.Context, telegramID int64) ([]models.Section, error)
	StudentSection(ctx context.Context, telegramID int64) (*models.Section, error)
	JoinLink(sec *models.Section) string
}

type registrations interface {
	Start(ctx context.Context, key conversation.Key, code, username string) (service.Reply, error)
	Decide(ctx context.Context, adminTelegramID, studentTelegramID, sectionID int64, approve bool) (service.Reply, error)
	Pending(ctx context.Context, telegramID int64) ([]service.Message, error)
}

type assignments interface {
	ListForAdmin(ctx context.Context, telegramID int64) ([]models.Assignment, error)
	ListForStudent(ctx context.Context, telegramID int64) (*models.Section, []models.Assignment, error)
	Delete(ctx context.Context, actorTelegramID, id int64) (*models.Assignment, bool, error)
	Location() *time.Location
}

type wizard interface {
	Start(ctx context.Context, key conversation.Key) (service.Reply, error)
}

type editWizard interface {
	Start(ctx context.Context, key conversation.Key, assignmentID int64) (service.Reply, error)
}

type conversations interface {
	InProgress(ctx context.Context, key conversation.Key) bool
	Cancel(ctx context.Context, key conversation.Key) (bool, error)
	Handle(ctx context.Context, key conversation.Key, in conversation.Input) (service.Reply, error)
}

type stats interface {
	Overview(ctx context.Context, telegramID int64) (models.Statistics, bool, error)
	Assignment(ctx context.Context, telegramID, assignmentID int64) (models.DispatchStats, error)
}

// Services are the use cases the handlers call.
type Services struct {
	Roles          middleware.RoleChecker
	Identity       identity
	Sections       sections
	SectionFlow    wizard
	Registration   registrations
	Assignments    assignments
	AssignmentFlow wizard
	EditFlow       editWizard
	Conversations  conversations
	Stats          stats
}

// Handlers owns every chat entry point of the bot.
type Handlers struct {
	svc      Services
	fallback ui.FallbackProvider
	now      func() time.Time
}

// New builds the handlers. A nil fallback uses the default texts.
func New(svc Services, fallback ui.FallbackProvider) *Handlers {
	if fallback == nil {
		fallback = Fallback{}
	}
	return &Handlers{svc: svc, fallback: fallback, now: time.Now}
}

// Register adds the commands and callbacks of the bot to reg.
func (h *Handlers) Register(reg *tg.Registry) error {
	for name, cmd := range h.commands() {
		reg.RegisterCommand(name, cmd)
	}
	for kind, fn := range h.callbacks() {
		if err := reg.RegisterCallback(string(kind), fn); err != nil {
			return err
		}
	}
	reg.SetCallbackNotFound(h.fallback.UnknownCallback())
	return nil
}

// Routes returns the command, callback and text routes over reg.
func (h *Handlers) Routes(reg *tg.Registry) []tg.Route {
	roles := middleware.RoleOptions{Checker: h.svc.Roles, OnReject: h.reject}
	routes := router.CommandRoutes(reg, router.CommandRouteOptions{Roles: roles})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{
		NotFound: h.fallback.UnknownCallback(),
		KeyFunc:  action.KeyOf,
	}))
	routes = append(routes, router.TextRoutes(bridge{h}, reg, router.TextOptions{
		UnknownText:     h.fallback.UnknownText(),
		UnknownDocument: h.fallback.UnknownDocument(),
		Roles:           roles,
	})...)
	return routes
}

// sessionKey identifies the conversation of the update's sender in its chat.
func sessionKey(c tele.Context) state.Key {
	var key state.Key
	if u := c.Sender(); u != nil {
		key.UserID = u.ID
	}
	if ch := c.Chat(); ch != nil {
		key.ChatID = ch.ID
	} else {
		key.ChatID = key.UserID
	}
	return key
}

func senderID(c tele.Context) int64 {
	if u := c.Sender(); u != nil {
		return u.ID
	}
	return 0
}

// bridge exposes the conversations to the text router.
type bridge struct{ h *Handlers }

func (b bridge) InProgress(c tele.Context) bool {
	if b.h.svc.Conversations == nil {
		return false
	}
	return b.h.svc.Conversations.InProgress(ctxOf(c), sessionKey(c))
}

func (b bridge) Handle(c tele.Context) error {
	reply, err := b.h.svc.Conversations.Handle(ctxOf(c), sessionKey(c), conversation.Input{Text: c.Text()})
	return b.h.respond(c, reply, err)
}
