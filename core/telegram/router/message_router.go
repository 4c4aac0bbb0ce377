package router

import (
	"time"

	tele "gopkg.in/telebot.v4"

	tg "github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram/commands"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram/middleware"
)

// Conversation is the minimal view of a conversation engine the text router needs.
type Conversation interface {
	// InProgress reports whether the (user, chat) pair has an active session.
	InProgress(c tele.Context) bool
	// Handle feeds the update into the active session.
	Handle(c tele.Context) error
}

// TextOptions controls fallback behaviour for text/document updates.
type TextOptions struct {
	UnknownText     tele.HandlerFunc
	UnknownDocument tele.HandlerFunc
	// Roles checks commands reached through their text aliases.
	Roles middleware.RoleOptions
}

// TextRoutes builds handlers for text and document routing. Commands win over
// an active conversation so /cancel and friends always reach their handler.
func TextRoutes(conv Conversation, reg *tg.Registry, opts TextOptions) []tg.Route {
	command := func(text string) (string, tele.HandlerFunc, bool) {
		if reg == nil {
			return "", nil, false
		}
		key, cmd, ok := reg.LookupCommand(text)
		if !ok || cmd.Handler == nil {
			return "", nil, false
		}
		return normalizeHandlerName(key), guarded(cmd, opts.Roles), true
	}

	handler := func(c tele.Context) error {
		start := time.Now()
		text := c.Text()

		if len(text) > 1 && text[0] == '/' {
			if name, h, ok := command(text); ok {
				return handleWithSummary(c, name, start, "", "", func() error { return h(c) })
			}
		}

		if conv != nil && conv.InProgress(c) {
			return handleWithSummary(c, "conversation", start, "", "", func() error {
				return conv.Handle(c)
			})
		}

		if name, h, ok := command(text); ok {
			return handleWithSummary(c, name, start, "", "", func() error { return h(c) })
		}
		if reg != nil {
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "fallback", start, "", "", func() error {
					return fb(c)
				})
			}
		}

		if opts.UnknownText != nil {
			return handleWithSummary(c, "unknown_text", start, "", "", func() error {
				return opts.UnknownText(c)
			})
		}

		logHandlerSummary(c, "unknown_text", start, "skip", "ok", nil)
		return nil
	}

	docHandler := func(c tele.Context) error {
		start := time.Now()
		if opts.UnknownDocument != nil {
			return handleWithSummary(c, "unexpected_document", start, "", "", func() error {
				return opts.UnknownDocument(c)
			})
		}
		logHandlerSummary(c, "unexpected_document", start, "skip", "ok", nil)
		return nil
	}

	return []tg.Route{
		{
			Endpoint: tele.OnText,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
		},
		{
			Endpoint: tele.OnDocument,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(docHandler)),
		},
	}
}


func guarded(cmd commands.Command, roles middleware.RoleOptions) tele.HandlerFunc {
	if !cmd.Restricted() {
		return cmd.Handler
	}
	return middleware.RequireRole(roles, cmd.Role)(cmd.Handler)
}
