package middleware

import (
	"context"

	tele "gopkg.in/telebot.v4"

	tghelpers "github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram/helpers"
)

// RoleChecker answers whether a Telegram user holds at least the given role.
// A non-nil error carries the user-facing reason for the refusal.
type RoleChecker interface {
	CheckRole(ctx context.Context, telegramID int64, role string) error
}

// RoleOptions defines how role checks should behave.
type RoleOptions struct {
	Checker  RoleChecker
	OnReject func(c tele.Context, err error) error
}

// RequireRole lets the update through only when Checker accepts the sender for role.
func RequireRole(opts RoleOptions, role string) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		if role == "" || opts.Checker == nil {
			return next
		}
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return nil
			}
			if err := opts.Checker.CheckRole(tghelpers.BuildContext(c), sender.ID, role); err != nil {
				if opts.OnReject != nil {
					return opts.OnReject(c, err)
				}
				return nil
			}
			return next(c)
		}
	}
}
