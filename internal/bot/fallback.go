package bot

import (
	tele "gopkg.in/telebot.v4"

	tghelpers "github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram/helpers"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram/ui"
)

var _ ui.FallbackProvider = Fallback{}

// Fallback answers updates that no route claimed.
type Fallback struct{}

func (Fallback) UnknownText() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendText(c, "🤔 I did not understand that. Use the menu or /help.")
	}
}

func (Fallback) UnknownDocument() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendText(c, "📎 Files are not accepted here.")
	}
}

func (Fallback) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		return c.Respond(&tele.CallbackResponse{Text: "This button is no longer valid.", ShowAlert: true})
	}
}

// Limited answers an update dropped by the rate limiter.
func Limited(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: "⏳ Too many requests, slow down."})
	}
	return nil
}
