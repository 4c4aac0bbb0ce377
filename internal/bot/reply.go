package bot

import (
	"context"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/apperr"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/logger"
	tghelpers "github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram/helpers"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram/keyboard"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/models"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/service"
)

const (
	internalErrorText = "⚠️ Something went wrong, please try again later."
	mainMenuText      = "🏠 Main menu"
)

func ctxOf(c tele.Context) context.Context {
	return tghelpers.BuildContext(c)
}

// inlineMarkup converts service buttons to an inline keyboard.
func inlineMarkup(rows [][]service.Button) *tele.ReplyMarkup {
	if len(rows) == 0 {
		return nil
	}
	kb := make([][]keyboard.InlineBtn, 0, len(rows))
	for _, row := range rows {
		r := make([]keyboard.InlineBtn, 0, len(row))
		for _, b := range row {
			r = append(r, keyboard.InlineBtn{Text: b.Text, Data: b.Data})
		}
		kb = append(kb, r)
	}
	return keyboard.InlineButtonsRows(kb...)
}

// respond renders the outcome of a service call. Refusals are shown to the
// user and swallowed; internal errors are reported and returned.
func (h *Handlers) respond(c tele.Context, reply service.Reply, err error) error {
	if err != nil {
		return h.fail(c, err, reply.Done)
	}
	if c.Callback() != nil {
		_ = c.Respond()
	}
	if reply.Text == "" {
		return nil
	}
	if reply.Menu {
		return h.sendWithMenu(c, reply.Text)
	}
	return h.send(c, reply.Text, inlineMarkup(reply.Buttons))
}

// sendWithMenu sends text and puts the main menu of the sender's role back.
// Edited messages cannot carry a reply keyboard, so a button tap gets its
// message edited and the menu in a follow-up.
func (h *Handlers) sendWithMenu(c tele.Context, text string) error {
	p, err := tghelpers.CurrentUser[*models.Principal](ctxOf(c), h.svc.Identity, senderID(c))
	if err != nil {
		return h.fail(c, apperr.Internal(err), true)
	}
	if p == nil || p.Blocked {
		return h.send(c, text, nil)
	}
	if c.Callback() == nil {
		return tghelpers.SendText(c, text, menuFor(p.Role))
	}
	if err := tghelpers.EditOrSendText(c, text); err != nil {
		return err
	}
	return tghelpers.SendText(c, mainMenuText, menuFor(p.Role))
}

func (h *Handlers) send(c tele.Context, text string, markup *tele.ReplyMarkup) error {
	if c.Callback() != nil {
		return tghelpers.EditOrSendText(c, text, markup)
	}
	if markup == nil {
		return tghelpers.SendText(c, text)
	}
	return tghelpers.SendText(c, text, markup)
}

// fail tells the user why the request was refused. A button tap that did not
// end a conversation is answered with a popup so the keyboard stays usable.
func (h *Handlers) fail(c tele.Context, err error, ended bool) error {
	ctx := ctxOf(c)
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal || kind == apperr.KindTransport {
		logger.Error(ctx, logger.CompTelegram, "handler.internal", slog.String("err", err.Error()))
		if c.Callback() != nil {
			_ = c.Respond()
		}
		_ = tghelpers.SendText(c, internalErrorText)
		return err
	}
	logger.Debug(ctx, logger.CompTelegram, "handler.refused",
		slog.String("kind", string(kind)),
		slog.String("reason", apperr.Message(err)),
	)
	if c.Callback() != nil && !ended {
		return alert(c, err)
	}
	if c.Callback() != nil {
		_ = c.Respond()
	}
	prefix := "⚠️ "
	if kind == apperr.KindPermission {
		prefix = "⛔ "
	}
	return tghelpers.SendText(c, prefix+apperr.Message(err))
}

// reject answers a command refused by the role check.
func (h *Handlers) reject(c tele.Context, err error) error {
	return h.fail(c, err, false)
}

// alert answers a button tap with a popup and no message.
func alert(c tele.Context, err error) error {
	return c.Respond(&tele.CallbackResponse{Text: apperr.Message(err), ShowAlert: true})
}
