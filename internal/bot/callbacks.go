package bot

import (
	"fmt"

	tele "gopkg.in/telebot.v4"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram/callbacks"
	tghelpers "github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram/helpers"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/action"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/conversation"
)

func (h *Handlers) callbacks() map[action.Kind]tele.HandlerFunc {
	return map[action.Kind]tele.HandlerFunc{
		action.Approve:         h.decide,
		action.Reject:          h.decide,
		action.SectionLevel:    h.wizardStep,
		action.SectionType:     h.wizardStep,
		action.SectionDivision: h.wizardStep,
		action.SectionConfirm:  h.wizardStep,
		action.SectionCancel:   h.wizardCancel,
		action.AssignSection:   h.wizardStep,
		action.AssignConfirm:   h.wizardStep,
		action.AssignCancel:    h.wizardCancel,
		action.AssignEditField: h.wizardStep,
		action.AssignEdit:      h.editAssignment,
		action.AssignDelete:    h.deleteAssignment,
	}
}

// parsed decodes the tapped button. Malformed data is answered with a popup.
func parsed(c tele.Context) (action.Action, bool, error) {
	a, err := action.Parse(callbacks.RawData(c))
	if err != nil {
		return a, false, alert(c, err)
	}
	return a, true, nil
}

func (h *Handlers) decide(c tele.Context) error {
	a, ok, err := parsed(c)
	if !ok {
		return err
	}
	reply, err := h.svc.Registration.Decide(ctxOf(c), senderID(c), a.StudentID, a.SectionID, a.Kind == action.Approve)
	if err != nil {
		// The request message stays, so the admin can see why it was refused.
		return h.fail(c, err, false)
	}
	return h.respond(c, reply, nil)
}

func (h *Handlers) wizardStep(c tele.Context) error {
	reply, err := h.svc.Conversations.Handle(ctxOf(c), sessionKey(c), conversation.Input{Action: callbacks.RawData(c)})
	return h.respond(c, reply, err)
}

func (h *Handlers) wizardCancel(c tele.Context) error {
	reply, err := h.svc.Conversations.Handle(ctxOf(c), sessionKey(c), conversation.Input{
		Action: callbacks.RawData(c),
		Cancel: true,
	})
	return h.respond(c, reply, err)
}

func (h *Handlers) editAssignment(c tele.Context) error {
	a, ok, err := parsed(c)
	if !ok {
		return err
	}
	reply, err := h.svc.EditFlow.Start(ctxOf(c), sessionKey(c), a.AssignmentID)
	if err != nil {
		return h.fail(c, err, false)
	}
	_ = c.Respond()
	return tghelpers.SendText(c, reply.Text, inlineMarkup(reply.Buttons))
}

func (h *Handlers) deleteAssignment(c tele.Context) error {
	a, ok, err := parsed(c)
	if !ok {
		return err
	}
	deleted, queued, err := h.svc.Assignments.Delete(ctxOf(c), senderID(c), a.AssignmentID)
	if err != nil {
		return h.fail(c, err, false)
	}
	text := fmt.Sprintf("🗑️ Assignment \"%s\" was deleted.", deleted.Title)
	if queued {
		text += "\n📣 Students are being notified."
	} else {
		text += "\n⚠️ Students could not be notified."
	}
	_ = c.Respond()
	return tghelpers.EditOrSendText(c, text, nil)
}
