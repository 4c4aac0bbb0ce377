package bot

import (
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/apperr"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram/commands"
	tghelpers "github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram/helpers"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram/keyboard"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/action"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/models"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/service"
)

// Menu labels double as command aliases.
const (
	menuNewSection    = "➕ New section"
	menuSections      = "📚 Sections"
	menuStats         = "📊 Statistics"
	menuPending       = "⏳ Pending requests"
	menuNewAssignment = "📝 New assignment"
	menuAssignments   = "📋 Assignments"
	menuMySection     = "🏫 My section"
	menuMyAssignments = "📚 My assignments"
	menuHelp          = "❓ Help"
)

func (h *Handlers) commands() map[string]commands.Command {
	owner, admin, student := string(models.RoleOwner), string(models.RoleAdmin), string(models.RoleStudent)
	return map[string]commands.Command{
		"/start":          {Handler: h.start, Description: "Start the bot or join a section"},
		"/help":           {Handler: h.help, Description: "Show what you can do", Aliases: []string{menuHelp}},
		"/cancel":         {Handler: h.cancel, Description: "Cancel the current operation"},
		"/create_section": {Handler: h.createSection, Description: "Create a section", Role: owner, Aliases: []string{menuNewSection}},
		"/sections":       {Handler: h.listSections, Description: "List sections and their links", Role: admin, Aliases: []string{menuSections}},
		"/stats":          {Handler: h.stats, Description: "Show statistics", Role: admin, Aliases: []string{menuStats}},
		"/pending":        {Handler: h.pending, Description: "Review registration requests", Role: admin, Aliases: []string{menuPending}},
		"/new_assignment": {Handler: h.newAssignment, Description: "Publish an assignment", Role: admin, Aliases: []string{menuNewAssignment}},
		"/assignments":    {Handler: h.listAssignments, Description: "Manage assignments", Role: admin, Aliases: []string{menuAssignments}},
		"/delivery":       {Handler: h.delivery, Description: "Delivery report of an assignment", Role: admin, Hidden: true},
		"/block":          {Handler: h.blockUser(true), Description: "Block a user", Role: admin, Hidden: true},
		"/unblock":        {Handler: h.blockUser(false), Description: "Unblock a user", Role: admin, Hidden: true},
		"/my_section":     {Handler: h.mySection, Description: "Show your section", Role: student, Aliases: []string{menuMySection}},
		"/my_assignments": {Handler: h.myAssignments, Description: "Show your assignments", Role: student, Aliases: []string{menuMyAssignments}},
	}
}

func menuFor(role models.Role) *tele.ReplyMarkup {
	switch role {
	case models.RoleOwner:
		return keyboard.ReplyButtons(
			[]string{menuNewSection, menuSections},
			[]string{menuStats, menuPending},
			[]string{menuNewAssignment, menuAssignments},
			[]string{menuHelp},
		)
	case models.RoleAdmin:
		return keyboard.ReplyButtons(
			[]string{menuNewAssignment, menuAssignments},
			[]string{menuPending, menuSections},
			[]string{menuStats, menuHelp},
		)
	default:
		return keyboard.ReplyButtons(
			[]string{menuMyAssignments, menuMySection},
			[]string{menuHelp},
		)
	}
}

func payload(c tele.Context) string {
	if m := c.Message(); m != nil {
		return strings.TrimSpace(m.Payload)
	}
	return ""
}

func (h *Handlers) start(c tele.Context) error {
	ctx := ctxOf(c)
	if code := payload(c); service.IsJoinCode(code) {
		var username string
		if u := c.Sender(); u != nil {
			username = u.Username
		}
		reply, err := h.svc.Registration.Start(ctx, sessionKey(c), code, username)
		return h.respond(c, reply, err)
	}

	p, err := tghelpers.CurrentUser[*models.Principal](ctx, h.svc.Identity, senderID(c))
	if err != nil {
		return h.fail(c, err, true)
	}
	switch {
	case p == nil:
		return tghelpers.SendText(c, "👋 Welcome!\n\nTo join your section, open the registration link your section admin shared with you.")
	case p.Blocked:
		return h.fail(c, service.ErrBlocked, true)
	case p.Role == models.RoleOwner:
		return tghelpers.SendText(c, "👑 Welcome back, owner.\n\nUse the menu below or /help.", menuFor(p.Role))
	case p.Role == models.RoleAdmin:
		return tghelpers.SendText(c, fmt.Sprintf("👨‍💼 Welcome, %s.\n\nUse the menu below or /help.", p.FullName), menuFor(p.Role))
	}
	return tghelpers.SendText(c, fmt.Sprintf("👋 Welcome, %s.\n\nUse the menu below to follow your assignments.", p.FullName), menuFor(p.Role))
}

func (h *Handlers) help(c tele.Context) error {
	p, err := tghelpers.CurrentUser[*models.Principal](ctxOf(c), h.svc.Identity, senderID(c))
	if err != nil {
		return h.fail(c, err, true)
	}
	var b strings.Builder
	b.WriteString("📖 Available commands\n\n")
	role := models.RoleStudent
	if p != nil {
		role = p.Role
	}
	if role == models.RoleOwner {
		b.WriteString("/create_section - create a section\n")
	}
	if role == models.RoleOwner || role == models.RoleAdmin {
		b.WriteString("/sections - sections and registration links\n")
		b.WriteString("/pending - registration requests\n")
		b.WriteString("/new_assignment - publish an assignment\n")
		b.WriteString("/assignments - edit or delete assignments\n")
		b.WriteString("/delivery <id> - delivery report of an assignment\n")
		b.WriteString("/stats - statistics\n")
		b.WriteString("/block <telegram id> and /unblock <telegram id>\n")
	} else {
		b.WriteString("/my_section - your section\n")
		b.WriteString("/my_assignments - your assignments\n")
	}
	b.WriteString("/cancel - cancel the current operation")
	return tghelpers.SendText(c, b.String())
}

func (h *Handlers) cancel(c tele.Context) error {
	ok, err := h.svc.Conversations.Cancel(ctxOf(c), sessionKey(c))
	if err != nil {
		return h.fail(c, apperr.Internal(err), true)
	}
	if !ok {
		return tghelpers.SendText(c, "There is nothing to cancel.")
	}
	return h.sendWithMenu(c, service.CancelledText)
}

func (h *Handlers) createSection(c tele.Context) error {
	reply, err := h.svc.SectionFlow.Start(ctxOf(c), sessionKey(c))
	return h.respond(c, reply, err)
}

func (h *Handlers) newAssignment(c tele.Context) error {
	reply, err := h.svc.AssignmentFlow.Start(ctxOf(c), sessionKey(c))
	return h.respond(c, reply, err)
}

func (h *Handlers) listSections(c tele.Context) error {
	secs, err := h.svc.Sections.ListSections(ctxOf(c), senderID(c))
	if err != nil {
		return h.fail(c, err, true)
	}
	if len(secs) == 0 {
		return tghelpers.SendText(c, "📭 There are no active sections yet.")
	}
	var b strings.Builder
	b.WriteString("📚 Active sections\n")
	for _, s := range secs {
		fmt.Fprintf(&b, "\n🏷️ %s\n🔑 %s\n🔗 %s\n", s.Name, s.JoinCode, h.svc.Sections.JoinLink(&s))
	}
	return tghelpers.SendText(c, b.String())
}

func (h *Handlers) stats(c tele.Context) error {
	st, overall, err := h.svc.Stats.Overview(ctxOf(c), senderID(c))
	if err != nil {
		return h.fail(c, err, true)
	}
	return tghelpers.SendText(c, service.FormatStatistics(st, overall))
}

func (h *Handlers) delivery(c tele.Context) error {
	id, err := strconv.ParseInt(payload(c), 10, 64)
	if err != nil || id <= 0 {
		return h.fail(c, apperr.Validation("usage: /delivery <assignment id>"), true)
	}
	st, err := h.svc.Stats.Assignment(ctxOf(c), senderID(c), id)
	if err != nil {
		return h.fail(c, err, true)
	}
	return tghelpers.SendText(c, fmt.Sprintf("📣 Delivery of assignment %d\n\n✅ Sent: %d\n❌ Failed: %d\n🚫 Blocked: %d",
		id, st.Sent, st.Failed, st.Blocked))
}

func (h *Handlers) pending(c tele.Context) error {
	msgs, err := h.svc.Registration.Pending(ctxOf(c), senderID(c))
	if err != nil {
		return h.fail(c, err, true)
	}
	if len(msgs) == 0 {
		return tghelpers.SendText(c, "✅ There are no pending requests.")
	}
	for _, m := range msgs {
		if err := tghelpers.SendText(c, m.Text, inlineMarkup(m.Buttons)); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handlers) listAssignments(c tele.Context) error {
	list, err := h.svc.Assignments.ListForAdmin(ctxOf(c), senderID(c))
	if err != nil {
		return h.fail(c, err, true)
	}
	if len(list) == 0 {
		return tghelpers.SendText(c, "📭 There are no active assignments.")
	}
	loc := h.svc.Assignments.Location()
	for _, a := range list {
		text := fmt.Sprintf("📝 #%d %s\n📖 %s\n📚 %s\n⏰ %s",
			a.ID, a.Title, a.SubjectName, a.SectionName, service.FormatDeadline(a.Deadline, loc))
		markup := inlineMarkup([][]service.Button{{
			{Text: "✏️ Edit", Data: action.EditAssignment(a.ID)},
			{Text: "🗑️ Delete", Data: action.DeleteAssignment(a.ID)},
		}})
		if err := tghelpers.SendText(c, text, markup); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handlers) mySection(c tele.Context) error {
	sec, err := h.svc.Sections.StudentSection(ctxOf(c), senderID(c))
	if err != nil {
		return h.fail(c, err, true)
	}
	return tghelpers.SendText(c, fmt.Sprintf("🏫 Your section\n\n🏷️ %s\n📚 %s\n🕐 %s\n🔤 Division %s",
		sec.Name, sec.LevelName, sec.StudyType.Label(), sec.Division))
}

func (h *Handlers) myAssignments(c tele.Context) error {
	sec, list, err := h.svc.Assignments.ListForStudent(ctxOf(c), senderID(c))
	if err != nil {
		return h.fail(c, err, true)
	}
	if len(list) == 0 {
		return tghelpers.SendText(c, fmt.Sprintf("🎉 %s has no open assignments.", sec.Name))
	}
	loc := h.svc.Assignments.Location()
	now := h.now()
	var b strings.Builder
	fmt.Fprintf(&b, "📚 Assignments of %s\n", sec.Name)
	for _, a := range list {
		fmt.Fprintf(&b, "\n📌 %s - %s\n⏰ %s (%s)\n", a.SubjectName, a.Title,
			service.FormatDeadline(a.Deadline, loc), service.RemainingTime(now, a.Deadline))
	}
	return tghelpers.SendText(c, b.String())
}

func (h *Handlers) blockUser(blocked bool) tele.HandlerFunc {
	usage := "usage: /unblock <telegram id>"
	if blocked {
		usage = "usage: /block <telegram id>"
	}
	return func(c tele.Context) error {
		target, err := strconv.ParseInt(payload(c), 10, 64)
		if err != nil || target <= 0 {
			return h.fail(c, apperr.Validation(usage), true)
		}
		p, err := h.svc.Identity.SetBlocked(ctxOf(c), senderID(c), target, blocked)
		if err != nil {
			return h.fail(c, err, true)
		}
		verb := "unblocked"
		if blocked {
			verb = "blocked"
		}
		return tghelpers.SendText(c, fmt.Sprintf("✅ %s (%d) was %s.", p.FullName, p.TelegramID, verb))
	}
}
