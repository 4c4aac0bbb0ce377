package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram/sender"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/service"
)

var errNoBot = errors.New("notifier: bot is not running")

type botSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Notifier delivers service messages through the running bot. It is created
// before the bot exists; SetBot attaches it once polling starts.
type Notifier struct {
	mu  sync.RWMutex
	bot botSender
}

var _ service.Notifier = (*Notifier)(nil)

func NewNotifier() *Notifier { return &Notifier{} }

func (n *Notifier) SetBot(b botSender) {
	n.mu.Lock()
	n.bot = b
	n.mu.Unlock()
}

// Notify sends msg to telegramID. Refusals from users who blocked the bot
// wrap service.ErrRecipientBlocked.
func (n *Notifier) Notify(ctx context.Context, telegramID int64, msg service.Message) error {
	n.mu.RLock()
	b := n.bot
	n.mu.RUnlock()
	if b == nil {
		return errNoBot
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	opts := &tele.SendOptions{ReplyMarkup: inlineMarkup(msg.Buttons), DisableWebPagePreview: true}
	if _, err := b.Send(&tele.User{ID: telegramID}, msg.Text, opts); err != nil {
		if sender.IsBlocked(err) {
			return fmt.Errorf("%w: %s", service.ErrRecipientBlocked, sender.SanitizeError(err))
		}
		return fmt.Errorf("notify %d: %s", telegramID, sender.SanitizeError(err))
	}
	return nil
}
