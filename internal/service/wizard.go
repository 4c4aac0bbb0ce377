package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/apperr"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/logger"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram/state"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/conversation"
)

// wizard is one flow on the shared engine plus its rendering.
type wizard interface {
	flow() conversation.Flow
	// prompt renders the question asked in st.
	prompt(ctx context.Context, st state.State, data map[string]string) (Reply, error)
	// complete runs the effect of a finished conversation.
	complete(ctx context.Context, key conversation.Key, eff *conversation.Effect) (Reply, error)
}

// cancelHook is implemented by wizards that react to a cancelled session.
type cancelHook interface {
	cancelled(ctx context.Context, data map[string]string)
}

// CancelledText is the reply to a cancelled conversation.
const CancelledText = "❌ Operation cancelled."

// Conversations routes inputs of any active session to its wizard.
type Conversations struct {
	engine  *conversation.Engine
	wizards map[string]wizard
}

// NewConversations registers the flows of ws on engine.
func NewConversations(engine *conversation.Engine, ws ...wizard) (*Conversations, error) {
	c := &Conversations{engine: engine, wizards: make(map[string]wizard, len(ws))}
	for _, w := range ws {
		f := w.flow()
		if _, dup := c.wizards[f.Name]; dup {
			return nil, fmt.Errorf("conversations: flow %s registered twice", f.Name)
		}
		if err := engine.Register(f); err != nil {
			return nil, err
		}
		c.wizards[f.Name] = w
	}
	return c, nil
}

// InProgress reports whether key has an active session.
func (c *Conversations) InProgress(ctx context.Context, key conversation.Key) bool {
	return c.engine.InProgress(ctx, key)
}

// Cancel ends the session under key.
func (c *Conversations) Cancel(ctx context.Context, key conversation.Key) (bool, error) {
	data, _ := c.engine.Data(ctx, key)
	st, _ := c.engine.Current(ctx, key)
	ok, err := c.engine.Cancel(ctx, key)
	if err != nil || !ok {
		return ok, err
	}
	c.onCancel(ctx, st, data)
	return true, nil
}

// Handle advances the session under key with in. Validation errors leave the
// session where it was; every other error has already ended it.
func (c *Conversations) Handle(ctx context.Context, key conversation.Key, in conversation.Input) (Reply, error) {
	res, err := c.engine.Advance(ctx, key, in)
	if err != nil {
		if apperr.Is(err, apperr.KindValidation) {
			return Reply{}, err
		}
		return Reply{Done: res.Done()}, err
	}
	if res.Cancelled {
		c.onCancel(ctx, res.Previous, res.Data)
		return Reply{Text: CancelledText, Done: true, Menu: true}, nil
	}
	w, ok := c.wizards[res.Flow]
	if !ok {
		return Reply{Done: res.Done()}, apperr.Internal(fmt.Errorf("conversations: no wizard for flow %q", res.Flow))
	}
	if res.Done() {
		if res.Effect == nil {
			return Reply{Done: true}, nil
		}
		reply, err := w.complete(ctx, key, res.Effect)
		reply.Done = true
		if err != nil {
			logger.Info(ctx, logger.CompConversation, "effect.failed",
				slog.String("flow", res.Flow),
				slog.String("action", res.Effect.Name),
				slog.String("err", err.Error()),
			)
		}
		return reply, err
	}
	return w.prompt(ctx, res.Next, res.Data)
}

// startSession begins a session for w and renders its first prompt.
func startSession(ctx context.Context, engine *conversation.Engine, w wizard, key conversation.Key, initial state.State, data map[string]string) (Reply, error) {
	if err := engine.Begin(ctx, key, initial, data); err != nil {
		return Reply{}, apperr.Internal(err)
	}
	reply, err := w.prompt(ctx, initial, data)
	if err != nil {
		_, _ = engine.Cancel(ctx, key)
		return Reply{Done: true}, err
	}
	return reply, nil
}

func (c *Conversations) onCancel(ctx context.Context, st state.State, data map[string]string) {
	if st == state.StateIdle {
		return
	}
	for _, w := range c.wizards {
		if _, owns := w.flow().Steps[st]; !owns {
			continue
		}
		if h, ok := w.(cancelHook); ok {
			h.cancelled(ctx, data)
		}
		return
	}
}
