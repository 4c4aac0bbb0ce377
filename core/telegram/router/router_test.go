package router

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/apperr"
	tg "github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram/commands"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram/middleware"
)

func offlineContext(t *testing.T, upd tele.Update) tele.Context {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	return b.NewContext(upd)
}

func textUpdate(userID int64, text string) tele.Update {
	return tele.Update{ID: int(userID), Message: &tele.Message{
		Text:   text,
		Sender: &tele.User{ID: userID},
		Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
	}}
}

func callbackUpdate(userID int64, data string) tele.Update {
	return tele.Update{ID: int(userID), Callback: &tele.Callback{
		Sender: &tele.User{ID: userID},
		Data:   data,
	}}
}

type observed struct {
	handler, outcome string
}

type observerStub struct{ calls []observed }

func (o *observerStub) ObserveHandler(handler, outcome string, _ time.Duration) {
	o.calls = append(o.calls, observed{handler, outcome})
}

func TestCallbackRouteUsesKeyFunc(t *testing.T) {
	reg := tg.NewRegistry()
	var got string
	require.NoError(t, reg.RegisterCallback("approve", func(c tele.Context) error {
		got = c.Callback().Data
		return nil
	}))

	obs := &observerStub{}
	SetHandlerObserver(obs)
	t.Cleanup(func() { SetHandlerObserver(nil) })

	route := CallbackRoute(reg, CallbackOptions{
		KeyFunc: func(data string) string {
			key, _, _ := strings.Cut(data, "_")
			return key
		},
	})
	require.NoError(t, route.Handler(offlineContext(t, callbackUpdate(1, "approve_12_3"))))

	assert.Equal(t, "approve_12_3", got)
	require.Len(t, obs.calls, 1)
	assert.Equal(t, observed{"callback.approve", "ok"}, obs.calls[0])
}

func TestCallbackRouteNotFound(t *testing.T) {
	reg := tg.NewRegistry()
	var fallback int
	route := CallbackRoute(reg, CallbackOptions{
		NotFound: func(tele.Context) error { fallback++; return nil },
	})
	require.NoError(t, route.Handler(offlineContext(t, callbackUpdate(2, "\fmissing|x"))))
	assert.Equal(t, 1, fallback)
}

type roleStub map[int64]string

func (r roleStub) CheckRole(_ context.Context, id int64, role string) error {
	if r[id] == role {
		return nil
	}
	return apperr.Permission("not allowed")
}

func TestCommandRoutesGuardRestrictedCommands(t *testing.T) {
	reg := tg.NewRegistry()
	var ran, rejected int
	reg.RegisterCommand("/pending", commands.Command{
		Handler:     func(tele.Context) error { ran++; return nil },
		Description: "pending requests",
		Role:        "admin",
	})

	routes := CommandRoutes(reg, CommandRouteOptions{Roles: middleware.RoleOptions{
		Checker:  roleStub{1: "admin"},
		OnReject: func(tele.Context, error) error { rejected++; return nil },
	}})
	require.Len(t, routes, 1)
	assert.Equal(t, "/pending", routes[0].Endpoint)

	require.NoError(t, routes[0].Handler(offlineContext(t, textUpdate(1, "/pending"))))
	require.NoError(t, routes[0].Handler(offlineContext(t, textUpdate(2, "/pending"))))
	assert.Equal(t, 1, ran)
	assert.Equal(t, 1, rejected)
}

type convStub struct {
	active  bool
	handled []string
}

func (c *convStub) InProgress(tele.Context) bool { return c.active }
func (c *convStub) Handle(ctx tele.Context) error {
	c.handled = append(c.handled, ctx.Text())
	return nil
}

func TestTextRoutesPrecedence(t *testing.T) {
	reg := tg.NewRegistry()
	var cancels, menu int
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     func(tele.Context) error { cancels++; return nil },
		Description: "cancel",
	})
	reg.RegisterCommand("/sections", commands.Command{
		Handler:     func(tele.Context) error { menu++; return nil },
		Description: "sections",
		Aliases:     []string{"📚 Sections"},
	})
	conv := &convStub{active: true}

	routes := TextRoutes(conv, reg, TextOptions{})
	text := routes[0].Handler

	require.NoError(t, text(offlineContext(t, textUpdate(1, "/cancel"))))
	require.NoError(t, text(offlineContext(t, textUpdate(1, "Ali Hassan"))))
	require.NoError(t, text(offlineContext(t, textUpdate(1, "📚 Sections"))))
	assert.Equal(t, 1, cancels)
	assert.Equal(t, 0, menu, "free text goes to the active conversation")
	assert.Equal(t, []string{"Ali Hassan", "📚 Sections"}, conv.handled)

	conv.active = false
	require.NoError(t, text(offlineContext(t, textUpdate(1, "📚 Sections"))))
	assert.Equal(t, 1, menu)
}

func TestDeriveErrorCode(t *testing.T) {
	assert.Equal(t, "VALIDATION", deriveErrorCode(apperr.Validation("bad")))
	assert.Equal(t, "ERRORSTRING", deriveErrorCode(errors.New("x")))
	assert.Equal(t, "", deriveErrorCode(nil))
}
