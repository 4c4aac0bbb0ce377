package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func offlineContext(t *testing.T, upd tele.Update) tele.Context {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	return b.NewContext(upd)
}

func textUpdate(id int, userID int64, text string) tele.Update {
	return tele.Update{ID: id, Message: &tele.Message{
		Text:   text,
		Sender: &tele.User{ID: userID},
		Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
	}}
}

type roleStub map[int64]string

func (r roleStub) CheckRole(_ context.Context, id int64, role string) error {
	if r[id] == role || r[id] == "owner" {
		return nil
	}
	return errors.New("this command is for " + role + "s only")
}

func TestRequireRole(t *testing.T) {
	var rejected error
	mw := RequireRole(RoleOptions{
		Checker:  roleStub{1: "owner", 2: "student"},
		OnReject: func(_ tele.Context, err error) error { rejected = err; return nil },
	}, "admin")

	var calls int
	h := mw(func(tele.Context) error { calls++; return nil })

	require.NoError(t, h(offlineContext(t, textUpdate(1, 1, "/pending"))))
	assert.Equal(t, 1, calls)

	require.NoError(t, h(offlineContext(t, textUpdate(2, 2, "/pending"))))
	assert.Equal(t, 1, calls)
	assert.EqualError(t, rejected, "this command is for admins only")
}

func TestRateLimitMiddleware(t *testing.T) {
	var limited int
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Hour,
		Exclude:   map[string]struct{}{"callback": {}},
		OnLimited: func(tele.Context) error { limited++; return nil },
	})
	var passed int
	h := mw(func(tele.Context) error { passed++; return nil })

	_ = h(offlineContext(t, textUpdate(1, 7, "a")))
	_ = h(offlineContext(t, textUpdate(2, 7, "b")))
	_ = h(offlineContext(t, textUpdate(3, 8, "c")))
	cb := tele.Update{ID: 4, Callback: &tele.Callback{Sender: &tele.User{ID: 7}, Data: "approve_1_2"}}
	_ = h(offlineContext(t, cb))

	assert.Equal(t, 3, passed)
	assert.Equal(t, 1, limited)
}

type kindCounter map[string]int

func (k kindCounter) ObserveUpdate(kind string) { k[kind]++ }

func TestCountUpdates(t *testing.T) {
	obs := kindCounter{}
	h := CountUpdates(obs)(func(tele.Context) error { return nil })

	_ = h(offlineContext(t, textUpdate(1, 1, "hi")))
	_ = h(offlineContext(t, tele.Update{ID: 2, Callback: &tele.Callback{Sender: &tele.User{ID: 1}}}))

	assert.Equal(t, kindCounter{"message": 1, "callback": 1}, obs)
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })
	err := h(offlineContext(t, textUpdate(1, 1, "x")))
	assert.ErrorContains(t, err, "boom")
}
