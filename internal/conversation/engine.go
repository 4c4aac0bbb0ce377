// Package conversation drives multi-step chat flows on top of a session store.
//
// A Flow is a set of steps keyed by state. Advance feeds one input to the step
// of the current state; the step validates it and returns a Transition. Steps
// never perform the flow's final action themselves: a terminal transition
// carries an Effect that the caller executes after the session is gone.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/apperr"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/logger"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram/state"
)

// ErrNoSession is returned when a key has no active conversation.
var ErrNoSession = apperr.NotFound("there is no operation in progress")

// Key identifies a session by (user, chat).
type Key = state.Key

// Input is one user action fed into a step.
type Input struct {
	// Text is free text typed by the user.
	Text string
	// Action is raw callback data when the input came from a button.
	Action string
	// Cancel forces cancellation regardless of the step.
	Cancel bool
}

// Effect is the side effect a terminal transition asks the caller to run.
type Effect struct {
	Name string
	Data map[string]string
}

// Transition is what a step decided.
type Transition struct {
	// Next is the following state; state.StateIdle ends the conversation.
	Next state.State
	// Put is merged into the session data before Next is stored.
	Put map[string]string
	// Effect is only honoured on terminal transitions.
	Effect string
}

// Step validates in against the current data and picks the next state.
// Returning an apperr validation error keeps the session in place; any other
// error tears it down.
type Step func(ctx context.Context, data map[string]string, in Input) (Transition, error)

// Flow groups the steps of one wizard.
type Flow struct {
	Name  string
	Steps map[state.State]Step
}

// Result reports the outcome of Advance.
type Result struct {
	Flow      string
	Previous  state.State
	Next      state.State
	Data      map[string]string
	Effect    *Effect
	Cancelled bool
}

// Done reports whether the conversation ended with this input.
func (r Result) Done() bool { return r.Next == state.StateIdle }

// Options configures an Engine.
type Options struct {
	// CancelWords end the conversation when typed; compared case-insensitively.
	CancelWords []string
}

// Engine owns sessions and serializes transitions per key.
type Engine struct {
	store  state.Store
	locks  state.KeyedMutex
	steps  map[state.State]Step
	owner  map[state.State]string
	cancel map[string]struct{}
}

// DefaultCancelWords are accepted by every flow.
var DefaultCancelWords = []string{"/cancel", "cancel", "❌ cancel"}

// New returns an Engine over store.
func New(store state.Store, opts Options) *Engine {
	words := opts.CancelWords
	if len(words) == 0 {
		words = DefaultCancelWords
	}
	e := &Engine{
		store:  store,
		steps:  make(map[state.State]Step),
		owner:  make(map[state.State]string),
		cancel: make(map[string]struct{}, len(words)),
	}
	for _, w := range words {
		e.cancel[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return e
}

// Register adds the steps of f. States must be unique across flows.
func (e *Engine) Register(f Flow) error {
	for st, step := range f.Steps {
		if st == state.StateIdle || step == nil {
			return fmt.Errorf("conversation: flow %s has an invalid step %q", f.Name, st)
		}
		if other, ok := e.owner[st]; ok {
			return fmt.Errorf("conversation: state %q of flow %s already owned by %s", st, f.Name, other)
		}
	}
	for st, step := range f.Steps {
		e.steps[st] = step
		e.owner[st] = f.Name
	}
	return nil
}

// IsCancel reports whether text is a cancel keyword.
func (e *Engine) IsCancel(text string) bool {
	_, ok := e.cancel[strings.ToLower(strings.TrimSpace(text))]
	return ok
}

// Begin starts a conversation in initial, replacing any session under key.
func (e *Engine) Begin(ctx context.Context, key Key, initial state.State, data map[string]string) error {
	if _, ok := e.steps[initial]; !ok {
		return fmt.Errorf("conversation: unknown state %q", initial)
	}
	unlock := e.locks.Lock(key)
	defer unlock()

	if prev, ok, err := e.store.Load(ctx, key); err == nil && ok {
		logger.Debug(ctx, logger.CompConversation, "session.replaced",
			slog.String("state", string(prev.State)),
		)
	}
	sess := &state.Session{State: initial, Data: make(map[string]string, len(data))}
	for k, v := range data {
		sess.Data[k] = v
	}
	if err := e.store.Save(ctx, key, sess); err != nil {
		return fmt.Errorf("conversation: begin: %w", err)
	}
	logger.Debug(ctx, logger.CompConversation, "session.begin",
		slog.String("flow", e.owner[initial]),
		slog.String("state", string(initial)),
	)
	return nil
}

// Advance feeds in to the current step.
func (e *Engine) Advance(ctx context.Context, key Key, in Input) (Result, error) {
	unlock := e.locks.Lock(key)
	defer unlock()

	sess, ok, err := e.store.Load(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("conversation: load: %w", err)
	}
	if !ok {
		return Result{}, ErrNoSession
	}
	res := Result{Flow: e.owner[sess.State], Previous: sess.State, Next: sess.State, Data: sess.Data}

	if in.Cancel || (in.Action == "" && e.IsCancel(in.Text)) {
		if err := e.store.Delete(ctx, key); err != nil {
			return res, fmt.Errorf("conversation: cancel: %w", err)
		}
		res.Next, res.Cancelled = state.StateIdle, true
		logger.Debug(ctx, logger.CompConversation, "session.cancelled", slog.String("state", string(sess.State)))
		return res, nil
	}

	step, ok := e.steps[sess.State]
	if !ok {
		_ = e.store.Delete(ctx, key)
		res.Next = state.StateIdle
		return res, apperr.Internal(fmt.Errorf("conversation: no step for state %q", sess.State))
	}

	tr, err := step(ctx, sess.Clone().Data, in)
	if err != nil {
		if apperr.Is(err, apperr.KindValidation) {
			logger.Debug(ctx, logger.CompConversation, "step.rejected",
				slog.String("state", string(sess.State)),
				slog.String("reason", apperr.Message(err)),
			)
			return res, err
		}
		if delErr := e.store.Delete(ctx, key); delErr != nil {
			logger.Warn(ctx, logger.CompConversation, "session.teardown_failed", slog.String("err", delErr.Error()))
		}
		res.Next = state.StateIdle
		logger.Info(ctx, logger.CompConversation, "session.aborted",
			slog.String("state", string(sess.State)),
			slog.String("err", err.Error()),
		)
		return res, err
	}

	for k, v := range tr.Put {
		sess.Data[k] = v
	}
	res.Next, res.Data = tr.Next, sess.Data

	if tr.Next == state.StateIdle {
		if err := e.store.Delete(ctx, key); err != nil {
			return res, fmt.Errorf("conversation: finish: %w", err)
		}
		if tr.Effect != "" {
			res.Effect = &Effect{Name: tr.Effect, Data: sess.Data}
		}
		logger.Debug(ctx, logger.CompConversation, "session.completed",
			slog.String("flow", res.Flow),
			slog.String("action", tr.Effect),
		)
		return res, nil
	}

	if _, known := e.steps[tr.Next]; !known {
		_ = e.store.Delete(ctx, key)
		res.Next = state.StateIdle
		return res, apperr.Internal(fmt.Errorf("conversation: step moved to unknown state %q", tr.Next))
	}
	sess.State = tr.Next
	if err := e.store.Save(ctx, key, sess); err != nil {
		return res, fmt.Errorf("conversation: save: %w", err)
	}
	logger.Debug(ctx, logger.CompConversation, "session.advanced",
		slog.String("state", string(res.Previous)),
		slog.String("next", string(tr.Next)),
	)
	return res, nil
}

// Current returns the state under key, StateIdle when there is none.
func (e *Engine) Current(ctx context.Context, key Key) (state.State, error) {
	sess, ok, err := e.store.Load(ctx, key)
	if err != nil || !ok {
		return state.StateIdle, err
	}
	return sess.State, nil
}

// InProgress reports whether key has an active session. Store errors count as
// no session so updates fall through to regular handlers.
func (e *Engine) InProgress(ctx context.Context, key Key) bool {
	st, err := e.Current(ctx, key)
	return err == nil && st != state.StateIdle
}

// Data returns a copy of the session data.
func (e *Engine) Data(ctx context.Context, key Key) (map[string]string, error) {
	sess, ok, err := e.store.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("conversation: load: %w", err)
	}
	if !ok {
		return nil, ErrNoSession
	}
	return sess.Data, nil
}

// Put stores one value in the session data without changing state.
func (e *Engine) Put(ctx context.Context, key Key, k, v string) error {
	unlock := e.locks.Lock(key)
	defer unlock()
	sess, ok, err := e.store.Load(ctx, key)
	if err != nil {
		return fmt.Errorf("conversation: load: %w", err)
	}
	if !ok {
		return ErrNoSession
	}
	sess.Data[k] = v
	if err := e.store.Save(ctx, key, sess); err != nil {
		return fmt.Errorf("conversation: save: %w", err)
	}
	return nil
}

// Cancel tears the session down. It reports whether one existed.
func (e *Engine) Cancel(ctx context.Context, key Key) (bool, error) {
	unlock := e.locks.Lock(key)
	defer unlock()
	_, ok, err := e.store.Load(ctx, key)
	if err != nil {
		return false, fmt.Errorf("conversation: load: %w", err)
	}
	if !ok {
		return false, nil
	}
	if err := e.store.Delete(ctx, key); err != nil {
		return false, fmt.Errorf("conversation: cancel: %w", err)
	}
	logger.Debug(ctx, logger.CompConversation, "session.cancelled")
	return true, nil
}
