package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/apperr"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram/state"
)

const (
	stColor state.State = "demo.color"
	stSize  state.State = "demo.size"
)

func demoFlow() Flow {
	return Flow{Name: "demo", Steps: map[state.State]Step{
		stColor: func(_ context.Context, _ map[string]string, in Input) (Transition, error) {
			switch in.Text {
			case "red", "blue":
				return Transition{Next: stSize, Put: map[string]string{"color": in.Text}}, nil
			case "boom":
				return Transition{}, errors.New("storage down")
			}
			return Transition{}, apperr.Validation("pick red or blue")
		},
		stSize: func(_ context.Context, data map[string]string, in Input) (Transition, error) {
			if in.Action != "size_s" && in.Action != "size_l" {
				return Transition{}, apperr.Validation("tap a size")
			}
			return Transition{Put: map[string]string{"size": strings.TrimPrefix(in.Action, "size_")}, Effect: "order"}, nil
		},
	}}
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(state.NewMemoryStore(state.MemoryOptions{}), Options{})
	require.NoError(t, e.Register(demoFlow()))
	return e
}

var key = Key{UserID: 1, ChatID: 1}

func TestAdvanceHappyPathEmitsEffect(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	require.NoError(t, e.Begin(ctx, key, stColor, map[string]string{"owner": "1"}))

	res, err := e.Advance(ctx, key, Input{Text: "red"})
	require.NoError(t, err)
	assert.Equal(t, stSize, res.Next)
	assert.Nil(t, res.Effect)

	res, err = e.Advance(ctx, key, Input{Action: "size_l"})
	require.NoError(t, err)
	assert.True(t, res.Done())
	require.NotNil(t, res.Effect)
	assert.Equal(t, "order", res.Effect.Name)
	assert.Equal(t, map[string]string{"owner": "1", "color": "red", "size": "l"}, res.Effect.Data)
	assert.False(t, e.InProgress(ctx, key))
}

func TestAdvanceInvalidInputKeepsState(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	require.NoError(t, e.Begin(ctx, key, stColor, nil))

	for _, bad := range []string{"", "green", "RED"} {
		res, err := e.Advance(ctx, key, Input{Text: bad})
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.KindValidation))
		assert.Equal(t, stColor, res.Next)
		cur, _ := e.Current(ctx, key)
		assert.Equal(t, stColor, cur)
	}
	data, err := e.Data(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestAdvanceNonValidationErrorTearsDown(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	require.NoError(t, e.Begin(ctx, key, stColor, nil))

	res, err := e.Advance(ctx, key, Input{Text: "boom"})
	require.Error(t, err)
	assert.True(t, res.Done())
	assert.False(t, e.InProgress(ctx, key))
}

func TestCancelKeywordAndExplicitCancel(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Begin(ctx, key, stColor, nil))
	res, err := e.Advance(ctx, key, Input{Text: " Cancel "})
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.False(t, e.InProgress(ctx, key))

	require.NoError(t, e.Begin(ctx, key, stColor, nil))
	ok, err := e.Cancel(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = e.Cancel(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAdvanceWithoutSession(t *testing.T) {
	e := newEngine(t)
	_, err := e.Advance(context.Background(), key, Input{Text: "red"})
	assert.ErrorIs(t, err, ErrNoSession)
	assert.ErrorIs(t, e.Put(context.Background(), key, "a", "b"), ErrNoSession)
}

func TestPutAndData(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	require.NoError(t, e.Begin(ctx, key, stColor, nil))
	require.NoError(t, e.Put(ctx, key, "hint", "x"))
	data, err := e.Data(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "x", data["hint"])
}

func TestSessionsAreIndependentPerChat(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	other := Key{UserID: 1, ChatID: 2}
	require.NoError(t, e.Begin(ctx, key, stColor, nil))
	assert.False(t, e.InProgress(ctx, other))
}

func TestRegisterRejectsDuplicateStates(t *testing.T) {
	e := newEngine(t)
	dup := demoFlow()
	dup.Name = "copy"
	assert.Error(t, e.Register(dup))
}

func TestConcurrentAdvanceCompletesOnce(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	require.NoError(t, e.Begin(ctx, key, stColor, nil))
	_, err := e.Advance(ctx, key, Input{Text: "blue"})
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		effects int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.Advance(ctx, key, Input{Action: "size_s"})
			if err == nil && res.Effect != nil {
				mu.Lock()
				effects++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, effects)
}
