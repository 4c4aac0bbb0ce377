package state

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gaugeStub struct{ n int }

func (g *gaugeStub) SessionStarted() { g.n++ }
func (g *gaugeStub) SessionEnded()   { g.n-- }

func storeContract(t *testing.T, store Store) {
	ctx := context.Background()
	key := Key{UserID: 1, ChatID: 10}

	_, ok, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save(ctx, key, &Session{State: "level", Data: map[string]string{"level_id": "2"}}))
	got, ok, err := store.Load(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, State("level"), got.State)
	assert.Equal(t, "2", got.Data["level_id"])

	got.Data["level_id"] = "mutated"
	again, _, _ := store.Load(ctx, key)
	assert.Equal(t, "2", again.Data["level_id"])

	_, ok, _ = store.Load(ctx, Key{UserID: 1, ChatID: 11})
	assert.False(t, ok, "sessions are per chat")

	require.NoError(t, store.Delete(ctx, key))
	_, ok, _ = store.Load(ctx, key)
	assert.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	g := &gaugeStub{}
	storeContract(t, NewMemoryStore(MemoryOptions{Gauge: g}))
	assert.Equal(t, 0, g.n)
}

func TestMemoryStoreTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	g := &gaugeStub{}
	store := NewMemoryStore(MemoryOptions{TTL: time.Minute, Gauge: g, Now: func() time.Time { return now }})
	key := Key{UserID: 5, ChatID: 5}

	require.NoError(t, store.Save(context.Background(), key, &Session{State: "waiting_for_name"}))
	assert.Equal(t, 1, g.n)

	now = now.Add(2 * time.Minute)
	_, ok, err := store.Load(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, g.n)
}

func TestRedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	storeContract(t, NewRedisStore(client, "drs:", 0))

	store := NewRedisStore(client, "drs:", time.Minute)
	key := Key{UserID: 2, ChatID: 3}
	require.NoError(t, store.Save(context.Background(), key, &Session{State: "division"}))
	assert.True(t, s.Exists("drs:session:2:3"))

	s.FastForward(2 * time.Minute)
	_, ok, err := store.Load(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	var km KeyedMutex
	key := Key{UserID: 1, ChatID: 1}
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock(key)
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, km.locks)
}
