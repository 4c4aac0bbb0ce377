package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedis(t *testing.T) {
	s := miniredis.RunT(t)

	for name, cfg := range map[string]Config{
		"addr": {Addr: s.Addr()},
		"url":  {URL: "redis://" + s.Addr() + "/0"},
	} {
		t.Run(name, func(t *testing.T) {
			require.True(t, cfg.Enabled())
			client, err := NewRedis(cfg)
			require.NoError(t, err)
			defer client.Close()
			assert.NoError(t, client.Ping(context.Background()).Err())
		})
	}
}

func TestNewRedisRejectsBadURL(t *testing.T) {
	_, err := NewRedis(Config{URL: "http://not-redis"})
	assert.Error(t, err)
	assert.False(t, Config{}.Enabled())
}
