package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends returns every Cache implementation under the same contract
func backends(t *testing.T) map[string]Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	redisCache, err := NewRedis(context.Background(), mr.Addr(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisCache.Close() })

	return map[string]Cache{
		"memory": NewMemory(),
		"redis":  redisCache,
	}
}

func TestCache_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := c.Get(ctx, "absent")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
			data, ok, err := c.Get(ctx, "k")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, []byte("v"), data)

			require.NoError(t, c.Delete(ctx, "k"))
			_, ok, err = c.Get(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestCache_ValueIsCopied(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	buf := []byte("original")
	require.NoError(t, c.Set(ctx, "k", buf, time.Minute))
	buf[0] = 'X'

	data, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("original"), data)
}

func TestRedis_ExpiredKeyIsMiss(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	c, err := NewRedis(ctx, mr.Addr(), zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Second))
	mr.FastForward(2 * time.Second)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRedis_UnreachableServer(t *testing.T) {
	_, err := NewRedis(context.Background(), "127.0.0.1:1", zerolog.Nop())
	assert.Error(t, err)
}

func TestGetSetJSON(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	var out payload
	assert.False(t, GetJSON(ctx, c, "absent", &out))

	require.NoError(t, SetJSON(ctx, c, "k", payload{Name: "route", Count: 3}, time.Minute))
	require.True(t, GetJSON(ctx, c, "k", &out))
	assert.Equal(t, payload{Name: "route", Count: 3}, out)

	// Corrupt payloads read as misses
	require.NoError(t, c.Set(ctx, "bad", []byte("{not json"), time.Minute))
	assert.False(t, GetJSON(ctx, c, "bad", &out))
}

func TestMemoKey_StableAndDistinct(t *testing.T) {
	a := MemoKey("forecast", 7, "mumbai")
	b := MemoKey("forecast", 7, "mumbai")
	c := MemoKey("forecast", 14, "mumbai")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "cache:forecast:")
}

func TestVolumeForecastKey(t *testing.T) {
	assert.Equal(t, "volume_forecast:7_days", VolumeForecastKey(7))
}
