package cache

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mes-backend/config"
)

func newRedisCache(t *testing.T) (*Redis, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb, err := NewRedisClient(context.Background(), &config.RedisConfig{Addr: mr.Addr(), PoolSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })
	return NewRedis(rdb), mr
}

func testBackend(t *testing.T, c Cache) {
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "/machines")
	require.NoError(t, err)
	assert.False(t, ok)

	entry := &Entry{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"application/json; charset=utf-8"}},
		Body:   []byte(`{"machines":[]}`),
	}
	require.NoError(t, c.Set(ctx, "/machines", entry, time.Minute))
	require.NoError(t, c.Set(ctx, "/tools?page=2", entry, time.Minute))

	got, ok, err := c.Get(ctx, "/machines")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry, got)

	require.NoError(t, c.Flush(ctx))
	_, ok, err = c.Get(ctx, "/tools?page=2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory(t *testing.T) {
	testBackend(t, NewMemory(time.Minute))
}

func TestRedis(t *testing.T) {
	c, _ := newRedisCache(t)
	testBackend(t, c)
}

func TestRedis_TTL(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t)

	require.NoError(t, c.Set(ctx, "/users", &Entry{Status: http.StatusOK}, 30*time.Second))
	assert.Equal(t, 30*time.Second, mr.TTL(KeyPrefix+"/users"))

	mr.FastForward(31 * time.Second)
	_, ok, err := c.Get(ctx, "/users")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_FlushKeepsForeignKeys(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t)

	require.NoError(t, mr.Set("session:42", "keep"))
	for i := 0; i < 250; i++ {
		require.NoError(t, c.Set(ctx, "/machines?page="+strconv.Itoa(i), &Entry{Status: 200}, time.Minute))
	}

	require.NoError(t, c.Flush(ctx))
	assert.True(t, mr.Exists("session:42"))
	assert.Len(t, mr.Keys(), 1)
}

func TestRedis_CorruptEntry(t *testing.T) {
	c, mr := newRedisCache(t)
	require.NoError(t, mr.Set(KeyPrefix+"/bad", "not json"))

	_, ok, err := c.Get(context.Background(), "/bad")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	_, err := NewRedisClient(context.Background(), &config.RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
