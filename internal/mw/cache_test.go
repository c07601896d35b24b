package mw

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mes-backend/internal/cache"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupCacheRouter(store cache.Cache, hits *int) *gin.Engine {
	r := gin.New()
	r.Use(Cache(store, time.Minute, zap.NewNop()))
	r.GET("/machines", func(c *gin.Context) {
		*hits++
		c.JSON(http.StatusOK, gin.H{"calls": *hits})
	})
	r.GET("/missing", func(c *gin.Context) {
		*hits++
		c.JSON(http.StatusNotFound, gin.H{"error": "nope"})
	})
	r.POST("/machines", func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})
	r.POST("/invalid", func(c *gin.Context) {
		c.Status(http.StatusBadRequest)
	})
	return r
}

func do(r http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestCache(t *testing.T) {
	var hits int
	r := setupCacheRouter(cache.NewMemory(time.Minute), &hits)

	w := do(r, http.MethodGet, "/machines")
	assert.JSONEq(t, `{"calls":1}`, w.Body.String())
	assert.Empty(t, w.Header().Get("X-Cache"))

	w = do(r, http.MethodGet, "/machines")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"calls":1}`, w.Body.String())
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, 1, hits)

	// A different query string is a different key.
	do(r, http.MethodGet, "/machines?page=2")
	assert.Equal(t, 2, hits)

	t.Run("failed write keeps entries", func(t *testing.T) {
		do(r, http.MethodPost, "/invalid")
		w := do(r, http.MethodGet, "/machines")
		assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	})

	t.Run("successful write flushes", func(t *testing.T) {
		do(r, http.MethodPost, "/machines")
		w := do(r, http.MethodGet, "/machines")
		assert.JSONEq(t, `{"calls":3}`, w.Body.String())
	})

	t.Run("errors are not cached", func(t *testing.T) {
		before := hits
		do(r, http.MethodGet, "/missing")
		do(r, http.MethodGet, "/missing")
		assert.Equal(t, before+2, hits)
	})
}

type failingCache struct{}

func (failingCache) Get(context.Context, string) (*cache.Entry, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (failingCache) Set(context.Context, string, *cache.Entry, time.Duration) error {
	return errors.New("connection refused")
}

func (failingCache) Flush(context.Context) error {
	return errors.New("connection refused")
}

func TestCache_BackendErrorsFallThrough(t *testing.T) {
	var hits int
	r := setupCacheRouter(failingCache{}, &hits)

	require.Equal(t, http.StatusOK, do(r, http.MethodGet, "/machines").Code)
	require.Equal(t, http.StatusOK, do(r, http.MethodGet, "/machines").Code)
	assert.Equal(t, 2, hits)
	assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/machines").Code)
}

func TestCache_WriteDuringReadIsNotCached(t *testing.T) {
	var hits int
	r := gin.New()
	r.Use(Cache(cache.NewMemory(time.Minute), time.Minute, zap.NewNop()))
	r.POST("/machines", func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})
	r.GET("/machines", func(c *gin.Context) {
		hits++
		if hits == 1 {
			// A write commits and flushes while this read is still running.
			require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/machines").Code)
		}
		c.JSON(http.StatusOK, gin.H{"calls": hits})
	})

	w := do(r, http.MethodGet, "/machines")
	assert.JSONEq(t, `{"calls":1}`, w.Body.String())

	w = do(r, http.MethodGet, "/machines")
	assert.Empty(t, w.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"calls":2}`, w.Body.String())

	w = do(r, http.MethodGet, "/machines")
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.Equal(t, 2, hits)
}
