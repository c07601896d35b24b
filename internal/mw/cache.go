package mw

import (
	"bytes"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mes-backend/internal/cache"
)

type bodyCacheWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyCacheWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w bodyCacheWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Cache serves repeated GET requests from store. A successful request with
// any other method flushes the store so later reads see the write.
//
// A GET that was in flight while a flush happened may have read data from
// before the write, so its response is not stored.
func Cache(store cache.Cache, ttl time.Duration, log *zap.Logger) gin.HandlerFunc {
	var (
		mu  sync.RWMutex
		gen uint64 // bumped on every flush
	)
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if c.Request.Method != http.MethodGet {
			c.Next()
			if isSuccess(c.Writer.Status()) {
				mu.Lock()
				gen++
				err := store.Flush(ctx)
				mu.Unlock()
				if err != nil {
					log.Warn("failed to flush response cache", zap.Error(err))
				}
			}
			return
		}

		key := c.Request.RequestURI
		cached, found, err := store.Get(ctx, key)
		if err != nil {
			log.Warn("response cache lookup failed", zap.String("key", key), zap.Error(err))
		}
		if found {
			for k, v := range cached.Header {
				c.Writer.Header()[k] = v
			}
			c.Writer.Header().Set("X-Cache", "HIT")
			c.Writer.WriteHeader(cached.Status)
			c.Writer.Write(cached.Body)
			c.Abort()
			return
		}

		blw := &bodyCacheWriter{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = blw

		mu.RLock()
		started := gen
		mu.RUnlock()

		c.Next()

		// Only cache successful responses
		if !isSuccess(blw.Status()) {
			return
		}
		entry := &cache.Entry{
			Status: blw.Status(),
			Header: blw.Header().Clone(),
			Body:   blw.body.Bytes(),
		}
		mu.RLock()
		defer mu.RUnlock()
		if gen != started {
			log.Debug("skipping cache store after concurrent flush", zap.String("key", key))
			return
		}
		if err := store.Set(ctx, key, entry, ttl); err != nil {
			log.Warn("failed to store cached response", zap.String("key", key), zap.Error(err))
		}
	}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
