// Package cache stores rendered HTTP responses for the GET cache middleware.
package cache

import (
	"context"
	"net/http"
	"time"
)

// Entry is one cached response.
type Entry struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

// Cache is a response store shared by all routes.
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Set(ctx context.Context, key string, e *Entry, ttl time.Duration) error
	// Flush drops every entry.
	Flush(ctx context.Context) error
}
