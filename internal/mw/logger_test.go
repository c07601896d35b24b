package mw

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := gin.New()
	r.Use(Logger(zap.New(core)))
	r.GET("/machines", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	do(r, http.MethodGet, "/machines?page=2")
	do(r, http.MethodGet, "/boom")

	entries := logs.All()
	require.Len(t, entries, 2)

	first := entries[0].ContextMap()
	assert.Equal(t, "/machines", first["path"])
	assert.Equal(t, "page=2", first["query"])
	assert.EqualValues(t, http.StatusOK, first["status"])
	assert.Equal(t, zap.InfoLevel, entries[0].Level)

	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
}
