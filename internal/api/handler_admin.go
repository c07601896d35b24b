package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ImportCSV handles POST /import-csv: a destructive reload of every table.
func (h *Handler) ImportCSV(c *gin.Context) {
	if h.importer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "csv import is not configured"})
		return
	}

	res, err := h.importer.Run(c.Request.Context())
	if err != nil {
		h.log.Error("csv import failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Database reset and populated successfully",
		"counts":  res,
	})
}

// Healthz reports whether the database answers.
func (h *Handler) Healthz(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
