package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mes-backend/internal/store"
)

type toolMetricResponse struct {
	Status          string `json:"status"`
	StorageLocation string `json:"storage_location"`
	WearLevel       int    `json:"wear_level"`
}

type toolResponse struct {
	ID        int64                `json:"id"`
	Name      string               `json:"name"`
	Type      string               `json:"type"`
	CreatedAt string               `json:"created_at"`
	Metrics   []toolMetricResponse `json:"metrics"`
}

// ListTools handles GET /tools.
func (h *Handler) ListTools(c *gin.Context) {
	p := page(c)
	tools, total, err := h.store.ListTools(c.Request.Context(), p)
	if err != nil {
		h.writeStoreError(c, err)
		return
	}

	items := make([]toolResponse, len(tools))
	for i, t := range tools {
		metrics := make([]toolMetricResponse, len(t.Metrics))
		for j, m := range t.Metrics {
			metrics[j] = toolMetricResponse{
				Status:          m.Status,
				StorageLocation: m.StorageLocation,
				WearLevel:       m.WearLevel,
			}
		}
		items[i] = toolResponse{
			ID:        t.ID,
			Name:      t.Name,
			Type:      t.Type,
			CreatedAt: t.CreatedAt.Format(dateLayout),
			Metrics:   metrics,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"tools": items,
		"total": total,
		"page":  p.Number,
		"pages": store.Pages(total, p.Size),
	})
}
