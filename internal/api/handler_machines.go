package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"mes-backend/internal/model"
	"mes-backend/internal/parse"
	"mes-backend/internal/store"
)

const (
	timestampLayout = "2006-01-02T15:04:05"
	dateLayout      = time.DateOnly
)

type machineResponse struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Category     string  `json:"category"`
	Group        string  `json:"group"`
	Manufacturer string  `json:"manufacturer"`
	CreatedAt    string  `json:"created_at"`
	LatestStatus *string `json:"latest_status"`
}

// ListMachines handles GET /machines.
func (h *Handler) ListMachines(c *gin.Context) {
	p := page(c)
	machines, total, err := h.store.ListMachines(c.Request.Context(), p)
	if err != nil {
		h.writeStoreError(c, err)
		return
	}

	items := make([]machineResponse, len(machines))
	for i, m := range machines {
		items[i] = machineResponse{
			ID:           m.ID,
			Name:         m.Name,
			Category:     m.Category,
			Group:        m.Group,
			Manufacturer: m.Manufacturer,
			CreatedAt:    m.CreatedAt.Format(timestampLayout),
			LatestStatus: m.LatestStatus,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"machines": items,
		"total":    total,
		"page":     p.Number,
		"pages":    store.Pages(total, p.Size),
	})
}

// GetMachine handles GET /machines/:id.
func (h *Handler) GetMachine(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	m, err := h.store.GetMachine(c.Request.Context(), id)
	if err != nil {
		h.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":           m.ID,
		"name":         m.Name,
		"category":     m.Category,
		"group":        m.Group,
		"manufacturer": m.Manufacturer,
		"created_at":   m.CreatedAt.Format(timestampLayout),
	})
}

type createMachineRequest struct {
	Name         string `json:"name" binding:"required"`
	Category     string `json:"category" binding:"required"`
	Group        string `json:"group" binding:"required"`
	Manufacturer string `json:"manufacturer" binding:"required"`
	CreatedAt    string `json:"created_at" binding:"required"`
}

// CreateMachine handles POST /machines.
func (h *Handler) CreateMachine(c *gin.Context) {
	var req createMachineRequest
	if !bindJSON(c, &req) {
		return
	}

	createdAt, err := parse.Time(req.CreatedAt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid created_at: " + err.Error()})
		return
	}

	m := model.Machine{
		Name:         req.Name,
		Category:     req.Category,
		Group:        req.Group,
		Manufacturer: req.Manufacturer,
		CreatedAt:    createdAt,
	}
	if err := h.store.CreateMachine(c.Request.Context(), &m); err != nil {
		h.writeStoreError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Machine added successfully!", "id": m.ID})
}

// DeleteMachine handles DELETE /machines/:id.
func (h *Handler) DeleteMachine(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteMachine(c.Request.Context(), id); err != nil {
		h.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Machine deleted successfully!"})
}

type assignToolRequest struct {
	ToolID int64 `json:"tool_id"`
}

// AssignTool handles PUT /machines/:id/tool.
func (h *Handler) AssignTool(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req assignToolRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ToolID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tool_id is required"})
		return
	}

	if err := h.store.AssignTool(c.Request.Context(), id, req.ToolID); err != nil {
		h.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Tool assigned to machine %d updated successfully.", id)})
}

// GetMachineTool handles GET /machines/:id/tool.
func (h *Handler) GetMachineTool(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	t, err := h.store.GetMachineTool(c.Request.Context(), id)
	if err != nil {
		h.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"machine_id": t.MachineID,
		"tool_id":    t.ToolID,
		"tool_name":  t.ToolName,
		"wear_level": t.WearLevel,
	})
}

type metricPoint struct {
	Timestamp string `json:"timestamp"`
	Value     any    `json:"value"`
}

// GetMachineMetric handles GET /machines/:id/dashboard/:metric. The optional
// days parameter keeps only the newest rows.
func (h *Handler) GetMachineMetric(c *gin.Context) {
	metric := c.Param("metric")
	if !model.IsMetricName(metric) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf(
			"Invalid parameter '%s'. Must be one of [%s].", metric, strings.Join(model.MetricNames, " "))})
		return
	}

	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var days *int
	if raw, present := c.GetQuery("days"); present {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid parameter 'days'. Must be a non-negative integer."})
			return
		}
		days = &n
	}

	limit := 0
	if days != nil {
		limit = *days
	}
	points, err := h.store.MetricSlice(c.Request.Context(), id, metric, limit)
	if err != nil {
		h.writeStoreError(c, err)
		return
	}

	data := make([]metricPoint, len(points))
	for i, p := range points {
		data[i] = metricPoint{Timestamp: p.Timestamp.Format(dateLayout), Value: p.Value}
	}

	c.JSON(http.StatusOK, gin.H{
		"machine_id":     id,
		"metric":         metric,
		"days_requested": days,
		"data":           data,
	})
}
