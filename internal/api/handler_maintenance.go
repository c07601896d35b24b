package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mes-backend/internal/model"
	"mes-backend/internal/notification"
	"mes-backend/internal/parse"
)

type maintenanceResponse struct {
	ID          int64  `json:"id"`
	MachineID   int64  `json:"machine_id"`
	PerformedBy string `json:"performed_by"`
	Date        string `json:"date"`
	Notes       string `json:"notes"`
	Planned     bool   `json:"planned"`
}

// GetMachineMaintenance handles GET /machines/:id/maintenance.
func (h *Handler) GetMachineMaintenance(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	entries, err := h.store.ListMaintenance(c.Request.Context(), id)
	if err != nil {
		h.writeStoreError(c, err)
		return
	}

	logs := make([]maintenanceResponse, len(entries))
	for i, e := range entries {
		logs[i] = maintenanceResponse{
			ID:          e.ID,
			MachineID:   e.MachineID,
			PerformedBy: e.PerformedBy,
			Date:        e.Date.Format(dateLayout),
			Notes:       e.Notes,
			Planned:     e.Planned,
		}
	}
	c.JSON(http.StatusOK, gin.H{"machine_id": id, "maintenance_logs": logs})
}

type createMaintenanceRequest struct {
	MachineID   int64   `json:"machine_id" binding:"required"`
	PerformedBy string  `json:"performed_by" binding:"required"`
	Notes       *string `json:"notes" binding:"required"`
	Date        string  `json:"date" binding:"required"`
	Planned     *bool   `json:"planned" binding:"required"`
}

// CreateMaintenance handles POST /maintenance. performed_by is a username.
func (h *Handler) CreateMaintenance(c *gin.Context) {
	var req createMaintenanceRequest
	if !bindJSON(c, &req) {
		return
	}

	date, err := parse.Time(req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	user, err := h.store.GetUserByUsername(ctx, req.PerformedBy)
	if err != nil {
		h.writeStoreError(c, err)
		return
	}

	entry := model.MaintenanceLog{
		MachineID:   req.MachineID,
		PerformedBy: user.ID,
		Date:        date,
		Notes:       *req.Notes,
		Planned:     *req.Planned,
	}
	if err := h.store.CreateMaintenance(ctx, &entry); err != nil {
		h.writeStoreError(c, err)
		return
	}

	if h.notifier != nil {
		if !h.notifier.Dispatch(notification.Alert{MachineID: entry.MachineID, Notes: entry.Notes}) {
			h.log.Warn("maintenance alert dropped", zap.Int64("maintenance_id", entry.ID))
		}
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Maintenance log added successfully!", "id": entry.ID})
}
