package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"plant-monitor-backend/internal/model"
	"plant-monitor-backend/internal/mw"
	"plant-monitor-backend/internal/parse"
	"plant-monitor-backend/internal/queue"
)

// commandView is what a device sees of a delivered command.
type commandView struct {
	ID         int64             `json:"id"`
	Type       model.CommandType `json:"type"`
	Parameters json.RawMessage   `json:"parameters"`
	Priority   int               `json:"priority"`
	CreatedAt  time.Time         `json:"createdAt"`
	ExpiresAt  time.Time         `json:"expiresAt"`
}

func toCommandViews(cmds []model.DeviceCommand) []commandView {
	views := make([]commandView, 0, len(cmds))
	for _, cmd := range cmds {
		views = append(views, commandView{
			ID:         cmd.ID,
			Type:       cmd.Type,
			Parameters: json.RawMessage(cmd.Parameters),
			Priority:   cmd.Priority,
			CreatedAt:  cmd.CreatedAt,
			ExpiresAt:  cmd.ExpiresAt,
		})
	}
	return views
}

type ackRequest struct {
	CommandID    int64   `json:"commandId" binding:"required"`
	Success      *bool   `json:"success" binding:"required"`
	Result       *string `json:"result"`
	ErrorMessage *string `json:"errorMessage"`
}

// PollCommands handles GET /api/v1/devices/:deviceId/commands.
func (h *Handler) PollCommands(c *gin.Context) {
	device, ok := mw.CurrentDevice(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	limit, err := parse.Limit(c.Query("limit"), 0, queue.MaxPollLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	cmds, err := h.queue.PollPending(c.Request.Context(), device.ID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCommandViews(cmds))
}

// AcknowledgeCommand handles POST /api/v1/devices/:deviceId/commands/ack.
func (h *Handler) AcknowledgeCommand(c *gin.Context) {
	device, ok := mw.CurrentDevice(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var req ackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	found, err := h.queue.Acknowledge(c.Request.Context(), device.ID, queue.Ack{
		CommandID:    req.CommandID,
		Success:      *req.Success,
		Result:       req.Result,
		ErrorMessage: req.ErrorMessage,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "command not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true})
}

// Heartbeat handles POST /api/v1/devices/:deviceId/heartbeat.
func (h *Handler) Heartbeat(c *gin.Context) {
	device, ok := mw.CurrentDevice(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	seen, err := h.devices.Heartbeat(c.Request.Context(), device.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "lastSeenAt": seen})
}

// GetConfig handles GET /api/v1/devices/:deviceId/config.
func (h *Handler) GetConfig(c *gin.Context) {
	device, ok := mw.CurrentDevice(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	cfg, err := h.devices.Config(c.Request.Context(), device.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}
