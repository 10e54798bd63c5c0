package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"plant-monitor-backend/internal/auth"
	"plant-monitor-backend/internal/model"
	"plant-monitor-backend/internal/parse"
	"plant-monitor-backend/internal/queue"
)

type provisionRequest struct {
	DeviceID string `json:"deviceId" binding:"required"`
}

type batchProvisionRequest struct {
	DeviceIDs []string `json:"deviceIds" binding:"required,min=1,max=100"`
}

type enqueueRequest struct {
	Type       model.CommandType `json:"type" binding:"required"`
	Parameters json.RawMessage   `json:"parameters"`
	Priority   int               `json:"priority"`
}

type wateringRequest struct {
	DurationSeconds int `json:"durationSeconds" binding:"min=0,max=3600"`
}

type issueTokenRequest struct {
	Label          string `json:"label" binding:"max=100"`
	ExpiresInHours int    `json:"expiresInHours" binding:"min=0,max=87600"`
}

type revokeTokenRequest struct {
	TokenHash string `json:"tokenHash" binding:"required"`
}

// operator names the caller admitted by the operator gate, for audit lines.
func operator(ctx context.Context) string {
	return fmt.Sprintf("operator %q (%s)", auth.SubjectFromContext(ctx), auth.RoleFromContext(ctx))
}

// ProvisionDevice handles POST /api/admin/provisioning/devices.
func (h *Handler) ProvisionDevice(c *gin.Context) {
	var req provisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	res, err := h.provisioning.ProvisionDevice(c.Request.Context(), req.DeviceID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ProvisionBatch handles POST /api/admin/provisioning/devices/batch.
func (h *Handler) ProvisionBatch(c *gin.Context) {
	var req batchProvisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	c.JSON(http.StatusOK, h.provisioning.ProvisionBatch(c.Request.Context(), req.DeviceIDs))
}

// EnqueueCommand handles POST /api/admin/devices/:deviceId/commands.
func (h *Handler) EnqueueCommand(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	ctx := c.Request.Context()
	device, err := h.deviceByParam(c)
	if err != nil {
		writeError(c, err)
		return
	}

	cmd, err := h.queue.Enqueue(ctx, device.ID, req.Type, req.Parameters, req.Priority)
	if err != nil {
		writeError(c, err)
		return
	}
	log.Printf("%s queued %s command %d for %s", operator(ctx), cmd.Type, cmd.ID, device.ExternalID)
	c.JSON(http.StatusCreated, cmd)
}

// ManualWatering handles POST /api/admin/devices/:deviceId/watering.
func (h *Handler) ManualWatering(c *gin.Context) {
	var req wateringRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}
	ctx := c.Request.Context()
	device, err := h.deviceByParam(c)
	if err != nil {
		writeError(c, err)
		return
	}

	cmd, err := h.queue.ManualWatering(ctx, device.ID, req.DurationSeconds)
	if err != nil {
		writeError(c, err)
		return
	}
	log.Printf("%s queued manual watering %d for %s", operator(ctx), cmd.ID, device.ExternalID)
	c.JSON(http.StatusCreated, cmd)
}

// CommandHistory handles GET /api/admin/devices/:deviceId/commands.
func (h *Handler) CommandHistory(c *gin.Context) {
	limit, err := parse.Limit(c.Query("limit"), 0, queue.MaxHistoryLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	ctx := c.Request.Context()
	device, err := h.deviceByParam(c)
	if err != nil {
		writeError(c, err)
		return
	}

	cmds, err := h.queue.History(ctx, device.ID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cmds)
}

// IssueToken handles POST /api/admin/devices/:deviceId/tokens.
func (h *Handler) IssueToken(c *gin.Context) {
	var req issueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	ctx := c.Request.Context()
	device, err := h.deviceByParam(c)
	if err != nil {
		writeError(c, err)
		return
	}

	var expiresAt *time.Time
	if req.ExpiresInHours > 0 {
		t := time.Now().UTC().Add(time.Duration(req.ExpiresInHours) * time.Hour)
		expiresAt = &t
	}
	raw, err := h.creds.Issue(ctx, device.ID, req.Label, expiresAt)
	if err != nil {
		writeError(c, err)
		return
	}
	log.Printf("%s issued a credential for %s", operator(ctx), device.ExternalID)
	c.JSON(http.StatusCreated, gin.H{"token": raw, "expiresAt": expiresAt})
}

// ListTokens handles GET /api/admin/devices/:deviceId/tokens.
func (h *Handler) ListTokens(c *gin.Context) {
	ctx := c.Request.Context()
	device, err := h.deviceByParam(c)
	if err != nil {
		writeError(c, err)
		return
	}
	tokens, err := h.creds.List(ctx, device.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokens)
}

// RevokeToken handles POST /api/admin/tokens/revoke.
func (h *Handler) RevokeToken(c *gin.Context) {
	var req revokeTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	ctx := c.Request.Context()
	if err := h.creds.Revoke(ctx, req.TokenHash); err != nil {
		writeError(c, err)
		return
	}
	log.Printf("%s revoked a credential", operator(ctx))
	c.Status(http.StatusNoContent)
}
