package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"plant-monitor-backend/internal/credential"
	"plant-monitor-backend/internal/device"
	"plant-monitor-backend/internal/model"
	"plant-monitor-backend/internal/parse"
	"plant-monitor-backend/internal/provisioning"
	"plant-monitor-backend/internal/queue"
	"plant-monitor-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store        store.Store
	creds        *credential.Service
	provisioning *provisioning.Service
	queue        *queue.Service
	devices      *device.Service
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, creds *credential.Service, prov *provisioning.Service, q *queue.Service, devices *device.Service) *Handler {
	return &Handler{
		store:        s,
		creds:        creds,
		provisioning: prov,
		queue:        q,
		devices:      devices,
	}
}

// deviceByParam resolves the :deviceId route parameter to a stored device.
func (h *Handler) deviceByParam(c *gin.Context) (*model.Device, error) {
	externalID, err := parse.DeviceID(c.Param("deviceId"))
	if err != nil {
		return nil, err
	}
	return h.store.GetDeviceByExternalID(c.Request.Context(), externalID)
}

// Health reports whether the database is reachable.
func (h *Handler) Health(c *gin.Context) {
	sqlDB, err := h.store.DB().DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
