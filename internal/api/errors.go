package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"plant-monitor-backend/internal/credential"
	"plant-monitor-backend/internal/mw"
	"plant-monitor-backend/internal/parse"
	"plant-monitor-backend/internal/provisioning"
	"plant-monitor-backend/internal/queue"
	"plant-monitor-backend/internal/store"
)

// writeError maps service errors to a status code and a short message.
// Unexpected errors are logged and reported as 500 without detail.
func writeError(c *gin.Context, err error) {
	status, msg := http.StatusInternalServerError, "internal server error"
	switch {
	case errors.Is(err, store.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, credential.ErrInvalidCredential):
		status, msg = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, provisioning.ErrAlreadyProvisioned):
		status, msg = http.StatusConflict, provisioning.ErrAlreadyProvisioned.Error()
	case errors.Is(err, store.ErrDuplicate):
		status, msg = http.StatusConflict, "conflict"
	case errors.Is(err, queue.ErrDeviceOffline):
		status, msg = http.StatusConflict, queue.ErrDeviceOffline.Error()
	case errors.Is(err, parse.ErrInvalidDeviceID):
		status, msg = http.StatusBadRequest, parse.ErrInvalidDeviceID.Error()
	case errors.Is(err, queue.ErrInvalidCommandType),
		errors.Is(err, queue.ErrInvalidPriority),
		errors.Is(err, queue.ErrInvalidParameters):
		status, msg = http.StatusBadRequest, err.Error()
	default:
		log.Printf("[%s] %s %s failed: %v", c.GetString(mw.RequestIDKey), c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": msg})
}
