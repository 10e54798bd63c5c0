package mw

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"plant-monitor-backend/internal/auth"
	"plant-monitor-backend/internal/metrics"
	"plant-monitor-backend/internal/model"
	"plant-monitor-backend/internal/parse"
)

const (
	// DeviceIDHeader carries the external id a device claims to be.
	DeviceIDHeader = "X-Device-ID"

	deviceKey = "device"
)

// DeviceAuthenticator verifies a device secret for an external id.
type DeviceAuthenticator interface {
	Authenticate(ctx context.Context, raw, externalID string) (*model.Device, error)
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// DeviceAuth admits requests carrying a valid device secret. Rejections never
// say which part of the credential was wrong.
func DeviceAuth(authn DeviceAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		secret, ok := parse.BearerToken(c.GetHeader("Authorization"))
		externalID := c.GetHeader(DeviceIDHeader)
		if !ok || externalID == "" {
			metrics.IncAuthFailure()
			unauthorized(c)
			return
		}

		device, err := authn.Authenticate(c.Request.Context(), secret, externalID)
		if err != nil {
			metrics.IncAuthFailure()
			unauthorized(c)
			return
		}

		c.Set(deviceKey, device)
		c.Request = c.Request.WithContext(auth.WithDevice(c.Request.Context(), device))
		c.Next()
	}
}

// CurrentDevice returns the device admitted by DeviceAuth.
func CurrentDevice(c *gin.Context) (*model.Device, bool) {
	v, ok := c.Get(deviceKey)
	if !ok {
		return nil, false
	}
	device, ok := v.(*model.Device)
	return device, ok
}

// RequireSelf rejects requests whose route device id differs from the
// authenticated device.
func RequireSelf(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		device, ok := CurrentDevice(c)
		if !ok {
			unauthorized(c)
			return
		}
		if c.Param(param) != device.ExternalID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// OperatorAuth admits requests with a valid operator JWT holding one of roles.
func OperatorAuth(secret []byte, roles ...auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := parse.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			unauthorized(c)
			return
		}
		claims, err := auth.ParseJWT(token, secret)
		if err != nil {
			unauthorized(c)
			return
		}
		role := auth.Role(claims.Role)
		if !auth.Allowed(role, roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		c.Request = c.Request.WithContext(auth.WithOperator(c.Request.Context(), claims.Subject, role))
		c.Next()
	}
}
