package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"plant-monitor-backend/config"
	"plant-monitor-backend/internal/auth"
	"plant-monitor-backend/internal/metrics"
	"plant-monitor-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.Config, handler *Handler) *gin.Engine {
	r := gin.Default()
	r.Use(mw.RequestID())

	metrics.Init()
	r.GET("/healthz", handler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Device config is cached per device; entries outlive a few polls at most.
	cacheTTL := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL, mw.ByDevice)

	// Device API: secret + X-Device-ID, and only for the device's own routes.
	devices := r.Group("/api/v1/devices/:deviceId")
	devices.Use(
		mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst, mw.ByClientIP),
		mw.DeviceAuth(handler.provisioning),
		mw.RequireSelf("deviceId"),
	)
	{
		devices.GET("/commands", handler.PollCommands)
		devices.POST("/commands/ack", handler.AcknowledgeCommand)
		devices.POST("/heartbeat", handler.Heartbeat)
		devices.GET("/config", caching, handler.GetConfig)
	}

	secret := []byte(cfg.Auth.JWTSecret)
	admin := r.Group("/api/admin")
	{
		provisioners := mw.OperatorAuth(secret, auth.RoleAdmin, auth.RoleManufacturer)
		admin.POST("/provisioning/devices", provisioners, handler.ProvisionDevice)
		admin.POST("/provisioning/devices/batch", provisioners, handler.ProvisionBatch)

		operators := mw.OperatorAuth(secret, auth.RoleAdmin, auth.RoleOperator)
		admin.POST("/devices/:deviceId/commands", operators, handler.EnqueueCommand)
		admin.GET("/devices/:deviceId/commands", operators, handler.CommandHistory)
		admin.POST("/devices/:deviceId/watering", operators, handler.ManualWatering)

		admins := mw.OperatorAuth(secret, auth.RoleAdmin)
		admin.POST("/devices/:deviceId/tokens", admins, handler.IssueToken)
		admin.GET("/devices/:deviceId/tokens", admins, handler.ListTokens)
		admin.POST("/tokens/revoke", admins, handler.RevokeToken)
	}

	return r
}
