package mw

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"plant-monitor-backend/internal/auth"
)

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(c *gin.Context) string

// ByClientIP buckets requests by client address.
func ByClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// ByDevice buckets authenticated device requests by device, falling back to
// the client address before the gate has run.
func ByDevice(c *gin.Context) string {
	if device, ok := auth.DeviceFromContext(c.Request.Context()); ok {
		return "device:" + device.ExternalID
	}
	return c.ClientIP()
}

// KeyedRateLimiter stores a rate limiter per key. Idle limiters are evicted.
type KeyedRateLimiter struct {
	limiters *cache.Cache
	mu       sync.Mutex
	r        rate.Limit
	b        int
}

// NewKeyedRateLimiter creates a new KeyedRateLimiter.
func NewKeyedRateLimiter(r rate.Limit, b int) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		limiters: cache.New(10*time.Minute, 20*time.Minute),
		r:        r,
		b:        b,
	}
}

// GetLimiter returns the rate limiter for a key, creating it on first use.
func (k *KeyedRateLimiter) GetLimiter(key string) *rate.Limiter {
	if v, found := k.limiters.Get(key); found {
		return v.(*rate.Limiter)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if v, found := k.limiters.Get(key); found {
		return v.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(k.r, k.b)
	k.limiters.SetDefault(key, limiter)
	return limiter
}

// RateLimiter is a middleware for keyed rate limiting.
func RateLimiter(r rate.Limit, b int, key KeyFunc) gin.HandlerFunc {
	limiter := NewKeyedRateLimiter(r, b)
	if key == nil {
		key = ByClientIP
	}
	return func(c *gin.Context) {
		if !limiter.GetLimiter(key(c)).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
