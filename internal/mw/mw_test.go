package mw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"plant-monitor-backend/internal/auth"
	"plant-monitor-backend/internal/credential"
	"plant-monitor-backend/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAuthenticator struct {
	secret string
	device *model.Device
}

func (f *fakeAuthenticator) Authenticate(_ context.Context, raw, externalID string) (*model.Device, error) {
	if raw != f.secret || externalID != f.device.ExternalID {
		return nil, credential.ErrInvalidCredential
	}
	return f.device, nil
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiter(t *testing.T) {
	r := gin.New()
	r.Use(RateLimiter(rate.Limit(0.001), 2, ByClientIP))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		w := serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
	w := serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// A different client has its own bucket.
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "10.0.0.9:1234"
	assert.Equal(t, http.StatusOK, serve(r, req).Code)
}

func TestCache(t *testing.T) {
	var calls int32
	store := cache.New(time.Minute, time.Minute)

	r := gin.New()
	r.GET("/items", Cache(store, time.Minute, func(c *gin.Context) string { return c.GetHeader(DeviceIDHeader) }), func(c *gin.Context) {
		n := atomic.AddInt32(&calls, 1)
		c.JSON(http.StatusOK, gin.H{"call": n})
	})

	req := func(device string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/items", nil)
		req.Header.Set(DeviceIDHeader, device)
		return req
	}

	first := serve(r, req("PM-A"))
	second := serve(r, req("PM-A"))
	assert.JSONEq(t, `{"call":1}`, first.Body.String())
	assert.JSONEq(t, `{"call":1}`, second.Body.String())
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))

	other := serve(r, req("PM-B"))
	assert.JSONEq(t, `{"call":2}`, other.Body.String())
}

func TestDeviceAuth(t *testing.T) {
	device := &model.Device{ID: 1, ExternalID: "PM-AB12"}
	authn := &fakeAuthenticator{secret: "PM_PM-AB12_secret", device: device}

	r := gin.New()
	g := r.Group("/devices/:deviceId", DeviceAuth(authn), RequireSelf("deviceId"))
	g.GET("/ping", func(c *gin.Context) {
		got, ok := auth.DeviceFromContext(c.Request.Context())
		require.True(t, ok)
		c.String(http.StatusOK, got.ExternalID)
	})

	tests := []struct {
		name     string
		path     string
		header   string
		deviceID string
		code     int
	}{
		{name: "Valid", path: "/devices/PM-AB12/ping", header: "Bearer PM_PM-AB12_secret", deviceID: "PM-AB12", code: http.StatusOK},
		{name: "Missing header", path: "/devices/PM-AB12/ping", deviceID: "PM-AB12", code: http.StatusUnauthorized},
		{name: "Missing device id", path: "/devices/PM-AB12/ping", header: "Bearer PM_PM-AB12_secret", code: http.StatusUnauthorized},
		{name: "Wrong secret", path: "/devices/PM-AB12/ping", header: "Bearer nope", deviceID: "PM-AB12", code: http.StatusUnauthorized},
		{name: "Not bearer", path: "/devices/PM-AB12/ping", header: "Basic PM_PM-AB12_secret", deviceID: "PM-AB12", code: http.StatusUnauthorized},
		{name: "Other device's route", path: "/devices/PM-ZZ99/ping", header: "Bearer PM_PM-AB12_secret", deviceID: "PM-AB12", code: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.deviceID != "" {
				req.Header.Set(DeviceIDHeader, tt.deviceID)
			}
			w := serve(r, req)
			assert.Equal(t, tt.code, w.Code)
			if tt.code == http.StatusUnauthorized {
				assert.JSONEq(t, `{"error":"unauthorized"}`, w.Body.String())
			}
		})
	}
}

func TestOperatorAuth(t *testing.T) {
	secret := []byte("test-secret")
	r := gin.New()
	r.POST("/admin", OperatorAuth(secret, auth.RoleAdmin, auth.RoleManufacturer), func(c *gin.Context) {
		c.String(http.StatusOK, auth.SubjectFromContext(c.Request.Context()))
	})

	token := func(role auth.Role) string {
		tok, err := auth.IssueJWT(secret, "ops-1", role, time.Hour)
		require.NoError(t, err)
		return "Bearer " + tok
	}

	tests := []struct {
		name   string
		header string
		code   int
	}{
		{name: "Admin", header: token(auth.RoleAdmin), code: http.StatusOK},
		{name: "Manufacturer", header: token(auth.RoleManufacturer), code: http.StatusOK},
		{name: "Operator lacks role", header: token(auth.RoleOperator), code: http.StatusForbidden},
		{name: "No token", code: http.StatusUnauthorized},
		{name: "Garbage", header: "Bearer abc.def.ghi", code: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := serve(r, req)
			assert.Equal(t, tt.code, w.Code)
			if tt.code == http.StatusOK {
				assert.Equal(t, "ops-1", w.Body.String())
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil))
	_, err := uuid.Parse(w.Header().Get(RequestIDHeader))
	assert.NoError(t, err)

	inbound := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, inbound)
	w = serve(r, req)
	assert.Equal(t, inbound, w.Header().Get(RequestIDHeader))
}
