package device

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"plant-monitor-backend/internal/metrics"
	"plant-monitor-backend/internal/store"
)

// Config is what a device receives when it asks for its configuration.
type Config struct {
	DeviceID    string                     `json:"deviceId"`
	DisplayName string                     `json:"displayName"`
	Settings    map[string]json.RawMessage `json:"settings"`
}

// Service tracks device presence and serves per-device configuration.
type Service struct {
	store        store.Store
	offlineAfter time.Duration
	now          func() time.Time
}

// NewService creates a device service. Devices silent for longer than
// offlineAfter are marked offline by ReapStale.
func NewService(st store.Store, offlineAfter time.Duration) *Service {
	if offlineAfter <= 0 {
		offlineAfter = 10 * time.Minute
	}
	return &Service{
		store:        st,
		offlineAfter: offlineAfter,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides time.Now.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Heartbeat marks the device online.
func (s *Service) Heartbeat(ctx context.Context, deviceID int64) (time.Time, error) {
	now := s.now()
	if err := s.store.MarkDeviceSeen(ctx, deviceID, now); err != nil {
		return time.Time{}, err
	}
	return now, nil
}

// Config assembles the active configuration entries of a device.
func (s *Service) Config(ctx context.Context, deviceID int64) (*Config, error) {
	device, err := s.store.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("load device %d: %w", deviceID, err)
	}
	entries, err := s.store.ListDeviceConfigurations(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DeviceID:    device.ExternalID,
		DisplayName: device.DisplayName,
		Settings:    make(map[string]json.RawMessage, len(entries)),
	}
	for _, e := range entries {
		cfg.Settings[e.ConfigKey] = json.RawMessage(e.ConfigValue)
	}
	return cfg, nil
}

// ReapStale marks devices offline whose last heartbeat is too old.
func (s *Service) ReapStale(ctx context.Context) (int64, error) {
	n, err := s.store.MarkDevicesOffline(ctx, s.now().Add(-s.offlineAfter))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.AddDevicesReaped(n)
		log.Printf("marked %d devices offline", n)
	}
	return n, nil
}
