package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"plant-monitor-backend/internal/model"
)

func (s *gormStore) CreateDevice(ctx context.Context, device *model.Device) error {
	if err := s.db.WithContext(ctx).Create(device).Error; err != nil {
		return fmt.Errorf("create device %q: %w", device.ExternalID, translate(err))
	}
	return nil
}

func (s *gormStore) GetDevice(ctx context.Context, id int64) (*model.Device, error) {
	var device model.Device
	if err := s.db.WithContext(ctx).First(&device, id).Error; err != nil {
		return nil, translate(err)
	}
	return &device, nil
}

func (s *gormStore) GetDeviceByExternalID(ctx context.Context, externalID string) (*model.Device, error) {
	var device model.Device
	if err := s.db.WithContext(ctx).Where("external_id = ?", externalID).First(&device).Error; err != nil {
		return nil, translate(err)
	}
	return &device, nil
}

func (s *gormStore) LockDeviceByExternalID(ctx context.Context, externalID string) (*model.Device, error) {
	var device model.Device
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("external_id = ?", externalID).
		First(&device).Error
	if err != nil {
		return nil, translate(err)
	}
	return &device, nil
}

// MarkDeviceSeen records a heartbeat.
func (s *gormStore) MarkDeviceSeen(ctx context.Context, id int64, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.Device{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_online": true, "last_seen_at": at})
	if res.Error != nil {
		return fmt.Errorf("mark device %d seen: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkDevicesOffline flips online devices whose last heartbeat is older than seenBefore.
func (s *gormStore) MarkDevicesOffline(ctx context.Context, seenBefore time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&model.Device{}).
		Where("is_online = ? AND (last_seen_at IS NULL OR last_seen_at < ?)", true, seenBefore).
		Update("is_online", false)
	if res.Error != nil {
		return 0, fmt.Errorf("mark stale devices offline: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *gormStore) ListDeviceConfigurations(ctx context.Context, deviceID int64) ([]model.DeviceConfiguration, error) {
	var configs []model.DeviceConfiguration
	err := s.db.WithContext(ctx).
		Where("device_id = ? AND is_active = ?", deviceID, true).
		Order("config_key").
		Find(&configs).Error
	if err != nil {
		return nil, fmt.Errorf("list configuration for device %d: %w", deviceID, err)
	}
	return configs, nil
}
