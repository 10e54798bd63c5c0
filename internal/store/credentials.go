package store

import (
	"context"
	"fmt"
	"time"

	"plant-monitor-backend/internal/model"
)

func (s *gormStore) CreateCredential(ctx context.Context, token *model.ApiToken) error {
	if err := s.db.WithContext(ctx).Create(token).Error; err != nil {
		return fmt.Errorf("create credential for device %d: %w", token.DeviceID, translate(err))
	}
	return nil
}

// ActiveCredentials returns active credentials of a device that have not expired at now.
func (s *gormStore) ActiveCredentials(ctx context.Context, deviceID int64, now time.Time) ([]model.ApiToken, error) {
	var tokens []model.ApiToken
	err := s.db.WithContext(ctx).
		Where("device_id = ? AND is_active = ?", deviceID, true).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("id").
		Find(&tokens).Error
	if err != nil {
		return nil, fmt.Errorf("load credentials for device %d: %w", deviceID, err)
	}
	return tokens, nil
}

// HasActiveCredential ignores expiry: an expired but unrevoked credential still
// means the device was provisioned.
func (s *gormStore) HasActiveCredential(ctx context.Context, deviceID int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.ApiToken{}).
		Where("device_id = ? AND is_active = ?", deviceID, true).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count credentials for device %d: %w", deviceID, err)
	}
	return count > 0, nil
}

func (s *gormStore) ListCredentials(ctx context.Context, deviceID int64) ([]model.ApiToken, error) {
	var tokens []model.ApiToken
	if err := s.db.WithContext(ctx).Where("device_id = ?", deviceID).Order("id").Find(&tokens).Error; err != nil {
		return nil, fmt.Errorf("list credentials for device %d: %w", deviceID, err)
	}
	return tokens, nil
}

func (s *gormStore) TouchCredential(ctx context.Context, id int64, at time.Time) error {
	return s.db.WithContext(ctx).Model(&model.ApiToken{}).
		Where("id = ?", id).
		Update("last_used_at", at).Error
}

// DeactivateCredential is idempotent: unknown or already inactive hashes are not an error.
func (s *gormStore) DeactivateCredential(ctx context.Context, tokenHash string) error {
	err := s.db.WithContext(ctx).Model(&model.ApiToken{}).
		Where("token_hash = ? AND is_active = ?", tokenHash, true).
		Update("is_active", false).Error
	if err != nil {
		return fmt.Errorf("revoke credential: %w", err)
	}
	return nil
}
