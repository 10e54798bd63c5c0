package model

import (
	"time"

	"gorm.io/datatypes"
)

// DeviceConfiguration is a keyed configuration entry served to a device.
type DeviceConfiguration struct {
	ID          int64          `gorm:"primaryKey"`
	DeviceID    int64          `gorm:"not null;uniqueIndex:idx_device_config_key,priority:1"`
	ConfigKey   string         `gorm:"size:64;not null;uniqueIndex:idx_device_config_key,priority:2"`
	ConfigValue datatypes.JSON `gorm:"not null"`
	Description string         `gorm:"size:256"`
	IsActive    bool           `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Associations
	Device Device `gorm:"constraint:OnDelete:CASCADE"`
}
