package model

import "time"

// DeviceStatus is the administrative state of a device.
type DeviceStatus string

const DeviceStatusActive DeviceStatus = "active"

// Device represents a physical plant monitor identified by its external id.
type Device struct {
	ID          int64        `gorm:"primaryKey" json:"id"`
	ExternalID  string       `gorm:"uniqueIndex;size:64;not null" json:"deviceId"`
	DisplayName string       `gorm:"size:128;not null" json:"displayName"`
	Status      DeviceStatus `gorm:"size:16;not null" json:"status"`
	IsOnline    bool         `gorm:"not null" json:"isOnline"`
	LastSeenAt  *time.Time   `json:"lastSeenAt"`
	CreatedAt   time.Time    `gorm:"not null" json:"createdAt"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updatedAt"`
}
