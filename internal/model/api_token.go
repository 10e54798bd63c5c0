package model

import "time"

// ApiToken is a hashed device credential. The raw secret is never stored.
type ApiToken struct {
	ID         int64      `gorm:"primaryKey" json:"id"`
	DeviceID   int64      `gorm:"not null;index:idx_api_tokens_device_active,priority:1" json:"deviceId"`
	TokenHash  string     `gorm:"size:128;not null;uniqueIndex" json:"tokenHash"`
	Label      string     `gorm:"size:100" json:"label"`
	ExpiresAt  *time.Time `json:"expiresAt"`
	LastUsedAt *time.Time `json:"lastUsedAt"`
	IsActive   bool       `gorm:"not null;index:idx_api_tokens_device_active,priority:2" json:"isActive"`
	CreatedAt  time.Time  `gorm:"not null" json:"createdAt"`

	// Associations
	Device Device `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// Usable reports whether the token may authenticate a request at now.
func (t ApiToken) Usable(now time.Time) bool {
	if !t.IsActive {
		return false
	}
	return t.ExpiresAt == nil || t.ExpiresAt.After(now)
}
