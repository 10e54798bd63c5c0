package model

import (
	"time"

	"gorm.io/datatypes"
)

// CommandType enumerates the operations a device understands.
type CommandType string

const (
	CommandUpdateConfiguration CommandType = "update_configuration"
	CommandManualWatering      CommandType = "manual_watering"
	CommandEmergencyStop       CommandType = "emergency_stop"
	CommandRestart             CommandType = "restart"
	CommandCalibrateSensors    CommandType = "calibrate_sensors"
	CommandEnableAutoWatering  CommandType = "enable_auto_watering"
	CommandDisableAutoWatering CommandType = "disable_auto_watering"
)

var commandTypes = map[CommandType]struct{}{
	CommandUpdateConfiguration: {},
	CommandManualWatering:      {},
	CommandEmergencyStop:       {},
	CommandRestart:             {},
	CommandCalibrateSensors:    {},
	CommandEnableAutoWatering:  {},
	CommandDisableAutoWatering: {},
}

// Valid reports whether t is a known command type.
func (t CommandType) Valid() bool {
	_, ok := commandTypes[t]
	return ok
}

// CommandStatus is a step of the command state machine:
// pending -> sent -> completed|failed, and pending|sent -> expired.
type CommandStatus string

const (
	CommandStatusPending   CommandStatus = "pending"
	CommandStatusSent      CommandStatus = "sent"
	CommandStatusCompleted CommandStatus = "completed"
	CommandStatusFailed    CommandStatus = "failed"
	CommandStatusExpired   CommandStatus = "expired"
)

// Terminal reports whether no further transition is possible.
func (s CommandStatus) Terminal() bool {
	switch s {
	case CommandStatusCompleted, CommandStatusFailed, CommandStatusExpired:
		return true
	}
	return false
}

// OpenStatuses are the statuses a command can still leave.
var OpenStatuses = []CommandStatus{CommandStatusPending, CommandStatusSent}

// Command priorities, higher is more urgent. 2 is a plain operator request.
const (
	PriorityLow      = 1
	PriorityHigh     = 3
	PriorityCritical = 4
)

// DeviceCommand is a unit of work queued for a single device.
type DeviceCommand struct {
	ID              int64          `gorm:"primaryKey" json:"id"`
	DeviceID        int64          `gorm:"not null;index:idx_device_commands_poll,priority:1" json:"deviceId"`
	Type            CommandType    `gorm:"size:32;not null" json:"type"`
	Parameters      datatypes.JSON `json:"parameters"`
	Status          CommandStatus  `gorm:"size:16;not null;index:idx_device_commands_poll,priority:2" json:"status"`
	Priority        int            `gorm:"not null;index:idx_device_commands_poll,priority:3" json:"priority"`
	CreatedAt       time.Time      `gorm:"not null;index:idx_device_commands_poll,priority:4" json:"createdAt"`
	ExpiresAt       time.Time      `gorm:"not null;index" json:"expiresAt"`
	SentAt          *time.Time     `json:"sentAt,omitempty"`
	AcknowledgedAt  *time.Time     `json:"acknowledgedAt,omitempty"`
	ExecutionResult *string        `gorm:"type:text" json:"executionResult,omitempty"`
	ErrorMessage    *string        `gorm:"type:text" json:"errorMessage,omitempty"`
	PollID          string         `gorm:"size:36;index" json:"-"`

	// Associations
	Device Device `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
