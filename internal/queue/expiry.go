package queue

import (
	"time"

	"plant-monitor-backend/internal/model"
)

// ExpiryPolicy maps a command type to how long it stays deliverable.
// Urgent commands go stale fast; configuration changes can wait.
type ExpiryPolicy struct {
	EmergencyStop       time.Duration
	ManualWatering      time.Duration
	UpdateConfiguration time.Duration
	Default             time.Duration
}

// DefaultExpiryPolicy returns the stock deadlines.
func DefaultExpiryPolicy() ExpiryPolicy {
	return ExpiryPolicy{
		EmergencyStop:       2 * time.Minute,
		ManualWatering:      5 * time.Minute,
		UpdateConfiguration: 30 * time.Minute,
		Default:             10 * time.Minute,
	}
}

// TTL returns the lifetime for t. Unset fields fall back to the defaults.
func (p ExpiryPolicy) TTL(t model.CommandType) time.Duration {
	def := DefaultExpiryPolicy()
	pick := func(v, fallback time.Duration) time.Duration {
		if v > 0 {
			return v
		}
		return fallback
	}

	switch t {
	case model.CommandEmergencyStop:
		return pick(p.EmergencyStop, def.EmergencyStop)
	case model.CommandManualWatering:
		return pick(p.ManualWatering, def.ManualWatering)
	case model.CommandUpdateConfiguration:
		return pick(p.UpdateConfiguration, def.UpdateConfiguration)
	}
	return pick(p.Default, def.Default)
}
